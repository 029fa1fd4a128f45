// Package subscription persists the tracked media subscriptions backing
// each sync run.
package subscription

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cloudsub/internal/config"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store manages subscription persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the subscription database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.StateDir, "subscriptions.db"))
}

// OpenPath opens the subscription database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

const subscriptionColumns = `id, title, year, season, tmdb_id, media_type, total_episodes,
    start_episode, missing_episodes, best_version, excluded, completed,
    quality, resolution, effect, downloaded_json, created_at, updated_at`

// Add inserts a new subscription.
func (s *Store) Add(ctx context.Context, sub *Subscription) (*Subscription, error) {
	if sub == nil {
		return nil, errors.New("subscription is nil")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	downloaded, err := marshalEpisodes(sub.Downloaded)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (
            title, year, season, tmdb_id, media_type, total_episodes,
            start_episode, missing_episodes, best_version, excluded, completed,
            quality, resolution, effect, downloaded_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.Title, sub.Year, sub.Season, sub.TMDBID, string(sub.Type), sub.TotalEpisodes,
		sub.StartEpisode, sub.MissingEpisodes, boolToInt(sub.BestVersion), boolToInt(sub.Excluded), boolToInt(sub.Completed),
		nullableString(sub.Quality), nullableString(sub.Resolution), nullableString(sub.Effect),
		downloaded, timestamp, timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a subscription by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// ListActive returns subscriptions eligible for syncing: not excluded and
// not yet complete, oldest first.
func (s *Store) ListActive(ctx context.Context) ([]*Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE excluded = 0 AND completed = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query active subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// List returns all subscriptions, oldest first.
func (s *Store) List(ctx context.Context) ([]*Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// Update persists changes to an existing subscription.
func (s *Store) Update(ctx context.Context, sub *Subscription) error {
	if sub == nil {
		return errors.New("subscription is nil")
	}
	sub.UpdatedAt = time.Now().UTC()

	downloaded, err := marshalEpisodes(sub.Downloaded)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE subscriptions
         SET title = ?, year = ?, season = ?, tmdb_id = ?, media_type = ?, total_episodes = ?,
             start_episode = ?, missing_episodes = ?, best_version = ?, excluded = ?, completed = ?,
             quality = ?, resolution = ?, effect = ?, downloaded_json = ?, updated_at = ?
         WHERE id = ?`,
		sub.Title, sub.Year, sub.Season, sub.TMDBID, string(sub.Type), sub.TotalEpisodes,
		sub.StartEpisode, sub.MissingEpisodes, boolToInt(sub.BestVersion), boolToInt(sub.Excluded), boolToInt(sub.Completed),
		nullableString(sub.Quality), nullableString(sub.Resolution), nullableString(sub.Effect),
		downloaded, sub.UpdatedAt.Format(time.RFC3339Nano),
		sub.ID,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// SetDownloaded writes back the known-downloaded episode set and missing count.
func (s *Store) SetDownloaded(ctx context.Context, id int64, episodes []int, missing int) error {
	downloaded, err := marshalEpisodes(episodes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE subscriptions SET downloaded_json = ?, missing_episodes = ?, updated_at = ? WHERE id = ?`,
		downloaded, missing, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("set downloaded: %w", err)
	}
	return nil
}

// MarkComplete records that a subscription has nothing left to fetch.
func (s *Store) MarkComplete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET completed = 1, missing_episodes = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	return nil
}

// SetExcluded toggles a subscription's exclusion from sync runs.
func (s *Store) SetExcluded(ctx context.Context, id int64, excluded bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET excluded = ?, updated_at = ? WHERE id = ?`,
		boolToInt(excluded), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("set excluded: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var (
		sub          Subscription
		mediaType    string
		bestVersion  int
		excluded     int
		completed    int
		quality      sql.NullString
		resolution   sql.NullString
		effect       sql.NullString
		downloaded   sql.NullString
		createdAtRaw string
		updatedAtRaw string
	)
	err := row.Scan(
		&sub.ID, &sub.Title, &sub.Year, &sub.Season, &sub.TMDBID, &mediaType, &sub.TotalEpisodes,
		&sub.StartEpisode, &sub.MissingEpisodes, &bestVersion, &excluded, &completed,
		&quality, &resolution, &effect, &downloaded, &createdAtRaw, &updatedAtRaw,
	)
	if err != nil {
		return nil, err
	}
	sub.Type = Type(mediaType)
	sub.BestVersion = bestVersion != 0
	sub.Excluded = excluded != 0
	sub.Completed = completed != 0
	sub.Quality = quality.String
	sub.Resolution = resolution.String
	sub.Effect = effect.String
	if downloaded.Valid && downloaded.String != "" {
		if err := json.Unmarshal([]byte(downloaded.String), &sub.Downloaded); err != nil {
			return nil, fmt.Errorf("decode downloaded set: %w", err)
		}
	}
	if sub.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtRaw); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if sub.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtRaw); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &sub, nil
}

func collectSubscriptions(rows *sql.Rows) ([]*Subscription, error) {
	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

func marshalEpisodes(episodes []int) (any, error) {
	if len(episodes) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(episodes)
	if err != nil {
		return nil, fmt.Errorf("encode downloaded set: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
