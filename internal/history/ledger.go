// Package history is the durable idempotence ledger: one entry per
// attempted transfer, capped at the most recent entries so the database
// never grows unbounded. A successful perfect-match entry forecloses
// further transfers of its episode; a non-perfect success may be superseded
// by a better version later.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"cloudsub/internal/config"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// MaxEntries bounds the persisted ledger; the oldest entries are evicted
// first once the bound is reached.
const MaxEntries = 500

// Transfer outcome states.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// Entry is one recorded transfer attempt. Episode zero denotes a movie.
type Entry struct {
	ID           int64
	Title        string
	Season       int
	Episode      int
	Status       string
	ShareURL     string
	FileName     string
	FilterScore  int
	PerfectMatch bool
	CreatedAt    time.Time
}

// Ledger manages transfer history persistence backed by SQLite.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database.
func Open(cfg *config.Config) (*Ledger, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.StateDir, "history.db"))
}

// OpenPath opens the history database at an explicit location.
func OpenPath(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	ledger := &Ledger{db: db, path: dbPath}
	if err := ledger.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return ledger, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Ledger) initSchema(ctx context.Context) error {
	var tableExists int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		tx, err := l.db.BeginTx(ctx, nil)
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
	if err := l.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("history: database has version %d, expected %d", version, schemaVersion)
	}
	return nil
}

// Append records one transfer outcome and evicts the oldest entries beyond
// the cap.
func (l *Ledger) Append(ctx context.Context, entry Entry) error {
	if entry.Status != StatusSuccess && entry.Status != StatusFail {
		return fmt.Errorf("history: invalid status %q", entry.Status)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transfer_history (
            title, season, episode, status, share_url, file_name,
            filter_score, perfect_match, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Title, entry.Season, entry.Episode, entry.Status, entry.ShareURL,
		entry.FileName, entry.FilterScore, boolToInt(entry.PerfectMatch),
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM transfer_history WHERE id IN (
            SELECT id FROM transfer_history ORDER BY id DESC LIMIT -1 OFFSET ?
        )`, MaxEntries)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	return tx.Commit()
}

const entryColumns = `id, title, season, episode, status, share_url, file_name,
    filter_score, perfect_match, created_at`

// All returns the full ledger, newest first.
func (l *Ledger) All(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM transfer_history ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ForTitleSeason returns the entries for one (title, season), newest first.
func (l *Ledger) ForTitleSeason(ctx context.Context, title string, season int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM transfer_history WHERE title = ? AND season = ? ORDER BY id DESC`,
		title, season)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// PerfectSuccesses returns the episodes of a (title, season) with a
// successful perfect-match entry. These episodes are settled.
func (l *Ledger) PerfectSuccesses(ctx context.Context, title string, season int) (map[int]struct{}, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT DISTINCT episode FROM transfer_history
         WHERE title = ? AND season = ? AND status = ? AND perfect_match = 1`,
		title, season, StatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("query perfect successes: %w", err)
	}
	defer rows.Close()

	episodes := make(map[int]struct{})
	for rows.Next() {
		var episode int
		if err := rows.Scan(&episode); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		episodes[episode] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate perfect successes: %w", err)
	}
	return episodes, nil
}

// SuccessScores returns, per episode of a (title, season), the best filter
// score among its successful entries. Used by best-version mode to decide
// whether a candidate is an upgrade.
func (l *Ledger) SuccessScores(ctx context.Context, title string, season int) (map[int]int, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT episode, MAX(filter_score) FROM transfer_history
         WHERE title = ? AND season = ? AND status = ?
         GROUP BY episode`,
		title, season, StatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("query success scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[int]int)
	for rows.Next() {
		var episode, score int
		if err := rows.Scan(&episode, &score); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		scores[episode] = score
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate success scores: %w", err)
	}
	return scores, nil
}

// BestMovieSuccess returns the best successful movie entry for a title, or
// nil if none is recorded.
func (l *Ledger) BestMovieSuccess(ctx context.Context, title string) (*Entry, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM transfer_history
         WHERE title = ? AND season = 0 AND episode = 0 AND status = ?
         ORDER BY filter_score DESC, id DESC LIMIT 1`,
		title, StatusSuccess)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query movie success: %w", err)
	}
	return &entry, nil
}

// Count returns the number of persisted entries.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var count int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM transfer_history`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return count, nil
}

// Clear removes every entry from the ledger.
func (l *Ledger) Clear(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM transfer_history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry      Entry
		fileName   sql.NullString
		perfect    int
		createdRaw string
	)
	err := row.Scan(
		&entry.ID, &entry.Title, &entry.Season, &entry.Episode, &entry.Status,
		&entry.ShareURL, &fileName, &entry.FilterScore, &perfect, &createdRaw,
	)
	if err != nil {
		return Entry{}, err
	}
	entry.FileName = fileName.String
	entry.PerfectMatch = perfect != 0
	if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdRaw); err != nil {
		return Entry{}, fmt.Errorf("parse created_at: %w", err)
	}
	return entry, nil
}

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
