package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"

	"cloudsub/internal/discovery"
	"cloudsub/internal/drive"
	"cloudsub/internal/history"
	"cloudsub/internal/logging"
	"cloudsub/internal/matcher"
	"cloudsub/internal/subscription"
)

// seriesPlan is the per-subscription missing-unit state for one run.
type seriesPlan struct {
	season int
	// missing holds every episode still worth fetching, upgrades included.
	missing map[int]struct{}
	// upgrades maps an episode to the best prior success score; a candidate
	// must beat that score to be transferred.
	upgrades map[int]int
	// satisfied is the known-downloaded baseline: prior downloads, files
	// already in the destination, and perfect history successes.
	satisfied map[int]struct{}
	// transferred collects this run's successful episodes.
	transferred map[int]struct{}
}

func (p *seriesPlan) outstanding() []int {
	episodes := make([]int, 0, len(p.missing))
	for episode := range p.missing {
		episodes = append(episodes, episode)
	}
	sort.Ints(episodes)
	return episodes
}

// missingCount reports the genuinely-missing episodes left, excluding
// upgrade candidates, which are already satisfied by a lesser version.
func (p *seriesPlan) missingCount() int {
	count := 0
	for episode := range p.missing {
		if _, ok := p.upgrades[episode]; !ok {
			count++
		}
	}
	return count
}

func (s *Syncer) syncSeries(ctx context.Context, logger *slog.Logger, sub *subscription.Subscription, run *runState) error {
	season := sub.Season
	if season < 1 {
		season = 1
	}
	destPath := seriesDestPath(s.cfg.Library.TVDir, sub, season)

	plan, err := s.seriesPlan(ctx, sub, season, destPath)
	if err != nil {
		return err
	}
	if len(plan.missing) == 0 {
		return s.reconcileSeries(ctx, logger, sub, plan, run)
	}
	logger.Info("episodes to fetch",
		logging.Int(logging.FieldSeason, season),
		logging.Int("missing", len(plan.missing)),
		logging.Int("upgrades", len(plan.upgrades)),
	)

	filter, err := matcher.NewFilter(sub.Quality, sub.Resolution, sub.Effect, !sub.BestVersion)
	if err != nil {
		return fmt.Errorf("build filter: %w", err)
	}

	req := discovery.Request{
		Title:  sub.Title,
		Year:   sub.Year,
		TMDBID: sub.TMDBID,
		Type:   discovery.Series,
		Season: season,
	}

	// Different backends may cover disjoint subsets of the missing
	// episodes, so every enabled backend gets a turn until nothing is
	// missing or the quota runs out.
	for _, backend := range s.registry.Backends() {
		if len(plan.missing) == 0 || !run.canTransfer() {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resources := s.registry.SearchOne(ctx, backend, req)
		for _, resource := range resources {
			if len(plan.missing) == 0 || !run.canTransfer() {
				break
			}
			if err := s.syncSeriesResource(ctx, logger, sub, plan, filter, resource, destPath, run); err != nil {
				if errors.Is(err, drive.ErrAuthExpired) || ctx.Err() != nil {
					return err
				}
				logger.Warn("resource skipped",
					logging.String(logging.FieldBackend, resource.Source),
					logging.String(logging.FieldShareURL, resource.ShareURL),
					logging.Error(err),
				)
			}
		}
	}

	return s.reconcileSeries(ctx, logger, sub, plan, run)
}

func (s *Syncer) seriesPlan(ctx context.Context, sub *subscription.Subscription, season int, destPath string) (*seriesPlan, error) {
	authoritative := s.completeness.MissingEpisodes(sub)

	perfect, err := s.ledger.PerfectSuccesses(ctx, sub.Title, season)
	if err != nil {
		return nil, fmt.Errorf("load perfect history: %w", err)
	}
	existing, err := matcher.ExistingEpisodes(ctx, s.client, destPath, season)
	if err != nil {
		return nil, fmt.Errorf("scan destination: %w", err)
	}

	plan := &seriesPlan{
		season:      season,
		missing:     make(map[int]struct{}),
		upgrades:    make(map[int]int),
		satisfied:   make(map[int]struct{}),
		transferred: make(map[int]struct{}),
	}
	for _, episode := range sub.Downloaded {
		plan.satisfied[episode] = struct{}{}
	}
	for episode := range existing {
		plan.satisfied[episode] = struct{}{}
	}
	for episode := range perfect {
		plan.satisfied[episode] = struct{}{}
	}

	for _, episode := range authoritative {
		if _, ok := plan.satisfied[episode]; ok {
			continue
		}
		plan.missing[episode] = struct{}{}
	}

	if sub.BestVersion {
		scores, err := s.ledger.SuccessScores(ctx, sub.Title, season)
		if err != nil {
			return nil, fmt.Errorf("load history scores: %w", err)
		}
		for episode, score := range scores {
			if _, ok := perfect[episode]; ok {
				continue
			}
			if _, ok := plan.missing[episode]; ok {
				continue
			}
			plan.upgrades[episode] = score
			plan.missing[episode] = struct{}{}
		}
	}
	return plan, nil
}

type pick struct {
	episode   int
	candidate *matcher.Candidate
}

func (s *Syncer) syncSeriesResource(ctx context.Context, logger *slog.Logger, sub *subscription.Subscription, plan *seriesPlan, filter *matcher.Filter, resource discovery.Resource, destPath string, run *runState) error {
	status, err := s.client.CheckShare(ctx, resource.ShareURL)
	if err != nil {
		return err
	}
	if !status.Valid {
		logger.Debug("share invalid",
			logging.String(logging.FieldShareURL, resource.ShareURL),
			logging.String("status", status.Status),
		)
		return nil
	}
	shareCode, receiveCode, err := drive.ParseShareLink(resource.ShareURL)
	if err != nil {
		return err
	}

	opts := drive.ListShareOptions{}
	if s.cfg.Drive.PruneSeasonDirs {
		opts.SeasonHint = plan.season
	}
	nodes, err := s.client.ListShareTree(ctx, shareCode, receiveCode, opts)
	if err != nil {
		return fmt.Errorf("list share tree: %w", err)
	}

	// Match every outstanding episode against this tree in one pass, then
	// cap to the remaining quota before transferring anything.
	var picks []pick
	for _, episode := range plan.outstanding() {
		candidate := matcher.MatchEpisodeFile(nodes, plan.season, episode, filter)
		if candidate == nil {
			continue
		}
		if oldScore, isUpgrade := plan.upgrades[episode]; isUpgrade {
			if candidate.FilterScore <= oldScore {
				continue
			}
			candidate.Upgrade = true
		}
		picks = append(picks, pick{episode: episode, candidate: candidate})
	}
	if len(picks) == 0 {
		return nil
	}
	picks = picks[:run.allow(len(picks))]
	if len(picks) == 0 {
		return nil
	}

	fileIDs := make([]string, 0, len(picks))
	byFileID := make(map[string]pick, len(picks))
	for _, p := range picks {
		fileIDs = append(fileIDs, p.candidate.File.ID)
		byFileID[p.candidate.File.ID] = p
	}

	succeeded, _, transferErr := s.client.TransferBatch(ctx, shareCode, receiveCode, fileIDs, destPath)
	if transferErr != nil && errors.Is(transferErr, drive.ErrAuthExpired) {
		return transferErr
	}
	succeededSet := make(map[string]struct{}, len(succeeded))
	for _, id := range succeeded {
		succeededSet[id] = struct{}{}
	}

	// History is written only after the true outcome is known, one entry
	// per unit. Succeeded episodes leave the missing set immediately so
	// later resources in this run don't re-attempt them.
	successes, failures := 0, 0
	for _, id := range fileIDs {
		p := byFileID[id]
		entry := history.Entry{
			Title:        sub.Title,
			Season:       plan.season,
			Episode:      p.episode,
			ShareURL:     resource.ShareURL,
			FileName:     p.candidate.File.Name,
			FilterScore:  p.candidate.FilterScore,
			PerfectMatch: p.candidate.PerfectMatch,
		}
		if _, ok := succeededSet[id]; ok {
			entry.Status = history.StatusSuccess
			delete(plan.missing, p.episode)
			plan.transferred[p.episode] = struct{}{}
			successes++
		} else {
			entry.Status = history.StatusFail
			failures++
		}
		if err := s.ledger.Append(ctx, entry); err != nil {
			logger.Error("history append failed", logging.Error(err))
		}
		logger.Info("transfer recorded",
			logging.Int(logging.FieldEpisode, p.episode),
			logging.String("status", entry.Status),
			logging.String("file", entry.FileName),
		)
	}
	run.consume(len(fileIDs), successes, failures)

	if transferErr != nil {
		logger.Warn("batch transfer reported error", logging.Error(transferErr))
	}
	return nil
}

func (s *Syncer) reconcileSeries(ctx context.Context, logger *slog.Logger, sub *subscription.Subscription, plan *seriesPlan, run *runState) error {
	downloaded := make(map[int]struct{}, len(plan.satisfied)+len(plan.transferred))
	for episode := range plan.satisfied {
		downloaded[episode] = struct{}{}
	}
	for episode := range plan.transferred {
		downloaded[episode] = struct{}{}
	}
	episodes := make([]int, 0, len(downloaded))
	for episode := range downloaded {
		episodes = append(episodes, episode)
	}
	sort.Ints(episodes)

	missing := plan.missingCount()
	if err := s.store.SetDownloaded(ctx, sub.ID, episodes, missing); err != nil {
		return fmt.Errorf("write back downloaded set: %w", err)
	}
	if missing == 0 {
		return s.finishSubscription(ctx, logger, sub, run)
	}
	logger.Info("episodes still missing", logging.Int("missing", missing))
	return nil
}

func seriesDestPath(tvDir string, sub *subscription.Subscription, season int) string {
	return path.Join(tvDir, libraryBase(sub), "Season "+strconv.Itoa(season))
}

func libraryBase(sub *subscription.Subscription) string {
	if sub.Year > 0 {
		return fmt.Sprintf("%s (%d)", sub.Title, sub.Year)
	}
	return sub.Title
}
