package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"cloudsub/internal/discovery"
	"cloudsub/internal/drive"
	"cloudsub/internal/history"
	"cloudsub/internal/logging"
	"cloudsub/internal/matcher"
	"cloudsub/internal/subscription"
)

func (s *Syncer) syncMovie(ctx context.Context, logger *slog.Logger, sub *subscription.Subscription, run *runState) error {
	best, err := s.ledger.BestMovieSuccess(ctx, sub.Title)
	if err != nil {
		return fmt.Errorf("load movie history: %w", err)
	}
	if best != nil && (!sub.BestVersion || best.PerfectMatch) {
		return s.finishSubscription(ctx, logger, sub, run)
	}
	priorScore := 0
	if best != nil {
		priorScore = best.FilterScore
	}

	filter, err := matcher.NewFilter(sub.Quality, sub.Resolution, sub.Effect, !sub.BestVersion)
	if err != nil {
		return fmt.Errorf("build filter: %w", err)
	}
	minSize := int64(s.cfg.Sync.MinMovieSizeMB) * 1024 * 1024
	destPath := path.Join(s.cfg.Library.MoviesDir, libraryBase(sub))

	// Movies are a single unit: the first backend with results wins, no
	// accumulation across backends.
	resources, err := s.registry.SearchMovie(ctx, discovery.Request{
		Title:  sub.Title,
		Year:   sub.Year,
		TMDBID: sub.TMDBID,
		Type:   discovery.Movie,
	})
	if err != nil {
		return fmt.Errorf("search movie: %w", err)
	}
	if len(resources) == 0 {
		logger.Info("no resources found")
		return nil
	}

	for _, resource := range resources {
		if !run.canTransfer() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		done, err := s.syncMovieResource(ctx, logger, sub, filter, resource, destPath, minSize, priorScore, run)
		if err != nil {
			if errors.Is(err, drive.ErrAuthExpired) || ctx.Err() != nil {
				return err
			}
			logger.Warn("resource skipped",
				logging.String(logging.FieldBackend, resource.Source),
				logging.String(logging.FieldShareURL, resource.ShareURL),
				logging.Error(err),
			)
			continue
		}
		if done {
			return s.finishSubscription(ctx, logger, sub, run)
		}
	}
	return nil
}

func (s *Syncer) syncMovieResource(ctx context.Context, logger *slog.Logger, sub *subscription.Subscription, filter *matcher.Filter, resource discovery.Resource, destPath string, minSize int64, priorScore int, run *runState) (bool, error) {
	status, err := s.client.CheckShare(ctx, resource.ShareURL)
	if err != nil {
		return false, err
	}
	if !status.Valid {
		logger.Debug("share invalid",
			logging.String(logging.FieldShareURL, resource.ShareURL),
			logging.String("status", status.Status),
		)
		return false, nil
	}
	shareCode, receiveCode, err := drive.ParseShareLink(resource.ShareURL)
	if err != nil {
		return false, err
	}

	nodes, err := s.client.ListShareTree(ctx, shareCode, receiveCode, drive.ListShareOptions{})
	if err != nil {
		return false, fmt.Errorf("list share tree: %w", err)
	}

	candidate := matcher.MatchMovieFile(nodes, filter, minSize)
	if candidate == nil {
		return false, nil
	}
	if sub.BestVersion && priorScore > 0 {
		if candidate.FilterScore <= priorScore {
			return false, nil
		}
		candidate.Upgrade = true
	}

	succeeded, _, transferErr := s.client.TransferBatch(ctx, shareCode, receiveCode, []string{candidate.File.ID}, destPath)
	if transferErr != nil && errors.Is(transferErr, drive.ErrAuthExpired) {
		return false, transferErr
	}

	entry := history.Entry{
		Title:        sub.Title,
		ShareURL:     resource.ShareURL,
		FileName:     candidate.File.Name,
		FilterScore:  candidate.FilterScore,
		PerfectMatch: candidate.PerfectMatch,
		Status:       history.StatusFail,
	}
	success := len(succeeded) == 1
	if success {
		entry.Status = history.StatusSuccess
	}
	if err := s.ledger.Append(ctx, entry); err != nil {
		logger.Error("history append failed", logging.Error(err))
	}
	run.consume(1, boolCount(success), boolCount(!success))
	logger.Info("transfer recorded",
		logging.String("status", entry.Status),
		logging.String("file", entry.FileName),
	)
	return success, nil
}

func boolCount(value bool) int {
	if value {
		return 1
	}
	return 0
}
