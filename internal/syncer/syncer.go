// Package syncer runs the per-subscription control loop: compute the missing
// units, discover candidate shares, match files, transfer them, and reconcile
// completion state. One run executes at a time, guarded by an in-process
// mutex and a cross-process file lock.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"cloudsub/internal/config"
	"cloudsub/internal/discovery"
	"cloudsub/internal/drive"
	"cloudsub/internal/history"
	"cloudsub/internal/logging"
	"cloudsub/internal/notifications"
	"cloudsub/internal/subscription"
)

// ErrRunInProgress is returned when another process holds the run lock.
var ErrRunInProgress = errors.New("syncer: sync already in progress")

// ErrNoBackends is returned when no search backend has usable credentials.
var ErrNoBackends = errors.New("syncer: no search backends configured")

// StorageClient is the remote drive surface the orchestrator needs.
type StorageClient interface {
	CheckLogin(ctx context.Context) (bool, error)
	CheckShare(ctx context.Context, shareURL string) (drive.ShareStatus, error)
	ListShareTree(ctx context.Context, shareCode, receiveCode string, opts drive.ListShareOptions) ([]*drive.ShareNode, error)
	TransferBatch(ctx context.Context, shareCode, receiveCode string, fileIDs []string, destPath string) (succeeded, failed []string, err error)
	ListDirectory(ctx context.Context, path string) ([]drive.Entry, error)
	Stats() map[string]int64
	ResetStats()
}

// SubscriptionStore is the subscription persistence surface consumed here.
type SubscriptionStore interface {
	ListActive(ctx context.Context) ([]*subscription.Subscription, error)
	SetDownloaded(ctx context.Context, id int64, episodes []int, missing int) error
	MarkComplete(ctx context.Context, id int64) error
}

// HistoryLedger is the transfer-history surface consumed here.
type HistoryLedger interface {
	Append(ctx context.Context, entry history.Entry) error
	PerfectSuccesses(ctx context.Context, title string, season int) (map[int]struct{}, error)
	SuccessScores(ctx context.Context, title string, season int) (map[int]int, error)
	BestMovieSuccess(ctx context.Context, title string) (*history.Entry, error)
}

// Options configures a Syncer. Config, Client, Registry, Store, and History
// are required.
type Options struct {
	Config       *config.Config
	Client       StorageClient
	Registry     *discovery.Registry
	Store        SubscriptionStore
	History      HistoryLedger
	Completeness subscription.Completeness
	Notifier     notifications.Service
	Logger       *slog.Logger
}

// Syncer drives sync runs over the active subscriptions.
type Syncer struct {
	cfg          *config.Config
	client       StorageClient
	registry     *discovery.Registry
	store        SubscriptionStore
	ledger       HistoryLedger
	completeness subscription.Completeness
	notifier     notifications.Service
	logger       *slog.Logger

	mu      sync.Mutex
	runLock *flock.Flock
	stop    atomic.Bool
}

// New builds a Syncer from its collaborators.
func New(opts Options) (*Syncer, error) {
	if opts.Config == nil {
		return nil, errors.New("syncer: config is required")
	}
	if opts.Client == nil {
		return nil, errors.New("syncer: storage client is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("syncer: discovery registry is required")
	}
	if opts.Store == nil {
		return nil, errors.New("syncer: subscription store is required")
	}
	if opts.History == nil {
		return nil, errors.New("syncer: history ledger is required")
	}
	completeness := opts.Completeness
	if completeness == nil {
		completeness = subscription.TotalsCompleteness{}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(opts.Config)
	}

	return &Syncer{
		cfg:          opts.Config,
		client:       opts.Client,
		registry:     opts.Registry,
		store:        opts.Store,
		ledger:       opts.History,
		completeness: completeness,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(opts.Logger, "syncer"),
		runLock:      flock.New(filepath.Join(opts.Config.Paths.StateDir, "sync.lock")),
	}, nil
}

// RequestStop asks a running sync to stop after the current subscription.
// A batch transfer already in flight is allowed to finish.
func (s *Syncer) RequestStop() {
	s.stop.Store(true)
}

// Summary reports what one run did.
type Summary struct {
	RunID         string
	Subscriptions int
	Transferred   int
	Failed        int
	Completed     []string
	Duration      time.Duration
	APICalls      map[string]int64
}

// runState carries the run-wide transfer quota and counters.
type runState struct {
	unlimited   bool
	remaining   int
	transferred int
	failed      int
	completed   []string
}

func (r *runState) canTransfer() bool {
	return r.unlimited || r.remaining > 0
}

// allow caps a matched set to the remaining quota.
func (r *runState) allow(n int) int {
	if r.unlimited || n <= r.remaining {
		return n
	}
	return r.remaining
}

func (r *runState) consume(attempted, succeeded, failed int) {
	if !r.unlimited {
		r.remaining -= attempted
	}
	r.transferred += succeeded
	r.failed += failed
}

// Run executes one sync pass over all active subscriptions. A failure on one
// subscription never aborts the rest of the run; only an expired login does.
func (s *Syncer) Run(ctx context.Context) (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.runLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("syncer: acquire run lock: %w", err)
	}
	if !locked {
		return nil, ErrRunInProgress
	}
	defer func() { _ = s.runLock.Unlock() }()

	s.stop.Store(false)
	start := time.Now()
	runID := uuid.NewString()[:8]
	logger := s.logger.With(logging.String(logging.FieldRunID, runID))

	s.client.ResetStats()

	ok, err := s.client.CheckLogin(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncer: check login: %w", err)
	}
	if !ok {
		_ = s.notifier.NotifyError(ctx, drive.ErrAuthExpired, "sync")
		return nil, fmt.Errorf("syncer: %w", drive.ErrAuthExpired)
	}
	if len(s.registry.Backends()) == 0 {
		return nil, ErrNoBackends
	}

	subs, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncer: list subscriptions: %w", err)
	}
	logger.Info("sync started", logging.Int("subscriptions", len(subs)))
	_ = s.notifier.NotifySyncStarted(ctx, len(subs))

	quota := s.cfg.Sync.MaxTransferPerSync
	run := &runState{unlimited: quota <= 0, remaining: quota}

	var runErr error
	for _, sub := range subs {
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		if s.stop.Load() {
			logger.Info("stop requested, ending run early")
			break
		}
		if !run.canTransfer() {
			logger.Info("transfer quota exhausted, ending run early")
			break
		}
		if err := s.syncSubscription(ctx, logger, sub, run); err != nil {
			if errors.Is(err, drive.ErrAuthExpired) {
				_ = s.notifier.NotifyError(ctx, err, sub.Title)
				runErr = err
				break
			}
			logger.Error("subscription sync failed",
				logging.Int64(logging.FieldSubscriptionID, sub.ID),
				logging.Error(err),
			)
			_ = s.notifier.NotifyError(ctx, err, sub.Title)
		}
	}

	summary := &Summary{
		RunID:         runID,
		Subscriptions: len(subs),
		Transferred:   run.transferred,
		Failed:        run.failed,
		Completed:     run.completed,
		Duration:      time.Since(start),
		APICalls:      s.client.Stats(),
	}
	logger.Info("sync finished",
		logging.Int("transferred", summary.Transferred),
		logging.Int("failed", summary.Failed),
		logging.Int("completed", len(summary.Completed)),
		logging.Duration("duration", summary.Duration),
	)
	_ = s.notifier.NotifySyncCompleted(ctx, summary.Transferred, summary.Failed, summary.Duration)

	return summary, runErr
}

func (s *Syncer) syncSubscription(ctx context.Context, logger *slog.Logger, sub *subscription.Subscription, run *runState) error {
	logger = logger.With(logging.Int64(logging.FieldSubscriptionID, sub.ID))
	if sub.IsMovie() {
		return s.syncMovie(ctx, logger, sub, run)
	}
	return s.syncSeries(ctx, logger, sub, run)
}

func (s *Syncer) finishSubscription(ctx context.Context, logger *slog.Logger, sub *subscription.Subscription, run *runState) error {
	if err := s.store.MarkComplete(ctx, sub.ID); err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	run.completed = append(run.completed, sub.Title)
	logger.Info("subscription complete")
	_ = s.notifier.NotifySubscriptionCompleted(ctx, sub.Title)
	return nil
}
