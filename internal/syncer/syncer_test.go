package syncer_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"cloudsub/internal/config"
	"cloudsub/internal/discovery"
	"cloudsub/internal/drive"
	"cloudsub/internal/history"
	"cloudsub/internal/logging"
	"cloudsub/internal/subscription"
	"cloudsub/internal/syncer"
	"cloudsub/internal/testsupport"
)

type fakeBackend struct {
	name      string
	resources []discovery.Resource
	calls     int
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Search(_ context.Context, _ discovery.Request) ([]discovery.Resource, error) {
	b.calls++
	return b.resources, nil
}

type fakeClient struct {
	loginOK   bool
	shares    map[string][]*drive.ShareNode
	listings  map[string][]drive.Entry
	failIDs   map[string]struct{}
	transfers int
}

func (c *fakeClient) CheckLogin(context.Context) (bool, error) { return c.loginOK, nil }

func (c *fakeClient) CheckShare(_ context.Context, shareURL string) (drive.ShareStatus, error) {
	if _, _, err := drive.ParseShareLink(shareURL); err != nil {
		return drive.ShareStatus{}, err
	}
	return drive.ShareStatus{Valid: true, Status: "ok"}, nil
}

func (c *fakeClient) ListShareTree(_ context.Context, shareCode, _ string, _ drive.ListShareOptions) ([]*drive.ShareNode, error) {
	return c.shares[shareCode], nil
}

func (c *fakeClient) TransferBatch(_ context.Context, _, _ string, fileIDs []string, _ string) ([]string, []string, error) {
	c.transfers++
	var succeeded, failed []string
	for _, id := range fileIDs {
		if _, bad := c.failIDs[id]; bad {
			failed = append(failed, id)
		} else {
			succeeded = append(succeeded, id)
		}
	}
	return succeeded, failed, nil
}

func (c *fakeClient) ListDirectory(_ context.Context, path string) ([]drive.Entry, error) {
	entries, ok := c.listings[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", drive.ErrNotFound, path)
	}
	return entries, nil
}

func (c *fakeClient) Stats() map[string]int64 {
	return map[string]int64{"share_receive": int64(c.transfers)}
}

func (c *fakeClient) ResetStats() {}

type fakeNotifier struct {
	started      int
	finished     int
	subCompleted int
	errors       int
}

func (n *fakeNotifier) NotifySyncStarted(context.Context, int) error { n.started++; return nil }

func (n *fakeNotifier) NotifySyncCompleted(context.Context, int, int, time.Duration) error {
	n.finished++
	return nil
}

func (n *fakeNotifier) NotifySubscriptionCompleted(context.Context, string) error {
	n.subCompleted++
	return nil
}

func (n *fakeNotifier) NotifyError(context.Context, error, string) error { n.errors++; return nil }

func (n *fakeNotifier) TestNotification(context.Context) error { return nil }

func file(id, name string, size int64) *drive.ShareNode {
	return &drive.ShareNode{ID: id, Name: name, Size: size}
}

type harness struct {
	syncer   *syncer.Syncer
	cfg      *config.Config
	store    *subscription.Store
	ledger   *history.Ledger
	client   *fakeClient
	notifier *fakeNotifier
}

func newHarness(t *testing.T, client *fakeClient, backends ...discovery.Backend) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Library.TVDir = "/tv"
	cfg.Library.MoviesDir = "/movies"

	store := testsupport.MustOpenStore(t, cfg)
	ledger := testsupport.MustOpenLedger(t, cfg)

	notifier := &fakeNotifier{}
	s, err := syncer.New(syncer.Options{
		Config:   cfg,
		Client:   client,
		Registry: discovery.NewRegistryWith(logging.NewNop(), backends...),
		Store:    store,
		History:  ledger,
		Notifier: notifier,
		Logger:   logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("new syncer: %v", err)
	}
	return &harness{syncer: s, cfg: cfg, store: store, ledger: ledger, client: client, notifier: notifier}
}

func addSeries(t *testing.T, h *harness, total int) *subscription.Subscription {
	t.Helper()
	sub, err := h.store.Add(context.Background(), &subscription.Subscription{
		Title:           "Show",
		Season:          1,
		Type:            subscription.TypeSeries,
		TotalEpisodes:   total,
		MissingEpisodes: total,
	})
	if err != nil {
		t.Fatalf("add subscription: %v", err)
	}
	return sub
}

func TestSeriesAccumulatesAcrossBackends(t *testing.T) {
	client := &fakeClient{
		loginOK: true,
		shares: map[string][]*drive.ShareNode{
			"aaa1111": {
				file("f1", "Show.S01E01.mkv", 900<<20),
				file("f2", "Show.S01E02.mkv", 900<<20),
			},
			"bbb2222": {
				file("f3", "Show.S01E03.mkv", 900<<20),
			},
		},
	}
	backendA := &fakeBackend{name: "a", resources: []discovery.Resource{
		{Source: "a", ShareURL: "https://115.com/s/aaa1111?password=abcd"},
	}}
	backendB := &fakeBackend{name: "b", resources: []discovery.Resource{
		{Source: "b", ShareURL: "https://115.com/s/bbb2222?password=abcd"},
	}}
	h := newHarness(t, client, backendA, backendB)
	sub := addSeries(t, h, 3)

	summary, err := h.syncer.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Transferred != 3 || summary.Failed != 0 {
		t.Fatalf("transferred=%d failed=%d, want 3/0", summary.Transferred, summary.Failed)
	}

	got, err := h.store.GetByID(context.Background(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Completed || got.MissingEpisodes != 0 {
		t.Fatalf("completed=%v missing=%d", got.Completed, got.MissingEpisodes)
	}
	if len(got.Downloaded) != 3 {
		t.Fatalf("downloaded = %v", got.Downloaded)
	}
	if h.notifier.subCompleted != 1 {
		t.Fatalf("completion notified %d times, want exactly 1", h.notifier.subCompleted)
	}
}

func TestQuotaCapsTransfers(t *testing.T) {
	client := &fakeClient{
		loginOK: true,
		shares: map[string][]*drive.ShareNode{
			"aaa1111": {
				file("f1", "Show.S01E01.mkv", 900<<20),
				file("f2", "Show.S01E02.mkv", 900<<20),
			},
		},
	}
	backend := &fakeBackend{name: "a", resources: []discovery.Resource{
		{Source: "a", ShareURL: "https://115.com/s/aaa1111?password=abcd"},
	}}
	h := newHarness(t, client, backend)
	h.cfg.Sync.MaxTransferPerSync = 1
	sub := addSeries(t, h, 2)

	summary, err := h.syncer.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Transferred != 1 {
		t.Fatalf("transferred = %d, want 1", summary.Transferred)
	}

	got, err := h.store.GetByID(context.Background(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Completed || got.MissingEpisodes != 1 {
		t.Fatalf("completed=%v missing=%d, want incomplete with 1 missing", got.Completed, got.MissingEpisodes)
	}
	count, err := h.ledger.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("history count = %d, want 1", count)
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	client := &fakeClient{
		loginOK: true,
		shares: map[string][]*drive.ShareNode{
			"aaa1111": {
				file("f1", "Show.S01E01.mkv", 900<<20),
				file("f2", "Show.S01E02.mkv", 900<<20),
			},
		},
	}
	backend := &fakeBackend{name: "a", resources: []discovery.Resource{
		{Source: "a", ShareURL: "https://115.com/s/aaa1111?password=abcd"},
	}}
	h := newHarness(t, client, backend)
	sub := addSeries(t, h, 3)

	first, err := h.syncer.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Transferred != 2 {
		t.Fatalf("first run transferred = %d, want 2", first.Transferred)
	}

	second, err := h.syncer.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Transferred != 0 {
		t.Fatalf("second run transferred = %d, want 0", second.Transferred)
	}

	count, err := h.ledger.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("history count = %d, want unchanged 2", count)
	}
	got, err := h.store.GetByID(context.Background(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MissingEpisodes != 1 {
		t.Fatalf("missing = %d, want 1 after both runs", got.MissingEpisodes)
	}
}

func TestExistingEpisodesAreNotRefetched(t *testing.T) {
	client := &fakeClient{
		loginOK: true,
		shares: map[string][]*drive.ShareNode{
			"aaa1111": {
				file("f1", "Show.S01E01.mkv", 900<<20),
				file("f2", "Show.S01E02.mkv", 900<<20),
			},
		},
		listings: map[string][]drive.Entry{
			"/tv/Show/Season 1": {
				{FileID: "e1", Name: "Show.S01E01.mkv", Size: "900000000"},
			},
		},
	}
	backend := &fakeBackend{name: "a", resources: []discovery.Resource{
		{Source: "a", ShareURL: "https://115.com/s/aaa1111?password=abcd"},
	}}
	h := newHarness(t, client, backend)
	sub := addSeries(t, h, 2)

	summary, err := h.syncer.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Transferred != 1 {
		t.Fatalf("transferred = %d, want only the missing episode", summary.Transferred)
	}

	got, err := h.store.GetByID(context.Background(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Completed || len(got.Downloaded) != 2 {
		t.Fatalf("completed=%v downloaded=%v", got.Completed, got.Downloaded)
	}
}

func TestMovieFirstBackendWins(t *testing.T) {
	client := &fakeClient{
		loginOK: true,
		shares: map[string][]*drive.ShareNode{
			"mmm1111": {
				file("m1", "Heat.1995.2160p.mkv", 4<<30),
			},
		},
	}
	backendA := &fakeBackend{name: "a", resources: []discovery.Resource{
		{Source: "a", ShareURL: "https://115.com/s/mmm1111?password=abcd"},
	}}
	backendB := &fakeBackend{name: "b", resources: []discovery.Resource{
		{Source: "b", ShareURL: "https://115.com/s/zzz9999?password=abcd"},
	}}
	h := newHarness(t, client, backendA, backendB)
	sub, err := h.store.Add(context.Background(), &subscription.Subscription{
		Title:           "Heat",
		Year:            1995,
		Type:            subscription.TypeMovie,
		MissingEpisodes: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	summary, err := h.syncer.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Transferred != 1 {
		t.Fatalf("transferred = %d, want 1", summary.Transferred)
	}
	if backendB.calls != 0 {
		t.Fatalf("second backend consulted %d times, want 0", backendB.calls)
	}

	got, err := h.store.GetByID(context.Background(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Completed {
		t.Fatal("expected movie subscription completed")
	}
	entries, err := h.ledger.All(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Season != 0 || entries[0].Episode != 0 {
		t.Fatalf("history = %+v, want one movie entry", entries)
	}
}

func TestLoginFailureAbortsRun(t *testing.T) {
	client := &fakeClient{loginOK: false}
	h := newHarness(t, client, &fakeBackend{name: "a"})
	addSeries(t, h, 2)

	_, err := h.syncer.Run(context.Background())
	if !errors.Is(err, drive.ErrAuthExpired) {
		t.Fatalf("err = %v, want ErrAuthExpired", err)
	}
	if h.notifier.started != 0 {
		t.Fatal("run should abort before any subscription work")
	}
}

func TestRunLockBlocksConcurrentRun(t *testing.T) {
	client := &fakeClient{loginOK: true}
	h := newHarness(t, client, &fakeBackend{name: "a"})

	other := flock.New(filepath.Join(h.cfg.Paths.StateDir, "sync.lock"))
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("pre-lock failed: locked=%v err=%v", locked, err)
	}
	defer func() { _ = other.Unlock() }()

	if _, err := h.syncer.Run(context.Background()); !errors.Is(err, syncer.ErrRunInProgress) {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}
}
