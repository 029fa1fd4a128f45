package subscription_test

import (
	"context"
	"path/filepath"
	"testing"

	"cloudsub/internal/subscription"
)

func mustOpen(t *testing.T) *subscription.Store {
	t.Helper()
	store, err := subscription.OpenPath(filepath.Join(t.TempDir(), "subscriptions.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAddAndGetRoundTrip(t *testing.T) {
	store := mustOpen(t)
	ctx := context.Background()

	added, err := store.Add(ctx, &subscription.Subscription{
		Title:           "Dark City",
		Year:            2024,
		Season:          2,
		TMDBID:          4087,
		Type:            subscription.TypeSeries,
		TotalEpisodes:   12,
		StartEpisode:    1,
		MissingEpisodes: 12,
		BestVersion:     true,
		Resolution:      "2160p",
		Downloaded:      []int{1, 2},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if added.ID == 0 {
		t.Fatal("expected assigned id")
	}

	got, err := store.GetByID(ctx, added.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "Dark City" || got.Season != 2 || !got.BestVersion {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Downloaded) != 2 || got.Downloaded[0] != 1 {
		t.Fatalf("downloaded = %v", got.Downloaded)
	}
	if got.Resolution != "2160p" {
		t.Fatalf("resolution = %q", got.Resolution)
	}
}

func TestListActiveSkipsExcludedAndCompleted(t *testing.T) {
	store := mustOpen(t)
	ctx := context.Background()

	active, err := store.Add(ctx, &subscription.Subscription{Title: "Active", Type: subscription.TypeMovie})
	if err != nil {
		t.Fatal(err)
	}
	excluded, err := store.Add(ctx, &subscription.Subscription{Title: "Excluded", Type: subscription.TypeMovie})
	if err != nil {
		t.Fatal(err)
	}
	done, err := store.Add(ctx, &subscription.Subscription{Title: "Done", Type: subscription.TypeMovie})
	if err != nil {
		t.Fatal(err)
	}

	if err := store.SetExcluded(ctx, excluded.ID, true); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkComplete(ctx, done.ID); err != nil {
		t.Fatal(err)
	}

	subs, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != active.ID {
		t.Fatalf("active = %+v", subs)
	}
}

func TestSetDownloadedWritesBackMissingCount(t *testing.T) {
	store := mustOpen(t)
	ctx := context.Background()

	sub, err := store.Add(ctx, &subscription.Subscription{
		Title:           "Show",
		Type:            subscription.TypeSeries,
		TotalEpisodes:   10,
		MissingEpisodes: 10,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := store.SetDownloaded(ctx, sub.ID, []int{1, 2, 3}, 7); err != nil {
		t.Fatalf("SetDownloaded: %v", err)
	}

	got, err := store.GetByID(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MissingEpisodes != 7 || len(got.Downloaded) != 3 {
		t.Fatalf("missing=%d downloaded=%v", got.MissingEpisodes, got.Downloaded)
	}
}

func TestMarkCompleteZeroesMissing(t *testing.T) {
	store := mustOpen(t)
	ctx := context.Background()

	sub, err := store.Add(ctx, &subscription.Subscription{
		Title:           "Show",
		Type:            subscription.TypeSeries,
		MissingEpisodes: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.MarkComplete(ctx, sub.ID); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetByID(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Completed || got.MissingEpisodes != 0 {
		t.Fatalf("completed=%v missing=%d", got.Completed, got.MissingEpisodes)
	}
}
