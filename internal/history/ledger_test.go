package history_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"cloudsub/internal/history"
)

func mustOpen(t *testing.T) *history.Ledger {
	t.Helper()
	ledger, err := history.OpenPath(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestAppendAndAll(t *testing.T) {
	ledger := mustOpen(t)
	ctx := context.Background()

	first := history.Entry{
		Title:        "Show",
		Season:       1,
		Episode:      3,
		Status:       history.StatusSuccess,
		ShareURL:     "https://115.com/s/abc123",
		FileName:     "Show.S01E03.2160p.mkv",
		FilterScore:  100,
		PerfectMatch: true,
	}
	if err := ledger.Append(ctx, first); err != nil {
		t.Fatalf("Append: %v", err)
	}
	second := history.Entry{
		Title:    "Show",
		Season:   1,
		Episode:  4,
		Status:   history.StatusFail,
		ShareURL: "https://115.com/s/def456",
	}
	if err := ledger.Append(ctx, second); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := ledger.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Episode != 4 || entries[1].Episode != 3 {
		t.Fatalf("expected newest first, got %d then %d", entries[0].Episode, entries[1].Episode)
	}
	if !entries[1].PerfectMatch || entries[1].FilterScore != 100 {
		t.Fatalf("round trip mismatch: %+v", entries[1])
	}
	if entries[1].CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
}

func TestAppendRejectsUnknownStatus(t *testing.T) {
	ledger := mustOpen(t)
	err := ledger.Append(context.Background(), history.Entry{
		Title:    "Show",
		Status:   "pending",
		ShareURL: "https://115.com/s/abc123",
	})
	if err == nil {
		t.Fatal("expected error for invalid status")
	}
}

func TestAppendEvictsOldestBeyondCap(t *testing.T) {
	ledger := mustOpen(t)
	ctx := context.Background()

	total := history.MaxEntries + 25
	for i := 0; i < total; i++ {
		entry := history.Entry{
			Title:    "Show",
			Season:   1,
			Episode:  i + 1,
			Status:   history.StatusSuccess,
			ShareURL: fmt.Sprintf("https://115.com/s/e%04d", i),
		}
		if err := ledger.Append(ctx, entry); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	count, err := ledger.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != history.MaxEntries {
		t.Fatalf("count = %d, want %d", count, history.MaxEntries)
	}

	entries, err := ledger.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if entries[0].Episode != total {
		t.Fatalf("newest episode = %d, want %d", entries[0].Episode, total)
	}
	oldest := entries[len(entries)-1]
	if oldest.Episode != total-history.MaxEntries+1 {
		t.Fatalf("oldest episode = %d, want %d", oldest.Episode, total-history.MaxEntries+1)
	}
}

func TestPerfectSuccessesSkipsFailsAndLooseMatches(t *testing.T) {
	ledger := mustOpen(t)
	ctx := context.Background()

	entries := []history.Entry{
		{Title: "Show", Season: 2, Episode: 1, Status: history.StatusSuccess, ShareURL: "u1", PerfectMatch: true},
		{Title: "Show", Season: 2, Episode: 2, Status: history.StatusSuccess, ShareURL: "u2", PerfectMatch: false},
		{Title: "Show", Season: 2, Episode: 3, Status: history.StatusFail, ShareURL: "u3", PerfectMatch: true},
		{Title: "Show", Season: 1, Episode: 4, Status: history.StatusSuccess, ShareURL: "u4", PerfectMatch: true},
		{Title: "Other", Season: 2, Episode: 5, Status: history.StatusSuccess, ShareURL: "u5", PerfectMatch: true},
	}
	for _, entry := range entries {
		if err := ledger.Append(ctx, entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	settled, err := ledger.PerfectSuccesses(ctx, "Show", 2)
	if err != nil {
		t.Fatalf("PerfectSuccesses: %v", err)
	}
	if len(settled) != 1 {
		t.Fatalf("settled = %v, want only episode 1", settled)
	}
	if _, ok := settled[1]; !ok {
		t.Fatalf("episode 1 missing from %v", settled)
	}
}

func TestSuccessScoresKeepsBestPerEpisode(t *testing.T) {
	ledger := mustOpen(t)
	ctx := context.Background()

	entries := []history.Entry{
		{Title: "Show", Season: 1, Episode: 1, Status: history.StatusSuccess, ShareURL: "u1", FilterScore: 100},
		{Title: "Show", Season: 1, Episode: 1, Status: history.StatusSuccess, ShareURL: "u2", FilterScore: 200},
		{Title: "Show", Season: 1, Episode: 2, Status: history.StatusFail, ShareURL: "u3", FilterScore: 300},
	}
	for _, entry := range entries {
		if err := ledger.Append(ctx, entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	scores, err := ledger.SuccessScores(ctx, "Show", 1)
	if err != nil {
		t.Fatalf("SuccessScores: %v", err)
	}
	if len(scores) != 1 || scores[1] != 200 {
		t.Fatalf("scores = %v, want {1: 200}", scores)
	}
}

func TestBestMovieSuccess(t *testing.T) {
	ledger := mustOpen(t)
	ctx := context.Background()

	missing, err := ledger.BestMovieSuccess(ctx, "Heat")
	if err != nil {
		t.Fatalf("BestMovieSuccess: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unseen title, got %+v", missing)
	}

	entries := []history.Entry{
		{Title: "Heat", Status: history.StatusSuccess, ShareURL: "u1", FileName: "Heat.1080p.mkv", FilterScore: 100},
		{Title: "Heat", Status: history.StatusSuccess, ShareURL: "u2", FileName: "Heat.2160p.mkv", FilterScore: 200},
		{Title: "Heat", Status: history.StatusFail, ShareURL: "u3", FilterScore: 300},
	}
	for _, entry := range entries {
		if err := ledger.Append(ctx, entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	best, err := ledger.BestMovieSuccess(ctx, "Heat")
	if err != nil {
		t.Fatalf("BestMovieSuccess: %v", err)
	}
	if best == nil || best.FileName != "Heat.2160p.mkv" {
		t.Fatalf("best = %+v, want the 2160p entry", best)
	}
}

func TestClear(t *testing.T) {
	ledger := mustOpen(t)
	ctx := context.Background()

	if err := ledger.Append(ctx, history.Entry{Title: "Show", Status: history.StatusSuccess, ShareURL: "u"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := ledger.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	count, err := ledger.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d after clear", count)
	}
}
