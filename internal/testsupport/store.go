package testsupport

import (
	"path/filepath"
	"testing"

	"cloudsub/internal/config"
	"cloudsub/internal/history"
	"cloudsub/internal/subscription"
)

// MustOpenStore opens a subscription store under the config's state dir and
// closes it when the test finishes.
func MustOpenStore(t testing.TB, cfg *config.Config) *subscription.Store {
	t.Helper()
	store, err := subscription.OpenPath(filepath.Join(cfg.Paths.StateDir, "subscriptions.db"))
	if err != nil {
		t.Fatalf("open subscription store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// MustOpenLedger opens a history ledger under the config's state dir and
// closes it when the test finishes.
func MustOpenLedger(t testing.TB, cfg *config.Config) *history.Ledger {
	t.Helper()
	ledger, err := history.OpenPath(filepath.Join(cfg.Paths.StateDir, "history.db"))
	if err != nil {
		t.Fatalf("open history ledger: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}
