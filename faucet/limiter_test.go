package faucet

import (
	"path/filepath"
	"testing"
	"time"

	"faucetd/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "faucet"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLimiterBlocksAtThreshold(t *testing.T) {
	limiter := NewFrequencyLimiter(openTestStore(t), 24*time.Hour, nil)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("chainA:cosmos1xyz", 3) {
			t.Fatalf("hit %d should be allowed", i)
		}
		limiter.Record("chainA:cosmos1xyz")
	}
	if limiter.Allow("chainA:cosmos1xyz", 3) {
		t.Fatal("expected key to be over threshold")
	}
}

func TestLimiterCheckHasNoSideEffect(t *testing.T) {
	limiter := NewFrequencyLimiter(openTestStore(t), 24*time.Hour, nil)

	for i := 0; i < 10; i++ {
		if !limiter.Allow("chainA:cosmos1xyz", 1) {
			t.Fatal("repeated checks must not consume the slot")
		}
	}
	limiter.Record("chainA:cosmos1xyz")
	if limiter.Allow("chainA:cosmos1xyz", 1) {
		t.Fatal("expected recorded hit to consume the slot")
	}
}

func TestLimiterWindowSlides(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewFrequencyLimiter(openTestStore(t), 24*time.Hour, nil)
	limiter.now = func() time.Time { return now }

	limiter.Record("chainA:cosmos1xyz")
	if limiter.Allow("chainA:cosmos1xyz", 1) {
		t.Fatal("expected limit to be reached")
	}

	now = now.Add(23 * time.Hour)
	if limiter.Allow("chainA:cosmos1xyz", 1) {
		t.Fatal("hit inside the window must still count")
	}

	now = now.Add(2 * time.Hour)
	if !limiter.Allow("chainA:cosmos1xyz", 1) {
		t.Fatal("expected the window to roll over")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewFrequencyLimiter(openTestStore(t), 24*time.Hour, nil)

	limiter.Record("chainA:cosmos1xyz")
	if limiter.Allow("chainA:cosmos1xyz", 1) {
		t.Fatal("expected address key to be exhausted")
	}
	if !limiter.Allow("chainA:cosmos1abc", 1) {
		t.Fatal("expected a different address key to be unaffected")
	}
	if !limiter.Allow("chainB:cosmos1xyz", 1) {
		t.Fatal("expected a different chain key to be unaffected")
	}
}

func TestLimiterSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faucet")
	store, err := storage.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	limiter := NewFrequencyLimiter(store, 24*time.Hour, nil)
	limiter.Record("chainA:cosmos1xyz")
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := storage.Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	limiter = NewFrequencyLimiter(reopened, 24*time.Hour, nil)
	if limiter.Allow("chainA:cosmos1xyz", 1) {
		t.Fatal("expected recorded hit to survive restart")
	}
}

func TestLimiterFailsOpenOnStoreError(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "faucet"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	limiter := NewFrequencyLimiter(store, 24*time.Hour, nil)
	limiter.Record("chainA:cosmos1xyz")
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// With the backing store gone, availability wins over strict limiting.
	if !limiter.Allow("chainA:cosmos1xyz", 1) {
		t.Fatal("expected limiter to fail open when the store is unavailable")
	}
}
