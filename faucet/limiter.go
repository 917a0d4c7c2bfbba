package faucet

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"faucetd/storage"
)

// FrequencyLimiter counts payout hits per opaque key over a trailing window.
// Each key holds a rolling log of hit timestamps; expired hits are pruned on
// every read-modify-write, so the window slides rather than resetting in
// fixed buckets. The mutex serialises read-modify-write cycles so two
// concurrent requests racing on the same key cannot lose an increment.
//
// Store failures fail open: the request is allowed and the anomaly logged.
// A flaky disk throttling legitimate users is worse than a few extra drips.
type FrequencyLimiter struct {
	store  *storage.Store
	window time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewFrequencyLimiter builds a limiter over the shared durable store.
func NewFrequencyLimiter(store *storage.Store, window time.Duration, logger *slog.Logger) *FrequencyLimiter {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FrequencyLimiter{
		store:  store,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// Allow reports whether key has headroom under limit within the trailing
// window. The check has no side effects; callers register consumption with
// Record once the request has passed all other validation.
func (l *FrequencyLimiter) Allow(key string, limit int) bool {
	if limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.load(key)) < limit
}

// Record registers a hit against key.
func (l *FrequencyLimiter) Record(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	hits := append(l.load(key), l.now().Unix())
	encoded, err := json.Marshal(hits)
	if err != nil {
		l.logger.Warn("encode rate-limit record", "key", key, "error", err)
		return
	}
	if err := l.store.Put(key, encoded); err != nil {
		l.logger.Warn("record rate-limit hit", "key", key, "error", err)
	}
}

// load returns the still-counted hits for key, pruned to the window.
func (l *FrequencyLimiter) load(key string) []int64 {
	raw, ok, err := l.store.Get(key)
	if err != nil {
		l.logger.Warn("read rate-limit record, failing open", "key", key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var hits []int64
	if err := json.Unmarshal(raw, &hits); err != nil {
		l.logger.Warn("decode rate-limit record, failing open", "key", key, "error", err)
		return nil
	}
	cutoff := l.now().Add(-l.window).Unix()
	kept := hits[:0]
	for _, ts := range hits {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	return kept
}
