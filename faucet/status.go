package faucet

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"faucetd/storage"
)

// Status is the lifecycle state of an address's payout request.
type Status string

const (
	StatusUnknown   Status = ""
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCleared   Status = "cleared"
)

const statusKeyPrefix = "status:"

// StatusRecord is the durable representation of an address's payout state.
type StatusRecord struct {
	Status    Status    `json:"status"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusTracker persists per-address payout lifecycle state under the
// status: key namespace. Only the dispatcher transitions records to
// completed or failed; only the status poll path transitions completed to
// cleared.
type StatusTracker struct {
	store  *storage.Store
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewStatusTracker builds a tracker over the shared durable store.
func NewStatusTracker(store *storage.Store, logger *slog.Logger) *StatusTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusTracker{store: store, logger: logger, now: time.Now}
}

// MarkPending records that address has been accepted into the payout queue.
func (t *StatusTracker) MarkPending(address string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.put(address, StatusRecord{Status: StatusPending, UpdatedAt: t.now()})
}

// MarkCompleted records a confirmed payout for address.
func (t *StatusTracker) MarkCompleted(address, txHash string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.put(address, StatusRecord{Status: StatusCompleted, TxHash: txHash, UpdatedAt: t.now()})
}

// MarkFailed records a payout attempt that did not deliver funds. Failed
// addresses are eligible to request again.
func (t *StatusTracker) MarkFailed(address, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.put(address, StatusRecord{Status: StatusFailed, Reason: reason, UpdatedAt: t.now()})
}

// Peek returns the current record for address. A missing record reports
// StatusUnknown with a nil error.
func (t *StatusTracker) Peek(address string) (StatusRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(address)
}

// Acknowledge consumes a completed record, transitioning it to cleared so the
// address may be paid again. Calling it on any other status is a no-op.
func (t *StatusTracker) Acknowledge(address string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	record, err := t.get(address)
	if err != nil {
		return err
	}
	if record.Status != StatusCompleted {
		return nil
	}
	return t.put(address, StatusRecord{Status: StatusCleared, TxHash: record.TxHash, UpdatedAt: t.now()})
}

func (t *StatusTracker) get(address string) (StatusRecord, error) {
	raw, ok, err := t.store.Get(statusKeyPrefix + address)
	if err != nil {
		return StatusRecord{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return StatusRecord{}, nil
	}
	var record StatusRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return StatusRecord{}, fmt.Errorf("decode status %s: %w", address, err)
	}
	return record, nil
}

func (t *StatusTracker) put(address string, record StatusRecord) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode status %s: %w", address, err)
	}
	if err := t.store.Put(statusKeyPrefix+address, encoded); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
