package faucet

import (
	"context"
	"log/slog"
	"time"
)

// TxResult describes a submitted payout transaction.
type TxResult struct {
	Hash   string
	Amount string
	Denom  string
}

// Balance is a funding wallet balance snapshot.
type Balance struct {
	Amount string
	Denom  string
}

// Sender submits payout transactions and reports the funding wallet balance
// for a single chain. Implementations own signing and broadcast.
type Sender interface {
	Send(ctx context.Context, recipient string) (TxResult, error)
	Balance(ctx context.Context) (Balance, error)
}

// Dispatcher drains the payout queue one entry at a time. It is the sole
// consumer of the queue and the sole invoker of the per-chain senders, which
// serialises all use of each funding wallet's account sequence. Sender
// failures are logged and recorded as failed status; they never stop the
// loop, and failed entries are not retried automatically.
type Dispatcher struct {
	queue    *PayoutQueue
	tracker  *StatusTracker
	senders  map[string]Sender
	cooldown time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
}

// DispatcherOption customises the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithCooldown sets the pause between dispatch cycles. The cooldown throttles
// the outbound transaction rate at the wallet level; it is not an idle poll.
func WithCooldown(d time.Duration) DispatcherOption {
	return func(p *Dispatcher) { p.cooldown = d }
}

// WithSendTimeout bounds each sender invocation.
func WithSendTimeout(d time.Duration) DispatcherOption {
	return func(p *Dispatcher) { p.timeout = d }
}

// WithLogger supplies the structured logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(p *Dispatcher) { p.logger = logger }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *Metrics) DispatcherOption {
	return func(p *Dispatcher) { p.metrics = m }
}

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) DispatcherOption {
	return func(p *Dispatcher) { p.now = clock }
}

// NewDispatcher constructs the payout dispatcher.
func NewDispatcher(queue *PayoutQueue, tracker *StatusTracker, senders map[string]Sender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		queue:    queue,
		tracker:  tracker,
		senders:  senders,
		cooldown: 5 * time.Second,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run processes queue entries until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		if err := d.queue.Wait(ctx); err != nil {
			return
		}
		if entry, ok := d.queue.Dequeue(); ok {
			d.process(ctx, entry)
		}
		d.metrics.SetQueueDepth(d.queue.Len())
		if !d.pause(ctx) {
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, entry Entry) {
	sender, ok := d.senders[entry.Chain]
	if !ok {
		d.logger.Error("no sender configured", "chain", entry.Chain, "address", entry.Address)
		if err := d.tracker.MarkFailed(entry.Address, "no sender for chain"); err != nil {
			d.logger.Error("mark failed", "address", entry.Address, "error", err)
		}
		return
	}

	sendCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := d.now()
	result, err := sender.Send(sendCtx, entry.Address)
	if err != nil {
		d.logger.Error("payout failed", "chain", entry.Chain, "address", entry.Address, "error", err)
		d.metrics.RecordSendError(entry.Chain, "send")
		if err := d.tracker.MarkFailed(entry.Address, err.Error()); err != nil {
			d.logger.Error("mark failed", "address", entry.Address, "error", err)
		}
		return
	}
	if err := d.tracker.MarkCompleted(entry.Address, result.Hash); err != nil {
		d.logger.Error("mark completed", "address", entry.Address, "error", err)
	}
	d.metrics.ObserveDispatch(entry.Chain, d.now().Sub(start))
	d.logger.Info("payout completed",
		"chain", entry.Chain,
		"address", entry.Address,
		"tx_hash", result.Hash,
		"amount", result.Amount,
		"denom", result.Denom,
	)
}

// pause sleeps the cooldown, returning false if ctx was cancelled first.
func (d *Dispatcher) pause(ctx context.Context) bool {
	if d.cooldown <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d.cooldown)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
