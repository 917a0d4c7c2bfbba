package faucet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"faucetd/config"
)

// ServiceConfig wires the collaborators owned by the service.
type ServiceConfig struct {
	Chains  []config.Chain
	Limiter *FrequencyLimiter
	Tracker *StatusTracker
	Queue   *PayoutQueue
	Senders map[string]Sender
	Window  time.Duration
	Logger  *slog.Logger
	Metrics *Metrics
}

// Service owns admission control, the payout queue, and status tracking for
// all configured chains. One instance is constructed at process start and
// shared by the HTTP layer and the dispatcher.
type Service struct {
	chains  map[string]config.Chain
	limiter *FrequencyLimiter
	tracker *StatusTracker
	queue   *PayoutQueue
	senders map[string]Sender
	window  time.Duration
	logger  *slog.Logger
	metrics *Metrics
}

// NewService constructs the faucet service.
func NewService(cfg ServiceConfig) *Service {
	chains := make(map[string]config.Chain, len(cfg.Chains))
	for _, chain := range cfg.Chains {
		chains[chain.Name] = chain
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := cfg.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Service{
		chains:  chains,
		limiter: cfg.Limiter,
		tracker: cfg.Tracker,
		queue:   cfg.Queue,
		senders: cfg.Senders,
		window:  window,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// RequestFunds admits a payout request for (chain, address) and, if allowed,
// enqueues it for the dispatcher. The call returns as soon as the request is
// queued; callers poll Status for the payout outcome. Rate-limit slots are
// consumed only after the request has passed every other check, so a request
// for an unsupported chain or a malformed address costs nothing.
func (s *Service) RequestFunds(ctx context.Context, chainName, address, ip string) error {
	chain, ok := s.chains[chainName]
	if !ok {
		s.metrics.RecordRequest(chainName, "unsupported_chain")
		return fmt.Errorf("%w: %s", ErrUnsupportedChain, chainName)
	}
	if !addressSupported(chain, address) {
		s.metrics.RecordRequest(chain.Name, "invalid_address")
		return fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}

	addrKey := chain.Name + ":" + address
	ipKey := chain.Name + ":" + ip
	if !s.limiter.Allow(addrKey, chain.Limits.Address) || !s.limiter.Allow(ipKey, chain.Limits.IP) {
		s.metrics.RecordRequest(chain.Name, "rate_limited")
		return &RateLimitedError{
			Chain:        chain.Name,
			AddressLimit: chain.Limits.Address,
			IPLimit:      chain.Limits.IP,
			Window:       s.window,
		}
	}

	record, err := s.tracker.Peek(address)
	if err != nil {
		// Same availability policy as the limiter: a broken store must not
		// take the faucet down.
		s.logger.Warn("read status, assuming none", "address", address, "error", err)
	}
	if record.Status == StatusCompleted {
		s.metrics.RecordRequest(chain.Name, "already_paid")
		return fmt.Errorf("%w: %s", ErrAlreadyPaid, address)
	}

	if s.queue.Enqueue(address, chain.Name) {
		if err := s.tracker.MarkPending(address); err != nil {
			s.logger.Warn("mark pending", "address", address, "error", err)
		}
	}
	s.limiter.Record(addrKey)
	s.limiter.Record(ipKey)
	s.metrics.RecordRequest(chain.Name, "enqueued")
	s.metrics.SetQueueDepth(s.queue.Len())
	s.logger.Info("request enqueued", "chain", chain.Name, "address", address, "ip", ip)
	return nil
}

// StatusView is returned to status pollers.
type StatusView struct {
	Address string
	Status  Status
	TxHash  string
}

// Status reports the payout state for address. Observing a completed record
// acknowledges it: the record transitions to cleared and the address becomes
// eligible to request funds again.
func (s *Service) Status(ctx context.Context, address string) (StatusView, error) {
	record, err := s.tracker.Peek(address)
	if err != nil {
		return StatusView{}, err
	}
	view := StatusView{Address: address, Status: record.Status, TxHash: record.TxHash}
	if record.Status == StatusCompleted {
		if err := s.tracker.Acknowledge(address); err != nil {
			s.logger.Warn("acknowledge status", "address", address, "error", err)
		}
	}
	return view, nil
}

// Balance reports the funding wallet balance for the named chain.
func (s *Service) Balance(ctx context.Context, chainName string) (Balance, error) {
	sender, ok := s.senders[chainName]
	if !ok {
		return Balance{}, fmt.Errorf("%w: %s", ErrUnsupportedChain, chainName)
	}
	return sender.Balance(ctx)
}

// addressSupported checks the recipient prefix against the chain. Ethermint
// chains additionally accept hex recipients.
func addressSupported(chain config.Chain, address string) bool {
	if address == "" {
		return false
	}
	if strings.HasPrefix(address, chain.Prefix) {
		return true
	}
	return chain.Family == config.FamilyEthermint && strings.HasPrefix(address, "0x")
}
