package faucet

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupportedChain is returned when no chain is configured under the
	// requested name.
	ErrUnsupportedChain = errors.New("faucet: unsupported chain")

	// ErrInvalidAddress is returned when the recipient address does not carry
	// a supported prefix for the chain.
	ErrInvalidAddress = errors.New("faucet: unsupported address prefix")

	// ErrAlreadyPaid is returned when the address has a completed payout that
	// has not yet been acknowledged via a status poll.
	ErrAlreadyPaid = errors.New("faucet: address has already received funds")

	// ErrSendFailed indicates the transaction sender raised an error and the
	// balance reconciliation did not confirm delivery.
	ErrSendFailed = errors.New("faucet: send failed")

	// ErrStoreUnavailable indicates durable store I/O failed.
	ErrStoreUnavailable = errors.New("faucet: store unavailable")
)

// RateLimitedError reports an admission rejection together with the
// configured thresholds so callers can echo them to the requester.
type RateLimitedError struct {
	Chain        string
	AddressLimit int
	IPLimit      int
	Window       time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("faucet: too many requests on %s: limits per %s: %d per address, %d per ip",
		e.Chain, e.Window, e.AddressLimit, e.IPLimit)
}
