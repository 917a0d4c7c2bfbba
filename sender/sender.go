// Package sender implements the per-chain transaction senders used by the
// faucet dispatcher. A sender owns the funding wallet key for its chain and
// is only ever invoked by the single dispatcher goroutine, so account
// sequence numbers are never contended.
package sender

import (
	"fmt"

	"faucetd/config"
	"faucetd/faucet"
)

// New constructs the transaction sender for a chain based on its family tag.
func New(chain config.Chain) (faucet.Sender, error) {
	switch chain.Family {
	case config.FamilyCosmos:
		return NewCosmosSender(chain)
	case config.FamilyEthermint:
		return NewEvmSender(chain)
	default:
		return nil, fmt.Errorf("unknown chain family %q", chain.Family)
	}
}
