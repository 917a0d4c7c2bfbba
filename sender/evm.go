package sender

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/cosmos/cosmos-sdk/crypto/hd"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"faucetd/config"
	"faucetd/faucet"
)

const transferGasLimit = 21000

// EvmSender signs and submits value transfers for ethermint chains over the
// EVM JSON-RPC endpoint.
type EvmSender struct {
	chain  config.Chain
	client *ethclient.Client
	key    *ecdsa.PrivateKey
	from   common.Address
	payout *big.Int
}

// NewEvmSender derives the funding key from the configured mnemonic and
// dials the EVM endpoint. The key derivation matches the cosmos side so one
// mnemonic funds both faces of an ethermint chain.
func NewEvmSender(chain config.Chain) (*EvmSender, error) {
	hdPath := hd.CreateHDPath(chain.HDPath.CoinType, chain.HDPath.Account, chain.HDPath.Index).String()
	derived, err := hd.Secp256k1.Derive()(chain.Mnemonic, "", hdPath)
	if err != nil {
		return nil, fmt.Errorf("derive funding key: %w", err)
	}
	key, err := gethcrypto.ToECDSA(derived)
	if err != nil {
		return nil, fmt.Errorf("load funding key: %w", err)
	}
	client, err := ethclient.Dial(chain.Endpoint.EvmRPC)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	payout, ok := new(big.Int).SetString(chain.Tx.Amount, 10)
	if !ok || payout.Sign() <= 0 {
		return nil, fmt.Errorf("parse payout amount %q", chain.Tx.Amount)
	}
	return &EvmSender{
		chain:  chain,
		client: client,
		key:    key,
		from:   gethcrypto.PubkeyToAddress(key.PublicKey),
		payout: payout,
	}, nil
}

// Send transfers the configured payout amount to recipient. Bech32
// recipients are translated to their hex form first.
func (s *EvmSender) Send(ctx context.Context, recipient string) (faucet.TxResult, error) {
	to, err := TranslateRecipient(recipient)
	if err != nil {
		return faucet.TxResult{}, err
	}
	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return faucet.TxResult{}, fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return faucet.TxResult{}, fmt.Errorf("fetch gas price: %w", err)
	}
	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		return faucet.TxResult{}, fmt.Errorf("fetch chain id: %w", err)
	}
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    s.payout,
		Gas:      transferGasLimit,
		GasPrice: gasPrice,
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return faucet.TxResult{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return faucet.TxResult{}, fmt.Errorf("%w: %v", faucet.ErrSendFailed, err)
	}
	return faucet.TxResult{
		Hash:   signed.Hash().Hex(),
		Amount: s.payout.String(),
		Denom:  s.chain.Tx.Denom,
	}, nil
}

// Balance reports the funding wallet balance.
func (s *EvmSender) Balance(ctx context.Context) (faucet.Balance, error) {
	balance, err := s.client.BalanceAt(ctx, s.from, nil)
	if err != nil {
		return faucet.Balance{}, fmt.Errorf("query balance: %w", err)
	}
	return faucet.Balance{Amount: balance.String(), Denom: s.chain.Tx.Denom}, nil
}

// TranslateRecipient resolves a recipient given in either hex or bech32 form
// to an EVM address.
func TranslateRecipient(recipient string) (common.Address, error) {
	if strings.HasPrefix(recipient, "0x") {
		if !common.IsHexAddress(recipient) {
			return common.Address{}, fmt.Errorf("invalid hex address %q", recipient)
		}
		return common.HexToAddress(recipient), nil
	}
	_, decoded, err := bech32.Decode(recipient)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode bech32 address: %w", err)
	}
	raw, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return common.Address{}, fmt.Errorf("convert address bits: %w", err)
	}
	if len(raw) != common.AddressLength {
		return common.Address{}, fmt.Errorf("address %q decodes to %d bytes, want %d", recipient, len(raw), common.AddressLength)
	}
	return common.BytesToAddress(raw), nil
}
