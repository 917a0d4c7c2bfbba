package sender

import (
	"context"
	"fmt"
	"math/big"

	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/client/flags"
	clienttx "github.com/cosmos/cosmos-sdk/client/tx"
	"github.com/cosmos/cosmos-sdk/crypto/hd"
	"github.com/cosmos/cosmos-sdk/crypto/keyring"
	"github.com/cosmos/cosmos-sdk/simapp"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/tx/signing"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	rpchttp "github.com/tendermint/tendermint/rpc/client/http"

	"faucetd/config"
	"faucetd/faucet"
)

const cosmosKeyName = "faucet"

// CosmosSender signs and broadcasts bank send transactions for Cosmos-SDK
// chains over tendermint RPC.
type CosmosSender struct {
	chain     config.Chain
	clientCtx client.Context
	factory   clienttx.Factory
	from      string
	payout    *big.Int
	amount    sdk.Coins
}

// NewCosmosSender derives the funding key from the configured mnemonic and
// prepares the signing context for the chain.
func NewCosmosSender(chain config.Chain) (*CosmosSender, error) {
	// The SDK resolves bech32 prefixes through a process-wide config; config
	// validation guarantees all cosmos chains in one process share a prefix.
	sdkCfg := sdk.GetConfig()
	sdkCfg.SetBech32PrefixForAccount(chain.Prefix, chain.Prefix+"pub")

	encCfg := simapp.MakeTestEncodingConfig()
	kr := keyring.NewInMemory()
	hdPath := hd.CreateHDPath(chain.HDPath.CoinType, chain.HDPath.Account, chain.HDPath.Index).String()
	info, err := kr.NewAccount(cosmosKeyName, chain.Mnemonic, "", hdPath, hd.Secp256k1)
	if err != nil {
		return nil, fmt.Errorf("derive funding key: %w", err)
	}

	rpcClient, err := rpchttp.New(chain.Endpoint.RPC, "/websocket")
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	payout, ok := new(big.Int).SetString(chain.Tx.Amount, 10)
	if !ok || payout.Sign() <= 0 {
		return nil, fmt.Errorf("parse payout amount %q", chain.Tx.Amount)
	}
	amount := sdk.NewCoins(sdk.NewCoin(chain.Tx.Denom, sdk.NewIntFromBigInt(payout)))

	clientCtx := client.Context{}.
		WithChainID(chain.ChainID).
		WithClient(rpcClient).
		WithCodec(encCfg.Marshaler).
		WithInterfaceRegistry(encCfg.InterfaceRegistry).
		WithTxConfig(encCfg.TxConfig).
		WithLegacyAmino(encCfg.Amino).
		WithKeyring(kr).
		WithAccountRetriever(authtypes.AccountRetriever{}).
		WithBroadcastMode(flags.BroadcastSync).
		WithFromName(cosmosKeyName).
		WithFromAddress(info.GetAddress()).
		WithSkipConfirmation(true)

	factory := clienttx.Factory{}.
		WithChainID(chain.ChainID).
		WithKeybase(kr).
		WithTxConfig(encCfg.TxConfig).
		WithAccountRetriever(authtypes.AccountRetriever{}).
		WithGas(chain.Tx.Gas).
		WithMemo(chain.Tx.Memo).
		WithSignMode(signing.SignMode_SIGN_MODE_DIRECT)
	if chain.Tx.FeeAmount != "" && chain.Tx.FeeDenom != "" {
		factory = factory.WithFees(chain.Tx.FeeAmount + chain.Tx.FeeDenom)
	}

	return &CosmosSender{
		chain:     chain,
		clientCtx: clientCtx,
		factory:   factory,
		from:      info.GetAddress().String(),
		payout:    payout,
		amount:    amount,
	}, nil
}

// Send transfers the configured payout amount to recipient. A broadcast
// error is not taken at face value: a timeout can land after the transaction
// has been accepted, so the recipient's balance delta is checked before the
// failure is propagated.
func (s *CosmosSender) Send(ctx context.Context, recipient string) (faucet.TxResult, error) {
	before, err := s.queryBalance(ctx, recipient)
	if err != nil {
		return faucet.TxResult{}, fmt.Errorf("query recipient balance: %w", err)
	}

	result, sendErr := s.broadcast(recipient)
	if sendErr == nil {
		return result, nil
	}

	after, err := s.queryBalance(ctx, recipient)
	if err == nil {
		diff := new(big.Int).Sub(after, before)
		if diff.Cmp(s.payout) == 0 {
			return faucet.TxResult{Amount: s.payout.String(), Denom: s.chain.Tx.Denom}, nil
		}
	}
	return faucet.TxResult{}, fmt.Errorf("%w: %v", faucet.ErrSendFailed, sendErr)
}

func (s *CosmosSender) broadcast(recipient string) (faucet.TxResult, error) {
	// The recipient string goes into the message untouched; the chain
	// validates it against its own bech32 config.
	msg := &banktypes.MsgSend{
		FromAddress: s.from,
		ToAddress:   recipient,
		Amount:      s.amount,
	}

	txf, err := s.factory.Prepare(s.clientCtx)
	if err != nil {
		return faucet.TxResult{}, fmt.Errorf("prepare tx factory: %w", err)
	}
	builder, err := clienttx.BuildUnsignedTx(txf, msg)
	if err != nil {
		return faucet.TxResult{}, fmt.Errorf("build tx: %w", err)
	}
	if err := clienttx.Sign(txf, cosmosKeyName, builder, true); err != nil {
		return faucet.TxResult{}, fmt.Errorf("sign tx: %w", err)
	}
	txBytes, err := s.clientCtx.TxConfig.TxEncoder()(builder.GetTx())
	if err != nil {
		return faucet.TxResult{}, fmt.Errorf("encode tx: %w", err)
	}
	res, err := s.clientCtx.BroadcastTxSync(txBytes)
	if err != nil {
		return faucet.TxResult{}, fmt.Errorf("broadcast tx: %w", err)
	}
	if res.Code != 0 {
		return faucet.TxResult{}, fmt.Errorf("broadcast rejected: code %d: %s", res.Code, res.RawLog)
	}
	return faucet.TxResult{
		Hash:   res.TxHash,
		Amount: s.payout.String(),
		Denom:  s.chain.Tx.Denom,
	}, nil
}

// Balance reports the funding wallet balance.
func (s *CosmosSender) Balance(ctx context.Context) (faucet.Balance, error) {
	amount, err := s.queryBalance(ctx, s.from)
	if err != nil {
		return faucet.Balance{}, fmt.Errorf("query balance: %w", err)
	}
	return faucet.Balance{Amount: amount.String(), Denom: s.chain.Tx.Denom}, nil
}

func (s *CosmosSender) queryBalance(ctx context.Context, address string) (*big.Int, error) {
	queryClient := banktypes.NewQueryClient(s.clientCtx)
	res, err := queryClient.Balance(ctx, &banktypes.QueryBalanceRequest{
		Address: address,
		Denom:   s.chain.Tx.Denom,
	})
	if err != nil {
		return nil, err
	}
	if res.Balance == nil {
		return big.NewInt(0), nil
	}
	return res.Balance.Amount.BigInt(), nil
}
