// Package wallet resolves the signing account and sends contract
// transactions on its behalf.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/megalucky/internal/chain"
	"github.com/alanyoungcy/megalucky/internal/domain"
)

// TxBackend is the subset of the Ethereum RPC needed to price, sign, and
// broadcast a transaction. *ethclient.Client satisfies it.
type TxBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Accessor is the connected wallet. A zero key means no wallet: reads that
// need an address fall back, writes fail with domain.ErrNoWallet.
type Accessor struct {
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
	backend TxBackend
	logger  *slog.Logger

	// serializes nonce lookup and broadcast
	sendMu sync.Mutex
}

// NewAccessor binds key to chainID. key may be nil.
func NewAccessor(key *ecdsa.PrivateKey, backend TxBackend, chainID *big.Int, logger *slog.Logger) *Accessor {
	a := &Accessor{
		key:     key,
		backend: backend,
		signer:  types.LatestSignerForChainID(chainID),
		logger:  logger.With(slog.String("component", "wallet")),
	}
	if key != nil {
		a.address = ethcrypto.PubkeyToAddress(key.PublicKey)
	}
	return a
}

// Connected reports whether a signing key is present.
func (a *Accessor) Connected() bool {
	return a != nil && a.key != nil
}

// ConnectedAddress returns the wallet address or domain.ErrNoWallet.
func (a *Accessor) ConnectedAddress() (common.Address, error) {
	if !a.Connected() {
		return common.Address{}, domain.ErrNoWallet
	}
	return a.address, nil
}

// WriteContract signs and broadcasts a simulated call. It returns as soon as
// the node accepts the transaction; mining is awaited separately.
func (a *Accessor) WriteContract(ctx context.Context, p chain.PreparedCall) (common.Hash, error) {
	if !a.Connected() {
		return common.Hash{}, domain.ErrNoWallet
	}
	if p.From != (common.Address{}) && p.From != a.address {
		return common.Hash{}, fmt.Errorf("wallet: prepared call from %s, wallet is %s", p.From.Hex(), a.address.Hex())
	}

	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	tx, err := a.buildTx(ctx, p)
	if err != nil {
		return common.Hash{}, &domain.ContractCallError{Op: domain.OpSend, Method: p.Method, Err: err}
	}
	signed, err := types.SignTx(tx, a.signer, a.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", domain.ErrSigningFailed, err)
	}
	if err := a.backend.SendTransaction(ctx, signed); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		}
		return common.Hash{}, &domain.ContractCallError{Op: domain.OpSend, Method: p.Method, Err: err}
	}

	a.logger.InfoContext(ctx, "transaction sent",
		slog.String("method", p.Method),
		slog.String("tx", signed.Hash().Hex()),
		slog.Uint64("nonce", signed.Nonce()),
		slog.Uint64("gas", signed.Gas()),
	)
	return signed.Hash(), nil
}

// buildTx prices p as an EIP-1559 transaction when the chain reports a base
// fee, and as a legacy transaction otherwise.
func (a *Accessor) buildTx(ctx context.Context, p chain.PreparedCall) (*types.Transaction, error) {
	nonce, err := a.backend.PendingNonceAt(ctx, a.address)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	value := p.Value
	if value == nil {
		value = new(big.Int)
	}
	to := p.To

	head, err := a.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	if head.BaseFee != nil {
		tip, err := a.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("gas tip: %w", err)
		}
		feeCap := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
		feeCap.Add(feeCap, tip)
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   a.signer.ChainID(),
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       p.Gas,
			To:        &to,
			Value:     value,
			Data:      p.Data,
		}), nil
	}

	price, err := a.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: price,
		Gas:      p.Gas,
		To:       &to,
		Value:    value,
		Data:     p.Data,
	}), nil
}
