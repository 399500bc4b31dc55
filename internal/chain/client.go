package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

// Backend is the subset of the Ethereum RPC used for reads, simulation, and
// receipt polling. *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Call names one contract function invocation.
type Call struct {
	Address common.Address
	ABI     *abi.ABI
	Method  string
	Args    []any
	// From is the simulated sender; zero for anonymous reads.
	From  common.Address
	Value *big.Int
}

// PreparedCall is a simulated call that is ready to be signed and sent.
type PreparedCall struct {
	From   common.Address
	To     common.Address
	Method string
	Data   []byte
	Value  *big.Int
	Gas    uint64
	// Result holds the decoded return values of the dry run.
	Result []any
}

// Receipt is the subset of a transaction receipt the lottery flow reports.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Status      uint64
}

// gasHeadroomPct pads estimated gas so small state drift between simulate
// and send does not run the transaction out of gas.
const gasHeadroomPct = 20

// Client invokes contract functions through a Backend.
type Client struct {
	backend      Backend
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewClient creates a Client. pollInterval controls receipt polling.
func NewClient(backend Backend, pollInterval time.Duration, logger *slog.Logger) *Client {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Client{
		backend:      backend,
		pollInterval: pollInterval,
		logger:       logger.With(slog.String("component", "chain")),
	}
}

// ReadContract performs an eth_call against the latest block and decodes the
// outputs. Failures are returned as *domain.ContractCallError with Op "read".
func (c *Client) ReadContract(ctx context.Context, call Call) ([]any, error) {
	data, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, &domain.ContractCallError{Op: domain.OpRead, Method: call.Method, Err: err}
	}
	to := call.Address
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: call.From, To: &to, Data: data}, nil)
	if err != nil {
		return nil, &domain.ContractCallError{Op: domain.OpRead, Method: call.Method, Err: classify(err)}
	}
	vals, err := call.ABI.Unpack(call.Method, out)
	if err != nil {
		return nil, &domain.ContractCallError{Op: domain.OpRead, Method: call.Method, Err: fmt.Errorf("decode: %w", err)}
	}
	return vals, nil
}

// SimulateContract dry-runs call from call.From against current state and
// estimates its gas. A revert surfaces here with its reason, before any fee
// is spent.
func (c *Client) SimulateContract(ctx context.Context, call Call) (PreparedCall, error) {
	data, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return PreparedCall{}, &domain.ContractCallError{Op: domain.OpSimulate, Method: call.Method, Err: err}
	}
	to := call.Address
	msg := ethereum.CallMsg{From: call.From, To: &to, Data: data, Value: call.Value}

	out, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return PreparedCall{}, &domain.ContractCallError{Op: domain.OpSimulate, Method: call.Method, Err: classify(err)}
	}
	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return PreparedCall{}, &domain.ContractCallError{Op: domain.OpSimulate, Method: call.Method, Err: classify(err)}
	}

	prepared := PreparedCall{
		From:   call.From,
		To:     to,
		Method: call.Method,
		Data:   data,
		Value:  call.Value,
		Gas:    gas + gas*gasHeadroomPct/100,
	}
	if len(out) > 0 {
		if vals, err := call.ABI.Unpack(call.Method, out); err == nil {
			prepared.Result = vals
		}
	}
	c.logger.DebugContext(ctx, "simulated contract call",
		slog.String("method", call.Method),
		slog.String("to", to.Hex()),
		slog.Uint64("gas", prepared.Gas),
	)
	return prepared, nil
}

// WaitForReceipt polls until hash is mined or ctx ends. A reverted
// transaction returns its receipt together with an error wrapping
// domain.ErrReverted; ctx expiry maps to domain.ErrTimeout.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		rcpt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && rcpt != nil:
			out := Receipt{
				TxHash:  hash,
				GasUsed: rcpt.GasUsed,
				Status:  rcpt.Status,
			}
			if rcpt.BlockNumber != nil {
				out.BlockNumber = rcpt.BlockNumber.Uint64()
			}
			if rcpt.Status != types.ReceiptStatusSuccessful {
				return out, &domain.ContractCallError{
					Op:     domain.OpReceipt,
					Method: hash.Hex(),
					Err:    fmt.Errorf("%w in block %d", domain.ErrReverted, out.BlockNumber),
				}
			}
			return out, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			if ctx.Err() == nil {
				// transient RPC failure; keep polling until ctx ends
				c.logger.WarnContext(ctx, "receipt poll failed",
					slog.String("tx", hash.Hex()),
					slog.String("error", err.Error()),
				)
			}
		}

		select {
		case <-ctx.Done():
			return Receipt{}, &domain.ContractCallError{Op: domain.OpReceipt, Method: hash.Hex(), Err: classify(ctx.Err())}
		case <-ticker.C:
		}
	}
}

// classify tags deadline expiry with domain.ErrTimeout and expands revert
// data into a readable reason. The original error stays in the chain.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	if reason, ok := RevertReason(err); ok {
		return fmt.Errorf("%w: %s: %w", domain.ErrReverted, reason, err)
	}
	return err
}

// RevertReason extracts the Error(string) reason from a JSON-RPC error that
// carries revert data.
func RevertReason(err error) (string, bool) {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return "", false
	}
	hexData, ok := de.ErrorData().(string)
	if !ok {
		return "", false
	}
	data, decErr := hexutil.Decode(hexData)
	if decErr != nil {
		return "", false
	}
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return "", false
	}
	return reason, true
}
