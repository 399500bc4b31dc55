package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/megalucky/internal/cache/memory"
	"github.com/alanyoungcy/megalucky/internal/chain"
	"github.com/alanyoungcy/megalucky/internal/domain"
	"github.com/alanyoungcy/megalucky/internal/logging"
)

var (
	lotteryAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenAddr   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	userAddr    = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	oneToken    = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// stubChain answers reads from a method table and records every call in order.
type stubChain struct {
	mu        sync.Mutex
	reads     map[string]any
	readErr   map[string]error
	simErr    map[string]error
	simulate  func(ctx context.Context, call chain.Call) error
	receipt   func(ctx context.Context, hash common.Hash) (chain.Receipt, error)
	calls     []string
	simulated []chain.Call
	receipts  int
}

func newStubChain(allowance *big.Int) *stubChain {
	return &stubChain{
		reads: map[string]any{
			chain.MethodCurrentState:      uint8(1),
			chain.MethodCurrentLotteryID:  big.NewInt(42),
			chain.MethodCurrentDrawTime:   big.NewInt(1_700_000_000),
			chain.MethodTicketPrice:       new(big.Int).Set(oneToken),
			chain.MethodGetTotalPrizes:    new(big.Int).Mul(oneToken, big.NewInt(250)),
			chain.MethodGetWinningNumbers: [6]uint8{1, 2, 3, 4, 5, 6},
			chain.MethodGetUserTickets:    [][6]uint8{{1, 2, 3, 4, 5, 6}, {9, 9, 9, 9, 9, 9}},
			chain.MethodAllowance:         allowance,
			chain.MethodBalanceOf:         new(big.Int).Mul(oneToken, big.NewInt(3)),
		},
		readErr: map[string]error{},
		simErr:  map[string]error{},
	}
}

func (s *stubChain) ReadContract(ctx context.Context, call chain.Call) ([]any, error) {
	s.mu.Lock()
	s.calls = append(s.calls, "read:"+call.Method)
	v, ok := s.reads[call.Method]
	err := s.readErr[call.Method]
	s.mu.Unlock()
	if err != nil {
		return nil, &domain.ContractCallError{Op: domain.OpRead, Method: call.Method, Err: err}
	}
	if !ok {
		return nil, errors.New("unexpected read " + call.Method)
	}
	return []any{v}, nil
}

func (s *stubChain) SimulateContract(ctx context.Context, call chain.Call) (chain.PreparedCall, error) {
	s.mu.Lock()
	s.calls = append(s.calls, "simulate:"+call.Method)
	s.simulated = append(s.simulated, call)
	err := s.simErr[call.Method]
	hook := s.simulate
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, call); err != nil {
			return chain.PreparedCall{}, err
		}
	}
	if err != nil {
		return chain.PreparedCall{}, &domain.ContractCallError{Op: domain.OpSimulate, Method: call.Method, Err: err}
	}
	return chain.PreparedCall{From: call.From, To: call.Address, Method: call.Method, Gas: 100_000}, nil
}

func (s *stubChain) WaitForReceipt(ctx context.Context, hash common.Hash) (chain.Receipt, error) {
	s.mu.Lock()
	s.calls = append(s.calls, "receipt")
	s.receipts++
	hook := s.receipt
	s.mu.Unlock()
	if hook != nil {
		return hook(ctx, hash)
	}
	return chain.Receipt{TxHash: hash, BlockNumber: 100, GasUsed: 21000, Status: 1}, nil
}

func (s *stubChain) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type stubWallet struct {
	mu    sync.Mutex
	addr  *common.Address
	sent  []chain.PreparedCall
	nonce byte
}

func (w *stubWallet) ConnectedAddress() (common.Address, error) {
	if w.addr == nil {
		return common.Address{}, domain.ErrNoWallet
	}
	return *w.addr, nil
}

func (w *stubWallet) WriteContract(_ context.Context, p chain.PreparedCall) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, p)
	w.nonce++
	return common.Hash{w.nonce}, nil
}

type recordingNotifier struct{ events []string }

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.events = append(n.events, event)
	return nil
}

func newTestService(c *stubChain, w Wallet) *LotteryService {
	return NewLotteryService(c, w, nil, LotteryConfig{
		Lottery:          lotteryAddr,
		Token:            tokenAddr,
		CallTimeout:      time.Second,
		ReceiptTimeout:   time.Second,
		ConfirmPurchases: true,
	}, logging.Nop())
}

func connected() *stubWallet {
	a := userAddr
	return &stubWallet{addr: &a}
}

func TestReads(t *testing.T) {
	svc := newTestService(newStubChain(big.NewInt(0)), connected())
	ctx := context.Background()

	state, err := svc.GetLotteryState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StateOpen, state)

	id, err := svc.GetCurrentLotteryID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.Int64())

	price, err := svc.GetTicketPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", price.Formatted)
	assert.Equal(t, oneToken, price.Raw)

	prizes, err := svc.GetTotalPrizes(ctx)
	require.NoError(t, err)
	assert.Equal(t, "250", prizes)

	win, err := svc.GetWinningNumbers(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Ticket{1, 2, 3, 4, 5, 6}, win)

	tickets, err := svc.GetUserTickets(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, domain.Ticket{9, 9, 9, 9, 9, 9}, tickets[1])

	bal, err := svc.GetTokenBalance(ctx, userAddr)
	require.NoError(t, err)
	assert.Equal(t, "3", bal)
}

func TestGetUserTicketsWithoutWallet(t *testing.T) {
	c := newStubChain(big.NewInt(0))
	svc := newTestService(c, &stubWallet{})

	tickets, err := svc.GetUserTickets(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, tickets)
	assert.Empty(t, tickets)
	assert.Empty(t, c.callLog())
}

func TestReadErrorIsContractCall(t *testing.T) {
	c := newStubChain(big.NewInt(0))
	cause := errors.New("execution reverted")
	c.readErr[chain.MethodCurrentDrawTime] = cause
	svc := newTestService(c, connected())

	_, err := svc.GetCurrentDrawTime(context.Background())
	require.ErrorIs(t, err, cause)
	var cce *domain.ContractCallError
	require.ErrorAs(t, err, &cce)
	assert.Equal(t, domain.OpRead, cce.Op)
}

func TestReadUnexpectedType(t *testing.T) {
	c := newStubChain(big.NewInt(0))
	c.reads[chain.MethodCurrentLotteryID] = "nope"
	svc := newTestService(c, connected())

	_, err := svc.GetCurrentLotteryID(context.Background())
	var cce *domain.ContractCallError
	require.ErrorAs(t, err, &cce)
	assert.Equal(t, chain.MethodCurrentLotteryID, cce.Method)
}

func TestBuyRandomApprovesExactCost(t *testing.T) {
	c := newStubChain(big.NewInt(0))
	w := connected()
	n := &recordingNotifier{}
	store := memory.NewPurchaseStore()
	bus := memory.NewSignalBus(0)
	audit := memory.NewAuditStore()
	svc := newTestService(c, w).WithNotifier(n).WithPurchaseStore(store).WithSignalBus(bus).WithAudit(audit)

	res, err := svc.BuyRandomTickets(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"read:" + chain.MethodTicketPrice,
		"read:" + chain.MethodAllowance,
		"simulate:" + chain.MethodApprove,
		"receipt",
		"simulate:" + chain.MethodBuyRandomTickets,
		"receipt",
	}, c.callLog())

	want := new(big.Int).Mul(oneToken, big.NewInt(7))
	approve := c.simulated[0]
	assert.Equal(t, tokenAddr, approve.Address)
	assert.Equal(t, lotteryAddr, approve.Args[0])
	assert.Equal(t, 0, want.Cmp(approve.Args[1].(*big.Int)))

	buy := c.simulated[1]
	assert.Equal(t, lotteryAddr, buy.Address)
	assert.Equal(t, userAddr, buy.From)
	assert.Equal(t, 0, big.NewInt(7).Cmp(buy.Args[0].(*big.Int)))

	assert.True(t, res.Success)
	assert.Equal(t, "7", res.Cost)
	assert.Equal(t, 7, res.TicketCount)
	assert.NotEmpty(t, res.ApprovalHash)
	assert.NotEmpty(t, res.TransactionHash)
	assert.Equal(t, uint64(100), res.BlockNumber)
	require.Len(t, w.sent, 2)

	assert.Equal(t, []string{"purchase"}, n.events)
	stored, err := store.GetByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.TransactionHash, stored.TransactionHash)
	msgs, err := bus.StreamRead(context.Background(), domain.StreamPurchases, "0", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	entries, err := audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ticket_purchase", entries[0].Event)
}

func TestBuySkipsApprovalWhenAllowanceCovers(t *testing.T) {
	c := newStubChain(new(big.Int).Mul(oneToken, big.NewInt(10)))
	w := connected()
	svc := newTestService(c, w)

	res, err := svc.BuyCustomTicket(context.Background(), []int{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Empty(t, res.ApprovalHash)
	assert.Equal(t, "1", res.Cost)
	require.NotNil(t, res.Numbers)
	assert.Equal(t, domain.Ticket{1, 2, 3, 4, 5, 6}, *res.Numbers)

	assert.NotContains(t, c.callLog(), "simulate:"+chain.MethodApprove)
	require.Len(t, w.sent, 1)
	assert.Equal(t, chain.MethodBuyCustomTicket, w.sent[0].Method)
	assert.Equal(t, [6]uint8{1, 2, 3, 4, 5, 6}, c.simulated[0].Args[0])
}

func TestBuyCustomValidatesBeforeNetwork(t *testing.T) {
	cases := []struct {
		name    string
		numbers []int
		reason  string
	}{
		{"too few", []int{1, 2, 3}, "Must provide exactly 6 numbers"},
		{"too many", []int{1, 2, 3, 4, 5, 6, 7}, "Must provide exactly 6 numbers"},
		{"out of range", []int{1, 2, 3, 4, 5, 10}, "Numbers must be between 0-9"},
		{"negative", []int{-1, 2, 3, 4, 5, 6}, "Numbers must be between 0-9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newStubChain(big.NewInt(0))
			svc := newTestService(c, connected())

			_, err := svc.BuyCustomTicket(context.Background(), tc.numbers)
			require.ErrorIs(t, err, domain.ErrValidation)
			assert.EqualError(t, err, tc.reason)
			assert.Empty(t, c.callLog())
		})
	}
}

func TestBuyRandomRejectsNonPositive(t *testing.T) {
	c := newStubChain(big.NewInt(0))
	svc := newTestService(c, connected())

	_, err := svc.BuyRandomTickets(context.Background(), 0)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, c.callLog())
}

func TestBuyWithoutWallet(t *testing.T) {
	c := newStubChain(big.NewInt(0))
	svc := newTestService(c, &stubWallet{})

	_, err := svc.BuyRandomTickets(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrNoWallet)
	assert.Empty(t, c.callLog())

	_, err = NewLotteryService(c, nil, nil, LotteryConfig{}, logging.Nop()).BuyRandomTickets(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrNoWallet)
}

func TestBuySimulationRevertSendsNothing(t *testing.T) {
	c := newStubChain(new(big.Int).Mul(oneToken, big.NewInt(10)))
	c.simErr[chain.MethodBuyRandomTickets] = errors.New("execution reverted: Lottery not open")
	w := connected()
	svc := newTestService(c, w)

	_, err := svc.BuyRandomTickets(context.Background(), 2)
	var cce *domain.ContractCallError
	require.ErrorAs(t, err, &cce)
	assert.Equal(t, domain.OpSimulate, cce.Op)
	assert.Empty(t, w.sent)
}

func TestIdenticalPurchaseInFlight(t *testing.T) {
	c := newStubChain(new(big.Int).Mul(oneToken, big.NewInt(100)))
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	c.simulate = func(ctx context.Context, call chain.Call) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	}
	svc := newTestService(c, connected())
	svc.cfg.CallTimeout = 5 * time.Second

	done := make(chan error, 1)
	go func() {
		_, err := svc.BuyRandomTickets(context.Background(), 3)
		done <- err
	}()
	<-entered

	_, err := svc.BuyRandomTickets(context.Background(), 3)
	require.ErrorIs(t, err, domain.ErrPurchaseInFlight)

	// a different request signature is independent
	c.mu.Lock()
	c.simulate = nil
	c.mu.Unlock()
	_, err = svc.BuyRandomTickets(context.Background(), 4)
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)

	_, err = svc.BuyRandomTickets(context.Background(), 3)
	require.NoError(t, err)
}

func TestSimulationTimeout(t *testing.T) {
	c := newStubChain(new(big.Int).Mul(oneToken, big.NewInt(100)))
	c.simulate = func(ctx context.Context, call chain.Call) error {
		<-ctx.Done()
		return &domain.ContractCallError{
			Op:     domain.OpSimulate,
			Method: call.Method,
			Err:    fmt.Errorf("%w: %w", domain.ErrTimeout, ctx.Err()),
		}
	}
	svc := newTestService(c, connected())
	svc.cfg.CallTimeout = 20 * time.Millisecond

	start := time.Now()
	_, err := svc.BuyRandomTickets(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUnconfirmedPurchaseKeepsHash(t *testing.T) {
	c := newStubChain(new(big.Int).Mul(oneToken, big.NewInt(100)))
	c.receipt = func(ctx context.Context, _ common.Hash) (chain.Receipt, error) {
		<-ctx.Done()
		return chain.Receipt{}, fmt.Errorf("%w: %w", domain.ErrTimeout, ctx.Err())
	}
	w := connected()
	n := &recordingNotifier{}
	store := memory.NewPurchaseStore()
	audit := memory.NewAuditStore()
	svc := newTestService(c, w).WithNotifier(n).WithPurchaseStore(store).WithAudit(audit)
	svc.cfg.ReceiptTimeout = 20 * time.Millisecond

	res, err := svc.BuyRandomTickets(context.Background(), 2)
	require.ErrorIs(t, err, domain.ErrTimeout)

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.TransactionHash)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, 2, res.TicketCount)
	require.Len(t, w.sent, 1)

	stored, err := store.GetByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.False(t, stored.Success)
	assert.Equal(t, res.TransactionHash, stored.TransactionHash)

	entries, err := audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ticket_purchase_unconfirmed", entries[0].Event)
	assert.Equal(t, []string{"error"}, n.events)
}

type countingRecorder struct {
	calls     int
	purchases map[domain.PurchaseKind]int
	failures  int
}

func (r *countingRecorder) ObserveCall(string, time.Duration, error) { r.calls++ }

func (r *countingRecorder) ObservePurchase(kind domain.PurchaseKind, err error) {
	if r.purchases == nil {
		r.purchases = map[domain.PurchaseKind]int{}
	}
	r.purchases[kind]++
	if err != nil {
		r.failures++
	}
}

func TestRecorderObservesCallsAndPurchases(t *testing.T) {
	c := newStubChain(big.NewInt(0))
	rec := &countingRecorder{}
	svc := newTestService(c, connected()).WithRecorder(rec)

	_, err := svc.BuyRandomTickets(context.Background(), 1)
	require.NoError(t, err)
	_, err = svc.BuyCustomTicket(context.Background(), []int{1, 1, 1, 1, 1, 1})
	require.NoError(t, err)

	assert.Equal(t, 1, rec.purchases[domain.PurchaseRandom])
	assert.Equal(t, 1, rec.purchases[domain.PurchaseCustom])
	assert.Zero(t, rec.failures)
	assert.Positive(t, rec.calls)
}
