package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/megalucky/internal/cache/memory"
	"github.com/alanyoungcy/megalucky/internal/chain"
	"github.com/alanyoungcy/megalucky/internal/domain"
	"github.com/alanyoungcy/megalucky/internal/units"
)

// ChainClient reads, simulates, and awaits contract calls.
type ChainClient interface {
	ReadContract(ctx context.Context, call chain.Call) ([]any, error)
	SimulateContract(ctx context.Context, call chain.Call) (chain.PreparedCall, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (chain.Receipt, error)
}

// Wallet exposes the connected account and sends prepared calls from it.
type Wallet interface {
	ConnectedAddress() (common.Address, error)
	WriteContract(ctx context.Context, p chain.PreparedCall) (common.Hash, error)
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Recorder receives call and purchase outcomes for metrics.
type Recorder interface {
	ObserveCall(method string, d time.Duration, err error)
	ObservePurchase(kind domain.PurchaseKind, err error)
}

// LotteryConfig carries contract addresses and per-call bounds.
type LotteryConfig struct {
	Lottery       common.Address
	Token         common.Address
	TokenDecimals int32
	// CallTimeout bounds each read, simulation, and send.
	CallTimeout time.Duration
	// ReceiptTimeout bounds each wait for a mined transaction.
	ReceiptTimeout time.Duration
	// ConfirmPurchases waits for the purchase receipt before returning.
	ConfirmPurchases bool
}

// LotteryService translates lottery intents into contract calls.
type LotteryService struct {
	chain  ChainClient
	wallet Wallet
	locks  domain.LockManager
	cfg    LotteryConfig
	logger *slog.Logger

	purchases domain.PurchaseStore
	audit     domain.AuditStore
	bus       domain.SignalBus
	notifier  Notifier
	recorder  Recorder

	now func() time.Time
}

// NewLotteryService creates a LotteryService. locks guards against concurrent
// identical purchases from the same wallet; nil means a process-local lock.
func NewLotteryService(
	chainClient ChainClient,
	wallet Wallet,
	locks domain.LockManager,
	cfg LotteryConfig,
	logger *slog.Logger,
) *LotteryService {
	if cfg.TokenDecimals == 0 {
		cfg.TokenDecimals = units.EtherDecimals
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if locks == nil {
		locks = memory.NewLockManager()
	}
	return &LotteryService{
		chain:  chainClient,
		wallet: wallet,
		locks:  locks,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "lottery_service")),
		now:    time.Now,
	}
}

// WithPurchaseStore records every successful purchase.
func (s *LotteryService) WithPurchaseStore(store domain.PurchaseStore) *LotteryService {
	s.purchases = store
	return s
}

// WithAudit appends purchase events to the audit log.
func (s *LotteryService) WithAudit(audit domain.AuditStore) *LotteryService {
	s.audit = audit
	return s
}

// WithSignalBus publishes purchases on domain.ChannelPurchase.
func (s *LotteryService) WithSignalBus(bus domain.SignalBus) *LotteryService {
	s.bus = bus
	return s
}

// WithNotifier sends a "purchase" notification per purchase.
func (s *LotteryService) WithNotifier(n Notifier) *LotteryService {
	s.notifier = n
	return s
}

// WithRecorder attaches a metrics recorder.
func (s *LotteryService) WithRecorder(r Recorder) *LotteryService {
	s.recorder = r
	return s
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func (s *LotteryService) lotteryCall(method string, args ...any) chain.Call {
	return chain.Call{Address: s.cfg.Lottery, ABI: chain.LotteryABI(), Method: method, Args: args}
}

func (s *LotteryService) tokenCall(method string, args ...any) chain.Call {
	return chain.Call{Address: s.cfg.Token, ABI: chain.ERC20ABI(), Method: method, Args: args}
}

// read runs one bounded contract read and returns its first output.
func (s *LotteryService) read(ctx context.Context, call chain.Call) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	vals, err := s.chain.ReadContract(ctx, call)
	if s.recorder != nil {
		s.recorder.ObserveCall(call.Method, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, &domain.ContractCallError{Op: domain.OpRead, Method: call.Method, Err: errors.New("empty result")}
	}
	return vals[0], nil
}

func readAs[T any](ctx context.Context, s *LotteryService, call chain.Call) (T, error) {
	var zero T
	v, err := s.read(ctx, call)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, &domain.ContractCallError{
			Op:     domain.OpRead,
			Method: call.Method,
			Err:    fmt.Errorf("unexpected result type %T", v),
		}
	}
	return out, nil
}

// GetLotteryState reads currentState().
func (s *LotteryService) GetLotteryState(ctx context.Context) (domain.LotteryState, error) {
	v, err := readAs[uint8](ctx, s, s.lotteryCall(chain.MethodCurrentState))
	return domain.LotteryState(v), err
}

// GetCurrentLotteryID reads currentLotteryId().
func (s *LotteryService) GetCurrentLotteryID(ctx context.Context) (*big.Int, error) {
	return readAs[*big.Int](ctx, s, s.lotteryCall(chain.MethodCurrentLotteryID))
}

// GetCurrentDrawTime reads currentDrawTime() in unix seconds.
func (s *LotteryService) GetCurrentDrawTime(ctx context.Context) (*big.Int, error) {
	return readAs[*big.Int](ctx, s, s.lotteryCall(chain.MethodCurrentDrawTime))
}

// GetTicketPrice reads ticketPrice() and formats it at the token scale.
func (s *LotteryService) GetTicketPrice(ctx context.Context) (domain.TicketPrice, error) {
	raw, err := readAs[*big.Int](ctx, s, s.lotteryCall(chain.MethodTicketPrice))
	if err != nil {
		return domain.TicketPrice{}, err
	}
	return domain.TicketPrice{Raw: raw, Formatted: units.FormatUnits(raw, s.cfg.TokenDecimals)}, nil
}

// GetUserTickets reads getUserTickets(addr). A nil addr means the connected
// wallet; with no wallet connected it returns an empty list and no error.
func (s *LotteryService) GetUserTickets(ctx context.Context, addr *common.Address) ([]domain.Ticket, error) {
	owner, ok, err := s.resolveOwner(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.Ticket{}, nil
	}

	call := s.lotteryCall(chain.MethodGetUserTickets, owner)
	call.From = owner
	raw, err := readAs[[][domain.TicketSize]uint8](ctx, s, call)
	if err != nil {
		return nil, err
	}
	tickets := make([]domain.Ticket, len(raw))
	for i, t := range raw {
		tickets[i] = domain.Ticket(t)
	}
	return tickets, nil
}

func (s *LotteryService) resolveOwner(addr *common.Address) (common.Address, bool, error) {
	if addr != nil {
		return *addr, true, nil
	}
	if s.wallet == nil {
		return common.Address{}, false, nil
	}
	owner, err := s.wallet.ConnectedAddress()
	if errors.Is(err, domain.ErrNoWallet) {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, err
	}
	return owner, true, nil
}

// GetWinningNumbers reads getWinningNumbers(). The value only carries
// meaning once the lottery is closed.
func (s *LotteryService) GetWinningNumbers(ctx context.Context) (domain.Ticket, error) {
	v, err := readAs[[domain.TicketSize]uint8](ctx, s, s.lotteryCall(chain.MethodGetWinningNumbers))
	return domain.Ticket(v), err
}

// GetTotalPrizes reads getTotalPrizes() and formats it at the token scale.
func (s *LotteryService) GetTotalPrizes(ctx context.Context) (string, error) {
	raw, err := readAs[*big.Int](ctx, s, s.lotteryCall(chain.MethodGetTotalPrizes))
	if err != nil {
		return "", err
	}
	return units.FormatUnits(raw, s.cfg.TokenDecimals), nil
}

// GetAllowance reads the token allowance owner has granted the lottery.
func (s *LotteryService) GetAllowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return readAs[*big.Int](ctx, s, s.tokenCall(chain.MethodAllowance, owner, s.cfg.Lottery))
}

// GetTokenBalance reads owner's payment token balance, formatted.
func (s *LotteryService) GetTokenBalance(ctx context.Context, owner common.Address) (string, error) {
	raw, err := readAs[*big.Int](ctx, s, s.tokenCall(chain.MethodBalanceOf, owner))
	if err != nil {
		return "", err
	}
	return units.FormatUnits(raw, s.cfg.TokenDecimals), nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// BuyRandomTickets buys count randomly numbered tickets. The range policy
// (1..max) belongs to the caller; only positivity is enforced here.
func (s *LotteryService) BuyRandomTickets(ctx context.Context, count int) (domain.PurchaseResult, error) {
	req := domain.PurchaseRequest{Kind: domain.PurchaseRandom, Count: count}
	if err := req.Validate(0); err != nil {
		return domain.PurchaseResult{}, err
	}
	return s.purchase(ctx, req, nil)
}

// BuyCustomTicket buys one ticket with the given digits. Input is validated
// before any network call.
func (s *LotteryService) BuyCustomTicket(ctx context.Context, numbers []int) (domain.PurchaseResult, error) {
	ticket, err := domain.NewTicket(numbers)
	if err != nil {
		return domain.PurchaseResult{}, err
	}
	req := domain.PurchaseRequest{Kind: domain.PurchaseCustom, Numbers: ticket.Ints()}
	return s.purchase(ctx, req, &ticket)
}

// purchase runs allowance check, approval, simulation, and send for req
// while holding the in-flight lock for (wallet, req). ticket is nil for
// random purchases.
//
// Once the purchase is broadcast the returned result always carries its
// hash, including when the receipt wait fails.
func (s *LotteryService) purchase(ctx context.Context, req domain.PurchaseRequest, ticket *domain.Ticket) (res domain.PurchaseResult, err error) {
	defer func() {
		if s.recorder != nil {
			s.recorder.ObservePurchase(req.Kind, err)
		}
	}()

	if s.wallet == nil {
		return domain.PurchaseResult{}, fmt.Errorf("lottery_service: buy %s: %w", req.Kind, domain.ErrNoWallet)
	}
	from, err := s.wallet.ConnectedAddress()
	if err != nil {
		return domain.PurchaseResult{}, fmt.Errorf("lottery_service: buy %s: %w", req.Kind, err)
	}

	lockKey := "purchase:" + strings.ToLower(from.Hex()) + ":" + req.Signature()
	unlock, err := s.locks.Acquire(ctx, lockKey, s.lockTTL())
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return domain.PurchaseResult{}, domain.ErrPurchaseInFlight
		}
		return domain.PurchaseResult{}, fmt.Errorf("lottery_service: acquire purchase lock: %w", err)
	}
	defer unlock()

	price, err := s.GetTicketPrice(ctx)
	if err != nil {
		return domain.PurchaseResult{}, err
	}
	cost := price.Raw
	if req.Kind == domain.PurchaseRandom {
		cost = units.MulCount(price.Raw, req.Count)
	}

	approvalHash, err := s.ensureAllowance(ctx, from, cost)
	if err != nil {
		return domain.PurchaseResult{}, err
	}

	call := s.lotteryCall(chain.MethodBuyRandomTickets, big.NewInt(int64(req.Count)))
	if ticket != nil {
		call = s.lotteryCall(chain.MethodBuyCustomTicket, [domain.TicketSize]uint8(*ticket))
	}
	call.From = from

	hash, err := s.simulateAndSend(ctx, call)
	if err != nil {
		return domain.PurchaseResult{}, err
	}

	res = domain.PurchaseResult{
		ID:              uuid.NewString(),
		Success:         true,
		TransactionHash: hash.Hex(),
		Wallet:          from.Hex(),
		Kind:            req.Kind,
		Cost:            units.FormatUnits(cost, s.cfg.TokenDecimals),
		CostRaw:         cost,
		CreatedAt:       s.now().UTC(),
	}
	if approvalHash != (common.Hash{}) {
		res.ApprovalHash = approvalHash.Hex()
	}
	if ticket != nil {
		t := *ticket
		res.TicketCount = 1
		res.Numbers = &t
	} else {
		res.TicketCount = req.Count
	}

	if s.cfg.ConfirmPurchases {
		rcpt, err := s.waitReceipt(ctx, hash)
		if err != nil {
			res.Success = false
			res.Error = err.Error()
			s.logger.WarnContext(ctx, "purchase sent but not confirmed",
				slog.String("id", res.ID),
				slog.String("wallet", res.Wallet),
				slog.String("tx", res.TransactionHash),
				slog.String("error", err.Error()),
			)
			s.record(ctx, res)
			return res, err
		}
		res.BlockNumber = rcpt.BlockNumber
		res.GasUsed = rcpt.GasUsed
	}

	s.logger.InfoContext(ctx, "tickets purchased",
		slog.String("id", res.ID),
		slog.String("wallet", res.Wallet),
		slog.String("kind", string(res.Kind)),
		slog.Int("tickets", res.TicketCount),
		slog.String("cost", res.Cost),
		slog.String("tx", res.TransactionHash),
	)
	s.record(ctx, res)
	return res, nil
}

// ensureAllowance approves exactly cost when the current allowance falls
// short, and waits for the approval to be mined. It returns the approval
// hash, or the zero hash when no approval was needed.
func (s *LotteryService) ensureAllowance(ctx context.Context, owner common.Address, cost *big.Int) (common.Hash, error) {
	allowance, err := s.GetAllowance(ctx, owner)
	if err != nil {
		return common.Hash{}, err
	}
	if allowance.Cmp(cost) >= 0 {
		s.logger.DebugContext(ctx, "allowance sufficient",
			slog.String("allowance", allowance.String()),
			slog.String("cost", cost.String()),
		)
		return common.Hash{}, nil
	}

	call := s.tokenCall(chain.MethodApprove, s.cfg.Lottery, cost)
	call.From = owner
	hash, err := s.simulateAndSend(ctx, call)
	if err != nil {
		return common.Hash{}, err
	}
	rcpt, err := s.waitReceipt(ctx, hash)
	if err != nil {
		return common.Hash{}, err
	}
	s.logger.InfoContext(ctx, "approval confirmed",
		slog.String("tx", hash.Hex()),
		slog.Uint64("block", rcpt.BlockNumber),
		slog.String("amount", cost.String()),
	)
	return hash, nil
}

func (s *LotteryService) simulateAndSend(ctx context.Context, call chain.Call) (common.Hash, error) {
	simCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	start := time.Now()
	prepared, err := s.chain.SimulateContract(simCtx, call)
	cancel()
	if s.recorder != nil {
		s.recorder.ObserveCall("simulate:"+call.Method, time.Since(start), err)
	}
	if err != nil {
		return common.Hash{}, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return s.wallet.WriteContract(sendCtx, prepared)
}

func (s *LotteryService) waitReceipt(ctx context.Context, hash common.Hash) (chain.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReceiptTimeout)
	defer cancel()
	return s.chain.WaitForReceipt(ctx, hash)
}

// lockTTL outlives the longest purchase: price, allowance, two simulate+send
// pairs, and two receipt waits.
func (s *LotteryService) lockTTL() time.Duration {
	return 6*s.cfg.CallTimeout + 2*s.cfg.ReceiptTimeout
}

// record fans a broadcast purchase out to the optional sinks, confirmed or
// not. Sink failures are logged and never fail the purchase, which is already
// on the wire.
func (s *LotteryService) record(ctx context.Context, res domain.PurchaseResult) {
	if s.purchases != nil {
		if err := s.purchases.Insert(ctx, res); err != nil {
			s.logger.WarnContext(ctx, "store purchase failed", slog.String("id", res.ID), slog.String("error", err.Error()))
		}
	}
	if s.audit != nil {
		detail := map[string]any{
			"purchase_id": res.ID,
			"wallet":      res.Wallet,
			"kind":        string(res.Kind),
			"tickets":     res.TicketCount,
			"cost":        res.Cost,
			"tx":          res.TransactionHash,
		}
		event := "ticket_purchase"
		if !res.Success {
			event = "ticket_purchase_unconfirmed"
			detail["error"] = res.Error
		}
		if err := s.audit.Log(ctx, event, detail); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	if s.bus != nil {
		if payload, err := json.Marshal(res); err == nil {
			if err := s.bus.Publish(ctx, domain.ChannelPurchase, payload); err != nil {
				s.logger.WarnContext(ctx, "publish purchase failed", slog.String("error", err.Error()))
			}
			if err := s.bus.StreamAppend(ctx, domain.StreamPurchases, payload); err != nil {
				s.logger.WarnContext(ctx, "append purchase stream failed", slog.String("error", err.Error()))
			}
		}
	}
	if s.notifier != nil {
		msg := fmt.Sprintf("%s bought %d ticket(s) for %s\ntx: %s", res.Wallet, res.TicketCount, res.Cost, res.TransactionHash)
		if res.Numbers != nil {
			msg = fmt.Sprintf("%s bought ticket %s for %s\ntx: %s", res.Wallet, res.Numbers.Key(), res.Cost, res.TransactionHash)
		}
		event, title := "purchase", "Ticket purchase"
		if !res.Success {
			event, title = "error", "Ticket purchase unconfirmed"
			msg += "\n" + res.Error
		}
		if err := s.notifier.Notify(ctx, event, title, msg); err != nil {
			s.logger.WarnContext(ctx, "purchase notification failed", slog.String("error", err.Error()))
		}
	}
}
