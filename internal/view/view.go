// Package view owns the UI-facing lottery state: it sequences the contract
// reads, applies them all-or-nothing, and reloads after every purchase.
package view

import (
	"context"
	"log/slog"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

// Lottery is the read and purchase surface the view drives.
// *service.LotteryService satisfies it.
type Lottery interface {
	GetLotteryState(ctx context.Context) (domain.LotteryState, error)
	GetCurrentLotteryID(ctx context.Context) (*big.Int, error)
	GetCurrentDrawTime(ctx context.Context) (*big.Int, error)
	GetTicketPrice(ctx context.Context) (domain.TicketPrice, error)
	GetUserTickets(ctx context.Context, addr *common.Address) ([]domain.Ticket, error)
	GetWinningNumbers(ctx context.Context) (domain.Ticket, error)
	GetTotalPrizes(ctx context.Context) (string, error)
	BuyRandomTickets(ctx context.Context, count int) (domain.PurchaseResult, error)
	BuyCustomTicket(ctx context.Context, numbers []int) (domain.PurchaseResult, error)
}

// LoadRecorder observes reload outcomes.
type LoadRecorder interface {
	ObserveLoad(d time.Duration, err error)
}

// State is a copy of the view at one instant.
type State struct {
	IsLoading       bool                    `json:"isLoading"`
	Error           string                  `json:"error,omitempty"`
	Snapshot        *domain.LotterySnapshot `json:"snapshot,omitempty"`
	UserTickets     []domain.Ticket         `json:"userTickets"`
	TransactionHash string                  `json:"transactionHash,omitempty"`
	LastPurchase    *domain.PurchaseResult  `json:"lastPurchase,omitempty"`
}

// View is the single canonical lottery view-state. It is safe for
// concurrent use; reloads are serialized.
type View struct {
	lottery  Lottery
	logger   *slog.Logger
	recorder LoadRecorder
	now      func() time.Time

	loadMu sync.Mutex

	mu    sync.RWMutex
	state State
	// IsLoading holds while either count is non-zero.
	loads, buys int
}

// New creates a View over lottery.
func New(lottery Lottery, logger *slog.Logger) *View {
	return &View{
		lottery: lottery,
		logger:  logger.With(slog.String("component", "view")),
		now:     time.Now,
		state:   State{UserTickets: []domain.Ticket{}},
	}
}

// WithRecorder attaches a reload metrics recorder.
func (v *View) WithRecorder(r LoadRecorder) *View {
	v.recorder = r
	return v
}

// State returns a copy of the current state.
func (v *View) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	st := v.state
	if st.Snapshot != nil {
		snap := *st.Snapshot
		st.Snapshot = &snap
	}
	st.UserTickets = slices.Clone(st.UserTickets)
	if st.UserTickets == nil {
		st.UserTickets = []domain.Ticket{}
	}
	if st.LastPurchase != nil {
		p := *st.LastPurchase
		st.LastPurchase = &p
	}
	return st
}

// Seed installs a previously cached snapshot when the view holds none.
func (v *View) Seed(snap domain.LotterySnapshot) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.Snapshot != nil {
		return false
	}
	v.state.Snapshot = &snap
	return true
}

// LoadAll issues the seven contract reads concurrently and waits for all of
// them. Only when every read succeeds are the snapshot and tickets replaced;
// otherwise the previous values stay and Error holds the first failure.
func (v *View) LoadAll(ctx context.Context) error {
	v.loadMu.Lock()
	defer v.loadMu.Unlock()

	v.mu.Lock()
	v.loads++
	v.syncLoading()
	v.state.Error = ""
	v.mu.Unlock()

	start := time.Now()
	snap, tickets, err := v.fetch(ctx)
	if v.recorder != nil {
		v.recorder.ObserveLoad(time.Since(start), err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.loads--
	v.syncLoading()
	if err != nil {
		v.state.Error = err.Error()
		v.logger.WarnContext(ctx, "lottery reload failed", slog.String("error", err.Error()))
		return err
	}
	v.state.Snapshot = &snap
	v.state.UserTickets = tickets
	v.logger.DebugContext(ctx, "lottery reloaded",
		slog.String("lottery_id", snap.LotteryID.String()),
		slog.String("state", snap.State.String()),
		slog.Int("tickets", len(tickets)),
	)
	return nil
}

// fetch runs every read to completion. Each read writes only its own local,
// so nothing is visible to readers until the caller installs the result.
func (v *View) fetch(ctx context.Context) (domain.LotterySnapshot, []domain.Ticket, error) {
	var (
		g       errgroup.Group
		snap    domain.LotterySnapshot
		winning domain.Ticket
		tickets []domain.Ticket
	)
	g.Go(func() (err error) {
		snap.State, err = v.lottery.GetLotteryState(ctx)
		return err
	})
	g.Go(func() (err error) {
		snap.LotteryID, err = v.lottery.GetCurrentLotteryID(ctx)
		return err
	})
	g.Go(func() (err error) {
		snap.DrawTime, err = v.lottery.GetCurrentDrawTime(ctx)
		return err
	})
	g.Go(func() (err error) {
		snap.TicketPrice, err = v.lottery.GetTicketPrice(ctx)
		return err
	})
	g.Go(func() (err error) {
		tickets, err = v.lottery.GetUserTickets(ctx, nil)
		return err
	})
	g.Go(func() (err error) {
		winning, err = v.lottery.GetWinningNumbers(ctx)
		return err
	})
	g.Go(func() (err error) {
		snap.TotalPrizes, err = v.lottery.GetTotalPrizes(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.LotterySnapshot{}, nil, err
	}

	snap.WinningNumbers = &winning
	snap.FetchedAt = v.now().UTC()
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return snap.Normalize(), tickets, nil
}

// BuyRandomTickets buys count random tickets and reloads on success. On
// failure the result carries Success false and the error message, and err is
// the underlying cause.
func (v *View) BuyRandomTickets(ctx context.Context, count int) (domain.PurchaseResult, error) {
	return v.buy(ctx, func(ctx context.Context) (domain.PurchaseResult, error) {
		return v.lottery.BuyRandomTickets(ctx, count)
	})
}

// BuyCustomTicket buys one ticket with numbers and reloads on success.
func (v *View) BuyCustomTicket(ctx context.Context, numbers []int) (domain.PurchaseResult, error) {
	return v.buy(ctx, func(ctx context.Context) (domain.PurchaseResult, error) {
		return v.lottery.BuyCustomTicket(ctx, numbers)
	})
}

func (v *View) buy(ctx context.Context, fn func(context.Context) (domain.PurchaseResult, error)) (domain.PurchaseResult, error) {
	v.mu.Lock()
	v.buys++
	v.syncLoading()
	v.state.Error = ""
	v.state.TransactionHash = ""
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.buys--
		v.syncLoading()
		v.mu.Unlock()
	}()

	res, err := fn(ctx)
	if err != nil {
		res.Success = false
		res.Error = err.Error()
		v.mu.Lock()
		v.state.Error = err.Error()
		// A broadcast purchase keeps its hash so the caller can follow it
		// instead of buying again.
		if res.TransactionHash != "" {
			v.state.TransactionHash = res.TransactionHash
			v.state.LastPurchase = &res
		}
		v.mu.Unlock()
		return res, err
	}

	v.mu.Lock()
	v.state.TransactionHash = res.TransactionHash
	v.state.LastPurchase = &res
	v.mu.Unlock()

	// Purchase effects become visible only once this reload lands. A failed
	// reload leaves Error set but does not undo the purchase.
	_ = v.LoadAll(ctx)
	return res, nil
}

// syncLoading derives IsLoading. Callers hold mu.
func (v *View) syncLoading() {
	v.state.IsLoading = v.loads > 0 || v.buys > 0
}

// ClearError drops the stored error message.
func (v *View) ClearError() {
	v.mu.Lock()
	v.state.Error = ""
	v.mu.Unlock()
}

// ClearTransactionHash drops the last transaction hash.
func (v *View) ClearTransactionHash() {
	v.mu.Lock()
	v.state.TransactionHash = ""
	v.mu.Unlock()
}
