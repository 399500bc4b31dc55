package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/megalucky/internal/domain"
	"github.com/alanyoungcy/megalucky/internal/view"
)

// LotteryView is the view-state surface the lottery endpoints drive.
type LotteryView interface {
	State() view.State
	LoadAll(ctx context.Context) error
	BuyRandomTickets(ctx context.Context, count int) (domain.PurchaseResult, error)
	BuyCustomTicket(ctx context.Context, numbers []int) (domain.PurchaseResult, error)
	ClearError()
	ClearTransactionHash()
}

// AccountReader looks up the tickets and token balance of an arbitrary
// address.
type AccountReader interface {
	GetUserTickets(ctx context.Context, addr *common.Address) ([]domain.Ticket, error)
	GetTokenBalance(ctx context.Context, owner common.Address) (string, error)
}

// LotteryHandler serves the lottery state and purchase endpoints.
type LotteryHandler struct {
	view      LotteryView
	accounts  AccountReader
	formatter view.Formatter
	maxRandom int
	now       func() time.Time
	logger    *slog.Logger
}

// NewLotteryHandler creates a LotteryHandler. maxRandom bounds the random
// ticket count accepted per request.
func NewLotteryHandler(v LotteryView, accounts AccountReader, formatter view.Formatter, maxRandom int, logger *slog.Logger) *LotteryHandler {
	return &LotteryHandler{
		view:      v,
		accounts:  accounts,
		formatter: formatter,
		maxRandom: maxRandom,
		now:       time.Now,
		logger:    logger.With(slog.String("handler", "lottery")),
	}
}

type lotteryResponse struct {
	State   view.State   `json:"state"`
	Display view.Display `json:"display"`
}

func (h *LotteryHandler) snapshot() lotteryResponse {
	st := h.view.State()
	return lotteryResponse{State: st, Display: h.formatter.Display(st, h.now())}
}

// GetLottery returns the current view state and its derived display fields.
// GET /api/lottery
func (h *LotteryHandler) GetLottery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

// Reload refreshes every contract read. On failure the previous values are
// kept and the response carries the error alongside them.
// POST /api/lottery/reload
func (h *LotteryHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.view.LoadAll(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "handler: reload failed", slog.String("error", err.Error()))
		writeJSON(w, statusFor(err), h.snapshot())
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

type ticketsResponse struct {
	Address string              `json:"address,omitempty"`
	Balance string              `json:"balance,omitempty"`
	Tickets []view.TicketResult `json:"tickets"`
	Display string              `json:"display"`
}

// GetTickets returns the tickets and token balance of address, or the view's
// tickets for the connected wallet when no address is given. Tickets are
// scored against the current winning numbers.
// GET /api/lottery/tickets?address=0x...
func (h *LotteryHandler) GetTickets(w http.ResponseWriter, r *http.Request) {
	st := h.view.State()
	var winning *domain.Ticket
	if st.Snapshot != nil {
		winning = st.Snapshot.WinningNumbers
	}

	raw := strings.TrimSpace(r.URL.Query().Get("address"))
	if raw == "" {
		writeJSON(w, http.StatusOK, ticketsResponse{
			Tickets: view.ScoreTickets(st.UserTickets, winning),
			Display: view.FormatTickets(st.UserTickets),
		})
		return
	}
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "address must be a 0x-prefixed hex address")
		return
	}

	addr := common.HexToAddress(raw)
	tickets, err := h.accounts.GetUserTickets(r.Context(), &addr)
	if err != nil {
		writeDomainError(w, r, h.logger, "get tickets", err)
		return
	}
	balance, err := h.accounts.GetTokenBalance(r.Context(), addr)
	if err != nil {
		writeDomainError(w, r, h.logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, ticketsResponse{
		Address: addr.Hex(),
		Balance: balance,
		Tickets: view.ScoreTickets(tickets, winning),
		Display: view.FormatTickets(tickets),
	})
}

type buyRandomRequest struct {
	Count int `json:"count"`
}

type buyCustomRequest struct {
	Numbers []int `json:"numbers"`
}

// BuyRandom buys count random tickets.
// POST /api/lottery/tickets/random {"count": 5}
func (h *LotteryHandler) BuyRandom(w http.ResponseWriter, r *http.Request) {
	var body buyRandomRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeDomainError(w, r, h.logger, "buy random", err)
		return
	}
	req := domain.PurchaseRequest{Kind: domain.PurchaseRandom, Count: body.Count}
	if err := req.Validate(h.maxRandom); err != nil {
		writeDomainError(w, r, h.logger, "buy random", err)
		return
	}
	res, err := h.view.BuyRandomTickets(r.Context(), body.Count)
	h.writePurchase(w, r, "buy random", res, err)
}

// BuyCustom buys one ticket with the given digits.
// POST /api/lottery/tickets/custom {"numbers": [1,2,3,4,5,6]}
func (h *LotteryHandler) BuyCustom(w http.ResponseWriter, r *http.Request) {
	var body buyCustomRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeDomainError(w, r, h.logger, "buy custom", err)
		return
	}
	req := domain.PurchaseRequest{Kind: domain.PurchaseCustom, Numbers: body.Numbers}
	if err := req.Validate(h.maxRandom); err != nil {
		writeDomainError(w, r, h.logger, "buy custom", err)
		return
	}
	res, err := h.view.BuyCustomTicket(r.Context(), body.Numbers)
	h.writePurchase(w, r, "buy custom", res, err)
}

func (h *LotteryHandler) writePurchase(w http.ResponseWriter, r *http.Request, op string, res domain.PurchaseResult, err error) {
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
				slog.Int("status", status),
				slog.String("error", err.Error()),
			)
		}
		if res.Error == "" {
			res.Error = err.Error()
		}
		writeJSON(w, status, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ClearError resets the view's error message.
// POST /api/lottery/error/clear
func (h *LotteryHandler) ClearError(w http.ResponseWriter, r *http.Request) {
	h.view.ClearError()
	w.WriteHeader(http.StatusNoContent)
}

// ClearTransactionHash resets the last transaction hash.
// POST /api/lottery/tx/clear
func (h *LotteryHandler) ClearTransactionHash(w http.ResponseWriter, r *http.Request) {
	h.view.ClearTransactionHash()
	w.WriteHeader(http.StatusNoContent)
}
