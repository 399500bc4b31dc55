package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/megalucky/internal/access"
	"github.com/alanyoungcy/megalucky/internal/cache/memory"
	"github.com/alanyoungcy/megalucky/internal/domain"
	"github.com/alanyoungcy/megalucky/internal/logging"
	"github.com/alanyoungcy/megalucky/internal/view"
)

type fakeView struct {
	state      view.State
	loadErr    error
	buyErr     error
	boughtN    int
	boughtNums []int
	cleared    []string
}

func (f *fakeView) State() view.State { return f.state }

func (f *fakeView) LoadAll(context.Context) error {
	if f.loadErr != nil {
		f.state.Error = f.loadErr.Error()
	}
	return f.loadErr
}

func (f *fakeView) BuyRandomTickets(_ context.Context, count int) (domain.PurchaseResult, error) {
	f.boughtN = count
	if f.buyErr != nil {
		return domain.PurchaseResult{Error: f.buyErr.Error()}, f.buyErr
	}
	return domain.PurchaseResult{Success: true, TransactionHash: "0xabc", TicketCount: count}, nil
}

func (f *fakeView) BuyCustomTicket(_ context.Context, numbers []int) (domain.PurchaseResult, error) {
	f.boughtNums = numbers
	if f.buyErr != nil {
		return domain.PurchaseResult{Error: f.buyErr.Error()}, f.buyErr
	}
	return domain.PurchaseResult{Success: true, TransactionHash: "0xdef", TicketCount: 1}, nil
}

func (f *fakeView) ClearError()           { f.cleared = append(f.cleared, "error") }
func (f *fakeView) ClearTransactionHash() { f.cleared = append(f.cleared, "tx") }

type fakeTickets struct {
	got        *common.Address
	tickets    []domain.Ticket
	err        error
	balance    string
	balanceErr error
}

func (f *fakeTickets) GetUserTickets(_ context.Context, addr *common.Address) ([]domain.Ticket, error) {
	f.got = addr
	return f.tickets, f.err
}

func (f *fakeTickets) GetTokenBalance(context.Context, common.Address) (string, error) {
	return f.balance, f.balanceErr
}

func closedState() view.State {
	win := domain.Ticket{1, 2, 3, 4, 5, 6}
	return view.State{
		Snapshot: &domain.LotterySnapshot{
			LotteryID:      big.NewInt(12),
			State:          domain.StateClosed,
			DrawTime:       big.NewInt(1_700_000_000),
			TicketPrice:    domain.TicketPrice{Raw: big.NewInt(1e18), Formatted: "1"},
			TotalPrizes:    "1500.5",
			WinningNumbers: &win,
		},
		UserTickets: []domain.Ticket{{1, 2, 3, 0, 0, 0}},
	}
}

func newLotteryHandler(v *fakeView, tr *fakeTickets) *LotteryHandler {
	h := NewLotteryHandler(v, tr, view.Formatter{Location: time.UTC, Currency: "LUCKY"}, 100, logging.Nop())
	h.now = func() time.Time { return time.Unix(1_600_000_000, 0) }
	return h
}

func do(h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestGetLotteryIncludesDisplay(t *testing.T) {
	h := newLotteryHandler(&fakeView{state: closedState()}, &fakeTickets{})
	rec := do(h.GetLottery, http.MethodGet, "/api/lottery", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body lotteryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "12", body.Display.LotteryID)
	assert.Equal(t, "CLOSED", body.Display.State)
	assert.Equal(t, "01-02-03-04-05-06", body.Display.FormattedNumbers)
	assert.Equal(t, "1500.5 LUCKY", body.Display.FormattedPrizes)
	require.Len(t, body.Display.Tickets, 1)
	assert.Equal(t, 3, body.Display.Tickets[0].Matches)
}

func TestGetLotteryEmptyState(t *testing.T) {
	h := newLotteryHandler(&fakeView{state: view.State{UserTickets: []domain.Ticket{}}}, &fakeTickets{})
	rec := do(h.GetLottery, http.MethodGet, "/api/lottery", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body lotteryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, view.NotSet, body.Display.FormattedDrawTime)
	assert.Equal(t, view.NoTickets, body.Display.FormattedTickets)
	assert.Equal(t, view.NotAvailable, body.Display.FormattedPrice)
}

func TestReloadFailureKeepsState(t *testing.T) {
	cause := &domain.ContractCallError{Op: domain.OpRead, Method: "currentState", Err: errors.New("rpc down")}
	v := &fakeView{state: closedState(), loadErr: cause}
	h := newLotteryHandler(v, &fakeTickets{})

	rec := do(h.Reload, http.MethodPost, "/api/lottery/reload", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body lotteryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.State.Error, "rpc down")
	assert.Equal(t, "12", body.Display.LotteryID, "previous snapshot is still served")
}

func TestGetTicketsForAddress(t *testing.T) {
	tr := &fakeTickets{tickets: []domain.Ticket{{1, 2, 9, 9, 9, 9}, {0, 0, 0, 0, 0, 0}}, balance: "42.5"}
	h := newLotteryHandler(&fakeView{state: closedState()}, tr)

	addr := "0x00000000000000000000000000000000000000aa"
	rec := do(h.GetTickets, http.MethodGet, "/api/lottery/tickets?address="+addr, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, tr.got)
	assert.Equal(t, common.HexToAddress(addr), *tr.got)

	var body ticketsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tickets, 2)
	assert.Equal(t, 2, body.Tickets[0].Matches)
	assert.Equal(t, "2 Number Match", body.Tickets[0].Tier)
	assert.Equal(t, "No Matches", body.Tickets[1].Tier)
	assert.Equal(t, "01-02-09-09-09-09 | 00-00-00-00-00-00", body.Display)
	assert.Equal(t, "42.5", body.Balance)
}

func TestGetTicketsBalanceFailure(t *testing.T) {
	tr := &fakeTickets{
		tickets:    []domain.Ticket{},
		balanceErr: &domain.ContractCallError{Op: domain.OpRead, Method: "balanceOf", Err: errors.New("rpc down")},
	}
	h := newLotteryHandler(&fakeView{state: closedState()}, tr)
	rec := do(h.GetTickets, http.MethodGet, "/api/lottery/tickets?address=0x00000000000000000000000000000000000000aa", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "balanceOf")
}

func TestGetTicketsDefaultsToViewState(t *testing.T) {
	tr := &fakeTickets{}
	h := newLotteryHandler(&fakeView{state: closedState()}, tr)
	rec := do(h.GetTickets, http.MethodGet, "/api/lottery/tickets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, tr.got, "no remote read without an address")
}

func TestGetTicketsRejectsBadAddress(t *testing.T) {
	h := newLotteryHandler(&fakeView{}, &fakeTickets{})
	rec := do(h.GetTickets, http.MethodGet, "/api/lottery/tickets?address=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuyRandomValidatesBeforeBuying(t *testing.T) {
	v := &fakeView{}
	h := newLotteryHandler(v, &fakeTickets{})

	for _, body := range []string{`{"count":0}`, `{"count":101}`, `{"count":"x"}`, `{"amount":1}`} {
		rec := do(h.BuyRandom, http.MethodPost, "/api/lottery/tickets/random", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Zero(t, v.boughtN)

	rec := do(h.BuyRandom, http.MethodPost, "/api/lottery/tickets/random", `{"count":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, v.boughtN)

	var res domain.PurchaseResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "0xabc", res.TransactionHash)
}

func TestBuyCustomValidation(t *testing.T) {
	v := &fakeView{}
	h := newLotteryHandler(v, &fakeTickets{})

	rec := do(h.BuyCustom, http.MethodPost, "/api/lottery/tickets/custom", `{"numbers":[1,2,3]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Must provide exactly 6 numbers")

	rec = do(h.BuyCustom, http.MethodPost, "/api/lottery/tickets/custom", `{"numbers":[1,2,3,4,5,10]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Numbers must be between 0-9")
	assert.Nil(t, v.boughtNums)

	rec = do(h.BuyCustom, http.MethodPost, "/api/lottery/tickets/custom", `{"numbers":[0,9,0,9,0,9]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{0, 9, 0, 9, 0, 9}, v.boughtNums)
}

func TestBuyErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrPurchaseInFlight, http.StatusConflict},
		{fmt.Errorf("buy: %w", domain.ErrNoWallet), http.StatusServiceUnavailable},
		{&domain.ContractCallError{Op: domain.OpSimulate, Method: "buyRandomTickets",
			Err: fmt.Errorf("%w: %w", domain.ErrTimeout, context.DeadlineExceeded)}, http.StatusGatewayTimeout},
		{&domain.ContractCallError{Op: domain.OpSimulate, Method: "buyRandomTickets",
			Err: fmt.Errorf("%w: lottery closed", domain.ErrReverted)}, http.StatusUnprocessableEntity},
		{&domain.ContractCallError{Op: domain.OpSend, Method: "approve", Err: errors.New("nonce too low")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		v := &fakeView{buyErr: tc.err}
		h := newLotteryHandler(v, &fakeTickets{})
		rec := do(h.BuyRandom, http.MethodPost, "/api/lottery/tickets/random", `{"count":1}`)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())

		var res domain.PurchaseResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
	}
}

func TestClearEndpoints(t *testing.T) {
	v := &fakeView{}
	h := newLotteryHandler(v, &fakeTickets{})
	assert.Equal(t, http.StatusNoContent, do(h.ClearError, http.MethodPost, "/", "").Code)
	assert.Equal(t, http.StatusNoContent, do(h.ClearTransactionHash, http.MethodPost, "/", "").Code)
	assert.Equal(t, []string{"error", "tx"}, v.cleared)
}

func TestPurchaseHandler(t *testing.T) {
	store := memory.NewPurchaseStore()
	wallet := "0x00000000000000000000000000000000000000Bb"
	require.NoError(t, store.Insert(context.Background(), domain.PurchaseResult{
		ID: "p1", Success: true, Wallet: common.HexToAddress(wallet).Hex(), Kind: domain.PurchaseRandom,
		TicketCount: 2, CreatedAt: time.Unix(1_700_000_000, 0),
	}))
	h := NewPurchaseHandler(store, logging.Nop())

	rec := do(h.ListPurchases, http.MethodGet, "/api/purchases?wallet="+strings.ToLower(wallet), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body listPurchasesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Purchases, 1)
	assert.Equal(t, "p1", body.Purchases[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(h.ListPurchases, http.MethodGet, "/api/purchases", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/purchases/missing", nil)
	req.SetPathValue("id", "missing")
	rec = httptest.NewRecorder()
	h.GetPurchase(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccessHandler(t *testing.T) {
	gate := access.NewGate([]string{"omega"}, memory.NewAccessStore(), logging.Nop())
	h := NewAccessHandler(gate, logging.Nop())

	rec := do(h.Redeem, http.MethodPost, "/api/access/redeem", `{"code":"OMEGA","subject":"0xabc"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h.Redeem, http.MethodPost, "/api/access/redeem", `{"code":"omega","subject":"0xdef"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(h.Redeem, http.MethodPost, "/api/access/redeem", `{"code":"nope","subject":"0xdef"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h.Redeem, http.MethodPost, "/api/access/redeem", `{"code":"","subject":"0xdef"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/access/0xabc", nil)
	req.SetPathValue("subject", "0xabc")
	rec = httptest.NewRecorder()
	h.GetAccess(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var body accessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.HasAccess)
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler(map[string]HealthCheck{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return errors.New("refused") },
	}, logging.Nop())
	rec := do(h.HealthCheck, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Dependencies["redis"])
	assert.Equal(t, "refused", body.Dependencies["postgres"])

	rec = do(NewHealthHandler(nil, logging.Nop()).HealthCheck, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDrawHandlerRejectsNonNumericID(t *testing.T) {
	h := NewDrawHandler(nil, logging.Nop())
	req := httptest.NewRequest(http.MethodGet, "/api/draws/x", nil)
	req.SetPathValue("id", "../secret")
	rec := httptest.NewRecorder()
	h.GetDraw(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
