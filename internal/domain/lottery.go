package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// LotteryState mirrors the contract's currentState() enum.
type LotteryState uint8

const (
	StateClosed LotteryState = 0
	StateOpen   LotteryState = 1
)

func (s LotteryState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(s)) + ")"
	}
}

const (
	// TicketSize is the number of digits on a ticket.
	TicketSize = 6
	// MaxDigit is the largest value a ticket digit may take.
	MaxDigit = 9
)

// Ticket is an ordered 6-digit lottery ticket. Order matters: wins are
// counted as a left-to-right prefix match.
type Ticket [TicketSize]uint8

// NewTicket validates numbers and converts them to a Ticket.
func NewTicket(numbers []int) (Ticket, error) {
	var t Ticket
	if len(numbers) != TicketSize {
		return t, &ValidationError{Field: "numbers", Reason: "Must provide exactly 6 numbers"}
	}
	for i, n := range numbers {
		if n < 0 || n > MaxDigit {
			return t, &ValidationError{Field: "numbers", Reason: "Numbers must be between 0-9"}
		}
		t[i] = uint8(n)
	}
	return t, nil
}

// Ints returns the ticket digits as ints.
func (t Ticket) Ints() []int {
	out := make([]int, TicketSize)
	for i, d := range t {
		out[i] = int(d)
	}
	return out
}

// Key renders the digits dash-joined without padding ("1-2-3-4-5-6").
func (t Ticket) Key() string {
	parts := make([]string, TicketSize)
	for i, d := range t {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, "-")
}

// MatchCount returns the length of the longest common prefix of ticket and
// winning. Counting stops at the first mismatch.
func MatchCount(ticket, winning Ticket) int {
	n := 0
	for i := range ticket {
		if ticket[i] != winning[i] {
			break
		}
		n++
	}
	return n
}

// PrizeTier names the prize bracket for a match count.
func PrizeTier(matches int) string {
	switch {
	case matches >= TicketSize:
		return "Jackpot Winner!"
	case matches > 0:
		return fmt.Sprintf("%d Number Match", matches)
	default:
		return "No Matches"
	}
}

// TicketPrice is the per-ticket cost in the payment token's smallest unit and
// its decimal rendering.
type TicketPrice struct {
	Raw       *big.Int `json:"raw"`
	Formatted string   `json:"formatted"`
}

// LotterySnapshot aggregates the lottery-wide contract reads. It is replaced
// wholesale on every reload, never patched field by field.
type LotterySnapshot struct {
	LotteryID      *big.Int     `json:"lotteryId"`
	State          LotteryState `json:"state"`
	DrawTime       *big.Int     `json:"drawTime"`
	TicketPrice    TicketPrice  `json:"ticketPrice"`
	TotalPrizes    string       `json:"totalPrizes"`
	WinningNumbers *Ticket      `json:"winningNumbers,omitempty"`
	FetchedAt      time.Time    `json:"fetchedAt"`
}

// IsOpen reports whether tickets can currently be bought.
func (s LotterySnapshot) IsOpen() bool {
	return s.State == StateOpen
}

// Normalize drops winning numbers while the lottery is open; they only carry
// meaning after a draw.
func (s LotterySnapshot) Normalize() LotterySnapshot {
	if s.State == StateOpen {
		s.WinningNumbers = nil
	}
	return s
}

// DrawTimeAt converts DrawTime to a time.Time. ok is false when unset.
func (s LotterySnapshot) DrawTimeAt() (t time.Time, ok bool) {
	if s.DrawTime == nil || s.DrawTime.Sign() == 0 || !s.DrawTime.IsInt64() {
		return time.Time{}, false
	}
	return time.Unix(s.DrawTime.Int64(), 0), true
}

// PurchaseKind distinguishes the two purchase intents.
type PurchaseKind string

const (
	PurchaseRandom PurchaseKind = "random"
	PurchaseCustom PurchaseKind = "custom"
)

// PurchaseRequest is a validated-before-submission buy intent.
type PurchaseRequest struct {
	Kind    PurchaseKind `json:"kind"`
	Count   int          `json:"count,omitempty"`
	Numbers []int        `json:"numbers,omitempty"`
}

// Validate enforces the caller-side range policy. maxRandom bounds the random
// ticket count; values below 1 disable the upper bound.
func (r PurchaseRequest) Validate(maxRandom int) error {
	switch r.Kind {
	case PurchaseRandom:
		if r.Count < 1 {
			return &ValidationError{Field: "count", Reason: "Ticket count must be a positive integer"}
		}
		if maxRandom > 0 && r.Count > maxRandom {
			return &ValidationError{Field: "count", Reason: fmt.Sprintf("Ticket count must be between 1-%d", maxRandom)}
		}
		return nil
	case PurchaseCustom:
		_, err := NewTicket(r.Numbers)
		return err
	default:
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown purchase kind %q", r.Kind)}
	}
}

// Signature identifies the intent independently of who submits it.
func (r PurchaseRequest) Signature() string {
	if r.Kind == PurchaseCustom {
		parts := make([]string, len(r.Numbers))
		for i, n := range r.Numbers {
			parts[i] = strconv.Itoa(n)
		}
		return "custom:" + strings.Join(parts, "-")
	}
	return "random:" + strconv.Itoa(r.Count)
}

// PurchaseResult reports the outcome of a buy. Cost is the formatted total for
// random purchases and the single ticket price for custom ones. Random
// purchases also carry the total as "totalCost" on the wire.
type PurchaseResult struct {
	ID              string       `json:"id,omitempty"`
	Success         bool         `json:"success"`
	TransactionHash string       `json:"hash,omitempty"`
	ApprovalHash    string       `json:"approvalHash,omitempty"`
	Wallet          string       `json:"wallet,omitempty"`
	Kind            PurchaseKind `json:"kind,omitempty"`
	TicketCount     int          `json:"ticketCount,omitempty"`
	Numbers         *Ticket      `json:"numbers,omitempty"`
	Cost            string       `json:"cost,omitempty"`
	CostRaw         *big.Int     `json:"costRaw,omitempty"`
	BlockNumber     uint64       `json:"blockNumber,omitempty"`
	GasUsed         uint64       `json:"gasUsed,omitempty"`
	Error           string       `json:"error,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// MarshalJSON adds "totalCost" to random purchases.
func (r PurchaseResult) MarshalJSON() ([]byte, error) {
	type plain PurchaseResult
	out := struct {
		plain
		TotalCost string `json:"totalCost,omitempty"`
	}{plain: plain(r)}
	if r.Kind == PurchaseRandom {
		out.TotalCost = r.Cost
	}
	return json.Marshal(out)
}

// DrawResult is the archived outcome of one lottery round.
type DrawResult struct {
	LotteryID      string    `json:"lotteryId"`
	WinningNumbers Ticket    `json:"winningNumbers"`
	TotalPrizes    string    `json:"totalPrizes"`
	DrawTime       int64     `json:"drawTime"`
	RecordedAt     time.Time `json:"recordedAt"`
}
