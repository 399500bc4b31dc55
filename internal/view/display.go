package view

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

// Placeholders rendered for absent values.
const (
	NotSet       = "Not set"
	NotDrawnYet  = "Not drawn yet"
	NoTickets    = "No tickets"
	NotAvailable = "Not available"
)

const drawTimeLayout = "1/2/2006, 3:04:05 PM"

// Formatter renders snapshot values for display.
type Formatter struct {
	Location *time.Location
	Currency string
}

// FormatDrawTime renders a unix-seconds draw time in f.Location.
func (f Formatter) FormatDrawTime(drawTime *big.Int) string {
	t, ok := domain.LotterySnapshot{DrawTime: drawTime}.DrawTimeAt()
	if !ok {
		return NotSet
	}
	if f.Location != nil {
		t = t.In(f.Location)
	}
	return t.Format(drawTimeLayout)
}

// FormatNumbers renders winning numbers zero-padded and dash-joined.
func FormatNumbers(numbers *domain.Ticket) string {
	if numbers == nil {
		return NotDrawnYet
	}
	return padJoin(*numbers)
}

// FormatTickets renders each ticket like FormatNumbers, separated by " | ".
func FormatTickets(tickets []domain.Ticket) string {
	if len(tickets) == 0 {
		return NoTickets
	}
	parts := make([]string, len(tickets))
	for i, t := range tickets {
		parts[i] = padJoin(t)
	}
	return strings.Join(parts, " | ")
}

func padJoin(t domain.Ticket) string {
	parts := make([]string, len(t))
	for i, d := range t {
		parts[i] = fmt.Sprintf("%02d", d)
	}
	return strings.Join(parts, "-")
}

// FormatAmount appends the currency symbol to a formatted decimal amount.
func (f Formatter) FormatAmount(amount string) string {
	if amount == "" {
		return NotAvailable
	}
	if f.Currency == "" {
		return amount
	}
	return amount + " " + f.Currency
}

// Countdown is the time left until a draw.
type Countdown struct {
	Days    int  `json:"days"`
	Hours   int  `json:"hours"`
	Minutes int  `json:"minutes"`
	Seconds int  `json:"seconds"`
	Elapsed bool `json:"elapsed"`
}

// CountdownTo splits the time from now until drawTime. A past or unset draw
// time yields an elapsed zero countdown.
func CountdownTo(drawTime *big.Int, now time.Time) Countdown {
	t, ok := domain.LotterySnapshot{DrawTime: drawTime}.DrawTimeAt()
	if !ok || !t.After(now) {
		return Countdown{Elapsed: true}
	}
	secs := int(t.Sub(now) / time.Second)
	return Countdown{
		Days:    secs / 86400,
		Hours:   secs % 86400 / 3600,
		Minutes: secs % 3600 / 60,
		Seconds: secs % 60,
	}
}

func (c Countdown) String() string {
	return fmt.Sprintf("%02dd %02dh %02dm %02ds", c.Days, c.Hours, c.Minutes, c.Seconds)
}

// TicketResult scores one ticket against the winning numbers.
type TicketResult struct {
	Ticket  domain.Ticket `json:"ticket"`
	Display string        `json:"display"`
	Matches int           `json:"matches"`
	Tier    string        `json:"tier"`
}

// ScoreTickets scores tickets against winning. With no winning numbers every
// ticket scores zero and Tier is empty.
func ScoreTickets(tickets []domain.Ticket, winning *domain.Ticket) []TicketResult {
	out := make([]TicketResult, len(tickets))
	for i, t := range tickets {
		out[i] = TicketResult{Ticket: t, Display: padJoin(t)}
		if winning != nil {
			out[i].Matches = domain.MatchCount(t, *winning)
			out[i].Tier = domain.PrizeTier(out[i].Matches)
		}
	}
	return out
}

// Display bundles every derived field of a State.
type Display struct {
	IsLotteryOpen     bool           `json:"isLotteryOpen"`
	LotteryID         string         `json:"lotteryId"`
	State             string         `json:"state"`
	FormattedDrawTime string         `json:"formattedDrawTime"`
	FormattedNumbers  string         `json:"formattedNumbers"`
	FormattedTickets  string         `json:"formattedTickets"`
	FormattedPrice    string         `json:"formattedPrice"`
	FormattedPrizes   string         `json:"formattedPrizes"`
	Countdown         string         `json:"countdown"`
	Tickets           []TicketResult `json:"tickets"`
}

// Display derives the presentation fields of st at now.
func (f Formatter) Display(st State, now time.Time) Display {
	d := Display{
		LotteryID:         NotAvailable,
		State:             NotAvailable,
		FormattedDrawTime: NotSet,
		FormattedNumbers:  NotDrawnYet,
		FormattedTickets:  FormatTickets(st.UserTickets),
		FormattedPrice:    NotAvailable,
		FormattedPrizes:   NotAvailable,
		Countdown:         Countdown{Elapsed: true}.String(),
		Tickets:           ScoreTickets(st.UserTickets, nil),
	}
	snap := st.Snapshot
	if snap == nil {
		return d
	}
	d.IsLotteryOpen = snap.IsOpen()
	if snap.LotteryID != nil {
		d.LotteryID = snap.LotteryID.String()
	}
	d.State = snap.State.String()
	d.FormattedDrawTime = f.FormatDrawTime(snap.DrawTime)
	d.FormattedNumbers = FormatNumbers(snap.WinningNumbers)
	d.FormattedPrice = f.FormatAmount(snap.TicketPrice.Formatted)
	d.FormattedPrizes = f.FormatAmount(snap.TotalPrizes)
	d.Countdown = CountdownTo(snap.DrawTime, now).String()
	d.Tickets = ScoreTickets(st.UserTickets, snap.WinningNumbers)
	return d
}
