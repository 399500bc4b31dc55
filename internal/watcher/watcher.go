// Package watcher polls the lottery contract on an interval, fans fresh
// snapshots out to the cache and signal bus, and records completed draws.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/megalucky/internal/domain"
	"github.com/alanyoungcy/megalucky/internal/view"
)

// Loader is the view surface the watcher drives. *view.View satisfies it.
type Loader interface {
	LoadAll(ctx context.Context) error
	State() view.State
	Seed(snap domain.LotterySnapshot) bool
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Recorder receives snapshot and draw metrics.
type Recorder interface {
	SetSnapshot(snap domain.LotterySnapshot)
	IncDraws()
	IncArchiveFailures()
}

// Event names passed to the Notifier.
const (
	eventDrawCompleted = "draw_completed"
	eventError         = "error"
)

// Watcher polls the contract through a Loader. Collaborators other than the
// loader are optional.
type Watcher struct {
	loader   Loader
	cache    domain.SnapshotCache
	bus      domain.SignalBus
	archive  domain.DrawArchive
	notifier Notifier
	recorder Recorder
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	prev     *domain.LotterySnapshot
	lastDraw string
	failing  bool
}

// New creates a Watcher. interval defaults to 30s.
func New(loader Loader, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{
		loader:   loader,
		interval: interval,
		logger:   logger.With(slog.String("component", "draw_watcher")),
		now:      time.Now,
	}
}

// WithCache persists every fresh snapshot and enables Warm.
func (w *Watcher) WithCache(c domain.SnapshotCache) *Watcher {
	w.cache = c
	return w
}

// WithSignalBus publishes snapshots and draws.
func (w *Watcher) WithSignalBus(b domain.SignalBus) *Watcher {
	w.bus = b
	return w
}

// WithArchive stores completed draws.
func (w *Watcher) WithArchive(a domain.DrawArchive) *Watcher {
	w.archive = a
	return w
}

func (w *Watcher) WithNotifier(n Notifier) *Watcher {
	w.notifier = n
	return w
}

func (w *Watcher) WithRecorder(r Recorder) *Watcher {
	w.recorder = r
	return w
}

// Warm seeds the loader from the snapshot cache so the API can answer before
// the first reload finishes. It reports whether a snapshot was installed.
func (w *Watcher) Warm(ctx context.Context) bool {
	if w.cache == nil {
		return false
	}
	snap, err := w.cache.GetSnapshot(ctx)
	if err != nil {
		w.logger.DebugContext(ctx, "no cached snapshot", slog.String("error", err.Error()))
		return false
	}
	if !w.loader.Seed(snap) {
		return false
	}
	w.logger.InfoContext(ctx, "view seeded from cache",
		slog.String("lottery_id", bigString(snap.LotteryID)),
		slog.Time("fetched_at", snap.FetchedAt),
	)
	return true
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "draw watcher started", slog.Duration("interval", w.interval))
	if err := w.Tick(ctx); err != nil {
		w.logger.ErrorContext(ctx, "watcher tick failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.ErrorContext(ctx, "watcher tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick runs one poll: reload, fan out the snapshot, and detect a completed
// draw against the previous poll. Run calls it on every interval.
func (w *Watcher) Tick(ctx context.Context) error {
	if err := w.loader.LoadAll(ctx); err != nil {
		if !w.failing {
			w.failing = true
			w.notify(ctx, eventError, "Lottery reload failing", err.Error())
		}
		return fmt.Errorf("watcher: reload: %w", err)
	}
	if w.failing {
		w.failing = false
		w.logger.InfoContext(ctx, "lottery reload recovered")
	}

	snap := w.loader.State().Snapshot
	if snap == nil {
		return nil
	}
	w.fanOut(ctx, *snap)

	if w.prev != nil {
		if d, ok := w.detectDraw(*w.prev, *snap); ok {
			w.recordDraw(ctx, d)
		}
	}
	w.prev = snap
	return nil
}

func (w *Watcher) fanOut(ctx context.Context, snap domain.LotterySnapshot) {
	if w.recorder != nil {
		w.recorder.SetSnapshot(snap)
	}
	if w.cache != nil {
		if err := w.cache.SetSnapshot(ctx, snap); err != nil {
			w.logger.WarnContext(ctx, "snapshot cache write failed", slog.String("error", err.Error()))
		}
	}
	if w.bus != nil {
		payload, err := json.Marshal(snap)
		if err == nil {
			err = w.bus.Publish(ctx, domain.ChannelSnapshot, payload)
		}
		if err != nil {
			w.logger.WarnContext(ctx, "snapshot publish failed", slog.String("error", err.Error()))
		}
	}
}

// detectDraw compares consecutive snapshots. A draw has completed when the
// state moves from OPEN to CLOSED within one lottery id, or when the id
// advances past a round that was not yet recorded. The winning numbers must
// be known; an id that advanced straight from OPEN carries none.
func (w *Watcher) detectDraw(prev, cur domain.LotterySnapshot) (domain.DrawResult, bool) {
	var drawn domain.LotterySnapshot
	switch {
	case prev.LotteryID == nil || cur.LotteryID == nil:
		return domain.DrawResult{}, false
	case cur.LotteryID.Cmp(prev.LotteryID) == 0 && prev.IsOpen() && !cur.IsOpen():
		drawn = cur
	case cur.LotteryID.Cmp(prev.LotteryID) > 0:
		drawn = prev
	default:
		return domain.DrawResult{}, false
	}

	id := drawn.LotteryID.String()
	if id == w.lastDraw {
		return domain.DrawResult{}, false
	}
	if drawn.WinningNumbers == nil {
		w.logger.Warn("draw completed without winning numbers", slog.String("lottery_id", id))
		return domain.DrawResult{}, false
	}

	var drawTime int64
	if drawn.DrawTime != nil && drawn.DrawTime.IsInt64() {
		drawTime = drawn.DrawTime.Int64()
	}
	return domain.DrawResult{
		LotteryID:      id,
		WinningNumbers: *drawn.WinningNumbers,
		TotalPrizes:    drawn.TotalPrizes,
		DrawTime:       drawTime,
		RecordedAt:     w.now().UTC(),
	}, true
}

func (w *Watcher) recordDraw(ctx context.Context, d domain.DrawResult) {
	w.lastDraw = d.LotteryID
	numbers := view.FormatNumbers(&d.WinningNumbers)
	w.logger.InfoContext(ctx, "draw completed",
		slog.String("lottery_id", d.LotteryID),
		slog.String("winning_numbers", numbers),
		slog.String("total_prizes", d.TotalPrizes),
	)
	if w.recorder != nil {
		w.recorder.IncDraws()
	}

	if w.archive != nil {
		path, err := w.archive.ArchiveDraw(ctx, d)
		if err != nil {
			w.logger.ErrorContext(ctx, "draw archive failed",
				slog.String("lottery_id", d.LotteryID),
				slog.String("error", err.Error()),
			)
			if w.recorder != nil {
				w.recorder.IncArchiveFailures()
			}
		} else {
			w.logger.DebugContext(ctx, "draw archived", slog.String("path", path))
		}
	}

	if w.bus != nil {
		payload, err := json.Marshal(d)
		if err == nil {
			err = w.bus.Publish(ctx, domain.ChannelDraw, payload)
		}
		if err != nil {
			w.logger.WarnContext(ctx, "draw publish failed", slog.String("error", err.Error()))
		}
	}

	w.notify(ctx, eventDrawCompleted,
		fmt.Sprintf("Lottery #%s drawn", d.LotteryID),
		fmt.Sprintf("Winning numbers: %s\nTotal prizes: %s", numbers, d.TotalPrizes),
	)
}

func (w *Watcher) notify(ctx context.Context, event, title, message string) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Notify(ctx, event, title, message); err != nil {
		w.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
