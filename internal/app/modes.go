package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/megalucky/internal/access"
	"github.com/alanyoungcy/megalucky/internal/server"
	"github.com/alanyoungcy/megalucky/internal/server/handler"
	"github.com/alanyoungcy/megalucky/internal/server/ws"
	"github.com/alanyoungcy/megalucky/internal/view"
	"github.com/alanyoungcy/megalucky/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

// ServerMode serves the HTTP and WebSocket API and keeps the view fresh with
// the draw watcher. Notifications stay off.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "server mode starting")
	return a.serve(ctx, deps, false)
}

// FullMode is ServerMode plus purchase and draw notifications. The HTTP
// server is skipped when server.enabled is false.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "full mode starting",
		slog.Bool("notifications", deps.Notifier.Enabled()),
	)
	return a.serve(ctx, deps, true)
}

// WatchMode runs only the draw watcher, with notifications.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "watch mode starting",
		slog.Duration("interval", a.cfg.Lottery.PollInterval.Duration),
	)
	v := a.newView(deps)
	w := a.newWatcher(deps, v, true)
	w.Warm(ctx)
	return w.Run(ctx)
}

func (a *App) serve(ctx context.Context, deps *Dependencies, notifications bool) error {
	if notifications && deps.Notifier.Enabled() {
		deps.Lottery.WithNotifier(deps.Notifier)
	}
	v := a.newView(deps)
	w := a.newWatcher(deps, v, notifications)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w.Warm(gctx)
		return w.Run(gctx)
	})

	if notifications && !a.cfg.Server.Enabled {
		return g.Wait()
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
		Snapshot:  func() any { return v.State() },
		Origins:   a.cfg.Server.CORSOrigins,
		Observer:  deps.Metrics,
	})
	g.Go(func() error { return hub.Run(gctx) })

	srv := a.newServer(deps, v, hub)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) newView(deps *Dependencies) *view.View {
	return view.New(deps.Lottery, a.logger).WithRecorder(deps.Metrics)
}

func (a *App) newWatcher(deps *Dependencies, v *view.View, notifications bool) *watcher.Watcher {
	w := watcher.New(v, a.cfg.Lottery.PollInterval.Duration, a.logger).
		WithCache(deps.SnapshotCache).
		WithSignalBus(deps.SignalBus).
		WithRecorder(deps.Metrics)
	if deps.DrawArchive != nil {
		w.WithArchive(deps.DrawArchive)
	}
	if notifications && deps.Notifier.Enabled() {
		w.WithNotifier(deps.Notifier)
	}
	return w
}

// newServer builds the handlers and the HTTP server around v.
func (a *App) newServer(deps *Dependencies, v *view.View, hub *ws.Hub) *server.Server {
	formatter := view.Formatter{
		Location: a.cfg.Location(),
		Currency: a.cfg.Lottery.CurrencySymbol,
	}
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Lottery:   handler.NewLotteryHandler(v, deps.Lottery, formatter, a.cfg.Lottery.MaxRandomTickets, a.logger),
		Purchases: handler.NewPurchaseHandler(deps.PurchaseStore, a.logger),
	}
	if a.cfg.Access.Enabled {
		gate := access.NewGate(a.cfg.Access.Codes, deps.AccessStore, a.logger).WithAudit(deps.AuditStore)
		handlers.Access = handler.NewAccessHandler(gate, a.logger)
	}
	if deps.DrawArchive != nil {
		handlers.Draws = handler.NewDrawHandler(deps.DrawArchive, a.logger)
	}

	return server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  time.Duration(a.cfg.Server.RateWindowSec) * time.Second,
	}, handlers, server.Deps{
		Hub:      hub,
		Limiter:  deps.RateLimiter,
		Observer: deps.Metrics,
		Metrics:  deps.Metrics.Handler(),
	}, a.logger)
}

// describe summarises the wired backends for the startup log.
func describe(deps *Dependencies) []any {
	backends := make([]string, 0, len(deps.HealthChecks))
	for name := range deps.HealthChecks {
		backends = append(backends, name)
	}
	slices.Sort(backends)
	return []any{
		slog.String("chain", fmt.Sprintf("%s (%s)", deps.Network.Name, deps.Network.ID)),
		slog.Any("backends", backends),
		slog.Bool("archive", deps.DrawArchive != nil),
		slog.Bool("wallet", deps.Wallet != nil && deps.Wallet.Connected()),
	}
}
