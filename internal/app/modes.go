package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/zmart/internal/domain"
	"github.com/alanyoungcy/zmart/internal/server"
	"github.com/alanyoungcy/zmart/internal/server/handler"
	"github.com/alanyoungcy/zmart/internal/server/ws"
	"github.com/alanyoungcy/zmart/internal/service"
)

// services bundles the protocol service layer built on top of Dependencies.
type services struct {
	markets   *service.MarketService
	trades    *service.TradeService
	votes     *service.VoteService
	positions *service.PositionService
	config    *service.ConfigService
}

// buildServices constructs the full service layer from wired dependencies.
func (a *App) buildServices(deps *Dependencies) *services {
	admin, backend, feeWallet := a.cfg.Authorities()
	defaults := domain.DefaultGlobalConfig(admin, backend, feeWallet)

	return &services{
		markets: service.NewMarketService(
			deps.MarketStore, deps.ConfigStore, deps.Treasury,
			deps.LockManager, deps.PriceCache,
			deps.SignalBus, deps.AuditStore, a.logger,
		),
		trades: service.NewTradeService(
			deps.MarketStore, deps.PositionStore, deps.ConfigStore,
			deps.Treasury, deps.LockManager, deps.PriceCache,
			deps.SignalBus, deps.AuditStore, a.logger,
		),
		votes: service.NewVoteService(
			deps.MarketStore, deps.VoteStore, deps.ConfigStore,
			deps.SignalBus, deps.AuditStore, a.logger,
		),
		positions: service.NewPositionService(
			deps.MarketStore, deps.PositionStore, deps.Treasury,
			deps.LockManager, deps.SignalBus, deps.AuditStore, a.logger,
		),
		config: service.NewConfigService(
			deps.ConfigStore, defaults,
			deps.SignalBus, deps.AuditStore, a.logger,
		),
	}
}

// ServerMode runs the HTTP + WebSocket API server and the event alerter.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	svcs := a.buildServices(deps)
	if err := svcs.config.EnsureDefault(ctx); err != nil {
		return fmt.Errorf("server mode: seed config: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps, svcs)
	a.startAlerter(ctx, g, deps)

	return g.Wait()
}

// ArchiveMode runs periodic cold-storage exports of the audit log and settled
// markets without serving the API.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: object storage is not wired")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startArchiveLoop(ctx, g, deps)
	return g.Wait()
}

// FullMode runs all subsystems: the API server, the archive loop, and the
// event alerter.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svcs := a.buildServices(deps)
	if err := svcs.config.EnsureDefault(ctx); err != nil {
		return fmt.Errorf("full mode: seed config: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps, svcs)
	a.startAlerter(ctx, g, deps)

	if a.cfg.Archive.Enabled {
		if deps.Archiver == nil {
			a.logger.WarnContext(ctx, "archive.enabled is set but object storage is not wired")
		} else {
			a.startArchiveLoop(ctx, g, deps)
		}
	}

	return g.Wait()
}

// startHTTPServer adds the API server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "server.enabled is false, skipping HTTP server")
		return
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("ws hub: %w", err)
		}
		return nil
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Markets:   handler.NewMarketHandler(svcs.markets, a.logger),
		Trades:    handler.NewTradeHandler(svcs.trades, a.logger),
		Votes:     handler.NewVoteHandler(svcs.votes, a.logger),
		Positions: handler.NewPositionHandler(svcs.positions, a.logger),
		Config:    handler.NewConfigHandler(svcs.config, a.logger),
	}
	if deps.EvidenceStore != nil {
		handlers.Evidence = handler.NewEvidenceHandler(deps.EvidenceStore, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimiter: deps.RateLimiter,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiveLoop adds a goroutine that exports expired audit records and
// settled markets to object storage on the configured interval.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	runOnce := func() {
		cutoff := time.Now().UTC().Add(-retention)

		audits, err := deps.Archiver.ArchiveAuditLog(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive: audit log export failed",
				slog.String("error", err.Error()),
			)
		}
		markets, err := deps.Archiver.ArchiveSettledMarkets(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive: settled markets export failed",
				slog.String("error", err.Error()),
			)
		}
		a.logger.InfoContext(ctx, "archive: cycle complete",
			slog.Int64("audit_records", audits),
			slog.Int64("markets", markets),
			slog.Time("cutoff", cutoff),
		)
	}

	g.Go(func() error {
		runOnce()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				runOnce()
			}
		}
	})
}

// startAlerter adds a goroutine that forwards protocol events from the signal
// bus to the configured notification channels. Which event types are
// forwarded is controlled by notify.events in the config.
func (a *App) startAlerter(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		ch, err := deps.SignalBus.Subscribe(ctx, domain.EventChannel)
		if err != nil {
			return fmt.Errorf("alerter: subscribe: %w", err)
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case data, ok := <-ch:
				if !ok {
					return nil
				}
				var evt domain.Event
				if err := json.Unmarshal(data, &evt); err != nil {
					a.logger.WarnContext(ctx, "alerter: decode event failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				if err := deps.Notifier.Notify(ctx, evt.Type, alertTitle(evt), alertMessage(evt)); err != nil {
					a.logger.WarnContext(ctx, "alerter: notify failed",
						slog.String("event", evt.Type),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
}

// alertTitle maps an event type to a short human-readable title.
func alertTitle(evt domain.Event) string {
	switch evt.Type {
	case domain.EventMarketCreated:
		return "Market created"
	case domain.EventMarketApproved:
		return "Market approved"
	case domain.EventMarketActivated:
		return "Market activated"
	case domain.EventMarketCancelled:
		return "Market cancelled"
	case domain.EventMarketResolved:
		return "Resolution proposed"
	case domain.EventMarketDisputed:
		return "Market disputed"
	case domain.EventMarketFinalized:
		return "Market finalized"
	case domain.EventProtocolPaused:
		return "Protocol pause toggled"
	case domain.EventConfigUpdated:
		return "Protocol config updated"
	default:
		return evt.Type
	}
}

// alertMessage renders a compact one-line summary of the event.
func alertMessage(evt domain.Event) string {
	msg := evt.Type
	if evt.MarketID != "" {
		msg += " market=" + evt.MarketID
	}
	if len(evt.Detail) > 0 {
		if detail, err := json.Marshal(evt.Detail); err == nil {
			msg += " " + string(detail)
		}
	}
	return msg
}
