package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/knowton/ipbond/internal/access"
	"github.com/knowton/ipbond/internal/domain"
	"github.com/knowton/ipbond/internal/engine"
	"github.com/knowton/ipbond/internal/server"
	"github.com/knowton/ipbond/internal/server/handler"
	"github.com/knowton/ipbond/internal/server/ws"
)

// engineSet bundles the engine components that operate on one shared ledger.
type engineSet struct {
	acl          *access.Controller
	registry     *engine.Registry
	investments  *engine.InvestmentLedger
	distribution *engine.DistributionEngine
	lifecycle    *engine.Lifecycle
	redemption   *engine.RedemptionProcessor
	queries      *engine.Queries
}

// buildEngine assembles the full engine stack on top of the wired stores.
func (a *App) buildEngine(deps *Dependencies) *engineSet {
	acl := access.NewController(deps.Roles, deps.Pause, a.logger)
	return &engineSet{
		acl:          acl,
		registry:     engine.NewRegistry(deps.Ledger, deps.Risks, acl, deps.RiskEngine, deps.SignalBus, deps.Audit, nil, a.logger),
		investments:  engine.NewInvestmentLedger(deps.Ledger, acl, deps.Locks, deps.SignalBus, deps.Audit, nil, a.logger),
		distribution: engine.NewDistributionEngine(deps.Ledger, acl, deps.Locks, deps.SignalBus, deps.Audit, nil, a.logger),
		lifecycle:    engine.NewLifecycle(deps.Ledger, acl, deps.Locks, deps.SignalBus, deps.Audit, deps.Notifier, nil, a.logger),
		redemption:   engine.NewRedemptionProcessor(deps.Ledger, acl, deps.Locks, deps.SignalBus, deps.Audit, nil, a.logger),
		queries:      engine.NewQueries(deps.Ledger, deps.Risks, a.logger),
	}
}

// ServeMode runs the HTTP + WebSocket API only.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	eng := a.buildEngine(deps)
	a.startHTTPServer(ctx, g, deps, eng)
	a.startAnchorWorker(ctx, g, deps)
	return g.Wait()
}

// SweepMode runs only the maturity sweeper: bonds past their maturity
// timestamp are transitioned to matured on a fixed interval.
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweep mode")

	g, ctx := errgroup.WithContext(ctx)
	eng := a.buildEngine(deps)
	a.startMaturitySweeper(ctx, g, deps, eng)
	return g.Wait()
}

// ArchiveMode performs one archive pass: distribution events and audit
// entries older than the retention window are written to blob storage and,
// only after a successful upload, deleted from the database.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	return a.runArchivePass(ctx, deps)
}

// FullMode starts every subsystem: the API server, the maturity sweeper,
// the anchor worker, and a periodic archive pass.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	eng := a.buildEngine(deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, eng)
	}
	a.startMaturitySweeper(ctx, g, deps, eng)
	a.startAnchorWorker(ctx, g, deps)

	// Daily archive pass when blob storage is wired.
	if deps.Archiver != nil {
		g.Go(func() error {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if err := a.runArchivePass(ctx, deps); err != nil {
						a.logger.ErrorContext(ctx, "archive pass failed",
							slog.String("error", err.Error()),
						)
					}
				}
			}
		})
	}

	return g.Wait()
}

// startHTTPServer adds the API server and WebSocket hub to the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engineSet) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	health := handler.NewHealthHandler(map[string]handler.Pinger{
		"pause_switch": func(ctx context.Context) error {
			_, err := deps.Pause.Paused(ctx)
			return err
		},
	}, a.logger)

	handlers := server.Handlers{
		Health:       health,
		Bonds:        handler.NewBondHandler(eng.registry, eng.queries, a.logger),
		Investments:  handler.NewInvestmentHandler(&investmentFacade{eng}, a.logger),
		Distribution: handler.NewDistributionHandler(eng.distribution, a.logger),
		Lifecycle:    handler.NewLifecycleHandler(eng.lifecycle, a.logger),
		Redemption:   handler.NewRedemptionHandler(eng.redemption, a.logger),
		Admin:        handler.NewAdminHandler(eng.acl, deps.Audit, deps.BlobReader, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKeys:         a.cfg.Server.APIKeys,
		RateLimiter:     deps.RateLimiter,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
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

// investmentFacade joins the investment ledger and queries into the single
// surface the investment handler consumes.
type investmentFacade struct {
	eng *engineSet
}

func (f *investmentFacade) Invest(ctx context.Context, bondID string, tier domain.TrancheTier, investor string, amount int64) (string, error) {
	return f.eng.investments.Invest(ctx, bondID, tier, investor, amount)
}

func (f *investmentFacade) InvestorPositions(ctx context.Context, investor string, opts domain.ListOpts) ([]domain.Investment, error) {
	return f.eng.queries.InvestorPositions(ctx, investor, opts)
}

// sweepIdentity is the caller recorded for sweeper-driven transitions. It
// must hold the issuer role; Wire does not grant it automatically.
const sweepIdentity = "system:sweeper"

// startMaturitySweeper adds the periodic maturity sweep to the errgroup.
func (a *App) startMaturitySweeper(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engineSet) {
	interval := a.cfg.Engine.SweepInterval.Duration
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				a.sweepMatured(ctx, deps, eng)
			}
		}
	})
}

// sweepMatured transitions every active bond past its maturity timestamp.
// Individual failures are logged and skipped so one wedged bond cannot stall
// the sweep.
func (a *App) sweepMatured(ctx context.Context, deps *Dependencies, eng *engineSet) {
	candidates, err := deps.Ledger.ListMaturedCandidates(ctx, time.Now().UTC())
	if err != nil {
		a.logger.ErrorContext(ctx, "sweep: list matured candidates failed",
			slog.String("error", err.Error()),
		)
		return
	}
	for _, bond := range candidates {
		if err := eng.lifecycle.MarkMatured(ctx, sweepIdentity, bond.ID); err != nil {
			a.logger.WarnContext(ctx, "sweep: mark matured failed",
				slog.String("bond_id", bond.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.logger.InfoContext(ctx, "sweep: bond matured",
			slog.String("bond_id", bond.ID),
		)
	}
}

// anchoredEvents are the engine events worth an on-chain digest.
var anchoredEvents = map[string]bool{
	domain.EventBondIssued:    true,
	domain.EventBondMatured:   true,
	domain.EventBondDefaulted: true,
}

// startAnchorWorker subscribes to the engine event channel and anchors
// lifecycle events on chain. No-op when anchoring is not configured.
func (a *App) startAnchorWorker(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Anchor == nil {
		return
	}
	g.Go(func() error {
		ch, err := deps.SignalBus.Subscribe(ctx, domain.EventChannel)
		if err != nil {
			return fmt.Errorf("anchor worker: subscribe: %w", err)
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case payload, ok := <-ch:
				if !ok {
					return nil
				}
				a.anchorEvent(ctx, deps, payload)
			}
		}
	})
}

func (a *App) anchorEvent(ctx context.Context, deps *Dependencies, payload []byte) {
	var evt struct {
		Event  string `json:"event"`
		BondID string `json:"bond_id"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil || !anchoredEvents[evt.Event] || evt.BondID == "" {
		return
	}
	txHash, err := deps.Anchor.AnchorEvent(ctx, evt.BondID, evt.Event, payload)
	if err != nil {
		a.logger.ErrorContext(ctx, "anchor: submit failed",
			slog.String("bond_id", evt.BondID),
			slog.String("event", evt.Event),
			slog.String("error", err.Error()),
		)
		return
	}
	a.logger.InfoContext(ctx, "anchor: event anchored",
		slog.String("bond_id", evt.BondID),
		slog.String("event", evt.Event),
		slog.String("tx_hash", txHash),
	)
}

// runArchivePass writes expired distribution events and audit entries to
// blob storage, then deletes the archived rows. Deletion only happens after
// the upload succeeded.
func (a *App) runArchivePass(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archive: blob storage is not configured")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Engine.ArchiveRetentionDays)

	distCount, err := deps.Archiver.ArchiveDistributions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: distributions: %w", err)
	}
	if distCount > 0 {
		deleted, err := deps.Ledger.DeleteDistributionsBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("archive: delete distributions: %w", err)
		}
		a.logger.InfoContext(ctx, "archive: distributions archived",
			slog.Int64("archived", distCount),
			slog.Int64("deleted", deleted),
		)
	}

	auditCount, err := deps.Archiver.ArchiveAuditLog(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: audit log: %w", err)
	}
	if auditCount > 0 {
		deleted, err := deps.Audit.DeleteBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("archive: delete audit entries: %w", err)
		}
		a.logger.InfoContext(ctx, "archive: audit log archived",
			slog.Int64("archived", auditCount),
			slog.Int64("deleted", deleted),
		)
	}

	return nil
}
