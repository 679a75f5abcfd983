package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"eld-planner/internal/bus"
	"eld-planner/internal/db"
	"eld-planner/internal/hos"
	"eld-planner/internal/metrics"
	"eld-planner/internal/worker"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer plan, trip and recap requests over NATS",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, lggr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = lggr.Sync() }()

	if cfg.DatabaseURL == "" {
		return errors.New("PGDATABASE or DATABASE_URL must be set")
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sqlDB, err := db.OpenWithRetry(ctx, cfg.DatabaseURL, cfg.ConnectAttempts, lggr.Named("db"))
	if err != nil {
		return err
	}
	store := db.NewStore(sqlDB, cfg.Location)
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	planner, err := hos.NewPlanner(cfg.Rules(), cfg.Location)
	if err != nil {
		return err
	}

	var connected atomic.Pointer[bus.Conn]
	health := func(ctx context.Context) error {
		if conn := connected.Load(); conn == nil || !conn.Connected() {
			return errors.New("nats not connected")
		}
		return store.Ping(ctx)
	}

	// Metrics setup
	var mcol *metrics.Collector
	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.Workers, cfg.RecapRefreshInterval, cfg.Rules())
		srv := mcol.Serve(cfg.MetricsAddr, health, lggr.Named("metrics"))
		g.Go(func() error {
			<-gctx.Done()
			// Shutdown with timeout
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	conn, err := bus.Connect(ctx, cfg.NATSURL, bus.Options{
		Attempts:    cfg.ConnectAttempts,
		LogSubjects: cfg.LogNATSSubjects,
		Metrics:     wrapPublisherMetrics(mcol),
		Logger:      lggr,
	})
	if err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	defer conn.Close()
	connected.Store(conn)

	mgr := worker.NewManager(worker.Options{
		Planner:         planner,
		Store:           store,
		Bus:             conn,
		Subjects:        bus.Subjects{Prefix: cfg.SubjectPrefix},
		QueueGroup:      cfg.QueueGroup,
		Workers:         cfg.Workers,
		RefreshInterval: cfg.RecapRefreshInterval,
		Metrics:         mcol,
		Logger:          lggr,
	})
	if err := mgr.Start(gctx); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	mgr.StartRefresher(gctx)
	lggr.Infow("eldplanner serving",
		"cycle", string(cfg.Cycle), "tz", cfg.Location.String(),
		"prefix", cfg.SubjectPrefix, "workers", cfg.Workers)

	// Block until context cancelled, then drain in-flight work
	g.Go(func() error {
		<-gctx.Done()
		mgr.Stop()
		return nil
	})
	err = g.Wait()
	lggr.Infof("shutdown complete")
	return err
}

// wrapPublisherMetrics adapts our Collector to the bus.Metrics interface.
func wrapPublisherMetrics(c *metrics.Collector) bus.Metrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
