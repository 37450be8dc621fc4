package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/theoremus-urban-solutions/transitcore/api"
	"github.com/theoremus-urban-solutions/transitcore/bundlecache"
	"github.com/theoremus-urban-solutions/transitcore/config"
	"github.com/theoremus-urban-solutions/transitcore/gtfsrt"
	"github.com/theoremus-urban-solutions/transitcore/ingest"
	"github.com/theoremus-urban-solutions/transitcore/internal"
	"github.com/theoremus-urban-solutions/transitcore/metrics"
	"github.com/theoremus-urban-solutions/transitcore/query"
	"github.com/theoremus-urban-solutions/transitcore/store"
)

func main() {
	mode := flag.String("mode", "serve", "serve|oneshot")
	configPath := flag.String("config", "", "config file (default: search config.yml, ./config/config.yml)")
	stopID := flag.String("stop", "", "oneshot: print next arrivals at this stop_id")
	horizon := flag.Int("horizon", query.DefaultHorizonMinutes, "oneshot: horizon in minutes")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := internal.InitLogging(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg, logger, *mode, *stopID, *horizon); err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, logger *slog.Logger, mode, stopID string, horizon int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer app.close()

	switch mode {
	case "serve":
		return app.serve(ctx, cfg.Server)
	case "oneshot":
		return app.oneshot(ctx, stopID, horizon)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadAppConfig()
}

type app struct {
	log       *slog.Logger
	metrics   *metrics.Collector
	store     *store.Store
	cache     *bundlecache.Cache
	loader    *ingest.StaticLoader
	poller    *ingest.RealtimePoller
	engine    *query.Engine
	staleness time.Duration
}

func newApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &app{log: logger, metrics: metrics.NewCollector(), store: store.New(), staleness: cfg.GTFSRT.Staleness()}

	// A nil *bundlecache.Cache must not reach the interface.
	var cache ingest.BundleCache
	if cfg.GTFS.CacheDir != "" {
		c, err := bundlecache.Open(ctx, cfg.GTFS.CacheDir, logger)
		if err != nil {
			return nil, err
		}
		a.cache = c
		cache = c
	}
	a.loader = ingest.NewStaticLoader(ingest.StaticConfig{
		URL:             cfg.GTFS.StaticURL,
		CacheMaxAge:     cfg.GTFS.CacheMaxAge,
		RefreshInterval: cfg.GTFS.RefreshInterval,
		RetryInterval:   cfg.GTFS.RetryInterval,
	}, gtfsrt.NewClient(cfg.GTFS.Timeout()), cache, a.store, a.metrics, logger)

	urls, err := ingest.FeedURLs(cfg.GTFSRT.FeedURL, cfg.GTFSRT.VehiclePositionsURL, cfg.GTFSRT.TripUpdatesURL, cfg.GTFSRT.ServiceAlertsURL)
	if err != nil {
		a.close()
		return nil, err
	}
	if len(urls) > 0 {
		a.poller = ingest.NewRealtimePoller(ingest.RealtimeConfig{
			URLs:     urls,
			Interval: cfg.GTFSRT.ReadInterval(),
			Timeout:  cfg.GTFSRT.Timeout(),
		}, gtfsrt.NewClient(cfg.GTFSRT.Timeout()), a.store, a.metrics, logger)
	} else {
		logger.Warn("no realtime feeds configured; serving schedule only")
	}

	a.engine = query.NewEngine(a.store, query.Options{
		Location:  loc,
		Staleness: a.staleness,
		Metrics:   a.metrics,
		AgencyID:  cfg.GTFS.AgencyID,
	})
	return a, nil
}

func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("closing bundle cache", "error", err)
		}
	}
}

// serve runs ingest and the HTTP server until ctx is done or one of them fails.
func (a *app) serve(ctx context.Context, sc config.ServerConfig) error {
	router := api.NewRouter(api.Deps{
		Engine:    a.engine,
		Store:     a.store,
		Loader:    a.loader,
		Metrics:   a.metrics,
		Staleness: a.staleness,
		Logger:    a.log,
	}, sc.CORSOrigins)
	srv := api.NewServer(sc.Port, router, a.log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.loader.Run(ctx) })
	if a.poller != nil {
		g.Go(func() error { return a.poller.Run(ctx) })
	}
	g.Go(func() error { return srv.Run(ctx) })
	return g.Wait()
}

// oneshot loads the schedule, polls realtime once and prints either the
// arrivals at stopID or the loader status.
func (a *app) oneshot(ctx context.Context, stopID string, horizon int) error {
	if err := a.loader.Refresh(ctx, false); err != nil {
		return err
	}
	if a.poller != nil {
		if _, err := a.poller.PollOnce(ctx); err != nil {
			a.log.Warn("realtime poll failed", "error", err)
		}
	}

	var out any = a.loader.Status()
	if stopID != "" {
		res, err := a.engine.NextArrivals(stopID, horizon)
		if err != nil {
			return err
		}
		out = res
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
