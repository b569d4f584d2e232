package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/coreybb/xianyu-autodeliver/activation"
	"github.com/coreybb/xianyu-autodeliver/api"
	"github.com/coreybb/xianyu-autodeliver/config"
	"github.com/coreybb/xianyu-autodeliver/datastore"
	"github.com/coreybb/xianyu-autodeliver/delivery"
	"github.com/coreybb/xianyu-autodeliver/logger"
	"github.com/coreybb/xianyu-autodeliver/marketplace"
	"github.com/coreybb/xianyu-autodeliver/metrics"
	"github.com/coreybb/xianyu-autodeliver/planresolver"
	rh "github.com/coreybb/xianyu-autodeliver/route-handlers"
	"github.com/coreybb/xianyu-autodeliver/scheduler"
)

const (
	shutdownTimeout = 15 * time.Second
	// A send spans several page actions, each bounded by call_timeout.
	sendTimeoutFactor = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the JSON config file (default $XIANYU_CONFIG or "+config.DefaultConfigFile+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger setup failed: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := datastore.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		log.Error("Store setup failed", zap.String("driver", cfg.Store.Driver), zap.Error(err))
		return 1
	}
	defer store.Close()

	resolver, err := planresolver.New(cfg.ResolverRules()...)
	if err != nil {
		log.Error("Invalid plan rules", zap.Error(err))
		return 1
	}

	session, err := marketplace.Acquire(ctx, marketplace.BrowserConfig{
		ProfileDir:    cfg.BrowserDataDir,
		Headless:      cfg.Headless,
		NoSandbox:     cfg.Marketplace.NoSandbox,
		HomeURL:       cfg.Marketplace.HomeURL,
		OrdersURL:     cfg.Marketplace.OrdersURL,
		ActionTimeout: cfg.CallTimeout,
	}, log.Named("marketplace"))
	if err != nil {
		log.Error("Marketplace session unavailable, log in with the browser profile and restart",
			zap.String("profile_dir", cfg.BrowserDataDir), zap.Error(err))
		return 1
	}
	defer session.Release()

	client := activation.NewClient(cfg.APIBaseURL, cfg.APIKey, cfg.CallTimeout, log.Named("activation"))
	dispatcher := delivery.NewDispatcher(session, store, delivery.Config{
		SendTimeout:  sendTimeoutFactor * cfg.CallTimeout,
		SendInterval: cfg.SendInterval,
	}, log.Named("delivery"))

	collector := metrics.New()
	poller := scheduler.New(session, resolver, client, dispatcher, store, collector, scheduler.Config{
		Interval:            cfg.CheckInterval,
		CallTimeout:         cfg.CallTimeout,
		MaxDeliveryAttempts: cfg.MaxDeliveryAttempts,
	}, log.Named("scheduler"))

	log.Info("Auto delivery starting",
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.String("api_key_fingerprint", activation.KeyFingerprint(cfg.APIKey)),
		zap.String("store_driver", cfg.Store.Driver),
		zap.Duration("check_interval", cfg.CheckInterval),
		zap.Int("plan_rules", len(resolver.Rules())),
	)

	var server *http.Server
	if cfg.HTTPAddr != "" {
		router := api.SetupRoutes(rh.NewDeliveryHandler(store), collector.Handler(), poller.HandleTick, log.Named("http"))
		server = startServer(cfg.HTTPAddr, router, log)
	}

	runErr := poller.Run(ctx)

	if server != nil {
		shutdownServer(server, log)
	}

	if runErr != nil {
		log.Error("Auto delivery stopped", zap.Error(runErr))
		return 1
	}
	log.Info("Auto delivery stopped")
	return 0
}

func startServer(addr string, router http.Handler, log *zap.Logger) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Operator server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Operator server error", zap.Error(err))
		}
	}()

	return server
}

func shutdownServer(server *http.Server, log *zap.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Graceful shutdown failed", zap.Error(err))
	}
}
