package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"forward-elements/internal/adapter/api"
	"forward-elements/internal/adapter/formpage"
	"forward-elements/internal/adapter/frame"
	"forward-elements/internal/adapter/store"
	"forward-elements/internal/domain"
	"forward-elements/internal/infra/config"
	"forward-elements/internal/infra/logger"
	"forward-elements/internal/usecase/eventbus"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`elements - embedded payment capture backend

USAGE:
    elements [FLAGS]

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: ELEMENTS_* variables override config

The binary serves two endpoints: the payments API (sessions and payments,
bearer-authenticated) and the frame host that embedded card forms connect
to over WebSocket.`)
}

func configPath() string {
	for i := 1; i < len(os.Args); i++ {
		switch {
		case os.Args[i] == "--config" && i+1 < len(os.Args):
			return os.Args[i+1]
		case strings.HasPrefix(os.Args[i], "--config="):
			return strings.TrimPrefix(os.Args[i], "--config=")
		}
	}
	return "./config.yaml"
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigLoad, err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigLoad, err)
	}

	// 2. Logger
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Event bus
	bus := eventbus.New(log)
	defer bus.Close()

	// 4. Stores
	var stores domain.Stores
	switch cfg.Store.Backend {
	case "sqlite":
		db, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		defer db.Close()
		stores = db.Stores()
		log.Info("using sqlite store", "path", cfg.Store.Path)
	default:
		stores = store.NewMemory().Stores()
		log.Info("using in-memory store")
	}

	// 5. Session janitor
	if cfg.Store.SessionTTL > 0 {
		janitor := store.NewJanitor(stores.Sessions, bus, cfg.Store.SessionTTL, log)
		if err := janitor.Start(cfg.Store.JanitorSchedule); err != nil {
			return fmt.Errorf("janitor: %w", err)
		}
		defer janitor.Stop()
	}

	// 6. Payments API server
	apiSrv := api.NewServer(api.Config{
		Addr:        cfg.Server.Addr,
		BaseURL:     cfg.Server.BaseURL,
		APIKey:      cfg.Server.APIKey,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
		RateBurst:   cfg.Server.RateBurst,
	}, stores, bus, log)
	go func() {
		if err := apiSrv.Start(ctx); err != nil {
			log.Error("api server error", "error", err)
			stop()
		}
	}()

	// 7. Frame host serving embedded card form pages. The direct-submit and
	// card-value fast paths need an in-process loopback frame, so pages
	// served over the websocket transport advertise no capabilities.
	pages := &formpage.Factory{
		Sessions: stores.Sessions,
		Methods:  stores.Methods,
		Logger:   log,
	}
	frameHost := frame.NewHost(cfg.Frame.Addr, pages, log)
	go func() {
		if err := frameHost.Start(ctx); err != nil {
			log.Error("frame host error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := frameHost.Stop(shutdownCtx); err != nil {
		log.Warn("frame host shutdown", "error", err)
	}
	if err := apiSrv.Stop(shutdownCtx); err != nil {
		log.Warn("api server shutdown", "error", err)
	}
	return nil
}
