package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/savanahq/savana/pkg/ai"
	"github.com/savanahq/savana/pkg/api"
	"github.com/savanahq/savana/pkg/auth"
	"github.com/savanahq/savana/pkg/bus"
	"github.com/savanahq/savana/pkg/config"
	"github.com/savanahq/savana/pkg/observability"
	"github.com/savanahq/savana/pkg/realtime"
	"github.com/savanahq/savana/pkg/storage"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const revokedTokenSweepInterval = time.Hour

func main() {
	var (
		configPath  string
		bindAddr    string
		dbPath      string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to config file (default: ~/.savana/config.yaml)")
	flag.StringVar(&bindAddr, "bind", "", "listen address, overrides config")
	flag.StringVar(&dbPath, "db", "", "sqlite database path, overrides config")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("savana %s (commit %s, built %s)\n", version, commit, buildDate)
		return
	}

	if err := run(configPath, bindAddr, dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "savana: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, bindAddr, dbPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if bindAddr != "" {
		cfg.Server.Bind = bindAddr
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, warning := range cfg.ValidationWarnings() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}

	logger := observability.NewLogger("savana", logLevel(cfg.Logging.Level))

	tracing, err := observability.NewTracerProvider("savana", version)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	tokens := auth.NewTokenManager(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	hasher := auth.NewHasher(cfg.Auth.BCryptCost)

	var generator ai.Generator
	if cfg.AI.APIKey == "" {
		generator = ai.Disabled()
		logger.Warn("ai api key not set, assistant replies disabled")
	} else {
		gemini, err := ai.NewGemini(ai.GeminiConfig{
			APIKey:  cfg.AI.APIKey,
			BaseURL: cfg.AI.BaseURL,
			Model:   cfg.AI.Model,
			Timeout: cfg.AI.Timeout,
			RPS:     cfg.AI.RequestsPerSecond,
		}, logger)
		if err != nil {
			return fmt.Errorf("initializing generator: %w", err)
		}
		generator = gemini
	}

	instanceID := ulid.Make().String()

	var messageBus bus.MessageBus
	if cfg.Bus.Enabled {
		busCfg := bus.DefaultConfig()
		busCfg.URL = cfg.Bus.URL
		busCfg.Name = cfg.Bus.Name + "-" + instanceID
		natsBus, err := bus.NewNATSBus(busCfg)
		if err != nil {
			return fmt.Errorf("connecting to message bus: %w", err)
		}
		messageBus = natsBus
		logger.Info("message bus connected", slog.String("url", cfg.Bus.URL))
	} else {
		messageBus = bus.NewMemoryBus()
	}
	defer messageBus.Close()

	gate := realtime.NewGate(tokens, realtime.ResolverFunc(func(ctx context.Context, projectID string) (*storage.Project, error) {
		return store.GetProject(ctx, projectID)
	}), logger)

	registry := realtime.NewRegistry()
	router, err := realtime.NewRouter(registry, generator, logger, realtime.WithBus(messageBus, instanceID))
	if err != nil {
		return fmt.Errorf("initializing message router: %w", err)
	}
	defer router.Close()

	server := api.NewServer(cfg, logger, store, tokens, hasher, gate, router, generator)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("server listening",
			slog.String("bind", cfg.Server.Bind),
			slog.String("version", version),
			slog.String("instance", instanceID))
		return server.ListenAndServe()
	})

	group.Go(func() error {
		ticker := time.NewTicker(revokedTokenSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				tokens.CleanupRevokedTokens()
			}
		}
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return server.Shutdown(context.Background())
	})

	return group.Wait()
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
