package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tokligence/labgate/internal/adapter"
	adapteranthropic "github.com/tokligence/labgate/internal/adapter/anthropic"
	adapteropenai "github.com/tokligence/labgate/internal/adapter/openai"
	"github.com/tokligence/labgate/internal/config"
	"github.com/tokligence/labgate/internal/gateway"
	"github.com/tokligence/labgate/internal/health"
	"github.com/tokligence/labgate/internal/httpserver"
	"github.com/tokligence/labgate/internal/ledger"
	"github.com/tokligence/labgate/internal/ledger/async"
	ledgerpg "github.com/tokligence/labgate/internal/ledger/postgres"
	ledgersql "github.com/tokligence/labgate/internal/ledger/sqlite"
	"github.com/tokligence/labgate/internal/logging"
	"github.com/tokligence/labgate/internal/metrics"
	"github.com/tokligence/labgate/internal/ratelimit"
	"github.com/tokligence/labgate/internal/session"
	"github.com/tokligence/labgate/internal/usage"
	"github.com/tokligence/labgate/internal/validation"
	"github.com/tokligence/labgate/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	closer, err := logging.Setup(cfg.LogFile, "[labgated] ")
	if err != nil {
		log.Fatalf("init log: %v", err)
	}
	defer closer.Close()

	log.Printf("starting labgated %s", version.Get())
	if err := run(cfg); err != nil {
		log.Printf("labgated exited: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	collector := metrics.NewCollector()

	providers := make(map[adapter.Provider]adapter.Completer, 2)
	if cfg.OpenAIAPIKey != "" {
		client, err := adapteropenai.New(adapteropenai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			Model:          cfg.OpenAIModel,
			Organization:   cfg.OpenAIOrg,
			RequestTimeout: cfg.AIRequestTimeout,
		})
		if err != nil {
			return fmt.Errorf("openai client: %w", err)
		}
		providers[adapter.ProviderOpenAI] = client
	}
	if cfg.AnthropicAPIKey != "" {
		client, err := adapteranthropic.New(adapteranthropic.Config{
			APIKey:         cfg.AnthropicAPIKey,
			BaseURL:        cfg.AnthropicBaseURL,
			Version:        cfg.AnthropicVersion,
			Model:          cfg.AnthropicModel,
			RequestTimeout: cfg.AIRequestTimeout,
		})
		if err != nil {
			return fmt.Errorf("anthropic client: %w", err)
		}
		providers[adapter.ProviderAnthropic] = client
	}
	if len(providers) == 0 {
		log.Printf("no model provider key configured; AI endpoints will answer 400 until OPENAI_API_KEY or ANTHROPIC_API_KEY is set")
	}

	store, err := openLedger(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		log.Printf("usage archive enabled: driver=%s", cfg.LedgerDriver)
	}

	monitor := usage.NewMonitor(usage.Config{
		Capacity: cfg.UsageLogCapacity,
		Logger:   logging.Component("[ai-usage] "),
		Debug:    cfg.Debug(),
		Sinks:    []usage.Sink{collector},
	})
	if store != nil {
		monitor.AddSink(usage.NewLedgerSink(store, 0))
	}

	gw := gateway.New(gateway.Config{
		Providers:       providers,
		MaxOutputTokens: cfg.AIMaxTokens,
		Temperature:     cfg.AITemperature,
		MaxAttempts:     cfg.AIMaxAttempts,
		BackoffBase:     cfg.AIBackoffBase,
		RequestTimeout:  cfg.AIRequestTimeout,
		Recorder:        monitor,
		Logger:          logging.Component("[gateway] "),
	})

	sessions := session.NewStore(session.Config{
		Timeout:     cfg.SessionTimeout,
		MaxMessages: cfg.SessionMaxMessages,
		Logger:      logging.Component("[labgated/session] "),
	})
	defer sessions.Close()

	governor := ratelimit.NewGovernor(ratelimit.Config{
		HourlyLimit: cfg.RateLimitPerHour,
		DailyLimit:  cfg.RateLimitPerDay,
		Logger:      logging.Component("[labgated/ratelimit] "),
	})
	defer governor.Close()

	collector.TrackGauge("active_sessions", "Sessions currently held in memory.", sessions.Len)
	collector.TrackGauge("tracked_clients", "Client identities with admission history.", governor.Tracked)

	var extra []validation.Pattern
	if cfg.BlockedPatternsFile != "" {
		extra, err = validation.LoadPatterns(cfg.BlockedPatternsFile)
		if err != nil {
			return fmt.Errorf("load blocked patterns: %w", err)
		}
		log.Printf("loaded %d blocked-content patterns from %s", len(extra), cfg.BlockedPatternsFile)
	}

	var pinger ledger.Pinger
	if p, ok := store.(ledger.Pinger); ok {
		pinger = p
	}
	checker := health.New(health.Config{
		Ledger:    pinger,
		Providers: gw.AvailableProviders,
	})

	httpSrv := httpserver.New(httpserver.Config{
		Gateway:          gw,
		Sessions:         sessions,
		Governor:         governor,
		RateLimitEnabled: cfg.RateLimitEnabled,
		Usage:            monitor,
		Guard:            validation.NewGuard(extra...),
		DefaultProvider:  cfg.DefaultProvider,
		Ledger:           store,
		Health:           checker,
		Metrics:          collector,
	})
	httpSrv.SetLogger(cfg.LogLevel, logging.Component("[labgated/http] "))

	srv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           httpSrv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Model calls may take the full request budget.
		WriteTimeout: cfg.AIRequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("labgate listening on %s (env=%s, providers=%v, rate_limit=%v)",
			cfg.HTTPAddress, cfg.Environment, gw.AvailableProviders(), cfg.RateLimitEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// openLedger opens the optional usage archive behind an async batch writer.
// It returns nil when no driver is configured.
func openLedger(cfg config.Config) (ledger.Store, error) {
	var (
		base ledger.Store
		err  error
	)
	switch cfg.LedgerDriver {
	case "":
		return nil, nil
	case "sqlite":
		base, err = ledgersql.New(cfg.LedgerDSN)
	case "postgres":
		base, err = ledgerpg.New(cfg.LedgerDSN, ledgerpg.Pool{MaxOpen: 10, MaxIdle: 5, MaxLifetime: time.Hour})
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.LedgerDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", cfg.LedgerDriver, err)
	}
	return async.New(base, async.Config{Logger: logging.Component("[labgated/ledger] ")}), nil
}
