// Package app wires the chat pipeline into its run modes: HTTP server,
// CLI and spreadsheet import
package app

import (
	"context"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/moneychat/internal/advisor"
	"github.com/gmsas95/moneychat/internal/api"
	"github.com/gmsas95/moneychat/internal/chat"
	"github.com/gmsas95/moneychat/internal/config"
	"github.com/gmsas95/moneychat/internal/cron"
	"github.com/gmsas95/moneychat/internal/currency"
	"github.com/gmsas95/moneychat/internal/extract"
	"github.com/gmsas95/moneychat/internal/importer"
	"github.com/gmsas95/moneychat/internal/lang"
	"github.com/gmsas95/moneychat/internal/llm"
	"github.com/gmsas95/moneychat/internal/metrics"
	"github.com/gmsas95/moneychat/internal/prompts"
	"github.com/gmsas95/moneychat/internal/store"
)

// languageConfidence is the minimum whatlanggo confidence trusted as a hint
const languageConfidence = 0.5

// App holds the long-lived components shared by every run mode
type App struct {
	config atomic.Pointer[config.Config]

	Store   *store.Store
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Level   zap.AtomicLevel
	Version string

	LLM      *llm.Service
	Chat     *chat.Orchestrator
	Importer *importer.Pipeline
}

// Pipeline is the request-processing graph built from its collaborators
type Pipeline struct {
	Chat     *chat.Orchestrator
	Importer *importer.Pipeline
}

// New builds the completion service and the exchange-rate client from cfg
// and wires them into the pipeline. Missing AI credentials are not an
// error here; they are reported per request.
func New(ctx context.Context, cfg *config.Config, st *store.Store, m *metrics.Metrics, logger *zap.Logger, level zap.AtomicLevel, version string) (*App, error) {
	svc, err := llm.NewService(ctx, cfg, m, logger.Named("llm"))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion service: %w", err)
	}
	if !cfg.HasCredentials() {
		logger.Warn("No AI credentials configured; chat requests will fail until a key is set",
			zap.String("provider", cfg.LLM.DefaultProvider),
		)
	}

	p := Build(cfg, st, svc, RateService(cfg, st, logger), m, logger)

	app := &App{
		Store:    st,
		Metrics:  m,
		Logger:   logger,
		Level:    level,
		Version:  version,
		LLM:      svc,
		Chat:     p.Chat,
		Importer: p.Importer,
	}
	app.config.Store(cfg)
	return app, nil
}

// Config returns the current configuration. It changes on reload.
func (app *App) Config() *config.Config {
	return app.config.Load()
}

// RateService is the exchange-rate client with the Badger rate cache in front
func RateService(cfg *config.Config, st *store.Store, logger *zap.Logger) currency.RateService {
	timeout := time.Duration(cfg.Currency.Timeout) * time.Second
	remote := currency.NewHTTPRateService(
		cfg.Currency.BaseURL,
		timeout,
		cfg.Currency.Breaker.MaxFailures,
		time.Duration(cfg.Currency.Breaker.OpenSeconds)*time.Second,
		logger.Named("fx"),
	)
	ttl := time.Duration(cfg.Currency.CacheTTLMinutes) * time.Minute
	return currency.NewCachedRateService(remote, st.KV(), ttl, logger.Named("fx"))
}

// Build wires the pipeline around a completion service and a rate service
func Build(cfg *config.Config, st *store.Store, completer llm.Completer, rates currency.RateService, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	catalog := prompts.Default()
	extractor := extract.NewExtractor(completer, catalog, logger.Named("extract"))
	normalizer := currency.NewNormalizer(rates, time.Duration(cfg.Currency.Timeout)*time.Second, m, logger.Named("fx"))

	imp := importer.NewPipeline(importer.Deps{
		Duplicates: extractor,
		LLM:        completer,
		Prompts:    catalog,
		Normalizer: normalizer,
		Ledger:     st,
		Profiles:   st,
		Metrics:    m,
		Logger:     logger.Named("import"),
		Currency:   cfg.Ledger.DefaultCurrency,
		Columns:    extractor,
	})

	orchestrator := chat.NewOrchestrator(chat.Deps{
		LLM:          completer,
		Prompts:      catalog,
		Extractor:    extractor,
		Normalizer:   normalizer,
		Importer:     imp,
		Ledger:       st,
		Profiles:     st,
		Advisor:      advisor.New(st, st, completer, catalog, 0, cfg.Ledger.DefaultCurrency, logger.Named("advisor")),
		Language:     lang.NewDetector(languageConfidence),
		Metrics:      m,
		Logger:       logger.Named("chat"),
		HistoryLimit: cfg.Ledger.HistoryLimit,
		Currency:     cfg.Ledger.DefaultCurrency,
	})

	return &Pipeline{Chat: orchestrator, Importer: imp}
}

// RunServer serves HTTP until SIGINT or SIGTERM
func (app *App) RunServer(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := app.Config()

	var providers api.ProviderReporter
	if app.LLM != nil {
		providers = app.LLM
	}
	server := api.New(cfg, app.Chat, app.Store, providers, app.Metrics, app.Logger.Named("api"))

	runner, err := app.maintenance()
	if err != nil {
		return err
	}
	if err := runner.Start(); err != nil {
		return err
	}
	defer runner.Stop()

	cfg.Watch(func(next *config.Config, err error) {
		if err != nil {
			app.Logger.Warn("Ignoring invalid config change", zap.Error(err))
			return
		}
		app.Reload(next)
		server.UpdateConfig(next)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	app.Logger.Info("Server started",
		zap.String("version", app.Version),
		zap.String("address", cfg.Server.Address),
		zap.Int("port", cfg.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)),
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	app.Logger.Info("Shutting down...")
	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}
	return nil
}

// Reload applies the settings that can change without a restart: log level
// and completion rate limits. Provider changes need a restart.
func (app *App) Reload(next *config.Config) {
	if lvl, err := zap.ParseAtomicLevel(next.Log.Level); err == nil {
		app.Level.SetLevel(lvl.Level())
	} else {
		app.Logger.Warn("Invalid log level in config", zap.String("level", next.Log.Level))
	}

	if app.LLM != nil {
		app.LLM.ApplyLimits(next.LLM.RatePerMinute, next.LLM.Burst)
	}

	app.Logger.Info("Configuration reloaded",
		zap.String("log_level", next.Log.Level),
		zap.Int("rate_per_minute", next.LLM.RatePerMinute),
	)
	app.config.Store(next)
}

func (app *App) maintenance() (*cron.Runner, error) {
	schedule := app.Config().Storage.GCSchedule
	if schedule == "" {
		schedule = "@every 10m"
	}

	runner := cron.NewRunner(app.Logger.Named("cron"))
	err := runner.Add(cron.Job{
		Name:     "badger-gc",
		Schedule: schedule,
		Timeout:  5 * time.Minute,
		Run: func(ctx context.Context) error {
			return app.Store.KV().RunGC(0.5)
		},
	})
	if err != nil {
		return nil, err
	}
	return runner, nil
}
