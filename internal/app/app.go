// Package app is the composition root: it constructs and wires the store,
// clients, services, and job manager, passing handles down explicitly.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wofare/edgarwatch/internal/clients/alpha"
	"github.com/wofare/edgarwatch/internal/clients/edgar"
	"github.com/wofare/edgarwatch/internal/clients/finnhub"
	"github.com/wofare/edgarwatch/internal/clients/iex"
	"github.com/wofare/edgarwatch/internal/clients/yahoo"
	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/interfaces"
	"github.com/wofare/edgarwatch/internal/models"
	"github.com/wofare/edgarwatch/internal/ratelimit"
	"github.com/wofare/edgarwatch/internal/services/alerts"
	"github.com/wofare/edgarwatch/internal/services/diffengine"
	"github.com/wofare/edgarwatch/internal/services/ingest"
	"github.com/wofare/edgarwatch/internal/services/jobmanager"
	"github.com/wofare/edgarwatch/internal/services/quote"
	"github.com/wofare/edgarwatch/internal/services/summary"
	"github.com/wofare/edgarwatch/internal/storage"
)

// App holds all initialized services, clients, and configuration.
type App struct {
	Config       *common.Config
	Logger       *common.Logger
	Storage      interfaces.StorageManager
	EdgarClient  interfaces.EdgarClient
	QuoteService interfaces.QuoteService
	DiffEngine   *diffengine.Engine
	Workflow     *ingest.Workflow
	Fanout       *alerts.Service
	Delivery     *alerts.Delivery
	PriceRefresh *alerts.PriceRefresh
	JobManager   *jobmanager.JobManager
	StartupTime  time.Time
}

// Option overrides wiring during construction.
type Option func(*options)

type options struct {
	dispatcher interfaces.Dispatcher
}

// WithDispatcher injects the external delivery dispatcher. Without one, a
// logging stub accepts every alert.
func WithDispatcher(d interfaces.Dispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, clients, services, and the job manager.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string, opts ...Option) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("EDGARWATCH_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "edgarwatch.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/edgarwatch.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if !filepath.IsAbs(config.Storage.Path) {
		config.Storage.Path = config.ResolveDataPath(binDir)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.dispatcher == nil {
		o.dispatcher = &loggingDispatcher{logger: logger}
	}

	// One shared limiter: the EDGAR bucket plus one bucket per quote provider.
	limiter := ratelimit.New()

	edgarClient := edgar.NewClient(config.Edgar.UserAgent,
		edgar.WithBaseURL(config.Edgar.BaseURL),
		edgar.WithLogger(logger),
		edgar.WithLimiter(limiter),
		edgar.WithRateLimit(config.Edgar.RateLimit),
		edgar.WithTimeout(config.Edgar.GetTimeout()),
		edgar.WithMaxRetries(config.Edgar.MaxRetries),
	)

	providers := buildProviders(config, logger)
	quoteService := quote.NewService(providers, logger,
		quote.WithLimiter(limiter),
		quote.WithTTL(config.Quote.GetCacheTTL()),
		quote.WithProviderTimeout(config.Quote.GetProviderTimeout()),
	)

	engine := diffengine.NewEngine()

	var summarizer interfaces.Summarizer
	if config.Summarizer.APIKey != "" {
		svc, err := summary.NewService(context.Background(), config.Summarizer.APIKey,
			summary.WithModel(config.Summarizer.Model),
			summary.WithLogger(logger),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize summarizer - filings will not be summarized")
		} else {
			summarizer = svc
		}
	}

	jobMgr := jobmanager.NewJobManager(storageManager, logger, config.JobManager, config.Poller)

	workflow := ingest.NewWorkflow(edgarClient, storageManager, engine, summarizer, jobMgr, logger)
	fanout := alerts.NewService(storageManager, jobMgr, logger)
	delivery := alerts.NewDelivery(storageManager, o.dispatcher, config.Delivery.GetRateLimit(), logger)
	priceRefresh := alerts.NewPriceRefresh(storageManager, quoteService, jobMgr, logger)

	jobMgr.RegisterWorkflows(workflow, fanout, delivery, priceRefresh)
	jobMgr.AddCleanupHook(func(_ context.Context) {
		if n := quoteService.PruneCache(common.FreshnessStaleQuote); n > 0 {
			logger.Debug().Int("pruned", n).Msg("Pruned stale quote cache entries")
		}
	})

	a := &App{
		Config:       config,
		Logger:       logger,
		Storage:      storageManager,
		EdgarClient:  edgarClient,
		QuoteService: quoteService,
		DiffEngine:   engine,
		Workflow:     workflow,
		Fanout:       fanout,
		Delivery:     delivery,
		PriceRefresh: priceRefresh,
		JobManager:   jobMgr,
		StartupTime:  startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// buildProviders constructs the quote provider chain in the canonical order:
// alpha, finnhub, yahoo, iex. Disabled or key-less providers are skipped
// (yahoo needs no key).
func buildProviders(config *common.Config, logger *common.Logger) []interfaces.QuoteProvider {
	var providers []interfaces.QuoteProvider

	if p := config.Providers.Alpha; p.Enabled && p.APIKey != "" {
		providers = append(providers, alpha.NewClient(p.APIKey,
			alpha.WithBaseURL(p.BaseURL),
			alpha.WithLogger(logger),
		))
	}
	if p := config.Providers.Finnhub; p.Enabled && p.APIKey != "" {
		providers = append(providers, finnhub.NewClient(p.APIKey,
			finnhub.WithBaseURL(p.BaseURL),
			finnhub.WithLogger(logger),
		))
	}
	if p := config.Providers.Yahoo; p.Enabled {
		providers = append(providers, yahoo.NewClient(
			yahoo.WithBaseURL(p.BaseURL),
			yahoo.WithLogger(logger),
		))
	}
	if p := config.Providers.IEX; p.Enabled && p.APIKey != "" {
		providers = append(providers, iex.NewClient(p.APIKey,
			iex.WithBaseURL(p.BaseURL),
			iex.WithLogger(logger),
		))
	}

	return providers
}

// StartJobManager launches the background worker pool and poller.
func (a *App) StartJobManager() {
	if a.Config.JobManager.Enabled {
		a.JobManager.Start()
	}
}

// Close releases all resources held by the App.
// Shutdown order: stop job manager, then close storage.
func (a *App) Close() {
	if a.JobManager != nil {
		a.JobManager.Stop()
		a.JobManager = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}

// loggingDispatcher is the stand-in for the external delivery system: it
// logs the alert and reports success.
type loggingDispatcher struct {
	logger *common.Logger
}

func (d *loggingDispatcher) Dispatch(_ context.Context, alert *models.OutboxAlert) (*models.DispatchResult, error) {
	d.logger.Info().
		Str("alert", alert.ID).
		Str("user", alert.UserID).
		Str("method", alert.Method).
		Str("title", alert.Title).
		Msg("Dispatching alert (logging dispatcher)")
	return &models.DispatchResult{Success: true, ProviderMessageID: "log-" + alert.ID}, nil
}
