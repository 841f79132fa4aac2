// Package api wires the services, handlers and router of the fin-analyzer
// HTTP server. The ingest CLI reuses the same wiring.
package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/categorization"
	categorizationhandler "github.com/FACorreiaa/fin-analyzer/internal/domain/categorization/handler"
	importhandler "github.com/FACorreiaa/fin-analyzer/internal/domain/import/handler"
	importservice "github.com/FACorreiaa/fin-analyzer/internal/domain/import/service"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
	"github.com/FACorreiaa/fin-analyzer/pkg/config"
	"github.com/FACorreiaa/fin-analyzer/pkg/cron"
	"github.com/FACorreiaa/fin-analyzer/pkg/db"
	"github.com/FACorreiaa/fin-analyzer/pkg/metrics"
	"github.com/FACorreiaa/fin-analyzer/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config   *config.Config
	Pool     *pgxpool.Pool
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// Storage
	Store       ledger.Store
	FileStorage storage.Storage

	// Services
	RuleCache             *categorization.RuleCache
	Classifier            categorization.Classifier
	CategorizationService *categorization.Service
	ImportService         *importservice.Service
	Scheduler             *cron.Scheduler

	// Handlers
	ImportHandler         *importhandler.ImportHandler
	CategorizationHandler *categorizationhandler.Handler
}

// InitDependencies connects to Postgres, migrates the schema and wires every
// service on top of it.
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	if err := deps.init(ctx); err != nil {
		deps.Cleanup()
		return nil, err
	}
	return deps, nil
}

// InitWithStore wires the services over an existing store, such as the
// in-memory one used for dry runs and tests.
func InitWithStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, store ledger.Store) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
		Store:  store,
	}
	if err := deps.init(ctx); err != nil {
		return nil, err
	}
	return deps, nil
}

func (d *Dependencies) init(ctx context.Context) error {
	d.initMetrics()

	if err := d.initServices(ctx); err != nil {
		return fmt.Errorf("failed to init services: %w", err)
	}
	if err := d.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	d.Logger.Info("all dependencies initialized successfully")
	return nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase(ctx context.Context) error {
	pool, err := db.Connect(ctx, d.Config.Database)
	if err != nil {
		return err
	}
	d.Pool = pool

	if err := db.Migrate(ctx, pool, d.Logger); err != nil {
		pool.Close()
		return err
	}

	d.Store = ledger.NewPostgresStore(pool)
	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initMetrics() {
	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if d.Config.Observability.MetricsEnabled {
		d.Metrics = metrics.New(d.Registry)
	}
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices(ctx context.Context) error {
	d.RuleCache = categorization.NewRuleCache(d.Store, d.Metrics, d.Logger)
	d.CategorizationService = categorization.NewService(d.Store, d.RuleCache, d.Logger).
		WithMetrics(d.Metrics)

	classifier, err := newClassifier(ctx, d.Config.Fallback)
	if err != nil {
		return fmt.Errorf("failed to init fallback classifier: %w", err)
	}
	if classifier != nil {
		d.Classifier = categorization.NewLimitedClassifier(classifier, d.Config.Fallback.RequestsPerMinute, d.Metrics)
		d.CategorizationService.WithClassifier(d.Classifier, d.Config.Fallback.Workers)
		d.Logger.Info("fallback classifier enabled",
			slog.String("provider", classifier.Name()),
			slog.Int("workers", d.CategorizationService.Workers()),
		)
	} else {
		d.Logger.Info("fallback classifier disabled, no API key configured",
			slog.String("provider", d.Config.Fallback.Provider))
	}

	if err := d.CategorizationService.Rebuild(ctx); err != nil {
		return fmt.Errorf("failed to build rule cache: %w", err)
	}

	d.ImportService = importservice.NewService(d.Store, nil, newCategorizationAdapter(d.CategorizationService), d.Logger).
		WithMetrics(d.Metrics).
		WithTimeout(d.Config.Import.Timeout)

	fileStorage, err := storage.New(&storage.Config{LocalPath: d.Config.Import.UploadDir})
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	if d.Config.Scheduler.Enabled {
		d.Scheduler = cron.NewScheduler(d.CategorizationService, d.Config.Scheduler.Spec, d.Config.Scheduler.UseLLM, d.Logger)
	}

	d.Logger.Info("services initialized")
	return nil
}

// newClassifier builds the configured provider, or nil when it has no key.
func newClassifier(ctx context.Context, cfg config.FallbackConfig) (categorization.Classifier, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	switch cfg.Provider {
	case "gemini":
		return categorization.NewGeminiClassifier(ctx, categorization.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		})
	default:
		return categorization.NewAnthropicClassifier(categorization.AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.AnthropicModel,
			Timeout: cfg.Timeout,
		})
	}
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.FileStorage, d.Config.Import.MaxUploadSize, d.Logger)
	d.CategorizationHandler = categorizationhandler.NewHandler(d.CategorizationService, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
	d.Logger.Info("cleanup completed")
}
