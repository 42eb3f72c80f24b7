// Package internal contains core application functionality
package internal

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"accountpulse/internal/analytics"
	"accountpulse/internal/config"
	"accountpulse/internal/contacts"
	"accountpulse/internal/database"
	"accountpulse/internal/jobs"
	"accountpulse/internal/metrics"
	"accountpulse/internal/pkg/geoip"
	"accountpulse/internal/pkg/user_agent"
	"accountpulse/internal/sequences"
)

// Application wraps cartridge.Application with accountpulse-specific components
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager // DB manager with migration methods
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Config    *config.Config
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)
	geoip.InitLogger(logger)
	user_agent.SetResultTTL(time.Duration(cfg.UserAgentCacheMinutes) * time.Minute)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.New()
	scheduler := NewScheduler(cfg, dbManager, logger, m)

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		ServerConfig:      NewServerConfig(),
		RouteMountFunc:    NewRouteMounter(cfg, m),
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Metrics:     m,
		Logger:      logger,
		Config:      cfg,
	}, nil
}

// NewScheduler builds the background jobs: yesterday's aggregation, the
// engagement rescore and the due-touch scan.
func NewScheduler(cfg *config.Config, dbManager cartridge.DBManager, logger *slog.Logger, m *metrics.Metrics) *jobs.Scheduler {
	aggregator := analytics.NewAggregator(dbManager, logger, analytics.WithWorkers(cfg.GetAggregationWorkers()))
	scorer := contacts.NewScorer(dbManager, logger, nil)
	engine := sequences.NewEngine(dbManager, logger)

	return jobs.NewScheduler(logger, m,
		jobs.Schedule{
			Job:      jobs.NewAggregationJob(aggregator, m, logger),
			Interval: time.Duration(cfg.AggregationIntervalSeconds) * time.Second,
		},
		jobs.Schedule{
			Job:      jobs.NewRescoreJob(scorer, m, logger),
			Interval: time.Duration(cfg.ScoringIntervalSeconds) * time.Second,
		},
		jobs.Schedule{
			Job:      jobs.NewTouchScanJob(engine, m, logger),
			Interval: time.Duration(cfg.TouchScanIntervalSeconds) * time.Second,
		},
	)
}
