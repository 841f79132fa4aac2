// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/categorization"
)

// Categorizer is the job target: a categorize-all run over every
// uncategorized transaction.
type Categorizer interface {
	CategorizeAll(ctx context.Context, useLLM bool) (*categorization.RunStats, error)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron        *cron.Cron
	categorizer Categorizer
	spec        string
	useLLM      bool
	timeout     time.Duration
	logger      *slog.Logger

	// one run at a time; a tick that finds a run in progress is skipped
	running sync.Mutex
}

// NewScheduler creates a scheduler that runs a categorize-all pass on spec,
// a standard 5-field cron expression.
func NewScheduler(categorizer Categorizer, spec string, useLLM bool, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:        c,
		categorizer: categorizer,
		spec:        spec,
		useLLM:      useLLM,
		timeout:     30 * time.Minute,
		logger:      logger,
	}
}

// Start registers the job and begins the schedule. An invalid spec is
// returned as an error.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, s.categorizeAll)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.String("spec", s.spec),
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow triggers a run in the background.
func (s *Scheduler) RunNow() {
	go s.categorizeAll()
}

func (s *Scheduler) categorizeAll() {
	if !s.running.TryLock() {
		s.logger.Warn("previous categorize-all run still in progress, skipping")
		return
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.logger.Info("starting scheduled categorize-all", slog.Bool("use_llm", s.useLLM))

	stats, err := s.categorizer.CategorizeAll(ctx, s.useLLM)
	if err != nil {
		s.logger.Error("scheduled categorize-all failed", slog.Any("error", err))
		return
	}

	s.logger.Info("scheduled categorize-all completed",
		slog.Int("total", stats.Total),
		slog.Int("by_rule", stats.ByRule),
		slog.Int("by_llm", stats.ByLLM),
		slog.Int("failed", stats.Failed),
	)
}
