package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/fin-analyzer/cmd/api"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
	"github.com/FACorreiaa/fin-analyzer/pkg/config"
)

// app carries what every subcommand needs once the root has run.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var logLevel string

	root := &cobra.Command{
		Use:           "ingest",
		Short:         "Import Israeli bank statements and categorize transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			a.cfg = cfg
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Logging.SlogLevel()}))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		importCmd(a),
		detectCmd(a),
		banksCmd(a),
		categorizeCmd(a),
		seedCmd(a),
		rulesCmd(a),
	)
	return root
}

// deps wires the services. With memory set, nothing touches Postgres and the
// default categories and rules are seeded into the in-memory store.
func (a *app) deps(ctx context.Context, memory bool) (*api.Dependencies, error) {
	if !memory {
		return api.InitDependencies(ctx, a.cfg, a.logger)
	}

	deps, err := api.InitWithStore(ctx, a.cfg, a.logger, ledger.NewMemoryStore())
	if err != nil {
		return nil, err
	}
	if _, err := deps.CategorizationService.SeedDefaults(ctx); err != nil {
		return nil, fmt.Errorf("failed to seed in-memory store: %w", err)
	}
	return deps, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
