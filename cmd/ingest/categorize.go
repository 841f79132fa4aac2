package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func categorizeCmd(a *app) *cobra.Command {
	var useLLM bool

	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Categorize every uncategorized transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			deps, err := a.deps(ctx, false)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			spinner := progressbar.NewOptions(-1,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("Categorizing"),
				progressbar.OptionSpinnerType(14),
				progressbar.OptionClearOnFinish(),
			)
			done := make(chan struct{})
			go func() {
				ticker := time.NewTicker(100 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						_ = spinner.Add(1)
					}
				}
			}()

			stats, err := deps.CategorizationService.CategorizeAll(ctx, useLLM)
			close(done)
			_ = spinner.Finish()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "total %d, categorized %d (rule %d, llm %d), failed %d\n",
				stats.Total, stats.Categorized, stats.ByRule, stats.ByLLM, stats.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&useLLM, "llm", false, "use the fallback model for rows no rule matches")
	return cmd
}

func seedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Install the default categories and keyword rules into an empty database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := a.deps(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			res, err := deps.CategorizationService.SeedDefaults(cmd.Context())
			if err != nil {
				return err
			}
			if res.Categories == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "categories already exist, nothing seeded")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d categories and %d rules\n", res.Categories, res.Rules)
			return nil
		},
	}
}

func rulesCmd(a *app) *cobra.Command {
	var memory bool

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List categorization rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			deps, err := a.deps(ctx, memory)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			rules, err := deps.CategorizationService.ListRules(ctx)
			if err != nil {
				return err
			}
			categories, err := deps.CategorizationService.ListCategories(ctx)
			if err != nil {
				return err
			}
			names := make(map[int64]string, len(categories))
			for _, c := range categories {
				names[c.ID] = c.Name
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPRIORITY\tKIND\tPATTERN\tCATEGORY\tACTIVE")
			for _, r := range rules {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%t\n", r.ID, r.Priority, r.Kind(), r.PatternText(), names[r.CategoryID], r.Active)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&memory, "defaults", false, "show the built-in default rules instead of the database")
	return cmd
}
