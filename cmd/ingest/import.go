package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	importservice "github.com/FACorreiaa/fin-analyzer/internal/domain/import/service"
)

func importCmd(a *app) *cobra.Command {
	var (
		accountID int64
		bank      string
		noSkip    bool
		useLLM    bool
		dryRun    bool
		errorsCSV string
	)

	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import bank statement files (CSV or XLSX)",
		Long: `Import one or more statement files into an account. The bank format is
detected from the header row unless --bank forces one. Rows already present
for the account are skipped unless --no-skip-duplicates is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, files []string) error {
			if accountID <= 0 {
				return fmt.Errorf("--account must be a positive integer")
			}
			ctx := cmd.Context()

			deps, err := a.deps(ctx, dryRun)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			out := cmd.OutOrStdout()
			bar := progressbar.NewOptions(len(files),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("Importing"),
				progressbar.OptionClearOnFinish(),
			)

			opts := importservice.DefaultImportOptions()
			opts.SkipDuplicates = !noSkip
			opts.UseLLM = useLLM

			var reports []*importservice.BatchReport
			for _, path := range files {
				data, err := readFile(path)
				if err != nil {
					return err
				}
				report, err := deps.ImportService.ImportFile(ctx, importservice.ImportRequest{
					Data:      data,
					FileName:  filepath.Base(path),
					AccountID: accountID,
					Format:    bank,
					Options:   opts,
				})
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				reports = append(reports, report)
				_ = bar.Add(1)
				if report.Cancelled {
					break
				}
			}
			_ = bar.Finish()

			printReports(out, reports)
			if dryRun {
				fmt.Fprintln(out, "dry run: nothing was saved")
			}
			if errorsCSV != "" {
				return writeRowErrors(errorsCSV, reports)
			}
			return nil
		},
	}

	cmd.Flags().Int64VarP(&accountID, "account", "a", 0, "account id to import into (required)")
	cmd.Flags().StringVarP(&bank, "bank", "b", "", "force a bank format instead of detecting it")
	cmd.Flags().BoolVar(&noSkip, "no-skip-duplicates", false, "import rows even if they already exist")
	cmd.Flags().BoolVar(&useLLM, "llm", false, "classify rows no rule matched with the fallback model")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "import into an in-memory store with the default rules")
	cmd.Flags().StringVar(&errorsCSV, "errors-csv", "", "write rejected rows of all files to this CSV file")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func printReports(w io.Writer, reports []*importservice.BatchReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tFORMAT\tPARSED\tIMPORTED\tDUPLICATES\tERRORS\tBY RULE\tBY LLM\tUNCATEGORIZED\tSTATUS")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.FileName, r.DetectedFormat, r.TotalParsed, r.Imported, r.SkippedDuplicates,
			r.Errors, r.CategorizedByRule, r.CategorizedByLLM, r.Uncategorized, r.Status)
	}
	_ = tw.Flush()

	for _, r := range reports {
		for _, e := range r.RowErrors {
			fmt.Fprintf(w, "%s row %d: %s\n", r.FileName, e.Row, e.Message)
		}
	}
}

func writeRowErrors(path string, reports []*importservice.BatchReport) error {
	merged := &importservice.BatchReport{}
	for _, r := range reports {
		merged.RowErrors = append(merged.RowErrors, r.RowErrors...)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := merged.WriteRowErrorsCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
