package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func detectCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "detect FILE",
		Short: "Report which bank format a file would be parsed as",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := a.deps(ctx, true)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			data, err := readFile(args[0])
			if err != nil {
				return err
			}
			det, err := deps.ImportService.DetectFormat(ctx, data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(det)
			}
			fmt.Fprintf(out, "format:   %s (%s v%d)\n", det.Format, det.Bank, det.Version)
			fmt.Fprintf(out, "score:    %.2f\n", det.Score)
			fmt.Fprintf(out, "encoding: %s\n", det.Encoding)
			fmt.Fprintf(out, "rows:     %d\n", det.Rows)
			fmt.Fprintf(out, "headers:  %s\n", strings.Join(det.Headers, " | "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the detection as JSON")
	return cmd
}

func banksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "banks",
		Short: "List the supported bank formats in detection order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := a.deps(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FORMAT\tBANK\tVERSION\tAMOUNT")
			for _, b := range deps.ImportService.SupportedBanks() {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", b.Name, b.Bank, b.Version, b.AmountRule)
			}
			return tw.Flush()
		},
	}
}
