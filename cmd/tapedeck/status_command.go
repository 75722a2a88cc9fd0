package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tapedeck/internal/language"
	"tapedeck/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var resetStuck bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show environment checks and recent fetches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := isTerminal(out)

			if resetStuck {
				reset, err := store.ResetStuckFetches(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Marked %d interrupted fetch(es) as cancelled\n\n", reset)
			}

			fmt.Fprintln(out, renderSectionHeader("Environment"))
			fmt.Fprintln(out, renderStatusLine("Marketplace", statusInfo, cfg.Source.CountryCode+" ("+cfg.Source.Quality+")", colorize))
			fmt.Fprintln(out, renderStatusLine("Transcripts", statusInfo, language.DisplayName(cfg.Transcription.Language)+", "+cfg.Transcription.Model, colorize))
			for _, result := range preflight.RunAll(cmd.Context(), cfg, store) {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}

			records, err := store.RecentFetches(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Recent fetches"))
			if len(records) == 0 {
				fmt.Fprintln(out, "  none")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, record := range records {
				rows = append(rows, []string{
					record.AssetID,
					record.Title,
					string(record.Status),
					formatBytes(record.Bytes),
					record.UpdatedAt.Local().Format(time.DateTime),
					record.ErrorMessage,
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				{header: "ID"},
				{header: "Title", maxWidth: 32},
				{header: "Status"},
				{header: "Size", align: alignRight},
				{header: "Updated"},
				{header: "Error", maxWidth: 40},
			}, rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of recent fetches to list")
	cmd.Flags().BoolVar(&resetStuck, "reset-stuck", false, "Mark fetches left running by a killed process as cancelled")
	return cmd
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
