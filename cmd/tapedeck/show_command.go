package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tapedeck/internal/fileutil"
	"tapedeck/internal/kvstore"
	"tapedeck/internal/language"
)

type showView struct {
	assetView
	Language   string `json:"language"`
	OutputPath string `json:"output_path,omitempty"`
	LastFetch  string `json:"last_fetch,omitempty"`
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show details for one library book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := ctx.audibleCatalog(cmd.Context())
			if err != nil {
				return err
			}
			asset, err := catalog.GetItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			pipe, err := ctx.playbackPipeline(cmd.Context())
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}

			view := showView{
				assetView: newAssetView(asset),
				Language:  language.DisplayName(ctx.configValue().Transcription.Language),
			}
			if output := pipe.OutputPath(asset); fileutil.Exists(output) {
				view.OutputPath = output
			}
			record, err := store.GetFetch(cmd.Context(), asset.ID)
			if err != nil {
				return err
			}
			if record != nil {
				view.LastFetch = describeFetch(*record)
			}

			if asJSON {
				return writeJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderSectionHeader(asset.Title))
			printField(out, "ID", asset.ID)
			printField(out, "Authors", strings.Join(asset.Authors, ", "))
			printField(out, "Narrators", strings.Join(asset.Narrators, ", "))
			printField(out, "Length", formatRuntime(asset.RuntimeMinutes))
			printField(out, "Published", view.PublishedAt)
			printField(out, "Format", formatSourceFormat(asset))
			printField(out, "Fetchable", yesNo(asset.Downloadable))
			printField(out, "Transcripts", view.Language)
			printField(out, "Cover", asset.ImageURL)
			printField(out, "Local file", view.OutputPath)
			printField(out, "Last fetch", view.LastFetch)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func printField(out io.Writer, label, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	fmt.Fprintf(out, "  %-12s %s\n", label+":", value)
}

func describeFetch(record kvstore.FetchRecord) string {
	when := record.UpdatedAt.Local().Format("2006-01-02 15:04")
	if record.ErrorMessage != "" {
		return fmt.Sprintf("%s at %s (%s)", record.Status, when, record.ErrorMessage)
	}
	return fmt.Sprintf("%s at %s", record.Status, when)
}
