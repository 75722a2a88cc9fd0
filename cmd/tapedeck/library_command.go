package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tapedeck/internal/services/audible"
)

type assetView struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Authors        []string `json:"authors"`
	Narrators      []string `json:"narrators,omitempty"`
	RuntimeMinutes int      `json:"runtime_minutes"`
	PublishedAt    string   `json:"published_at,omitempty"`
	Downloadable   bool     `json:"downloadable"`
	FileType       string   `json:"file_type"`
	Codec          string   `json:"codec,omitempty"`
	ImageURL       string   `json:"image_url"`
}

func newAssetView(asset audible.Asset) assetView {
	view := assetView{
		ID:             asset.ID,
		Title:          asset.Title,
		Authors:        asset.Authors,
		Narrators:      asset.Narrators,
		RuntimeMinutes: asset.RuntimeMinutes,
		Downloadable:   asset.Downloadable,
		FileType:       string(asset.Source.FileType),
		Codec:          asset.Source.CodecName,
		ImageURL:       asset.ImageURL,
	}
	if !asset.PublishedAt.IsZero() {
		view.PublishedAt = asset.PublishedAt.UTC().Format(time.DateOnly)
	}
	return view
}

func newLibraryCommand(ctx *commandContext) *cobra.Command {
	var page int
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "library",
		Short: "List books in your Audible library",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := ctx.audibleCatalog(cmd.Context())
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = ctx.configValue().Source.PageSize
			}
			assets, err := catalog.ListPage(cmd.Context(), page, limit)
			if err != nil {
				return err
			}

			if asJSON {
				views := make([]assetView, 0, len(assets))
				for _, asset := range assets {
					views = append(views, newAssetView(asset))
				}
				return writeJSON(cmd, views)
			}

			out := cmd.OutOrStdout()
			if len(assets) == 0 {
				fmt.Fprintf(out, "No books on page %d\n", page)
				return nil
			}
			rows := make([][]string, 0, len(assets))
			for _, asset := range assets {
				rows = append(rows, []string{
					asset.ID,
					asset.Title,
					strings.Join(asset.Authors, ", "),
					formatRuntime(asset.RuntimeMinutes),
					formatSourceFormat(asset),
					yesNo(asset.Downloadable),
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				{header: "ID"},
				{header: "Title", maxWidth: 40},
				{header: "Authors", maxWidth: 30},
				{header: "Length", align: alignRight},
				{header: "Format"},
				{header: "Fetchable"},
			}, rows))
			if len(assets) == limit {
				fmt.Fprintf(out, "More books may follow: tapedeck library --page %d\n", page+1)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&limit, "limit", 0, "Books per page (defaults to source.catalog_page_size)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func formatRuntime(minutes int) string {
	if minutes <= 0 {
		return "-"
	}
	return strconv.Itoa(minutes/60) + "h" + fmt.Sprintf("%02dm", minutes%60)
}

func formatSourceFormat(asset audible.Asset) string {
	if asset.Source.CodecName == "" {
		return string(asset.Source.FileType)
	}
	return asset.Source.CodecName
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
