package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tapedeck/internal/fileutil"
	"tapedeck/internal/kvstore"
	"tapedeck/internal/pipeline"
	"tapedeck/internal/services/audible"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <id>...",
		Short: "Download and decrypt books into playable M4B files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := ctx.audibleCatalog(cmd.Context())
			if err != nil {
				return err
			}
			var failed []string
			for _, id := range args {
				asset, err := catalog.GetItem(cmd.Context(), id)
				if err != nil {
					return err
				}
				source, err := ctx.fetchAsset(cmd, asset)
				if errors.Is(err, pipeline.ErrCancelled) {
					return err
				}
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", asset.ID, err)
					failed = append(failed, asset.ID)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), source.URI)
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d fetches failed", len(failed), len(args))
			}
			return nil
		},
	}
}

// fetchAsset runs the playback pipeline for asset under its file lock and
// records the outcome in the fetch journal.
func (c *commandContext) fetchAsset(cmd *cobra.Command, asset audible.Asset) (pipeline.Source, error) {
	ctx := cmd.Context()
	pipe, err := c.playbackPipeline(ctx)
	if err != nil {
		return pipeline.Source{}, err
	}
	store, err := c.openStore()
	if err != nil {
		return pipeline.Source{}, err
	}
	unlock, err := c.lockAsset(ctx, asset.ID)
	if err != nil {
		return pipeline.Source{}, err
	}
	defer unlock()

	output := pipe.OutputPath(asset)
	if fileutil.Exists(output) {
		size, _, _ := fileutil.Size(output)
		if err := store.FinishFetch(ctx, asset.ID, kvstore.FetchSkipped, output, size, nil); err != nil {
			return pipeline.Source{}, err
		}
		return pipeline.Source{URI: output}, nil
	}

	if err := store.BeginFetch(ctx, asset.ID, asset.Title); err != nil {
		return pipeline.Source{}, err
	}
	printer := newProgressPrinter(cmd.ErrOrStderr())
	source, runErr := pipe.GetPlaybackSource(ctx, asset, printer.handle)
	printer.finish()

	// the journal must record the outcome even after an interrupt
	journalCtx := context.WithoutCancel(ctx)
	switch {
	case errors.Is(runErr, pipeline.ErrCancelled):
		_ = store.FinishFetch(journalCtx, asset.ID, kvstore.FetchCancelled, "", 0, nil)
		return pipeline.Source{}, runErr
	case runErr != nil:
		if err := store.FinishFetch(journalCtx, asset.ID, kvstore.FetchFailed, "", 0, runErr); err != nil {
			return pipeline.Source{}, errors.Join(runErr, err)
		}
		return pipeline.Source{}, runErr
	}
	size, _, _ := fileutil.Size(source.URI)
	if err := store.FinishFetch(journalCtx, asset.ID, kvstore.FetchCompleted, source.URI, size, nil); err != nil {
		return pipeline.Source{}, err
	}
	return source, nil
}
