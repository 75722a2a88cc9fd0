package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tapedeck/internal/transcribe"
)

type transcriptLine struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var at time.Duration
	var chunks int
	var backward bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "transcribe <id>",
		Short: "Transcribe part of a book with WhisperX",
		Long: "Fetches the book if needed, then transcribes --chunks windows of\n" +
			"transcription.chunk_seconds starting at the window that contains --at.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if chunks <= 0 {
				return fmt.Errorf("--chunks must be positive")
			}
			if at < 0 {
				return fmt.Errorf("--at must not be negative")
			}
			catalog, err := ctx.audibleCatalog(cmd.Context())
			if err != nil {
				return err
			}
			asset, err := catalog.GetItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			source, err := ctx.fetchAsset(cmd, asset)
			if err != nil {
				return err
			}

			total := time.Duration(asset.RuntimeMinutes) * time.Minute
			if total > 0 && at >= total {
				return fmt.Errorf("--at %s is past the end of %s (%s)", at, asset.ID, total)
			}
			window := transcribe.FirstChunk(at, ctx.configValue().ChunkDuration(), total)
			transcriber := ctx.transcriber()
			printer := newProgressPrinter(cmd.ErrOrStderr())
			defer printer.finish()

			var lines []transcriptLine
			for i := 0; i < chunks; i++ {
				segments, err := transcriber.Segments(cmd.Context(), transcribe.Request{
					ID:       asset.ID,
					AudioURI: source.URI,
					Window:   window,
				}, printer.handle)
				if err != nil {
					if errors.Is(err, transcribe.ErrCancelled) {
						return err
					}
					return fmt.Errorf("transcribe %s [%s]: %w", asset.ID, window, err)
				}
				for _, segment := range segments {
					lines = append(lines, transcriptLine(segment))
				}

				var ok bool
				if backward {
					window, ok = transcribe.PreviousChunk(window)
				} else {
					window, ok = transcribe.NextChunk(window, total)
				}
				if !ok {
					break
				}
			}
			printer.finish()

			if asJSON {
				return writeJSON(cmd, lines)
			}
			out := cmd.OutOrStdout()
			for _, line := range lines {
				fmt.Fprintf(out, "[%s] %s\n", formatTimestamp(line.Start), line.Text)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&at, "at", 0, "Playback position to start from (e.g. 1h12m)")
	cmd.Flags().IntVar(&chunks, "chunks", 1, "Number of windows to transcribe")
	cmd.Flags().BoolVar(&backward, "backward", false, "Walk windows toward the start of the book")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func formatTimestamp(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}
