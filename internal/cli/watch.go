package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rcastellanos/chatrecap/internal/jobs"
	"github.com/rcastellanos/chatrecap/internal/watcher"
)

func NewWatchCmd(deps *Dependencies) *cobra.Command {
	var withAnalysis bool
	var withImages bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the input directory and process archives as they arrive",
		Long: "Monitor the input directory for newly dropped .zip export archives and\n" +
			"process each one as soon as it lands. Runs until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := deps.Config

			if err := ensureDirectories(cfg); err != nil {
				return err
			}

			coord, err := jobs.NewCoordinator(jobs.CoordinatorConfig{
				ProcessingDir: cfg.Paths.Processing,
				OutputDir:     cfg.Paths.Output,
				MaxWorkers:    cfg.Performance.MaxWorkers,
				Language:      cfg.Transcription.Language,
				Images:        withImages || cfg.Processing.Images,
			}, deps.Transcriber, deps.Logger)
			if err != nil {
				return err
			}

			analyze := withAnalysis || cfg.Processing.Analysis

			handler := func(ctx context.Context, archivePath string) error {
				id, err := coord.Submit(archivePath, filepath.Base(archivePath))
				if err != nil {
					return err
				}

				res := coord.RunOne(ctx, id)
				defer coord.CleanupFinished(ctx)

				if !res.Success {
					return fmt.Errorf("process %s: %s", res.ArchiveName, res.Error)
				}

				deps.Logger.Info(ctx, "%s: %d/%d voice notes transcribed, output %s",
					res.ArchiveName, res.Counts.Transcribed, res.Counts.Found, res.OutputFile)

				if analyze {
					if err := deps.Analyzer.AnalyzeFile(ctx, res.OutputFile, cfg.Paths.Reports); err != nil {
						deps.Logger.Error(ctx, "Analysis failed for %s: %v", res.ArchiveName, err)
					}
				}
				return nil
			}

			w, err := watcher.New(cfg.Paths.Input, handler, deps.Logger, cfg.Performance.MaxWorkers)
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			defer w.Stop()

			deps.Logger.Info(ctx, "Monitoring %s, press Ctrl+C to stop", cfg.Paths.Input)

			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withAnalysis, "analyze", false, "Generate a coaching analysis report per processed archive")
	cmd.Flags().BoolVar(&withImages, "images", false, "Splice image references as well as voice notes")

	return cmd
}
