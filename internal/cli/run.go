package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcastellanos/chatrecap/internal/jobs"
)

func NewRunCmd(deps *Dependencies) *cobra.Command {
	var withAnalysis bool
	var withImages bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every export archive in the input directory",
		Long: "Scan the input directory for .zip export archives, process them concurrently,\n" +
			"and write the reconciled transcripts to the output directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := deps.Config

			if err := ensureDirectories(cfg); err != nil {
				return err
			}

			archives, err := listArchives(cfg.Paths.Input)
			if err != nil {
				return fmt.Errorf("scan input directory: %w", err)
			}
			if len(archives) == 0 {
				deps.Logger.Warn(ctx, "No archives found in %s", cfg.Paths.Input)
				return nil
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

			for _, archive := range archives {
				if _, err := coord.Submit(archive, filepath.Base(archive)); err != nil {
					deps.Logger.Error(ctx, "Failed to submit %s: %v", archive, err)
				}
			}

			results := coord.RunAll(ctx)

			succeeded := 0
			for _, res := range results {
				if res.Success {
					succeeded++
					deps.Logger.Info(ctx, "%s: %d/%d voice notes transcribed, output %s",
						res.ArchiveName, res.Counts.Transcribed, res.Counts.Found, res.OutputFile)
				} else {
					deps.Logger.Error(ctx, "%s: %s", res.ArchiveName, res.Error)
				}
			}
			deps.Logger.Info(ctx, "Batch finished: %d/%d archives processed", succeeded, len(results))

			coord.CleanupFinished(ctx)

			if withAnalysis || cfg.Processing.Analysis {
				if err := deps.Analyzer.AnalyzeAll(ctx, cfg.Paths.Output, cfg.Paths.Reports); err != nil {
					deps.Logger.Error(ctx, "Analysis failed: %v", err)
				}
			}

			if succeeded < len(results) {
				return fmt.Errorf("%d of %d archives failed", len(results)-succeeded, len(results))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withAnalysis, "analyze", false, "Generate coaching analysis reports after processing")
	cmd.Flags().BoolVar(&withImages, "images", false, "Splice image references as well as voice notes")

	return cmd
}

// listArchives returns every .zip in dir, sorted by name.
func listArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var archives []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if strings.ToLower(filepath.Ext(e.Name())) == ".zip" {
			archives = append(archives, filepath.Join(dir, e.Name()))
		}
	}

	sort.Strings(archives)
	return archives, nil
}
