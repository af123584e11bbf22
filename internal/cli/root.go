// Package cli wires the processing pipeline into cobra commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcastellanos/chatrecap/internal/analyzer"
	"github.com/rcastellanos/chatrecap/internal/config"
	"github.com/rcastellanos/chatrecap/internal/logger"
	"github.com/rcastellanos/chatrecap/internal/transcriber"
	"github.com/rcastellanos/chatrecap/internal/version"
)

// Dependencies carries the shared services every command needs.
type Dependencies struct {
	Config      *config.Config
	Logger      logger.Logger
	Transcriber transcriber.Transcriber
	Analyzer    analyzer.Analyzer
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chatrecap",
		Short: "Process WhatsApp chat exports: transcribe voice notes, splice them into the transcript",
		Long: "chatrecap unpacks WhatsApp export archives, transcribes every voice note with Gemini,\n" +
			"splices the transcriptions over their placeholder mentions, and optionally produces\n" +
			"an LLM coaching analysis of the resulting conversation.",
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.AddCommand(NewRunCmd(deps))
	rootCmd.AddCommand(NewWatchCmd(deps))

	return rootCmd
}

// ensureDirectories creates every directory the pipeline writes to.
func ensureDirectories(cfg *config.Config) error {
	dirs := []string{
		cfg.Paths.Input,
		cfg.Paths.Processing,
		cfg.Paths.Output,
		cfg.Paths.Reports,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
