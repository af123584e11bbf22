package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rcastellanos/chatrecap/internal/analyzer"
	"github.com/rcastellanos/chatrecap/internal/cli"
	"github.com/rcastellanos/chatrecap/internal/config"
	"github.com/rcastellanos/chatrecap/internal/logger"
	"github.com/rcastellanos/chatrecap/internal/transcriber"
	"github.com/rcastellanos/chatrecap/pkg/executor"
)

func main() {
	configPath := os.Getenv("CHATRECAP_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)

	exec := executor.New()
	deps := &cli.Dependencies{
		Config:      cfg,
		Logger:      log,
		Transcriber: transcriber.New(cfg.Gemini.APIKeys, cfg.Gemini.TranscribeModel, exec, log),
		Analyzer:    analyzer.New(cfg.Gemini.APIKeys, cfg.Gemini.AnalyzeModel, log),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(deps).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
