package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Paths         PathsConfig         `yaml:"paths"`
	Gemini        GeminiConfig        `yaml:"gemini"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Processing    ProcessingConfig    `yaml:"processing"`
	Logging       LoggingConfig       `yaml:"logging"`
	Performance   PerformanceConfig   `yaml:"performance"`
}

type PathsConfig struct {
	Input      string `yaml:"input"`
	Processing string `yaml:"processing"`
	Output     string `yaml:"output"`
	Reports    string `yaml:"reports"`
}

type GeminiConfig struct {
	APIKeys         []string `yaml:"api_keys"`
	TranscribeModel string   `yaml:"transcribe_model"`
	AnalyzeModel    string   `yaml:"analyze_model"`
}

type TranscriptionConfig struct {
	Language string `yaml:"language"`
}

type ProcessingConfig struct {
	Images   bool `yaml:"images"`
	Analysis bool `yaml:"analysis"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PerformanceConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

// Load reads and validates a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Paths.Input == "" {
		return fmt.Errorf("paths.input is required")
	}
	if c.Paths.Output == "" {
		return fmt.Errorf("paths.output is required")
	}
	if len(c.Gemini.APIKeys) == 0 {
		return fmt.Errorf("gemini.api_keys is required")
	}

	if c.Paths.Processing == "" {
		c.Paths.Processing = "data/processing"
	}
	if c.Paths.Reports == "" {
		c.Paths.Reports = "data/reports"
	}
	if c.Gemini.TranscribeModel == "" {
		c.Gemini.TranscribeModel = "gemini-2.5-flash"
	}
	if c.Gemini.AnalyzeModel == "" {
		c.Gemini.AnalyzeModel = "gemini-2.5-flash"
	}
	if c.Transcription.Language == "" {
		c.Transcription.Language = "es"
	}
	if c.Performance.MaxWorkers == 0 {
		c.Performance.MaxWorkers = 3
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	return nil
}
