package analyzer

import (
	"sync"

	"github.com/rcastellanos/chatrecap/internal/logger"
)

type implAnalyzer struct {
	apiKeys []string
	logger  logger.Logger
	model   string

	// Watch mode drives one shared instance from concurrent handlers, so
	// the rotation cursor needs a guard.
	mu         sync.Mutex
	currentKey int
}

// New creates an Analyzer that rotates through the supplied Gemini API keys.
func New(apiKeys []string, model string, log logger.Logger) Analyzer {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &implAnalyzer{
		apiKeys: apiKeys,
		logger:  log,
		model:   model,
	}
}
