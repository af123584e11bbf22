package analyzer

import "context"

// Analyzer turns finalized chat transcripts into LLM-generated coaching
// reports, written as markdown and docx.
type Analyzer interface {
	AnalyzeAll(ctx context.Context, transcriptsDir, reportsDir string) error
	AnalyzeFile(ctx context.Context, transcriptPath, reportsDir string) error
}
