package transcriber

import "context"

// Result carries the outcome for a single audio file. A per-file failure
// sets Err and leaves Text empty; Transcribe never fails the whole batch
// for one file.
type Result struct {
	Text     string
	Language string
	Err      error
}

// Transcriber converts one audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path, language string) Result
}
