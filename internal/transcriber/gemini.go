// Package transcriber sends WhatsApp voice notes to the Gemini API and
// returns per-file transcription results.
package transcriber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/rcastellanos/chatrecap/internal/logger"
	"github.com/rcastellanos/chatrecap/pkg/executor"
)

const transcribePrompt = `Transcribe this WhatsApp voice message verbatim.
Respond with only the spoken words, no commentary, no timestamps.`

// mimeByExt maps audio containers Gemini accepts directly. Anything else
// goes through the ffmpeg transcode fallback first.
var mimeByExt = map[string]string{
	".opus": "audio/ogg",
	".ogg":  "audio/ogg",
	".mp3":  "audio/mp3",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".aac":  "audio/aac",
}

type implTranscriber struct {
	apiKeys  []string
	model    string
	executor executor.Executor
	logger   logger.Logger

	// One instance is shared by every worker in the pool, so the rotation
	// cursor needs a guard.
	mu         sync.Mutex
	currentKey int
}

// New creates a Gemini-backed Transcriber that rotates through the supplied
// API keys on quota errors.
func New(apiKeys []string, model string, exec executor.Executor, log logger.Logger) Transcriber {
	return &implTranscriber{
		apiKeys:  apiKeys,
		model:    model,
		executor: exec,
		logger:   log,
	}
}

// Transcribe reads the audio file, transcoding it to a supported container
// if needed, and asks Gemini for the spoken text. All failures come back
// inside the Result so a batch caller can keep going.
func (t *implTranscriber) Transcribe(ctx context.Context, path, language string) Result {
	audioPath := path
	mimeType, ok := mimeForExt(filepath.Ext(path))
	if !ok {
		converted, err := t.transcode(ctx, path)
		if err != nil {
			return Result{Language: language, Err: fmt.Errorf("transcode %s: %w", filepath.Base(path), err)}
		}
		defer t.cleanupTempFile(ctx, converted)
		audioPath = converted
		mimeType = "audio/wav"
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return Result{Language: language, Err: fmt.Errorf("read audio: %w", err)}
	}

	text, err := t.callGemini(ctx, data, mimeType, language)
	if err != nil {
		return Result{Language: language, Err: err}
	}

	return Result{Text: strings.TrimSpace(text), Language: language}
}

// callGemini sends the audio to Gemini and returns the transcription.
// Rotates API keys on 429 / quota errors.
func (t *implTranscriber) callGemini(ctx context.Context, data []byte, mimeType, language string) (string, error) {
	prompt := transcribePrompt
	if language != "" {
		prompt = fmt.Sprintf("%s\nThe audio is spoken in %q.", transcribePrompt, language)
	}

	attempts := len(t.apiKeys)
	var lastErr error

	for range attempts {
		key, keyNum := t.currentAPIKey()

		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			lastErr = fmt.Errorf("create client: %w", err)
			t.rotateKey()
			continue
		}

		contents := []*genai.Content{
			genai.NewContentFromParts([]*genai.Part{
				genai.NewPartFromText(prompt),
				genai.NewPartFromBytes(data, mimeType),
			}, genai.RoleUser),
		}

		result, err := client.Models.GenerateContent(ctx, t.model, contents, nil)
		if err != nil {
			errMsg := err.Error()
			if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "quota") || strings.Contains(errMsg, "RESOURCE_EXHAUSTED") {
				t.logger.Warn(ctx, "Key %d rate limited, rotating...", keyNum)
				t.rotateKey()
				lastErr = err
				continue
			}
			return "", fmt.Errorf("generate content: %w", err)
		}

		if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
			var text string
			for _, part := range result.Candidates[0].Content.Parts {
				if part.Text != "" {
					text += part.Text
				}
			}
			return text, nil
		}

		return "", fmt.Errorf("empty response from Gemini")
	}

	return "", fmt.Errorf("all API keys exhausted: %w", lastErr)
}

// currentAPIKey returns the active key and its 1-based position.
func (t *implTranscriber) currentAPIKey() (string, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.apiKeys[t.currentKey], t.currentKey + 1
}

func (t *implTranscriber) rotateKey() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentKey = (t.currentKey + 1) % len(t.apiKeys)
}

// transcode converts an unsupported container to 16kHz mono PCM WAV, the
// safest format for speech APIs.
func (t *implTranscriber) transcode(ctx context.Context, path string) (string, error) {
	wavPath := strings.TrimSuffix(path, filepath.Ext(path)) + "_temp.wav"

	t.logger.Info(ctx, "Transcoding to WAV: %s", filepath.Base(path))

	args := []string{
		"-i", path,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-y",
		wavPath,
	}

	if _, err := t.executor.Execute(ctx, "ffmpeg", args...); err != nil {
		return "", fmt.Errorf("ffmpeg convert audio: %w", err)
	}

	return wavPath, nil
}

// cleanupTempFile removes a temporary file, logs warning if fails
func (t *implTranscriber) cleanupTempFile(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil {
		t.logger.Warn(ctx, "Failed to cleanup temp file %s: %v", path, err)
	} else {
		t.logger.Debug(ctx, "Cleaned up temp file: %s", path)
	}
}

// mimeForExt reports the Gemini MIME type for a file extension.
func mimeForExt(ext string) (string, bool) {
	mime, ok := mimeByExt[strings.ToLower(ext)]
	return mime, ok
}
