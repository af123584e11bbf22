// Package reconcile matches media attachments to their placeholder
// mentions in a chat transcript and splices derived text in place.
package reconcile

import (
	"context"
	"fmt"

	"github.com/rcastellanos/chatrecap/internal/attachment"
	"github.com/rcastellanos/chatrecap/internal/logger"
	"github.com/rcastellanos/chatrecap/internal/transcriber"
	"github.com/rcastellanos/chatrecap/internal/transcript"
)

// AudioResult reports one audio reconciliation pass.
type AudioResult struct {
	Success     bool
	Message     string
	TotalFound  int
	Transcribed int
	Inserted    int
}

// ImageResult reports one image reconciliation pass.
type ImageResult struct {
	Success    bool
	Message    string
	TotalFound int
	Inserted   int
	Skipped    int
}

// Result combines both passes. Success follows the partial-success policy:
// either pass succeeding counts as overall success.
type Result struct {
	Success bool
	Audio   AudioResult
	Images  ImageResult
}

// Engine drives the reconciliation pipeline for one job's media directory
// against one loaded transcript.
type Engine struct {
	mediaDir    string
	store       *transcript.Store
	transcriber transcriber.Transcriber
	language    string
	logger      logger.Logger
}

// New creates an Engine bound to a media directory and a loaded transcript.
func New(mediaDir string, store *transcript.Store, tr transcriber.Transcriber, language string, log logger.Logger) *Engine {
	return &Engine{
		mediaDir:    mediaDir,
		store:       store,
		transcriber: tr,
		language:    language,
		logger:      log,
	}
}

// Validate checks the preconditions for a processing run.
func (e *Engine) Validate() error {
	audio := attachment.List(e.mediaDir, attachment.KindAudio)
	images := attachment.List(e.mediaDir, attachment.KindImage)
	if len(audio)+len(images) == 0 {
		return fmt.Errorf("no attachments found in %s", e.mediaDir)
	}
	return nil
}

// ProcessAudio transcribes every audio attachment and splices successful
// transcriptions into the transcript. Individual failures are logged and
// skipped; the batch always runs to completion.
func (e *Engine) ProcessAudio(ctx context.Context) AudioResult {
	refs := attachment.List(e.mediaDir, attachment.KindAudio)
	if len(refs) == 0 {
		e.logger.Warn(ctx, "No audio files found in %s", e.mediaDir)
		return AudioResult{Success: false, Message: "no audio files found"}
	}

	e.logger.Info(ctx, "Found %d audio files", len(refs))

	result := AudioResult{TotalFound: len(refs)}
	for i, ref := range refs {
		e.logger.Info(ctx, "[%d/%d] Transcribing: %s", i+1, len(refs), ref.Filename)

		res := e.transcriber.Transcribe(ctx, ref.Path, e.language)
		if res.Err != nil {
			e.logger.Error(ctx, "Transcription failed for %s: %v", ref.Filename, res.Err)
			continue
		}
		if res.Text == "" {
			e.logger.Error(ctx, "Empty transcription for %s", ref.Filename)
			continue
		}
		result.Transcribed++

		if e.store.ReplaceAttachment(ref.Filename, res.Text) {
			result.Inserted++
		} else {
			e.logger.Warn(ctx, "No placeholder mention found for %s", ref.Filename)
		}
	}

	if result.Inserted > 0 {
		if err := e.store.Save(); err != nil {
			e.logger.Error(ctx, "Failed to save transcript: %v", err)
			result.Message = fmt.Sprintf("save transcript: %v", err)
			return result
		}
	}

	result.Success = true
	e.logger.Info(ctx, "Audio reconciliation: %d/%d transcribed, %d inserted",
		result.Transcribed, result.TotalFound, result.Inserted)
	return result
}

// ProcessImages splices a bracketed reference for every image with an
// extractable timestamp. Timestampless images are skipped and logged.
func (e *Engine) ProcessImages(ctx context.Context) ImageResult {
	refs := attachment.List(e.mediaDir, attachment.KindImage)
	if len(refs) == 0 {
		e.logger.Warn(ctx, "No image files found in %s", e.mediaDir)
		return ImageResult{Success: false, Message: "no image files found"}
	}

	result := ImageResult{TotalFound: len(refs)}
	for _, ref := range refs {
		if !ref.HasTimestamp {
			e.logger.Warn(ctx, "Image without extractable timestamp: %s", ref.Filename)
			result.Skipped++
			continue
		}

		reference := imageReference(ref)
		if e.store.ReplaceAttachment(ref.Filename, reference) {
			result.Inserted++
			e.logger.Info(ctx, "Image referenced: %s", ref.Filename)
		} else {
			e.logger.Warn(ctx, "No placeholder mention found for %s", ref.Filename)
		}
	}

	if result.Inserted > 0 {
		if err := e.store.Save(); err != nil {
			e.logger.Error(ctx, "Failed to save transcript: %v", err)
			result.Message = fmt.Sprintf("save transcript: %v", err)
			return result
		}
	}

	result.Success = true
	e.logger.Info(ctx, "Image reconciliation: %d inserted, %d skipped of %d",
		result.Inserted, result.Skipped, result.TotalFound)
	return result
}

// ProcessAll runs the audio pass, and the image pass when withImages is
// set, after a best-effort backup. Overall success is the OR of the two
// passes: a conversation with voice notes but no images (or the reverse)
// still counts as processed.
func (e *Engine) ProcessAll(ctx context.Context, withImages bool) Result {
	if backupPath, err := e.store.Backup(); err != nil {
		e.logger.Warn(ctx, "Could not create backup: %v", err)
	} else {
		e.logger.Info(ctx, "Backup created: %s", backupPath)
	}

	result := Result{}
	result.Audio = e.ProcessAudio(ctx)
	result.Success = result.Audio.Success

	if withImages {
		result.Images = e.ProcessImages(ctx)
		result.Success = result.Audio.Success || result.Images.Success
	}

	return result
}

// imageReference builds the fixed-format replacement text for an image.
func imageReference(ref attachment.Ref) string {
	return fmt.Sprintf("[Image: %s, %s]", ref.Filename, ref.Timestamp.Format("02/01/2006 15:04"))
}
