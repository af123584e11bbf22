package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcastellanos/chatrecap/internal/logger"
	"github.com/rcastellanos/chatrecap/internal/transcriber"
)

// stubTranscriber answers every file with the same canned text or error.
type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(ctx context.Context, path, language string) transcriber.Result {
	if s.err != nil {
		return transcriber.Result{Err: s.err}
	}
	return transcriber.Result{Text: s.text, Language: language}
}

// panicTranscriber blows up on every call.
type panicTranscriber struct{}

func (panicTranscriber) Transcribe(ctx context.Context, path, language string) transcriber.Result {
	panic("transcriber exploded")
}

func makeExport(t *testing.T, dir, name, chatContent string, mediaNames ...string) string {
	t.Helper()

	entries := map[string]string{"chat.txt": chatContent}
	for _, m := range mediaNames {
		entries[m] = "media"
	}
	zipPath := filepath.Join(dir, name)
	writeZip(t, zipPath, entries)
	return zipPath
}

func testJob(t *testing.T, id, zipPath string, tr transcriber.Transcriber) *Job {
	t.Helper()
	return newJob(id, zipPath, filepath.Base(zipPath), t.TempDir(), t.TempDir(),
		tr, "es", false, logger.New("error"))
}

func TestJobRunSuccess(t *testing.T) {
	content := "13/6/2025, 7:21 a.m. - Ana: PTT-20250613-WA0001.opus (attached file)\n"
	zipPath := makeExport(t, t.TempDir(), "Chat de WhatsApp con Ana.zip", content,
		"PTT-20250613-WA0001.opus")

	job := testJob(t, "job00001", zipPath, &stubTranscriber{text: "nos vemos a las cinco"})
	result := job.Run(context.Background())

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, "job00001", result.JobID)
	assert.Equal(t, 1, result.Counts.Found)
	assert.Equal(t, 1, result.Counts.Transcribed)
	assert.Equal(t, 1, result.Counts.Inserted)
	assert.False(t, result.StartedAt.IsZero())
	assert.False(t, result.EndedAt.IsZero())

	data, err := os.ReadFile(result.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "nos vemos a las cinco")
	assert.Equal(t, "Chat de WhatsApp con Ana.txt", filepath.Base(result.OutputFile))

	snap := job.Snapshot()
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, 1.0, snap.Progress)
	assert.Equal(t, result.OutputFile, snap.OutputFile)
}

func TestJobRunFailsWithoutTranscript(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "broken.zip")
	writeZip(t, zipPath, map[string]string{"photo.jpg": "x"})

	job := testJob(t, "job00002", zipPath, &stubTranscriber{text: "t"})
	result := job.Run(context.Background())

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no transcript")
	assert.Equal(t, StateFailed, job.Snapshot().State)
}

func TestJobRunFailsOnCorruptArchive(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "garbage.zip")
	require.NoError(t, os.WriteFile(zipPath, []byte("not a zip"), 0644))

	job := testJob(t, "job00003", zipPath, &stubTranscriber{text: "t"})
	result := job.Run(context.Background())

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "extract archive")
}

func TestJobRunFailsWithoutAttachments(t *testing.T) {
	zipPath := makeExport(t, t.TempDir(), "plain.zip", "12/6/2025, 3:15 p.m. - A: hola\n")

	job := testJob(t, "job00004", zipPath, &stubTranscriber{text: "t"})
	result := job.Run(context.Background())

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "validation failed")
}

func TestJobRunRecoversPanic(t *testing.T) {
	content := "13/6/2025, 7:21 a.m. - A: PTT-20250613-WA0001.opus (attached file)\n"
	zipPath := makeExport(t, t.TempDir(), "boom.zip", content, "PTT-20250613-WA0001.opus")

	job := testJob(t, "job00005", zipPath, panicTranscriber{})
	result := job.Run(context.Background())

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "transcriber exploded")
	assert.Equal(t, StateFailed, job.Snapshot().State)
}

func TestJobCancelOnlyWhilePending(t *testing.T) {
	content := "13/6/2025, 7:21 a.m. - A: PTT-20250613-WA0001.opus (attached file)\n"
	zipPath := makeExport(t, t.TempDir(), "cancelme.zip", content, "PTT-20250613-WA0001.opus")

	job := testJob(t, "job00006", zipPath, &stubTranscriber{text: "t"})
	assert.True(t, job.cancel())
	assert.False(t, job.cancel(), "second cancel is a no-op")

	result := job.Run(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, "job cancelled", result.Error)

	finished := testJob(t, "job00007", zipPath, &stubTranscriber{text: "t"})
	require.True(t, finished.Run(context.Background()).Success)
	assert.False(t, finished.cancel(), "completed jobs cannot be cancelled")
}

func TestValidTransitionEdges(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StatePending, StatePreprocessing, true},
		{StatePending, StateCancelled, true},
		{StatePending, StateProcessing, false},
		{StatePreprocessing, StateProcessing, true},
		{StatePreprocessing, StateCancelled, false},
		{StateProcessing, StatePostprocessing, true},
		{StatePostprocessing, StateCompleted, true},
		{StateCompleted, StatePreprocessing, false},
		{StateFailed, StateProcessing, false},
		{StateCancelled, StatePreprocessing, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s_to_%s", tc.from, tc.to), func(t *testing.T) {
			assert.Equal(t, tc.ok, validTransition(tc.from, tc.to))
		})
	}
}

func TestJobCleanup(t *testing.T) {
	content := "13/6/2025, 7:21 a.m. - A: PTT-20250613-WA0001.opus (attached file)\n"
	zipPath := makeExport(t, t.TempDir(), "tidy.zip", content, "PTT-20250613-WA0001.opus")

	job := testJob(t, "job00008", zipPath, &stubTranscriber{text: "t"})
	require.True(t, job.Run(context.Background()).Success)
	require.DirExists(t, job.workDir)

	backup := strings.TrimSuffix(job.tempTranscript, ".txt") + ".backup"
	require.FileExists(t, backup, "reconciliation leaves a pre-splice backup")

	job.Cleanup(context.Background())
	assert.NoDirExists(t, job.workDir)
	assert.NoFileExists(t, backup)
	assert.NoFileExists(t, job.tempTranscript)
}

func TestJobWorkDirEmbedsID(t *testing.T) {
	job := testJob(t, "abc12345", filepath.Join(t.TempDir(), "Chat.zip"), &stubTranscriber{})
	assert.True(t, strings.HasSuffix(job.workDir, "Chat_abc12345"))
	assert.True(t, strings.HasSuffix(job.tempTranscript, "Chat_abc12345.txt"))
}
