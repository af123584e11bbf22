package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcastellanos/chatrecap/internal/logger"
	"github.com/rcastellanos/chatrecap/internal/transcriber"
)

func testCoordinator(t *testing.T, tr transcriber.Transcriber) *Coordinator {
	t.Helper()

	coord, err := NewCoordinator(CoordinatorConfig{
		ProcessingDir: filepath.Join(t.TempDir(), "processing"),
		OutputDir:     filepath.Join(t.TempDir(), "output"),
		MaxWorkers:    2,
		Language:      "es",
	}, tr, logger.New("error"))
	require.NoError(t, err)
	return coord
}

func TestSubmitGeneratesDistinctIDs(t *testing.T) {
	coord := testCoordinator(t, &stubTranscriber{text: "t"})

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		id, err := coord.Submit("/tmp/a.zip", "a.zip")
		require.NoError(t, err)
		assert.Len(t, id, 8)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestStatusUnknownJob(t *testing.T) {
	coord := testCoordinator(t, &stubTranscriber{text: "t"})
	_, ok := coord.Status("missing1")
	assert.False(t, ok)
}

func TestRunAllFailureContainment(t *testing.T) {
	content := "13/6/2025, 7:21 a.m. - A: PTT-20250613-WA0001.opus (attached file)\n"
	dir := t.TempDir()

	good1 := makeExport(t, dir, "good1.zip", content, "PTT-20250613-WA0001.opus")
	good2 := makeExport(t, dir, "good2.zip", content, "PTT-20250613-WA0001.opus")
	bad := filepath.Join(dir, "bad.zip")
	require.NoError(t, os.WriteFile(bad, []byte("not a zip"), 0644))

	coord := testCoordinator(t, &stubTranscriber{text: "transcribed"})
	id1, err := coord.Submit(good1, "good1.zip")
	require.NoError(t, err)
	id2, err := coord.Submit(good2, "good2.zip")
	require.NoError(t, err)
	idBad, err := coord.Submit(bad, "bad.zip")
	require.NoError(t, err)

	results := coord.RunAll(context.Background())

	require.Len(t, results, 3, "every job yields a result, failing ones included")
	assert.True(t, results[id1].Success)
	assert.True(t, results[id2].Success)
	assert.False(t, results[idBad].Success)
	assert.NotEmpty(t, results[idBad].Error)
}

func TestRunAllIsolatesIdenticalArchiveNames(t *testing.T) {
	name := "Chat de WhatsApp con Ana.zip"
	zipA := makeExport(t, t.TempDir(), name,
		"13/6/2025, 7:21 a.m. - Ana: PTT-20250613-WA0001.opus (attached file)\n",
		"PTT-20250613-WA0001.opus")
	zipB := makeExport(t, t.TempDir(), name,
		"14/6/2025, 8:00 a.m. - Ana: PTT-20250614-WA0001.opus (attached file)\n",
		"PTT-20250614-WA0001.opus")

	coord := testCoordinator(t, &stubTranscriber{text: "spliced"})
	idA, err := coord.Submit(zipA, name)
	require.NoError(t, err)
	idB, err := coord.Submit(zipB, name)
	require.NoError(t, err)

	results := coord.RunAll(context.Background())
	require.Len(t, results, 2)
	require.True(t, results[idA].Success, "error: %s", results[idA].Error)
	require.True(t, results[idB].Success, "error: %s", results[idB].Error)

	assert.NotEqual(t, results[idA].OutputFile, results[idB].OutputFile)

	dataA, err := os.ReadFile(results[idA].OutputFile)
	require.NoError(t, err)
	dataB, err := os.ReadFile(results[idB].OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(dataA), "13/6/2025")
	assert.NotContains(t, string(dataA), "14/6/2025")
	assert.Contains(t, string(dataB), "14/6/2025")
	assert.NotContains(t, string(dataB), "13/6/2025")
}

func TestRunOne(t *testing.T) {
	content := "13/6/2025, 7:21 a.m. - A: PTT-20250613-WA0001.opus (attached file)\n"
	zipPath := makeExport(t, t.TempDir(), "single.zip", content, "PTT-20250613-WA0001.opus")

	coord := testCoordinator(t, &stubTranscriber{text: "t"})
	id, err := coord.Submit(zipPath, "single.zip")
	require.NoError(t, err)

	result := coord.RunOne(context.Background(), id)
	assert.True(t, result.Success)

	missing := coord.RunOne(context.Background(), "nope1234")
	assert.False(t, missing.Success)
	assert.Contains(t, missing.Error, "not found")
}

func TestCancelThenRunAll(t *testing.T) {
	content := "13/6/2025, 7:21 a.m. - A: PTT-20250613-WA0001.opus (attached file)\n"
	zipPath := makeExport(t, t.TempDir(), "cancel.zip", content, "PTT-20250613-WA0001.opus")

	coord := testCoordinator(t, &stubTranscriber{text: "t"})
	id, err := coord.Submit(zipPath, "cancel.zip")
	require.NoError(t, err)

	require.True(t, coord.Cancel(id))
	assert.False(t, coord.Cancel("unknown1"))

	results := coord.RunAll(context.Background())
	require.Len(t, results, 1)
	assert.False(t, results[id].Success)
	assert.Equal(t, "job cancelled", results[id].Error)
}

func TestCleanupFinished(t *testing.T) {
	content := "13/6/2025, 7:21 a.m. - A: PTT-20250613-WA0001.opus (attached file)\n"
	dir := t.TempDir()
	zipPath := makeExport(t, dir, "done.zip", content, "PTT-20250613-WA0001.opus")

	coord := testCoordinator(t, &stubTranscriber{text: "t"})
	id, err := coord.Submit(zipPath, "done.zip")
	require.NoError(t, err)
	pendingID, err := coord.Submit(zipPath, "pending.zip")
	require.NoError(t, err)

	require.True(t, coord.RunOne(context.Background(), id).Success)

	removed := coord.CleanupFinished(context.Background())
	assert.Equal(t, 1, removed, "only terminal jobs are removed")

	_, ok := coord.Status(id)
	assert.False(t, ok)
	_, ok = coord.Status(pendingID)
	assert.True(t, ok, "pending job survives cleanup")
}
