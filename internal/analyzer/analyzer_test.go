package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcastellanos/chatrecap/internal/logger"
)

func TestDiscoverTranscripts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat b.txt"), []byte("b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat a.txt"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat a.backup"), []byte("old"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("x"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))

	a := &implAnalyzer{apiKeys: []string{"k"}, logger: logger.New("error"), model: "m"}
	files, err := a.discoverTranscripts(dir)
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(dir, "chat a.txt"), files[0], "sorted order")
	assert.Equal(t, filepath.Join(dir, "chat b.txt"), files[1])
}

func TestDiscoverTranscriptsMissingDir(t *testing.T) {
	a := &implAnalyzer{apiKeys: []string{"k"}, logger: logger.New("error"), model: "m"}
	files, err := a.discoverTranscripts(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestAnalyzeAllSkipsExistingReports(t *testing.T) {
	transcriptsDir := t.TempDir()
	reportsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(transcriptsDir, "chat.txt"), []byte("hola"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(reportsDir, "chat_analysis.md"), []byte("done"), 0644))

	// Every transcript already has a report, so no API call happens.
	a := New(nil, "", logger.New("error"))
	require.NoError(t, a.AnalyzeAll(context.Background(), transcriptsDir, reportsDir))
}

func TestAnalyzeAllEmptyDir(t *testing.T) {
	a := New(nil, "", logger.New("error"))
	require.NoError(t, a.AnalyzeAll(context.Background(), t.TempDir(), t.TempDir()))
}

// Watch mode drives one shared analyzer from concurrent handlers; key
// rotation must stay race-free. Run with -race to catch regressions.
func TestKeyRotationConcurrent(t *testing.T) {
	a := &implAnalyzer{
		apiKeys: []string{"k1", "k2"},
		model:   "gemini-2.5-flash",
		logger:  logger.New("error"),
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				a.rotateKey()
				key, num := a.currentAPIKey()
				if key == "" || num < 1 || num > len(a.apiKeys) {
					t.Errorf("inconsistent key state: %q at position %d", key, num)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestMarkdownToDocx(t *testing.T) {
	out := filepath.Join(t.TempDir(), "report.docx")
	md := "# Puntos positivos\n\n- Saludo **cordial** al cliente\n1. Respuesta rapida\n\nTexto plano.\n---\n"

	require.NoError(t, markdownToDocx("Chat con Ana", md, out))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
