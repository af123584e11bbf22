package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"google.golang.org/genai"
)

const coachingPrompt = `Eres un coach experto en ventas que entrena a asesores de viajes en la venta de boleteria aerea y la asesoria de clientes en viajes turisticos y migratorios. Analiza la conversacion de WhatsApp que aparece abajo de forma completa y estructurada, desde la perspectiva de persuasion y ventas.

Entrega un analisis detallado, no un simple resumen, con estas secciones en markdown:
- **Puntos positivos**: lo que se hizo bien en la conversacion
- **Puntos negativos**: lo que limita la conexion o la persuasion
- **Areas de mejora**: recomendaciones claras y motivadoras
- **Pasos accionables inmediatos**: instrucciones practicas que el asesor pueda aplicar hoy

Tu estilo es motivador, cercano y orientado a la accion. Nunca omitas una seccion.

Conversacion:
---
%s
---`

// AnalyzeAll scans transcriptsDir for finalized .txt transcripts and writes
// a coaching report for each into reportsDir. Transcripts that already have
// a report are skipped so repeated runs stay cheap.
func (a *implAnalyzer) AnalyzeAll(ctx context.Context, transcriptsDir, reportsDir string) error {
	transcripts, err := a.discoverTranscripts(transcriptsDir)
	if err != nil {
		return fmt.Errorf("discover transcripts: %w", err)
	}

	if len(transcripts) == 0 {
		a.logger.Info(ctx, "No transcripts found in %s", transcriptsDir)
		return nil
	}

	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}

	a.logger.Info(ctx, "Found %d transcripts to analyze", len(transcripts))

	successCount := 0
	failCount := 0

	for i, path := range transcripts {
		name := strings.TrimSuffix(filepath.Base(path), ".txt")
		mdPath := filepath.Join(reportsDir, name+"_analysis.md")
		if _, err := os.Stat(mdPath); err == nil {
			a.logger.Debug(ctx, "Report already exists for %s, skipping", name)
			continue
		}

		a.logger.Info(ctx, "[%d/%d] Analyzing: %s", i+1, len(transcripts), name)
		if err := a.AnalyzeFile(ctx, path, reportsDir); err != nil {
			a.logger.Error(ctx, "Failed to analyze %s: %v", name, err)
			failCount++
			continue
		}
		successCount++
	}

	a.logger.Info(ctx, "Analysis complete: %d success, %d failed", successCount, failCount)
	return nil
}

// AnalyzeFile produces the markdown and docx reports for one transcript.
func (a *implAnalyzer) AnalyzeFile(ctx context.Context, transcriptPath, reportsDir string) error {
	content, err := os.ReadFile(transcriptPath)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}

	analysis, err := a.callGemini(ctx, string(content))
	if err != nil {
		return fmt.Errorf("analyze conversation: %w", err)
	}

	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(transcriptPath), ".txt")
	md := fmt.Sprintf("# %s\n\n_%s_\n\n%s\n",
		name,
		time.Now().Format("2006-01-02 15:04"),
		strings.TrimSpace(analysis),
	)

	mdPath := filepath.Join(reportsDir, name+"_analysis.md")
	if err := os.WriteFile(mdPath, []byte(md), 0644); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}

	docxPath := filepath.Join(reportsDir, name+"_analysis.docx")
	if err := markdownToDocx(name, strings.TrimSpace(analysis), docxPath); err != nil {
		a.logger.Warn(ctx, "Failed to write docx report for %s: %v", name, err)
	}

	a.logger.Info(ctx, "[DONE] %s -> %s", name, mdPath)
	return nil
}

// callGemini sends the conversation to Gemini and returns the analysis.
// Rotates API keys on 429 / quota errors.
func (a *implAnalyzer) callGemini(ctx context.Context, conversation string) (string, error) {
	prompt := fmt.Sprintf(coachingPrompt, conversation)

	attempts := len(a.apiKeys)
	var lastErr error

	for range attempts {
		key, keyNum := a.currentAPIKey()

		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			lastErr = fmt.Errorf("create client: %w", err)
			a.rotateKey()
			continue
		}

		result, err := client.Models.GenerateContent(ctx, a.model, genai.Text(prompt), nil)
		if err != nil {
			errMsg := err.Error()
			if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "quota") || strings.Contains(errMsg, "RESOURCE_EXHAUSTED") {
				a.logger.Warn(ctx, "Key %d rate limited, rotating...", keyNum)
				a.rotateKey()
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
func (a *implAnalyzer) currentAPIKey() (string, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.apiKeys[a.currentKey], a.currentKey + 1
}

func (a *implAnalyzer) rotateKey() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentKey = (a.currentKey + 1) % len(a.apiKeys)
}

// discoverTranscripts lists finalized transcripts, ignoring backups and
// hidden files.
func (a *implAnalyzer) discoverTranscripts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if strings.ToLower(filepath.Ext(e.Name())) == ".txt" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}

	sort.Strings(files)
	return files, nil
}
