package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voxgate-labs/voxgate-ai/src/logger"
	"github.com/voxgate-labs/voxgate-ai/src/session"
)

// GeminiConfig configures the Gemini generator.
type GeminiConfig struct {
	APIKey       string
	Model        string // e.g. "gemini-1.5-flash"
	SystemPrompt string
	Temperature  float64
}

// GeminiGenerator produces replies through the generateContent REST API.
type GeminiGenerator struct {
	cfg        GeminiConfig
	httpClient *http.Client
	log        *logger.Logger
}

// NewGemini creates a Gemini generator.
func NewGemini(cfg GeminiConfig) *GeminiGenerator {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.6
	}
	return &GeminiGenerator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger.WithPrefix("Gemini"),
	}
}

// Generate asks Gemini for the next reply. The system prompt and session
// context ride in the first user part; Gemini has no system role on this
// endpoint.
func (g *GeminiGenerator) Generate(ctx context.Context, sess *session.Session, transcript string) (string, error) {
	prompt := g.cfg.SystemPrompt
	if sessCtx := sess.PromptContext(); sessCtx != "" {
		prompt += "\n\nConversation so far:\n" + sessCtx
	}
	prompt += "\n\nCaller: " + transcript

	requestBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role":  "user",
				"parts": []map[string]string{{"text": prompt}},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":     g.cfg.Temperature,
			"maxOutputTokens": 150,
		},
	}

	body, err := json.Marshal(requestBody)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s",
		g.cfg.Model, g.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gemini API error (%d): %s", resp.StatusCode, string(msg))
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parsing gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	reply := parsed.Candidates[0].Content.Parts[0].Text
	g.log.Debug("Reply length: %d", len(reply))
	return reply, nil
}
