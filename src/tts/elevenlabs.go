// Package tts synthesizes speech through the ElevenLabs HTTP API.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voxgate-labs/voxgate-ai/src/logger"
)

// Result is one synthesized utterance with its wire format.
type Result struct {
	Audio      []byte
	SampleRate int
	Codec      string // "mulaw", "alaw", or "linear16"
}

// Config holds the synthesis parameters.
type Config struct {
	APIKey  string
	VoiceID string
	Model   string // e.g. "eleven_turbo_v2"
	// OutputFormat selects the wire format, e.g. "ulaw_8000" for mu-law
	// call legs or "pcm_16000" for linear legs (resampled by the caller).
	OutputFormat string
	BaseURL      string // overrides the API endpoint, for tests
}

// Client calls the ElevenLabs synthesis endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
}

// New creates a synthesis client.
func New(cfg Config) *Client {
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "pcm_16000"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger.WithPrefix("ElevenLabsTTS"),
	}
}

// Synthesize renders text to audio in the configured output format.
func (c *Client) Synthesize(ctx context.Context, text string) (*Result, error) {
	if text == "" {
		return nil, fmt.Errorf("empty synthesis text")
	}

	base := c.cfg.BaseURL
	if base == "" {
		base = "https://api.elevenlabs.io"
	}
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		base, c.cfg.VoiceID, c.cfg.OutputFormat)

	body, err := json.Marshal(map[string]interface{}{
		"text":     text,
		"model_id": c.cfg.Model,
		"voice_settings": map[string]interface{}{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("synthesis API error (%d): %s", resp.StatusCode, string(msg))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading synthesis audio: %w", err)
	}

	rate, codec := parseOutputFormat(c.cfg.OutputFormat)
	c.log.Debug("Synthesized %d bytes (%s @ %d Hz) for: %s", len(audio), codec, rate, text)
	return &Result{Audio: audio, SampleRate: rate, Codec: codec}, nil
}

func parseOutputFormat(format string) (int, string) {
	switch format {
	case "ulaw_8000":
		return 8000, "mulaw"
	case "alaw_8000":
		return 8000, "alaw"
	case "pcm_8000":
		return 8000, "linear16"
	case "pcm_16000":
		return 16000, "linear16"
	case "pcm_22050":
		return 22050, "linear16"
	case "pcm_24000":
		return 24000, "linear16"
	case "pcm_44100":
		return 44100, "linear16"
	default:
		return 16000, "linear16"
	}
}
