// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting for the gateway. All values come from
// the environment; Load applies defaults and Validate enforces the keys the
// selected integrations need.
type Config struct {
	// HTTP server.
	Host       string
	Port       int
	PublicHost string // externally reachable host for answer documents and stream URLs

	// Speech recognition (Deepgram).
	DeepgramAPIKey   string
	DeepgramModel    string
	DeepgramLanguage string

	// Speech synthesis (ElevenLabs).
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModel   string

	// Reply generation. Provider is one of "openai", "groq", "gemini", "rules".
	LLMProvider  string
	OpenAIAPIKey string
	OpenAIModel  string
	GroqAPIKey   string
	GroqModel    string
	GeminiAPIKey string
	GeminiModel  string

	// Outbound dialing (Twilio REST).
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// TransferNumber is dialed when a caller asks for a human agent.
	// Transfers are disabled when empty or when REST dialing is not
	// configured.
	TransferNumber string

	// Local assets and telemetry.
	AudioDir string
	LogDir   string

	// Turn taking.
	SilenceThreshold time.Duration
	PollInterval     time.Duration

	// Campaign dialing.
	CallInterval       time.Duration
	MaxConcurrentCalls int

	// Spoken when a turn fails or a requested clip is missing.
	FallbackUtterance string
	GreetingChain     string // "a.pcm + b.pcm" played after the stream starts
}

// Load reads .env (if present) and the environment into a Config.
func Load() *Config {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	return &Config{
		Host:       getEnv("HOST", "0.0.0.0"),
		Port:       getEnvInt("PORT", 8080),
		PublicHost: getEnv("PUBLIC_HOST", ""),

		DeepgramAPIKey:   os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:    getEnv("DEEPGRAM_MODEL", "nova-2"),
		DeepgramLanguage: getEnv("DEEPGRAM_LANGUAGE", "en"),

		ElevenLabsAPIKey:  os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		ElevenLabsModel:   getEnv("ELEVENLABS_MODEL", "eleven_turbo_v2"),

		LLMProvider:  strings.ToLower(getEnv("LLM_PROVIDER", "rules")),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GroqAPIKey:   os.Getenv("GROQ_API_KEY"),
		GroqModel:    getEnv("GROQ_MODEL", "llama-3.1-8b-instant"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		TransferNumber:   os.Getenv("AGENT_TRANSFER_NUMBER"),

		AudioDir: getEnv("AUDIO_DIR", "audio"),
		LogDir:   getEnv("LOG_DIR", "logs"),

		SilenceThreshold: getEnvDuration("SILENCE_THRESHOLD", 400*time.Millisecond),
		PollInterval:     getEnvDuration("POLL_INTERVAL", 50*time.Millisecond),

		CallInterval:       getEnvDuration("CALL_INTERVAL", 10*time.Second),
		MaxConcurrentCalls: getEnvInt("MAX_CONCURRENT_CALLS", 3),

		FallbackUtterance: getEnv("FALLBACK_UTTERANCE", "Sorry, I didn't catch that. Could you say it again?"),
		GreetingChain:     getEnv("GREETING_CHAIN", ""),
	}
}

// Validate reports every missing required key in a single error so operators
// can fix the environment in one pass. It is the only fatal configuration
// check in the process.
func (c *Config) Validate() error {
	var missing []string

	if c.DeepgramAPIKey == "" {
		missing = append(missing, "DEEPGRAM_API_KEY")
	}
	if c.ElevenLabsAPIKey == "" {
		missing = append(missing, "ELEVENLABS_API_KEY")
	}
	if c.PublicHost == "" {
		missing = append(missing, "PUBLIC_HOST")
	}

	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case "groq":
		if c.GroqAPIKey == "" {
			missing = append(missing, "GROQ_API_KEY")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	case "rules":
		// No upstream credentials needed.
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.SilenceThreshold <= 0 {
		return fmt.Errorf("SILENCE_THRESHOLD must be positive, got %s", c.SilenceThreshold)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.MaxConcurrentCalls <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_CALLS must be positive, got %d", c.MaxConcurrentCalls)
	}
	return nil
}

// OutboundEnabled reports whether Twilio REST dialing is configured.
func (c *Config) OutboundEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Accept plain seconds for compatibility with older deployments.
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
