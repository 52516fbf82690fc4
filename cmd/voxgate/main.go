package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voxgate-labs/voxgate-ai/src/audio"
	"github.com/voxgate-labs/voxgate-ai/src/bridge"
	"github.com/voxgate-labs/voxgate-ai/src/calllog"
	"github.com/voxgate-labs/voxgate-ai/src/config"
	"github.com/voxgate-labs/voxgate-ai/src/gateway"
	"github.com/voxgate-labs/voxgate-ai/src/logger"
	"github.com/voxgate-labs/voxgate-ai/src/responder"
	"github.com/voxgate-labs/voxgate-ai/src/session"
	"github.com/voxgate-labs/voxgate-ai/src/telephony"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger.Init()
	mainLog := logger.WithPrefix("Main")

	library, err := audio.LoadLibrary(cfg.AudioDir, 8000)
	if err != nil {
		mainLog.Warn("Audio library unavailable (%v), continuing with synthesis only", err)
		library = audio.NewLibrary(8000)
	}
	mainLog.Info("Loaded %d audio clips from %s", library.Count(), cfg.AudioDir)
	if cfg.GreetingChain != "" {
		if missing := library.ValidateChain(cfg.GreetingChain); len(missing) > 0 {
			mainLog.Warn("Greeting chain references missing clips: %v", missing)
		}
	}

	logs, err := calllog.New(cfg.LogDir)
	if err != nil {
		log.Fatalf("call logging unavailable: %v", err)
	}

	resp := buildResponder(cfg, library)

	var rest *telephony.RestClient
	if cfg.OutboundEnabled() {
		rest, err = telephony.NewRestClient(telephony.RestConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
		})
		if err != nil {
			log.Fatalf("twilio client: %v", err)
		}
		mainLog.Info("Outbound dialing enabled from %s", cfg.TwilioFromNumber)
	} else {
		mainLog.Info("Outbound dialing disabled (no Twilio credentials)")
	}

	registry := session.NewRegistry()

	gin.SetMode(gin.ReleaseMode)
	server := gateway.New(cfg, registry, library, resp, logs, rest)

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: server.Engine(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		mainLog.Info("Listening on %s (public host %s)", cfg.Addr(), cfg.PublicHost)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	mainLog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		mainLog.Error("Shutdown: %v", err)
	}
}

// buildResponder assembles the rule pre-pass with the configured generator.
func buildResponder(cfg *config.Config, library *audio.Library) bridge.Responder {
	rules := responder.NewRules(responder.RulesConfig{})
	prompt := responder.SystemPrompt(library)

	var gen responder.Generator
	switch cfg.LLMProvider {
	case "openai":
		gen = responder.NewOpenAI(responder.OpenAIConfig{
			APIKey:       cfg.OpenAIAPIKey,
			Model:        cfg.OpenAIModel,
			SystemPrompt: prompt,
		})
	case "groq":
		gen = responder.NewOpenAI(responder.OpenAIConfig{
			APIKey:       cfg.GroqAPIKey,
			BaseURL:      responder.GroqBaseURL,
			Model:        cfg.GroqModel,
			SystemPrompt: prompt,
		})
	case "gemini":
		gen = responder.NewGemini(responder.GeminiConfig{
			APIKey:       cfg.GeminiAPIKey,
			Model:        cfg.GeminiModel,
			SystemPrompt: prompt,
		})
	case "rules":
		// Rule pre-pass only.
	}

	return responder.NewRouter(rules, gen, library)
}
