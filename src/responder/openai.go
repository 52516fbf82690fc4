package responder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voxgate-labs/voxgate-ai/src/logger"
	"github.com/voxgate-labs/voxgate-ai/src/session"
)

// OpenAIConfig configures an OpenAI-compatible generator. A custom BaseURL
// points the same client at Groq or any other compatible endpoint.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Temperature  float32
}

// GroqBaseURL is the OpenAI-compatible Groq endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIGenerator produces replies through chat completions.
type OpenAIGenerator struct {
	client       *openai.Client
	model        string
	systemPrompt string
	temperature  float32
	log          *logger.Logger
}

// NewOpenAI creates a chat-completion generator.
func NewOpenAI(cfg OpenAIConfig) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.6
	}
	return &OpenAIGenerator{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		temperature:  temperature,
		log:          logger.WithPrefix("OpenAI"),
	}
}

// Generate asks the model for the next reply, giving it the collected
// caller details and recent dialogue as context.
func (g *OpenAIGenerator) Generate(ctx context.Context, sess *session.Session, transcript string) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: g.systemPrompt},
	}
	if sessCtx := sess.PromptContext(); sessCtx != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Conversation so far:\n" + sessCtx,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: transcript,
	})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
		MaxTokens:   150,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	reply := resp.Choices[0].Message.Content
	g.log.Debug("Reply (%d tokens): %s", resp.Usage.CompletionTokens, reply)
	return reply, nil
}
