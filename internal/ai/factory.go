package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhasan/chathub/pkg/config"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
)

// groqBaseURL points go-openai at Groq's OpenAI-compatible chat API.
const groqBaseURL = "https://api.groq.com/openai/v1"

// NewClient creates the provider backend named by the configuration. The
// provider is selected once at startup; an unknown name is a construction
// error, not a runtime one.
func NewClient(ctx context.Context, cfg config.AIConfig) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.Model, cfg.Temperature, cfg.MaxTokens)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg.OpenAIAPIKey, "", cfg.Model, cfg.Temperature, cfg.MaxTokens), nil
	case ProviderGroq:
		return NewOpenAIClient(cfg.GroqAPIKey, groqBaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown ai provider: %s", cfg.Provider)
	}
}
