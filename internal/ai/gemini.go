package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/nhasan/chathub/internal/models"
)

// GeminiClient talks to the Gemini API. Unlike the chat-style backends it
// takes a single concatenated prompt, so the role-tagged messages are
// flattened into a transcript before dispatch.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
}

func NewGeminiClient(ctx context.Context, apiKey, model string, temperature float64, maxTokens int) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, messages []models.ChatMessage) (Response, error) {
	temp := float32(c.temperature)
	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(flattenPrompt(messages)),
		&genai.GenerateContentConfig{
			Temperature:     &temp,
			MaxOutputTokens: int32(c.maxTokens),
		},
	)
	if err != nil {
		return Response{}, fmt.Errorf("failed to generate content: %w", err)
	}

	return Response{
		Content: resp.Text(),
		Model:   c.model,
	}, nil
}

// flattenPrompt renders the message list as a plain transcript ending with an
// open assistant turn.
func flattenPrompt(messages []models.ChatMessage) string {
	var sb strings.Builder
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			sb.WriteString("System: ")
		case models.RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("Assistant:")
	return sb.String()
}
