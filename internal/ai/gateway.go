package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/nhasan/chathub/internal/cache"
	"github.com/nhasan/chathub/internal/models"
)

const (
	// DefaultSystemPrompt frames the assistant when the channel supplies none.
	DefaultSystemPrompt = "You are a helpful AI assistant."

	// ErrorReply is what end users see when a backend call fails. Backend
	// errors never propagate past the gateway.
	ErrorReply = "Sorry, I encountered an error. Please try again."

	cacheKeyPrefix = "ai_response:"
)

// Gateway is the uniform entry point in front of the configured provider
// backend. It assembles the prompt, consults the response cache, and converts
// backend failures into a safe apology reply.
type Gateway struct {
	client     Client
	cache      cache.Cache
	model      string
	maxHistory int
	cacheTTL   time.Duration
	timeout    time.Duration
	logger     *zap.Logger
}

func NewGateway(client Client, responseCache cache.Cache, model string, maxHistory int, cacheTTL, timeout time.Duration, logger *zap.Logger) *Gateway {
	if maxHistory <= 0 {
		maxHistory = 10
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{
		client:     client,
		cache:      responseCache,
		model:      model,
		maxHistory: maxHistory,
		cacheTTL:   cacheTTL,
		timeout:    timeout,
		logger:     logger,
	}
}

// Model returns the configured model name, recorded as turn metadata.
func (g *Gateway) Model() string { return g.model }

// Generate produces a reply for message. History is truncated to the most
// recent configured number of entries; knowledgeContext, when non-empty, is
// injected as a second system-level block.
//
// The cache key is derived from the message text alone. Two conversations
// asking the identical sentence share a cached answer; this is a known
// precision trade-off inherited from the caching design, kept intentionally.
func (g *Gateway) Generate(ctx context.Context, message string, history []models.ChatMessage, systemPrompt, knowledgeContext string) string {
	key := responseCacheKey(message)
	if cached, ok := g.cache.Get(ctx, key); ok {
		g.logger.Info("returning cached response")
		return cached
	}

	messages := assemblePrompt(message, history, systemPrompt, knowledgeContext, g.maxHistory)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Generate(callCtx, messages)
	if err != nil {
		g.logger.Error("ai generation failed", zap.Error(err), zap.String("model", g.model))
		return ErrorReply
	}

	g.cache.Set(ctx, key, resp.Content, g.cacheTTL)
	return resp.Content
}

// Embedding returns a vector for text, or an empty vector when the configured
// backend has no embedding capability or the call fails.
func (g *Gateway) Embedding(ctx context.Context, text string) []float32 {
	embedder, ok := g.client.(Embedder)
	if !ok {
		g.logger.Warn("embeddings not supported by configured provider")
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	vector, err := embedder.Embedding(callCtx, text)
	if err != nil {
		g.logger.Error("embedding generation failed", zap.Error(err))
		return nil
	}
	return vector
}

// assemblePrompt builds the role-tagged message list shared by all provider
// variants: system prompt, optional knowledge block, truncated history, then
// the current message.
func assemblePrompt(message string, history []models.ChatMessage, systemPrompt, knowledgeContext string, maxHistory int) []models.ChatMessage {
	messages := make([]models.ChatMessage, 0, len(history)+3)

	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: systemPrompt})

	if knowledgeContext != "" {
		messages = append(messages, models.ChatMessage{
			Role:    models.RoleSystem,
			Content: "Context: " + knowledgeContext,
		})
	}

	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	messages = append(messages, history...)

	messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: message})
	return messages
}

func responseCacheKey(message string) string {
	sum := sha256.Sum256([]byte(message))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
