package ai

import (
	"context"

	"github.com/nhasan/chathub/internal/models"
)

// Response is one completed generation from a provider backend.
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is a single interchangeable AI backend. Implementations adapt the
// role-tagged message list to their own transport shape.
type Client interface {
	Generate(ctx context.Context, messages []models.ChatMessage) (Response, error)
}

// Embedder is an optional capability of a backend; knowledge ingestion uses
// it to precompute embeddings for stored entries.
type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}
