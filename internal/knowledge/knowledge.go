// Package knowledge manages the shared knowledge corpus used to ground AI
// replies. Retrieval is a lexical substring match; the stored embedding is
// kept for a future vector-search upgrade but never read on the search path.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nhasan/chathub/internal/models"
	"github.com/nhasan/chathub/internal/storage"
)

// Embedder computes a vector for ingested content; an empty vector is a valid
// "no embedding available" result.
type Embedder interface {
	Embedding(ctx context.Context, text string) []float32
}

type Service struct {
	store    storage.KnowledgeStore
	embedder Embedder
	logger   *zap.Logger
}

func NewService(store storage.KnowledgeStore, embedder Embedder, logger *zap.Logger) *Service {
	return &Service{store: store, embedder: embedder, logger: logger}
}

// Add stores a new knowledge entry, precomputing its embedding when the
// configured AI backend supports one.
func (s *Service) Add(ctx context.Context, title, content, category string) (*models.KnowledgeEntry, error) {
	entry := &models.KnowledgeEntry{
		Title:    title,
		Content:  content,
		Category: category,
	}

	if vector := s.embedder.Embedding(ctx, content); len(vector) > 0 {
		encoded, err := json.Marshal(vector)
		if err != nil {
			return nil, fmt.Errorf("failed to encode embedding: %w", err)
		}
		entry.Embedding = string(encoded)
	}

	if err := s.store.CreateKnowledge(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("added knowledge entry",
		zap.Int64("id", entry.ID),
		zap.String("title", title))
	return entry, nil
}

// SearchContext finds up to limit entries whose content contains query
// (case-insensitive) and renders them as prompt context blocks. An empty
// string means "nothing relevant"; callers omit the context entirely.
func (s *Service) SearchContext(ctx context.Context, query string, limit int) (string, error) {
	entries, err := s.store.SearchKnowledge(ctx, query, limit)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}

	blocks := make([]string, 0, len(entries))
	for _, entry := range entries {
		blocks = append(blocks, fmt.Sprintf("Title: %s\n%s", entry.Title, entry.Content))
	}
	return strings.Join(blocks, "\n\n"), nil
}

func (s *Service) List(ctx context.Context, category string, limit int) ([]*models.KnowledgeEntry, error) {
	return s.store.ListKnowledge(ctx, category, limit)
}

// Update applies the non-empty fields to an existing entry; changed content
// gets a fresh embedding.
func (s *Service) Update(ctx context.Context, id int64, title, content, category string) (*models.KnowledgeEntry, error) {
	entry, err := s.store.GetKnowledge(ctx, id)
	if err != nil {
		return nil, err
	}

	if title != "" {
		entry.Title = title
	}
	if category != "" {
		entry.Category = category
	}
	if content != "" && content != entry.Content {
		entry.Content = content
		entry.Embedding = ""
		if vector := s.embedder.Embedding(ctx, content); len(vector) > 0 {
			encoded, err := json.Marshal(vector)
			if err != nil {
				return nil, fmt.Errorf("failed to encode embedding: %w", err)
			}
			entry.Embedding = string(encoded)
		}
	}

	if err := s.store.UpdateKnowledge(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.store.DeleteKnowledge(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("deleted knowledge entry", zap.Int64("id", id))
	}
	return deleted, nil
}
