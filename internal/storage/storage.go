package storage

import (
	"context"
	"errors"

	"github.com/nhasan/chathub/internal/models"
)

// ErrNotFound is returned by lookups that target a missing row where the
// caller needs to distinguish "absent" from a real storage failure.
var ErrNotFound = errors.New("storage: not found")

type Storage interface {
	UserStore
	KnowledgeStore
	Close() error
}

// UserStore owns user identity and conversation history.
type UserStore interface {
	// GetOrCreateUser looks up a user by identifier, updating last_active and
	// back-filling the name if it was empty. A missing user is created with
	// the given platform. Safe under concurrent first messages: the insert
	// relies on the unique constraint and retries as a lookup when it loses.
	GetOrCreateUser(ctx context.Context, identifier string, platform models.Platform, name string) (*models.User, error)

	// GetHistory returns the most recent limit exchanges for the identifier,
	// flattened into chronological user/assistant entries. Unknown
	// identifiers yield an empty slice, not an error.
	GetHistory(ctx context.Context, identifier string, limit int) ([]models.ChatMessage, error)

	// SaveConversation persists one exchange.
	SaveConversation(ctx context.Context, conv *models.Conversation) error

	// DeleteUserHistory removes all exchanges owned by the identifier and
	// reports whether the identifier was known.
	DeleteUserHistory(ctx context.Context, identifier string) (bool, error)

	// GetUserStats returns a summary for the identifier, or nil if unknown.
	GetUserStats(ctx context.Context, identifier string) (*models.UserStats, error)
}

// KnowledgeStore owns the shared knowledge corpus.
type KnowledgeStore interface {
	CreateKnowledge(ctx context.Context, entry *models.KnowledgeEntry) error
	// GetKnowledge returns the entry with the given id, or ErrNotFound.
	GetKnowledge(ctx context.Context, id int64) (*models.KnowledgeEntry, error)
	ListKnowledge(ctx context.Context, category string, limit int) ([]*models.KnowledgeEntry, error)
	// SearchKnowledge matches query as a case-insensitive substring of entry
	// content and returns at most limit entries.
	SearchKnowledge(ctx context.Context, query string, limit int) ([]*models.KnowledgeEntry, error)
	UpdateKnowledge(ctx context.Context, entry *models.KnowledgeEntry) error
	DeleteKnowledge(ctx context.Context, id int64) (bool, error)
}
