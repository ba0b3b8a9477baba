package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nhasan/chathub/internal/models"
)

// MemoryStorage is an in-process Storage used for local runs and tests.
type MemoryStorage struct {
	mu            sync.RWMutex
	nextUserID    int64
	nextConvID    int64
	nextKnowID    int64
	users         map[string]*models.User
	conversations map[int64][]*models.Conversation
	knowledge     map[int64]*models.KnowledgeEntry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:         make(map[string]*models.User),
		conversations: make(map[int64][]*models.Conversation),
		knowledge:     make(map[int64]*models.KnowledgeEntry),
	}
}

func (s *MemoryStorage) GetOrCreateUser(_ context.Context, identifier string, platform models.Platform, name string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, exists := s.users[identifier]; exists {
		user.LastActive = time.Now().UTC()
		if user.Name == "" && name != "" {
			user.Name = name
		}
		u := *user
		return &u, nil
	}

	s.nextUserID++
	now := time.Now().UTC()
	user := &models.User{
		ID:         s.nextUserID,
		Identifier: identifier,
		Platform:   platform,
		Name:       name,
		CreatedAt:  now,
		LastActive: now,
	}
	s.users[identifier] = user
	u := *user
	return &u, nil
}

func (s *MemoryStorage) GetHistory(_ context.Context, identifier string, limit int) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	user, exists := s.users[identifier]
	if !exists {
		return nil, nil
	}

	convs := s.conversations[user.ID]
	if len(convs) > limit {
		convs = convs[len(convs)-limit:]
	}

	history := make([]models.ChatMessage, 0, len(convs)*2)
	for _, conv := range convs {
		history = append(history,
			models.ChatMessage{Role: models.RoleUser, Content: conv.UserMsg},
			models.ChatMessage{Role: models.RoleAssistant, Content: conv.AIReply},
		)
	}
	return history, nil
}

func (s *MemoryStorage) SaveConversation(_ context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextConvID++
	conv.ID = s.nextConvID
	if conv.Timestamp.IsZero() {
		conv.Timestamp = time.Now().UTC()
	}
	stored := *conv
	s.conversations[conv.UserID] = append(s.conversations[conv.UserID], &stored)
	return nil
}

func (s *MemoryStorage) DeleteUserHistory(_ context.Context, identifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[identifier]
	if !exists {
		return false, nil
	}
	delete(s.conversations, user.ID)
	return true, nil
}

func (s *MemoryStorage) GetUserStats(_ context.Context, identifier string) (*models.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[identifier]
	if !exists {
		return nil, nil
	}
	return &models.UserStats{
		UserID:             user.ID,
		Identifier:         user.Identifier,
		Platform:           user.Platform,
		TotalConversations: len(s.conversations[user.ID]),
		CreatedAt:          user.CreatedAt,
		LastActive:         user.LastActive,
	}, nil
}

func (s *MemoryStorage) CreateKnowledge(_ context.Context, entry *models.KnowledgeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextKnowID++
	entry.ID = s.nextKnowID
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	stored := *entry
	s.knowledge[entry.ID] = &stored
	return nil
}

func (s *MemoryStorage) GetKnowledge(_ context.Context, id int64) (*models.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.knowledge[id]
	if !exists {
		return nil, ErrNotFound
	}
	e := *entry
	return &e, nil
}

func (s *MemoryStorage) ListKnowledge(_ context.Context, category string, limit int) ([]*models.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	entries := make([]*models.KnowledgeEntry, 0)
	for id := int64(1); id <= s.nextKnowID && len(entries) < limit; id++ {
		entry, exists := s.knowledge[id]
		if !exists {
			continue
		}
		if category != "" && entry.Category != category {
			continue
		}
		e := *entry
		entries = append(entries, &e)
	}
	return entries, nil
}

func (s *MemoryStorage) SearchKnowledge(_ context.Context, query string, limit int) ([]*models.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 3
	}

	needle := strings.ToLower(query)
	entries := make([]*models.KnowledgeEntry, 0)
	for id := int64(1); id <= s.nextKnowID && len(entries) < limit; id++ {
		entry, exists := s.knowledge[id]
		if !exists {
			continue
		}
		if !strings.Contains(strings.ToLower(entry.Content), needle) {
			continue
		}
		e := *entry
		entries = append(entries, &e)
	}
	return entries, nil
}

func (s *MemoryStorage) UpdateKnowledge(_ context.Context, entry *models.KnowledgeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.knowledge[entry.ID]
	if !exists {
		return ErrNotFound
	}
	entry.CreatedAt = stored.CreatedAt
	entry.UpdatedAt = time.Now().UTC()
	updated := *entry
	s.knowledge[entry.ID] = &updated
	return nil
}

func (s *MemoryStorage) DeleteKnowledge(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.knowledge[id]; !exists {
		return false, nil
	}
	delete(s.knowledge, id)
	return true, nil
}

func (s *MemoryStorage) Close() error { return nil }
