package models

import "time"

// Platform identifies the channel a message arrived on.
type Platform string

const (
	PlatformWebsite  Platform = "website"
	PlatformWhatsApp Platform = "whatsapp"
	PlatformTelegram Platform = "telegram"
)

// Valid reports whether p is one of the known channel platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformWebsite, PlatformWhatsApp, PlatformTelegram:
		return true
	}
	return false
}

// User represents an end user identified by a platform-specific identifier:
// a phone number, a Telegram user id, or a generated website session id.
// Identifiers are unique across all platforms.
type User struct {
	ID         int64     `json:"id"`
	Identifier string    `json:"user_identifier"`
	Platform   Platform  `json:"platform"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// Conversation is one user-message/AI-reply exchange. Immutable once written.
type Conversation struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	UserMsg    string    `json:"user_message"`
	AIReply    string    `json:"ai_response"`
	Platform   Platform  `json:"platform"`
	ModelUsed  string    `json:"model_used,omitempty"`
	TokensUsed int       `json:"tokens_used,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ChatMessage is one role-tagged entry of flattened conversation history,
// in the shape AI providers consume.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// KnowledgeEntry is a titled content snippet used to ground AI replies.
// The embedding is stored as a JSON array string; current search is lexical
// and does not read it.
type KnowledgeEntry struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category,omitempty"`
	Embedding string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserStats summarizes a user's stored conversation history.
type UserStats struct {
	UserID             int64     `json:"user_id"`
	Identifier         string    `json:"user_identifier"`
	Platform           Platform  `json:"platform"`
	TotalConversations int       `json:"total_conversations"`
	CreatedAt          time.Time `json:"created_at"`
	LastActive         time.Time `json:"last_active"`
}
