package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/nhasan/chathub/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

// pq error code for unique_violation, raised when two first messages from the
// same new identifier race on the insert.
const uniqueViolation = "23505"

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetOrCreateUser(ctx context.Context, identifier string, platform models.Platform, name string) (*models.User, error) {
	user, err := s.touchUser(ctx, identifier, name)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user = &models.User{
		Identifier: identifier,
		Platform:   platform,
		Name:       name,
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (user_identifier, platform, name)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING id, created_at, last_active`,
		identifier, platform, name,
	).Scan(&user.ID, &user.CreatedAt, &user.LastActive)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			// A concurrent first message won the insert race; the row exists
			// now, so fall back to the update path.
			s.logger.Debug("concurrent user insert lost, retrying as update",
				zap.String("identifier", identifier))
			return s.touchUser(ctx, identifier, name)
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info("created new user",
		zap.String("identifier", identifier),
		zap.String("platform", string(platform)))
	return user, nil
}

// touchUser looks up an existing user in a single transaction, bumping
// last_active and back-filling name only when it was previously empty.
func (s *PostgresStorage) touchUser(ctx context.Context, identifier, name string) (*models.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	user := &models.User{}
	var storedName sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_identifier, platform, name, created_at, last_active
		FROM users WHERE user_identifier = $1
		FOR UPDATE`,
		identifier,
	).Scan(&user.ID, &user.Identifier, &user.Platform, &storedName, &user.CreatedAt, &user.LastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %w", err)
	}
	user.Name = storedName.String

	if user.Name == "" && name != "" {
		user.Name = name
	}
	err = tx.QueryRowContext(ctx, `
		UPDATE users SET last_active = now(), name = NULLIF($2, '')
		WHERE id = $1
		RETURNING last_active`,
		user.ID, user.Name,
	).Scan(&user.LastActive)
	if err != nil {
		return nil, fmt.Errorf("error updating user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing user update: %w", err)
	}
	return user, nil
}

func (s *PostgresStorage) GetHistory(ctx context.Context, identifier string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.user_message, c.ai_response
		FROM conversations c
		JOIN users u ON u.id = c.user_id
		WHERE u.user_identifier = $1
		ORDER BY c.created_at DESC
		LIMIT $2`,
		identifier, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying history: %w", err)
	}
	defer rows.Close()

	type exchange struct{ userMsg, aiReply string }
	var recent []exchange
	for rows.Next() {
		var e exchange
		if err := rows.Scan(&e.userMsg, &e.aiReply); err != nil {
			return nil, fmt.Errorf("error scanning history row: %w", err)
		}
		recent = append(recent, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}

	// Newest-first from the query; flatten oldest-first for the prompt.
	history := make([]models.ChatMessage, 0, len(recent)*2)
	for i := len(recent) - 1; i >= 0; i-- {
		history = append(history,
			models.ChatMessage{Role: models.RoleUser, Content: recent[i].userMsg},
			models.ChatMessage{Role: models.RoleAssistant, Content: recent[i].aiReply},
		)
	}
	return history, nil
}

func (s *PostgresStorage) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO conversations (user_id, user_message, ai_response, platform, model_used, tokens_used)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, 0))
		RETURNING id, created_at`,
		conv.UserID, conv.UserMsg, conv.AIReply, conv.Platform, conv.ModelUsed, conv.TokensUsed,
	).Scan(&conv.ID, &conv.Timestamp)
	if err != nil {
		return fmt.Errorf("error saving conversation: %w", err)
	}
	return nil
}

func (s *PostgresStorage) DeleteUserHistory(ctx context.Context, identifier string) (bool, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE user_identifier = $1`, identifier,
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error querying user: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE user_id = $1`, userID,
	); err != nil {
		return false, fmt.Errorf("error deleting history: %w", err)
	}

	s.logger.Info("deleted user history", zap.String("identifier", identifier))
	return true, nil
}

func (s *PostgresStorage) GetUserStats(ctx context.Context, identifier string) (*models.UserStats, error) {
	stats := &models.UserStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.user_identifier, u.platform, u.created_at, u.last_active,
		       (SELECT count(*) FROM conversations c WHERE c.user_id = u.id)
		FROM users u WHERE u.user_identifier = $1`,
		identifier,
	).Scan(&stats.UserID, &stats.Identifier, &stats.Platform, &stats.CreatedAt, &stats.LastActive, &stats.TotalConversations)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStorage) CreateKnowledge(ctx context.Context, entry *models.KnowledgeEntry) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO knowledge_base (title, content, category, embedding)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		RETURNING id, created_at, updated_at`,
		entry.Title, entry.Content, entry.Category, entry.Embedding,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating knowledge entry: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetKnowledge(ctx context.Context, id int64) (*models.KnowledgeEntry, error) {
	entry := &models.KnowledgeEntry{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, COALESCE(category, ''), COALESCE(embedding, ''), created_at, updated_at
		FROM knowledge_base WHERE id = $1`,
		id,
	).Scan(&entry.ID, &entry.Title, &entry.Content, &entry.Category,
		&entry.Embedding, &entry.CreatedAt, &entry.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying knowledge entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStorage) ListKnowledge(ctx context.Context, category string, limit int) ([]*models.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, COALESCE(category, ''), COALESCE(embedding, ''), created_at, updated_at
		FROM knowledge_base
		WHERE ($1 = '' OR category = $1)
		ORDER BY id
		LIMIT $2`,
		category, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying knowledge entries: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

func (s *PostgresStorage) SearchKnowledge(ctx context.Context, query string, limit int) ([]*models.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, COALESCE(category, ''), COALESCE(embedding, ''), created_at, updated_at
		FROM knowledge_base
		WHERE content ILIKE '%' || $1 || '%'
		ORDER BY id
		LIMIT $2`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("error searching knowledge entries: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

func scanKnowledgeRows(rows *sql.Rows) ([]*models.KnowledgeEntry, error) {
	var entries []*models.KnowledgeEntry
	for rows.Next() {
		entry := &models.KnowledgeEntry{}
		if err := rows.Scan(&entry.ID, &entry.Title, &entry.Content, &entry.Category,
			&entry.Embedding, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning knowledge row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating knowledge rows: %w", err)
	}
	return entries, nil
}

func (s *PostgresStorage) UpdateKnowledge(ctx context.Context, entry *models.KnowledgeEntry) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_base
		SET title = $2, content = $3, category = NULLIF($4, ''), embedding = NULLIF($5, ''), updated_at = $6
		WHERE id = $1`,
		entry.ID, entry.Title, entry.Content, entry.Category, entry.Embedding, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("error updating knowledge entry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) DeleteKnowledge(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM knowledge_base WHERE id = $1`, id,
	)
	if err != nil {
		return false, fmt.Errorf("error deleting knowledge entry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
