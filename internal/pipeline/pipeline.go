// Package pipeline implements the channel-agnostic message orchestration:
// inbound user message in, persisted context-aware AI reply out.
package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhasan/chathub/internal/ai"
	"github.com/nhasan/chathub/internal/models"
	"github.com/nhasan/chathub/internal/storage"
)

// knowledgeLimit caps how many corpus entries are folded into one prompt.
const knowledgeLimit = 3

// Inbound is the normalized message shape channel adapters hand to the
// pipeline.
type Inbound struct {
	UserIdentifier string
	Platform       models.Platform
	Text           string
	DisplayName    string
	SystemPrompt   string
}

// Retriever produces grounding context for a query, "" when nothing matches.
type Retriever interface {
	SearchContext(ctx context.Context, query string, limit int) (string, error)
}

// Generator is the AI gateway surface the pipeline depends on.
type Generator interface {
	Generate(ctx context.Context, message string, history []models.ChatMessage, systemPrompt, knowledgeContext string) string
	Model() string
}

type Pipeline struct {
	store        storage.UserStore
	retriever    Retriever
	gateway      Generator
	historyLimit int
	timeout      time.Duration
	logger       *zap.Logger
}

func New(store storage.UserStore, retriever Retriever, gateway Generator, historyLimit int, timeout time.Duration, logger *zap.Logger) *Pipeline {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pipeline{
		store:        store,
		retriever:    retriever,
		gateway:      gateway,
		historyLimit: historyLimit,
		timeout:      timeout,
		logger:       logger,
	}
}

// Process turns one inbound message into a persisted AI reply. Empty or
// whitespace-only text is accepted silently: no AI call, no stored turn, an
// empty reply. Internal failures after that point are logged and surfaced as
// the generic apology reply so channel adapters can always acknowledge the
// upstream webhook.
func (p *Pipeline) Process(ctx context.Context, msg Inbound) string {
	if strings.TrimSpace(msg.Text) == "" {
		return ""
	}

	// Storage and retrieval calls carry their own deadline so a hung backend
	// fails into the apology path instead of stalling the webhook ack.
	resolveCtx, cancelResolve := context.WithTimeout(ctx, p.timeout)
	user, err := p.store.GetOrCreateUser(resolveCtx, msg.UserIdentifier, msg.Platform, msg.DisplayName)
	cancelResolve()
	if err != nil {
		p.logger.Error("failed to resolve user",
			zap.Error(err),
			zap.String("identifier", msg.UserIdentifier),
			zap.String("platform", string(msg.Platform)))
		return ai.ErrorReply
	}

	// History and knowledge retrieval have no ordering dependency.
	var (
		history          []models.ChatMessage
		knowledgeContext string
	)
	gatherCtx, cancelGather := context.WithTimeout(ctx, p.timeout)
	g, gctx := errgroup.WithContext(gatherCtx)
	g.Go(func() error {
		var err error
		history, err = p.store.GetHistory(gctx, msg.UserIdentifier, p.historyLimit)
		return err
	})
	g.Go(func() error {
		var err error
		knowledgeContext, err = p.retriever.SearchContext(gctx, msg.Text, knowledgeLimit)
		return err
	})
	err = g.Wait()
	cancelGather()
	if err != nil {
		p.logger.Error("failed to gather context",
			zap.Error(err),
			zap.String("identifier", msg.UserIdentifier))
		return ai.ErrorReply
	}

	reply := p.gateway.Generate(ctx, msg.Text, history, msg.SystemPrompt, knowledgeContext)

	conv := &models.Conversation{
		UserID:    user.ID,
		UserMsg:   msg.Text,
		AIReply:   reply,
		Platform:  msg.Platform,
		ModelUsed: p.gateway.Model(),
	}
	saveCtx, cancelSave := context.WithTimeout(ctx, p.timeout)
	err = p.store.SaveConversation(saveCtx, conv)
	cancelSave()
	if err != nil {
		p.logger.Error("failed to save conversation",
			zap.Error(err),
			zap.Int64("user_id", user.ID))
		return ai.ErrorReply
	}

	p.logger.Info("processed message",
		zap.String("identifier", msg.UserIdentifier),
		zap.String("platform", string(msg.Platform)))
	return reply
}
