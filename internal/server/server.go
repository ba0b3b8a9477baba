// Package server exposes the HTTP surface: website chat REST endpoints,
// Telegram and WhatsApp webhooks, knowledge base CRUD, and a health probe.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/nhasan/chathub/internal/auth"
	"github.com/nhasan/chathub/internal/knowledge"
	"github.com/nhasan/chathub/internal/pipeline"
	"github.com/nhasan/chathub/internal/ratelimit"
	"github.com/nhasan/chathub/internal/storage"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	pipeline  *pipeline.Pipeline
	store     storage.UserStore
	knowledge *knowledge.Service
	limiter   *ratelimit.Limiter
	auth      *auth.Service
	telegram  *TelegramHandler
	twilio    *TwilioClient
	info      Info
	logger    *zap.Logger
}

func New(
	p *pipeline.Pipeline,
	store storage.UserStore,
	knowledgeService *knowledge.Service,
	limiter *ratelimit.Limiter,
	authService *auth.Service,
	telegram *TelegramHandler,
	twilio *TwilioClient,
	info Info,
	logger *zap.Logger,
) *Server {
	return &Server{
		pipeline:  p,
		store:     store,
		knowledge: knowledgeService,
		limiter:   limiter,
		auth:      authService,
		telegram:  telegram,
		twilio:    twilio,
		info:      info,
		logger:    logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(ratelimit.Middleware(s.limiter, map[string]bool{"/health": true}, s.logger))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)
	r.Get("/config", s.handleConfig)

	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/send", s.handleWebsiteSend)
		r.Get("/history/{sessionID}", s.handleWebsiteHistory)
		r.Delete("/history/{sessionID}", s.handleWebsiteDeleteHistory)
		r.Get("/stats/{sessionID}", s.handleWebsiteStats)
	})

	r.Route("/api/knowledge", func(r chi.Router) {
		r.Get("/", s.handleKnowledgeList)
		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Post("/", s.handleKnowledgeAdd)
			r.Put("/{id}", s.handleKnowledgeUpdate)
			r.Delete("/{id}", s.handleKnowledgeDelete)
		})
	})

	r.Route("/whatsapp", func(r chi.Router) {
		r.Post("/webhook", s.handleWhatsAppWebhook)
		r.Get("/status", s.handleWhatsAppStatus)
		r.Post("/send-test", s.handleWhatsAppSendTest)
	})

	if s.telegram != nil {
		r.Route("/telegram", func(r chi.Router) {
			r.Post("/webhook", s.telegram.handleWebhook)
			r.Get("/setup", s.telegram.handleSetup)
			r.Get("/status", s.telegram.handleStatus)
			r.Get("/webhook-info", s.telegram.handleWebhookInfo)
			r.Post("/send-test", s.telegram.handleSendTest)
			r.Delete("/webhook", s.telegram.handleDeleteWebhook)
		})
	}

	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

// requireToken guards mutation routes with a bearer token when a secret key
// is configured; without one the routes stay open, matching local setups.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil || !s.auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if _, err := s.auth.VerifyToken(header[len(prefix):]); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
