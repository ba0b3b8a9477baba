package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhasan/chathub/internal/models"
	"github.com/nhasan/chathub/internal/pipeline"
)

const websiteSystemPrompt = "You are a helpful AI assistant for a website chatbot. Be friendly and concise."

const defaultHistoryPageSize = 50

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	UserName  string `json:"user_name"`
}

type chatResponse struct {
	Message   string    `json:"message"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleWebsiteSend(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	reply := s.pipeline.Process(r.Context(), pipeline.Inbound{
		UserIdentifier: sessionID,
		Platform:       models.PlatformWebsite,
		Text:           req.Message,
		DisplayName:    req.UserName,
		SystemPrompt:   websiteSystemPrompt,
	})

	writeJSON(w, http.StatusOK, chatResponse{
		Message:   reply,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleWebsiteHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	limit := defaultHistoryPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	history, err := s.store.GetHistory(r.Context(), sessionID, limit)
	if err != nil {
		s.logger.Error("failed to fetch history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get chat history")
		return
	}
	if history == nil {
		history = []models.ChatMessage{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    sessionID,
		"conversations": history,
		"total":         len(history),
	})
}

func (s *Server) handleWebsiteDeleteHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	deleted, err := s.store.DeleteUserHistory(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to delete history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete chat history")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat history deleted successfully"})
}

func (s *Server) handleWebsiteStats(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	stats, err := s.store.GetUserStats(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to fetch stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get session stats")
		return
	}
	if stats == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
