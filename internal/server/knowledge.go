package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nhasan/chathub/internal/storage"
)

type knowledgeRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

func (s *Server) handleKnowledgeAdd(w http.ResponseWriter, r *http.Request) {
	var req knowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "title and content are required")
		return
	}

	entry, err := s.knowledge.Add(r.Context(), req.Title, req.Content, req.Category)
	if err != nil {
		s.logger.Error("failed to add knowledge", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to add knowledge")
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleKnowledgeList(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	entries, err := s.knowledge.List(r.Context(), r.URL.Query().Get("category"), limit)
	if err != nil {
		s.logger.Error("failed to list knowledge", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list knowledge")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   len(entries),
	})
}

func (s *Server) handleKnowledgeUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid knowledge id")
		return
	}

	var req knowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := s.knowledge.Update(r.Context(), id, req.Title, req.Content, req.Category)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "knowledge entry not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to update knowledge", zap.Error(err), zap.Int64("id", id))
		writeError(w, http.StatusInternalServerError, "failed to update knowledge")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleKnowledgeDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid knowledge id")
		return
	}

	deleted, err := s.knowledge.Delete(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to delete knowledge", zap.Error(err), zap.Int64("id", id))
		writeError(w, http.StatusInternalServerError, "failed to delete knowledge")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "knowledge entry not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Knowledge entry deleted successfully"})
}
