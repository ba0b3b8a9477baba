package server

import "net/http"

const apiVersion = "1.0.0"

// Info is the non-sensitive runtime configuration surfaced by the
// introspection endpoints. Secrets never pass through here.
type Info struct {
	Provider          string
	Model             string
	MaxHistory        int
	Temperature       float64
	MaxTokens         int
	RateLimitRequests int
	RedisConfigured   bool
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "AI Chatbot System API",
		"version":     apiVersion,
		"status":      "running",
		"ai_provider": s.info.Provider,
		"ai_model":    s.info.Model,
		"endpoints": map[string]any{
			"website_chat": map[string]string{
				"send_message":   "POST /api/chat/send",
				"get_history":    "GET /api/chat/history/{session_id}",
				"delete_history": "DELETE /api/chat/history/{session_id}",
			},
			"whatsapp": map[string]string{
				"webhook": "POST /whatsapp/webhook",
				"status":  "GET /whatsapp/status",
				"test":    "POST /whatsapp/send-test",
			},
			"telegram": map[string]string{
				"webhook": "POST /telegram/webhook",
				"setup":   "GET /telegram/setup",
				"status":  "GET /telegram/status",
				"test":    "POST /telegram/send-test",
			},
		},
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"app_name":    "AI Chatbot System",
		"version":     apiVersion,
		"description": "Multi-platform AI chatbot",
		"ai_config": map[string]any{
			"provider":    s.info.Provider,
			"model":       s.info.Model,
			"max_history": s.info.MaxHistory,
			"temperature": s.info.Temperature,
		},
		"platforms": []map[string]string{
			{"name": "Website", "status": "active", "endpoint": "/api/chat/send"},
			{"name": "WhatsApp", "status": platformStatus(s.twilio != nil), "endpoint": "/whatsapp/webhook"},
			{"name": "Telegram", "status": platformStatus(s.telegram != nil), "endpoint": "/telegram/webhook"},
		},
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ai_provider":              s.info.Provider,
		"ai_model":                 s.info.Model,
		"max_conversation_history": s.info.MaxHistory,
		"temperature":              s.info.Temperature,
		"max_tokens":               s.info.MaxTokens,
		"rate_limit_requests":      s.info.RateLimitRequests,
		"whatsapp_configured":      s.twilio != nil,
		"telegram_configured":      s.telegram != nil,
		"redis_configured":         s.info.RedisConfigured,
	})
}

func platformStatus(configured bool) string {
	if configured {
		return "active"
	}
	return "inactive"
}
