package server

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/nhasan/chathub/internal/models"
	"github.com/nhasan/chathub/internal/pipeline"
)

const whatsappSystemPrompt = "You are a helpful WhatsApp assistant. Keep responses concise and friendly."

const defaultTestMessage = "Hello! This is a test message from your AI chatbot."

// twiml is the minimal Twilio messaging response document.
type twiml struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// handleWhatsAppWebhook receives Twilio's form-encoded webhook and answers
// with TwiML. Twilio retries non-2xx responses, so even internal failures
// produce a well-formed 200 reply.
func (s *Server) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeTwiML(w, "Sorry, I encountered an error. Please try again later.")
		return
	}

	body := r.PostFormValue("Body")
	from := r.PostFormValue("From")

	reply := s.pipeline.Process(r.Context(), pipeline.Inbound{
		UserIdentifier: cleanPhoneNumber(from),
		Platform:       models.PlatformWhatsApp,
		Text:           body,
		SystemPrompt:   whatsappSystemPrompt,
	})
	if reply == "" {
		// Empty inbound text; ack without a message body.
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(xml.Header + "<Response></Response>"))
		return
	}

	writeTwiML(w, reply)
}

func writeTwiML(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xml.Header))
	xml.NewEncoder(w).Encode(twiml{Message: message})
}

func (s *Server) handleWhatsAppStatus(w http.ResponseWriter, _ *http.Request) {
	if s.twilio == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "inactive",
			"message": "WhatsApp integration is not configured",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "active",
		"message":     "WhatsApp integration is active",
		"from_number": s.twilio.FromNumber(),
	})
}

func (s *Server) handleWhatsAppSendTest(w http.ResponseWriter, r *http.Request) {
	if s.twilio == nil {
		writeError(w, http.StatusBadRequest, "whatsapp integration is not configured")
		return
	}

	to := r.URL.Query().Get("to_number")
	if to == "" {
		writeError(w, http.StatusBadRequest, "to_number is required")
		return
	}
	if !strings.HasPrefix(to, "whatsapp:") {
		to = "whatsapp:" + to
	}
	message := r.URL.Query().Get("message")
	if message == "" {
		message = defaultTestMessage
	}

	if err := s.twilio.SendMessage(r.Context(), to, message); err != nil {
		s.logger.Error("failed to send test whatsapp message", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "Failed to send test message",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Test message sent to %s", to),
	})
}

// cleanPhoneNumber strips Twilio's "whatsapp:" prefix and any formatting,
// keeping digits and a leading plus.
func cleanPhoneNumber(phone string) string {
	phone = strings.TrimPrefix(phone, "whatsapp:")
	var sb strings.Builder
	for _, c := range phone {
		if (c >= '0' && c <= '9') || c == '+' {
			sb.WriteRune(c)
		}
	}
	return sb.String()
}
