package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nhasan/chathub/internal/models"
	"github.com/nhasan/chathub/internal/pipeline"
)

const telegramSystemPrompt = "You are a helpful Telegram bot assistant. Be friendly and use emojis when appropriate."

// TelegramAPI is the slice of the bot API the webhook handler needs;
// *tgbotapi.BotAPI satisfies it.
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetWebhookInfo() (tgbotapi.WebhookInfo, error)
}

// TelegramHandler bridges Telegram webhook updates into the pipeline and
// delivers replies through the bot API.
type TelegramHandler struct {
	api        TelegramAPI
	pipeline   *pipeline.Pipeline
	webhookURL string
	logger     *zap.Logger
}

func NewTelegramHandler(api TelegramAPI, p *pipeline.Pipeline, webhookURL string, logger *zap.Logger) *TelegramHandler {
	return &TelegramHandler{
		api:        api,
		pipeline:   p,
		webhookURL: webhookURL,
		logger:     logger,
	}
}

// handleWebhook acknowledges every update with 200 regardless of internal
// outcome; Telegram retries unacked webhooks and would flood the service.
func (h *TelegramHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.logger.Error("failed to decode telegram update", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	if update.Message == nil || update.Message.From == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	msg := update.Message
	identifier := telegramIdentifier(msg.From)

	reply := h.pipeline.Process(r.Context(), pipeline.Inbound{
		UserIdentifier: identifier,
		Platform:       models.PlatformTelegram,
		Text:           msg.Text,
		DisplayName:    msg.From.FirstName,
		SystemPrompt:   telegramSystemPrompt,
	})

	if reply != "" {
		out := tgbotapi.NewMessage(msg.Chat.ID, reply)
		if _, err := h.api.Send(out); err != nil {
			h.logger.Error("failed to send telegram reply",
				zap.Error(err),
				zap.Int64("chat_id", msg.Chat.ID))
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// telegramIdentifier prefers the stable username, falling back to the numeric
// user id for accounts without one.
func telegramIdentifier(from *tgbotapi.User) string {
	if from.UserName != "" {
		return "@" + from.UserName
	}
	return "tg:" + strconv.FormatInt(from.ID, 10)
}

func (h *TelegramHandler) handleSetup(w http.ResponseWriter, _ *http.Request) {
	if h.webhookURL == "" {
		writeError(w, http.StatusBadRequest, "telegram webhook url is not configured")
		return
	}

	wh, err := tgbotapi.NewWebhook(h.webhookURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "invalid webhook url")
		return
	}
	if _, err := h.api.Request(wh); err != nil {
		h.logger.Error("failed to set telegram webhook", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to setup telegram webhook")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "Telegram webhook setup successfully",
		"webhook_url": h.webhookURL,
	})
}

func (h *TelegramHandler) handleWebhookInfo(w http.ResponseWriter, _ *http.Request) {
	info, err := h.api.GetWebhookInfo()
	if err != nil {
		h.logger.Error("failed to get telegram webhook info", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get webhook info")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"webhook_info": info,
	})
}

func (h *TelegramHandler) handleSendTest(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(r.URL.Query().Get("chat_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	message := r.URL.Query().Get("message")
	if message == "" {
		message = defaultTestMessage
	}

	if _, err := h.api.Send(tgbotapi.NewMessage(chatID, message)); err != nil {
		h.logger.Error("failed to send test telegram message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "Failed to send test message",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Test message sent to chat_id: %d", chatID),
	})
}

func (h *TelegramHandler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	info, err := h.api.GetWebhookInfo()
	if err != nil {
		h.logger.Error("failed to get telegram webhook info", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "error",
			"message": "Failed to check telegram status",
		})
		return
	}

	webhookURL := info.URL
	if webhookURL == "" {
		webhookURL = "Not set"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "active",
		"message":     "Telegram integration is active",
		"webhook_set": info.URL != "",
		"webhook_url": webhookURL,
	})
}

func (h *TelegramHandler) handleDeleteWebhook(w http.ResponseWriter, _ *http.Request) {
	if _, err := h.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		h.logger.Error("failed to delete telegram webhook", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete telegram webhook")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Telegram webhook deleted successfully",
	})
}
