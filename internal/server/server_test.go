package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nhasan/chathub/internal/auth"
	"github.com/nhasan/chathub/internal/knowledge"
	"github.com/nhasan/chathub/internal/models"
	"github.com/nhasan/chathub/internal/pipeline"
	"github.com/nhasan/chathub/internal/ratelimit"
	"github.com/nhasan/chathub/internal/storage"
)

type echoGateway struct{}

func (echoGateway) Generate(_ context.Context, message string, _ []models.ChatMessage, _, _ string) string {
	return "echo: " + message
}

func (echoGateway) Model() string { return "test-model" }

type noEmbedder struct{}

func (noEmbedder) Embedding(_ context.Context, _ string) []float32 { return nil }

type testEnv struct {
	server *Server
	store  *storage.MemoryStorage
}

func newTestEnv(t *testing.T, authService *auth.Service, telegram *TelegramHandler) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	store := storage.NewMemoryStorage()
	knowledgeService := knowledge.NewService(store, noEmbedder{}, logger)
	p := pipeline.New(store, knowledgeService, echoGateway{}, 10, time.Second, logger)
	limiter := ratelimit.New(1000, time.Minute)
	info := Info{
		Provider:          "groq",
		Model:             "test-model",
		MaxHistory:        10,
		Temperature:       0.7,
		MaxTokens:         1000,
		RateLimitRequests: 1000,
	}
	return &testEnv{
		server: New(p, store, knowledgeService, limiter, authService, telegram, nil, info, logger),
		store:  store,
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	router := newTestEnv(t, nil, nil).server.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf(`body = %v, want {"status":"ok"}`, body)
	}
}

func TestWebsiteSend(t *testing.T) {
	router := newTestEnv(t, nil, nil).server.Router()

	rec := postJSON(t, router, "/api/chat/send", chatRequest{Message: "hello", SessionID: "s1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	decodeBody(t, rec, &resp)
	if resp.Message != "echo: hello" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.SessionID != "s1" {
		t.Errorf("session_id = %q, want %q", resp.SessionID, "s1")
	}
}

func TestWebsiteSendGeneratesSession(t *testing.T) {
	router := newTestEnv(t, nil, nil).server.Router()

	rec := postJSON(t, router, "/api/chat/send", chatRequest{Message: "hello"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp chatResponse
	decodeBody(t, rec, &resp)
	if resp.SessionID == "" {
		t.Error("expected a generated session id")
	}
}

func TestWebsiteHistoryAndDelete(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	router := env.server.Router()

	postJSON(t, router, "/api/chat/send", chatRequest{Message: "first", SessionID: "s1"})
	postJSON(t, router, "/api/chat/send", chatRequest{Message: "second", SessionID: "s1"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/history/s1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var history struct {
		SessionID     string               `json:"session_id"`
		Conversations []models.ChatMessage `json:"conversations"`
		Total         int                  `json:"total"`
	}
	decodeBody(t, rec, &history)
	if history.Total != 4 {
		t.Errorf("total = %d, want 4 (two turns)", history.Total)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/chat/history/s1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/chat/history/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete unknown session status = %d, want 404", rec.Code)
	}
}

func TestWebsiteStats(t *testing.T) {
	router := newTestEnv(t, nil, nil).server.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/stats/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("stats for unknown session status = %d, want 404", rec.Code)
	}

	postJSON(t, router, "/api/chat/send", chatRequest{Message: "hi", SessionID: "s1"})

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/stats/s1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats models.UserStats
	decodeBody(t, rec, &stats)
	if stats.TotalConversations != 1 {
		t.Errorf("total_conversations = %d, want 1", stats.TotalConversations)
	}
}

func TestWhatsAppWebhook(t *testing.T) {
	router := newTestEnv(t, nil, nil).server.Router()

	form := url.Values{"Body": {"hello"}, "From": {"whatsapp:+1 (415) 555-0100"}}
	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "<Message>echo: hello</Message>") {
		t.Errorf("body = %q, want TwiML message", rec.Body.String())
	}
}

func TestWhatsAppWebhookEmptyBody(t *testing.T) {
	router := newTestEnv(t, nil, nil).server.Router()

	form := url.Values{"Body": {"  "}, "From": {"whatsapp:+14155550100"}}
	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<Response></Response>") {
		t.Errorf("body = %q, want empty TwiML response", rec.Body.String())
	}
}

func TestCleanPhoneNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"whatsapp:+14155550100", "+14155550100"},
		{"whatsapp:+1 (415) 555-0100", "+14155550100"},
		{"+44 20 7946 0958", "+442079460958"},
	}
	for _, tc := range cases {
		if got := cleanPhoneNumber(tc.in); got != tc.want {
			t.Errorf("cleanPhoneNumber(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

type fakeTelegramAPI struct {
	sent       []tgbotapi.Chattable
	webhookURL string
}

func (f *fakeTelegramAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegramAPI) Request(_ tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegramAPI) GetWebhookInfo() (tgbotapi.WebhookInfo, error) {
	return tgbotapi.WebhookInfo{URL: f.webhookURL}, nil
}

func TestTelegramWebhook(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	api := &fakeTelegramAPI{}
	env.server.telegram = NewTelegramHandler(api, pipelineOf(env), "", zap.NewNop())
	router := env.server.Router()

	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text: "hello bot",
			From: &tgbotapi.User{ID: 7, UserName: "alice"},
			Chat: &tgbotapi.Chat{ID: 42},
		},
	}
	rec := postJSON(t, router, "/telegram/webhook", update)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var ack map[string]bool
	decodeBody(t, rec, &ack)
	if !ack["ok"] {
		t.Errorf("ack = %v", ack)
	}
	if len(api.sent) != 1 {
		t.Fatalf("sent messages = %d, want 1", len(api.sent))
	}
	out, ok := api.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T, want MessageConfig", api.sent[0])
	}
	if out.ChatID != 42 || out.Text != "echo: hello bot" {
		t.Errorf("sent message = %+v", out)
	}

	if history, _ := env.store.GetHistory(context.Background(), "@alice", 10); len(history) != 2 {
		t.Errorf("stored history = %d messages, want 2", len(history))
	}
}

func TestTelegramWebhookMalformedPayload(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.server.telegram = NewTelegramHandler(&fakeTelegramAPI{}, pipelineOf(env), "", zap.NewNop())
	router := env.server.Router()

	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Telegram must always get a 200 ack or it retries the update.
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestTelegramIdentifier(t *testing.T) {
	if got := telegramIdentifier(&tgbotapi.User{ID: 7, UserName: "alice"}); got != "@alice" {
		t.Errorf("identifier = %q, want %q", got, "@alice")
	}
	if got := telegramIdentifier(&tgbotapi.User{ID: 7}); got != "tg:7" {
		t.Errorf("identifier = %q, want %q", got, "tg:7")
	}
}

func TestKnowledgeCRUDEndpoints(t *testing.T) {
	router := newTestEnv(t, nil, nil).server.Router()

	rec := postJSON(t, router, "/api/knowledge/", knowledgeRequest{Title: "Hours", Content: "Open 9 to 5.", Category: "faq"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created models.KnowledgeEntry
	decodeBody(t, rec, &created)
	if created.ID == 0 {
		t.Fatal("expected a non-zero id")
	}

	rec = postJSON(t, router, "/api/knowledge/", knowledgeRequest{Title: "NoContent"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("add without content status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/knowledge/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed struct {
		Entries []models.KnowledgeEntry `json:"entries"`
		Total   int                     `json:"total"`
	}
	decodeBody(t, rec, &listed)
	if listed.Total != 1 {
		t.Errorf("total = %d, want 1", listed.Total)
	}

	body, _ := json.Marshal(knowledgeRequest{Content: "Open 8 to 6."})
	req := httptest.NewRequest(http.MethodPut, "/api/knowledge/1", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/knowledge/999", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("update unknown id status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/knowledge/1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/knowledge/1", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("repeated delete status = %d, want 404", rec.Code)
	}
}

func TestKnowledgeMutationRequiresToken(t *testing.T) {
	authService := auth.NewService("test-secret", time.Hour)
	router := newTestEnv(t, authService, nil).server.Router()

	rec := postJSON(t, router, "/api/knowledge/", knowledgeRequest{Title: "Hours", Content: "Open 9 to 5."})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated add status = %d, want 401", rec.Code)
	}

	// Reads stay open.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/knowledge/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("unauthenticated list status = %d, want 200", rec.Code)
	}

	token, err := authService.CreateAccessToken("admin")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := json.Marshal(knowledgeRequest{Title: "Hours", Content: "Open 9 to 5."})
	req := httptest.NewRequest(http.MethodPost, "/api/knowledge/", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Errorf("authenticated add status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
}

func TestRootEndpoint(t *testing.T) {
	router := newTestEnv(t, nil, nil).server.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "running" {
		t.Errorf("status field = %v, want running", body["status"])
	}
	if body["ai_provider"] != "groq" {
		t.Errorf("ai_provider = %v, want groq", body["ai_provider"])
	}
	if _, ok := body["endpoints"]; !ok {
		t.Error("root body should list endpoints")
	}
}

func TestInfoEndpoint(t *testing.T) {
	router := newTestEnv(t, nil, nil).server.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		AIConfig  map[string]any      `json:"ai_config"`
		Platforms []map[string]string `json:"platforms"`
	}
	decodeBody(t, rec, &body)
	if body.AIConfig["provider"] != "groq" {
		t.Errorf("ai_config.provider = %v", body.AIConfig["provider"])
	}
	if len(body.Platforms) != 3 {
		t.Fatalf("platforms = %d, want 3", len(body.Platforms))
	}
	// Neither telegram nor twilio is wired in this env.
	for _, p := range body.Platforms {
		want := "active"
		if p["name"] != "Website" {
			want = "inactive"
		}
		if p["status"] != want {
			t.Errorf("platform %s status = %q, want %q", p["name"], p["status"], want)
		}
	}
}

func TestConfigEndpoint(t *testing.T) {
	router := newTestEnv(t, nil, nil).server.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ai_provider"] != "groq" {
		t.Errorf("ai_provider = %v", body["ai_provider"])
	}
	if body["whatsapp_configured"] != false || body["telegram_configured"] != false {
		t.Errorf("configured flags = %v/%v, want false/false",
			body["whatsapp_configured"], body["telegram_configured"])
	}
	for _, secret := range []string{"auth_token", "secret_key", "api_key"} {
		if _, ok := body[secret]; ok {
			t.Errorf("config exposes %q", secret)
		}
	}
}

func TestTelegramStatusAndSendTest(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	api := &fakeTelegramAPI{webhookURL: "https://example.com/telegram/webhook"}
	env.server.telegram = NewTelegramHandler(api, pipelineOf(env), "", zap.NewNop())
	router := env.server.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/telegram/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d, want 200", rec.Code)
	}
	var status map[string]any
	decodeBody(t, rec, &status)
	if status["webhook_set"] != true {
		t.Errorf("webhook_set = %v, want true", status["webhook_set"])
	}
	if status["webhook_url"] != "https://example.com/telegram/webhook" {
		t.Errorf("webhook_url = %v", status["webhook_url"])
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/send-test?chat_id=42", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("send-test = %d, want 200", rec.Code)
	}
	var result map[string]any
	decodeBody(t, rec, &result)
	if result["success"] != true {
		t.Fatalf("send-test result = %v", result)
	}
	if len(api.sent) != 1 {
		t.Fatalf("sent messages = %d, want 1", len(api.sent))
	}
	out := api.sent[0].(tgbotapi.MessageConfig)
	if out.ChatID != 42 || out.Text != defaultTestMessage {
		t.Errorf("sent message = %+v", out)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/send-test", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("send-test without chat_id = %d, want 400", rec.Code)
	}
}

func TestWhatsAppStatus(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	router := env.server.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whatsapp/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "inactive" {
		t.Errorf("status = %q, want inactive without twilio", body["status"])
	}

	env.server.twilio = NewTwilioClient("AC123", "token", "whatsapp:+14155550100")
	rec = httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whatsapp/status", nil))
	decodeBody(t, rec, &body)
	if body["status"] != "active" || body["from_number"] != "whatsapp:+14155550100" {
		t.Errorf("status body = %v", body)
	}
}

func TestWhatsAppSendTest(t *testing.T) {
	var gotForm url.Values
	var gotUser string
	twilioAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotForm = r.PostForm
		gotUser, _, _ = r.BasicAuth()
		w.WriteHeader(http.StatusCreated)
	}))
	defer twilioAPI.Close()

	env := newTestEnv(t, nil, nil)
	client := NewTwilioClient("AC123", "token", "whatsapp:+14155550100")
	client.baseURL = twilioAPI.URL
	env.server.twilio = client
	router := env.server.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/whatsapp/send-test?to_number=%2B8801712345678", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("send-test = %d, want 200", rec.Code)
	}
	var result map[string]any
	decodeBody(t, rec, &result)
	if result["success"] != true {
		t.Fatalf("send-test result = %v", result)
	}
	// The whatsapp: prefix is added for bare numbers.
	if gotForm.Get("To") != "whatsapp:+8801712345678" {
		t.Errorf("To = %q", gotForm.Get("To"))
	}
	if gotForm.Get("From") != "whatsapp:+14155550100" {
		t.Errorf("From = %q", gotForm.Get("From"))
	}
	if gotForm.Get("Body") != defaultTestMessage {
		t.Errorf("Body = %q", gotForm.Get("Body"))
	}
	if gotUser != "AC123" {
		t.Errorf("basic auth user = %q", gotUser)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/whatsapp/send-test", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("send-test without to_number = %d, want 400", rec.Code)
	}
}

// pipelineOf rebuilds the pipeline wired into env for handlers constructed
// after the fact in tests.
func pipelineOf(env *testEnv) *pipeline.Pipeline {
	return pipeline.New(env.store, knowledge.NewService(env.store, noEmbedder{}, zap.NewNop()), echoGateway{}, 10, time.Second, zap.NewNop())
}
