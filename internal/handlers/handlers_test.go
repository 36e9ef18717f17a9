package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/casedesk/smechat/internal/config"
	"github.com/casedesk/smechat/internal/middleware"
	"github.com/casedesk/smechat/internal/models"
	"github.com/casedesk/smechat/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := models.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, logger.Silent)
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := models.Migrate(db); err != nil {
		t.Fatal(err)
	}
	if err := models.SeedGuidance(db); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	queue := services.NewSyncQueue()
	answers := services.NewAnswerService(db, &cfg.Assistant, &cfg.LLM, nil)
	referrals := services.NewReferralService(db, queue, services.NewNotificationService(&cfg.Notification, nil))

	health := NewHealthHandler(db, queue, &cfg.Assistant, answers)
	assistant := NewAssistantHandler(answers, services.NewFeedbackService(db))
	referral := NewReferralHandler(referrals)
	metrics := NewMetricsHandler(db, queue)

	r := gin.New()
	r.Use(middleware.ClientIdentity())
	r.GET("/health", health.CheckHealth)
	r.GET("/metrics", metrics.Metrics)
	r.POST("/query", assistant.Query)
	r.POST("/feedback", assistant.Feedback)
	r.POST("/referral", referral.Create)
	r.GET("/referrals/mine", referral.Mine)
	r.POST("/referrals/:id/resolve", referral.Resolve)
	return &testServer{router: r, db: db}
}

func (s *testServer) do(method, path string, form url.Values, clientKey string) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req, _ = http.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}
	if clientKey != "" {
		req.AddCookie(&http.Cookie{Name: middleware.ClientCookieName, Value: clientKey})
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body
}

var (
	clientA = strings.Repeat("a1", 16)
	clientB = strings.Repeat("b2", 16)
)

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do("GET", "/health", nil, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode(t, w)
	if body["status"] != "healthy" || body["bot_name"] != "Assistant" || body["service"] != "sme-assistant" {
		t.Errorf("body = %v", body)
	}
	if body["auto_yes_ms"] != float64(10000) {
		t.Errorf("auto_yes_ms = %v", body["auto_yes_ms"])
	}
	if body["llm_backend"] != "retrieval" {
		t.Errorf("llm_backend = %v", body["llm_backend"])
	}
	components, _ := body["components"].(map[string]interface{})
	if components["database"] != "ok" || components["queue_mode"] != "sync" {
		t.Errorf("components = %v", components)
	}
}

func TestQuery(t *testing.T) {
	s := newTestServer(t)

	w := s.do("POST", "/query", url.Values{"q": {"Can I expense a taxi?"}}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["is_fallback"] != false {
		t.Errorf("is_fallback = %v", body["is_fallback"])
	}
	if a, _ := body["answer"].(string); !strings.Contains(a, "Finance Policy FP-12") {
		t.Errorf("answer = %q", a)
	}
	if _, ok := body["code"]; ok {
		t.Error("/query should return the bare answer object")
	}
}

func TestQuery_NoGuidanceIsFallback(t *testing.T) {
	s := newTestServer(t)
	body := decode(t, s.do("POST", "/query", url.Values{"q": {"What colour is the CEO's car?"}}, ""))

	if body["is_fallback"] != true || body["answer"] != services.FallbackAnswer {
		t.Errorf("body = %v", body)
	}
	if sources, ok := body["sources"].([]interface{}); !ok || len(sources) != 0 {
		t.Errorf("sources = %#v", body["sources"])
	}
}

func TestQuery_Validation(t *testing.T) {
	s := newTestServer(t)
	if w := s.do("POST", "/query", url.Values{"q": {"   "}}, ""); w.Code != http.StatusBadRequest {
		t.Errorf("blank q: status = %d", w.Code)
	}
	long := strings.Repeat("x", maxQuestionLength+1)
	if w := s.do("POST", "/query", url.Values{"q": {long}}, ""); w.Code != http.StatusBadRequest {
		t.Errorf("long q: status = %d", w.Code)
	}
}

func TestFeedback(t *testing.T) {
	s := newTestServer(t)
	w := s.do("POST", "/feedback", url.Values{
		"q":          {"Taxi?"},
		"answer":     {"Yes."},
		"helpful":    {"false"},
		"session_id": {"sess-1"},
	}, clientA)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var ev models.FeedbackEvent
	if err := s.db.First(&ev).Error; err != nil {
		t.Fatal(err)
	}
	if ev.Helpful || ev.SessionID != "sess-1" || ev.ClientKey != clientA {
		t.Errorf("stored = %+v", ev)
	}

	if w := s.do("POST", "/feedback", url.Values{"helpful": {"maybe"}}, ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad helpful: status = %d", w.Code)
	}
}

func TestReferral_CreateAndListMine(t *testing.T) {
	s := newTestServer(t)

	w := s.do("POST", "/referral", url.Values{
		"reason":   {"Policy unclear for contractors."},
		"question": {"Taxi?"},
		"answer":   {"Yes."},
	}, clientA)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode(t, w)
	data, _ := body["data"].(map[string]interface{})
	ref, _ := data["reference"].(string)
	if body["code"] != float64(0) || !strings.HasPrefix(ref, "REF-") {
		t.Fatalf("body = %v", body)
	}
	if body["message"] != "Referral "+ref+" submitted to a subject-matter expert." {
		t.Errorf("message = %v", body["message"])
	}

	s.do("POST", "/referral", url.Values{"reason": {"other client"}}, clientB)

	list := decode(t, s.do("GET", "/referrals/mine", nil, clientA))
	items, _ := list["data"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("client A sees %d referrals, expected 1", len(items))
	}
	item := items[0].(map[string]interface{})
	if item["reference"] != ref || item["status"] != "open" {
		t.Errorf("item = %v", item)
	}
	if _, leaked := item["client_key"]; leaked {
		t.Error("client key must not be serialised")
	}
}

func TestReferral_Resolve(t *testing.T) {
	s := newTestServer(t)
	body := decode(t, s.do("POST", "/referral", url.Values{"reason": {"r"}}, clientA))
	id := int(body["data"].(map[string]interface{})["id"].(float64))
	path := fmt.Sprintf("/referrals/%d/resolve", id)

	tests := []struct {
		name     string
		path     string
		response string
		want     int
	}{
		{"invalid id", "/referrals/abc/resolve", "x", http.StatusBadRequest},
		{"empty response", path, " ", http.StatusBadRequest},
		{"unknown referral", "/referrals/9999/resolve", "x", http.StatusNotFound},
		{"resolved", path, "Use the contractor policy.", http.StatusOK},
		{"already resolved", path, "again", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do("POST", tt.path, url.Values{"response": {tt.response}}, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, expected %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	list := decode(t, s.do("GET", "/referrals/mine", nil, clientA))
	item := list["data"].([]interface{})[0].(map[string]interface{})
	if item["status"] != "resolved" || item["response"] != "Use the contractor policy." {
		t.Errorf("item = %v", item)
	}
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t)
	s.do("POST", "/referral", url.Values{"reason": {services.AutoReferralPrefix + " no answer"}}, clientA)

	w := s.do("GET", "/metrics", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	out := w.Body.String()
	for _, want := range []string{"smechat_referrals_open 1", "smechat_referrals_automatic 1", "smechat_queue_async_enabled 0"} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
