package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/casedesk/smechat/internal/config"
	"github.com/casedesk/smechat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := models.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, logger.Silent)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// webhookRecorder is an IM webhook that stores every JSON payload it receives.
type webhookRecorder struct {
	mu       sync.Mutex
	status   int
	payloads []map[string]interface{}
	urls     []string
	server   *httptest.Server
}

func newWebhookRecorder(t *testing.T) *webhookRecorder {
	t.Helper()
	rec := &webhookRecorder{status: http.StatusOK}
	rec.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		rec.mu.Lock()
		rec.payloads = append(rec.payloads, body)
		rec.urls = append(rec.urls, r.URL.String())
		status := rec.status
		rec.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(rec.server.Close)
	return rec
}

func (r *webhookRecorder) setStatus(code int) {
	r.mu.Lock()
	r.status = code
	r.mu.Unlock()
}

func (r *webhookRecorder) Payloads() []map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]interface{}(nil), r.payloads...)
}

func (r *webhookRecorder) URLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.urls...)
}

func (r *webhookRecorder) notifier(typ string) *NotificationService {
	return NewNotificationService(&config.NotificationConfig{Type: typ, Webhook: r.server.URL + "/hook?token=x"}, r.server.Client())
}

// recordingQueue captures enqueued tasks without processing them.
type recordingQueue struct {
	mu    sync.Mutex
	tasks []*ReferralTask
	err   error
}

func (q *recordingQueue) Enqueue(task *ReferralTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return q.err
}

func (q *recordingQueue) IsAsync() bool { return false }
func (q *recordingQueue) Close() error  { return nil }

// stubCompleter answers from a per-provider table.
type stubCompleter struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []string
	prompts []string
}

func (c *stubCompleter) Complete(ctx context.Context, p *config.LLMProviderConfig, system, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, p.Name)
	c.prompts = append(c.prompts, prompt)
	if err := c.errs[p.Name]; err != nil {
		return "", err
	}
	return c.replies[p.Name], nil
}
