package handlers

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/casedesk/smechat/internal/models"
	"github.com/casedesk/smechat/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var startTime = time.Now()

type MetricsHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
}

func NewMetricsHandler(db *gorm.DB, queue services.TaskQueue) *MetricsHandler {
	return &MetricsHandler{db: db, queue: queue}
}

// Metrics returns Prometheus-compatible text format metrics.
func (h *MetricsHandler) Metrics(c *gin.Context) {
	var b strings.Builder

	// -- Runtime metrics --
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeGauge(&b, "smechat_uptime_seconds", "Time since server start in seconds", time.Since(startTime).Seconds())
	writeGauge(&b, "smechat_goroutines", "Number of active goroutines", float64(runtime.NumGoroutine()))
	writeGauge(&b, "smechat_memory_alloc_bytes", "Current heap allocation in bytes", float64(m.Alloc))
	writeGauge(&b, "smechat_gc_runs_total", "Total number of GC runs", float64(m.NumGC))

	// -- Database metrics --
	if sqlDB, err := h.db.DB(); err == nil {
		stats := sqlDB.Stats()
		writeGauge(&b, "smechat_db_open_connections", "Number of open DB connections", float64(stats.OpenConnections))
		writeGauge(&b, "smechat_db_in_use_connections", "Number of in-use DB connections", float64(stats.InUse))
	}

	// -- Queue metrics --
	queueAsync := 0.0
	if h.queue != nil && h.queue.IsAsync() {
		queueAsync = 1.0
	}
	writeGauge(&b, "smechat_queue_async_enabled", "Whether async queue (Redis) is enabled (1=yes, 0=no)", queueAsync)

	// -- Referral metrics --
	var open, resolved, automatic, undelivered int64
	h.db.Model(&models.Referral{}).Where("status = ?", models.ReferralStatusOpen).Count(&open)
	h.db.Model(&models.Referral{}).Where("status = ?", models.ReferralStatusResolved).Count(&resolved)
	h.db.Model(&models.Referral{}).Where("automatic = ?", true).Count(&automatic)
	h.db.Model(&models.Referral{}).Where("notified_at IS NULL AND notify_error <> ''").Count(&undelivered)

	writeGauge(&b, "smechat_referrals_open", "Referrals waiting for an expert", float64(open))
	writeGauge(&b, "smechat_referrals_resolved", "Referrals answered by an expert", float64(resolved))
	writeGauge(&b, "smechat_referrals_automatic", "Referrals raised without user input", float64(automatic))
	writeGauge(&b, "smechat_referrals_undelivered", "Referrals whose expert notification failed", float64(undelivered))

	// -- Feedback (last 24h) --
	since24h := time.Now().Add(-24 * time.Hour)
	var feedbackTotal, feedbackHelpful int64
	h.db.Model(&models.FeedbackEvent{}).Where("created_at >= ?", since24h).Count(&feedbackTotal)
	h.db.Model(&models.FeedbackEvent{}).Where("created_at >= ? AND helpful = ?", since24h, true).Count(&feedbackHelpful)
	writeGauge(&b, "smechat_feedback_24h", "Answer ratings in the last 24 hours", float64(feedbackTotal))
	writeGauge(&b, "smechat_feedback_helpful_24h", "Helpful answer ratings in the last 24 hours", float64(feedbackHelpful))

	c.Data(200, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
}

func writeGauge(b *strings.Builder, name, help string, value float64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s gauge\n", name)
	fmt.Fprintf(b, "%s %g\n\n", name, value)
}
