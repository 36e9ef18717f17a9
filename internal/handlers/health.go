package handlers

import (
	"github.com/casedesk/smechat/internal/config"
	"github.com/casedesk/smechat/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports subsystem status and publishes the widget settings.
type HealthHandler struct {
	db        *gorm.DB
	queue     services.TaskQueue
	assistant config.AssistantConfig
	backend   string
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, assistant *config.AssistantConfig, answers *services.AnswerService) *HealthHandler {
	return &HealthHandler{
		db:        db,
		queue:     queue,
		assistant: *assistant,
		backend:   answers.BackendName(),
	}
}

// CheckHealth handles GET /health. Clients read bot_name and auto_yes_ms from
// it, so the body is returned even when a component is down.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	c.JSON(200, gin.H{
		"status":      overall,
		"service":     h.assistant.ServiceName,
		"bot_name":    h.assistant.BotName,
		"auto_yes_ms": h.assistant.AutoYesMs,
		"llm_backend": h.backend,
		"components": gin.H{
			"database":   dbStatus,
			"queue_mode": queueMode,
		},
	})
}
