package main

import (
	"github.com/casedesk/smechat/internal/handlers"
	"github.com/casedesk/smechat/internal/middleware"
	"github.com/casedesk/smechat/internal/models"
	"github.com/casedesk/smechat/pkg/logger"
	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all HTTP routes on the given Gin engine. The returned
// limiter must be stopped on shutdown.
func registerRoutes(r *gin.Engine, svc *appServices) *middleware.RateLimiter {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(svc.cfg.Server.CORSOrigins))
	r.Use(middleware.ClientIdentity())

	// Rate limiter for the routes that reach the LLM or notify experts
	limiter := middleware.NewRateLimiter(svc.cfg.Server.QueryRPS, svc.cfg.Server.QueryBurst)

	db := models.GetDB()
	health := handlers.NewHealthHandler(db, svc.taskQueue, &svc.cfg.Assistant, svc.answers)
	metrics := handlers.NewMetricsHandler(db, svc.taskQueue)
	assistant := handlers.NewAssistantHandler(svc.answers, svc.feedback)
	referral := handlers.NewReferralHandler(svc.referrals)

	r.GET("/health", health.CheckHealth)
	r.GET("/metrics", metrics.Metrics)
	r.POST("/feedback", assistant.Feedback)
	r.GET("/referrals/mine", referral.Mine)
	r.POST("/referrals/:id/resolve", middleware.SMERequired(svc.cfg.Server.SMEToken), referral.Resolve)

	limited := r.Group("", limiter.Middleware())
	{
		limited.POST("/query", assistant.Query)
		limited.POST("/referral", referral.Create)
	}

	return limiter
}
