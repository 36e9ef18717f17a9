package handlers

import (
	"strconv"
	"strings"

	"github.com/casedesk/smechat/internal/middleware"
	"github.com/casedesk/smechat/internal/services"
	"github.com/casedesk/smechat/pkg/logger"
	"github.com/casedesk/smechat/pkg/response"
	"github.com/gin-gonic/gin"
)

const maxQuestionLength = 2000

type AssistantHandler struct {
	answers  *services.AnswerService
	feedback *services.FeedbackService
}

func NewAssistantHandler(answers *services.AnswerService, feedback *services.FeedbackService) *AssistantHandler {
	return &AssistantHandler{answers: answers, feedback: feedback}
}

// Query handles POST /query. The body is the bare answer object, not the
// {code, message, data} envelope.
func (h *AssistantHandler) Query(c *gin.Context) {
	q := strings.TrimSpace(c.PostForm("q"))
	if q == "" {
		response.BadRequest(c, "q is required")
		return
	}
	if len([]rune(q)) > maxQuestionLength {
		response.BadRequest(c, "question is too long")
		return
	}

	result, err := h.answers.Answer(c.Request.Context(), q)
	if err != nil {
		logger.Error().Err(err).Msg("answer failed")
		response.ServerError(c, "could not answer the question")
		return
	}

	logger.Info().
		Str("backend", result.Backend).
		Bool("fallback", result.IsFallback).
		Int("sources", len(result.Sources)).
		Msg("question answered")
	c.JSON(200, result)
}

// Feedback handles POST /feedback.
func (h *AssistantHandler) Feedback(c *gin.Context) {
	helpful, err := strconv.ParseBool(c.PostForm("helpful"))
	if err != nil {
		response.BadRequest(c, "helpful must be true or false")
		return
	}

	ev, err := h.feedback.Record(c.Request.Context(), services.FeedbackInput{
		SessionID: c.PostForm("session_id"),
		ClientKey: middleware.GetClientKey(c),
		Question:  c.PostForm("q"),
		Answer:    c.PostForm("answer"),
		Helpful:   helpful,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Feedback not saved")
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"id": ev.ID})
}
