package handlers

import (
	"errors"
	"strconv"

	"github.com/casedesk/smechat/internal/middleware"
	"github.com/casedesk/smechat/internal/services"
	"github.com/casedesk/smechat/pkg/logger"
	"github.com/casedesk/smechat/pkg/response"
	"github.com/gin-gonic/gin"
)

type ReferralHandler struct {
	service *services.ReferralService
}

func NewReferralHandler(service *services.ReferralService) *ReferralHandler {
	return &ReferralHandler{service: service}
}

// Create handles POST /referral.
func (h *ReferralHandler) Create(c *gin.Context) {
	r, err := h.service.Create(c.Request.Context(), services.CreateReferralInput{
		Reason:    c.PostForm("reason"),
		Question:  c.PostForm("question"),
		Answer:    c.PostForm("answer"),
		ClientKey: middleware.GetClientKey(c),
	})
	if err != nil {
		appErr := response.NewServerError("could not file the referral", err)
		logger.Error().Err(appErr).Msg("Referral not saved")
		response.Error(c, appErr)
		return
	}
	response.Message(c, services.ReceiptMessage(r), gin.H{
		"id":        r.ID,
		"reference": r.Reference,
	})
}

// Mine handles GET /referrals/mine.
func (h *ReferralHandler) Mine(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.service.ListByClient(c.Request.Context(), middleware.GetClientKey(c), limit)
	if err != nil {
		logger.Error().Err(err).Msg("Referral listing failed")
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// Resolve handles POST /referrals/:id/resolve.
func (h *ReferralHandler) Resolve(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid referral id")
		return
	}

	r, err := h.service.Resolve(c.Request.Context(), uint(id), c.PostForm("response"))
	switch {
	case errors.Is(err, services.ErrEmptyResponse):
		response.Error(c, response.NewBadRequest(err.Error()))
	case errors.Is(err, services.ErrReferralNotFound):
		response.Error(c, response.NewNotFound(err.Error()))
	case errors.Is(err, services.ErrReferralResolved):
		response.Error(c, response.NewConflict(err.Error()))
	case err != nil:
		appErr := response.NewServerError("could not resolve the referral", err)
		logger.Error().Err(appErr).Uint64("id", id).Msg("Referral not resolved")
		response.Error(c, appErr)
	default:
		response.Success(c, r)
	}
}
