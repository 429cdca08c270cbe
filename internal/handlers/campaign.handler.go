package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/beaconblast/campaign-delivery/internal/mailer"
	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/internal/repository"
	"github.com/beaconblast/campaign-delivery/internal/services"
	xhttp "github.com/beaconblast/campaign-delivery/pkg/http"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
)

type CampaignService interface {
	Send(ctx context.Context, campaignID, userID int64) (*model.CampaignResult, error)
	SendTest(ctx context.Context, campaignID, userID int64, to string) error
}

type AnalyticsService interface {
	CampaignSummary(ctx context.Context, campaignID, userID int64) (*model.CampaignSummary, error)
}

type CampaignHandler struct {
	svc       CampaignService
	analytics AnalyticsService
}

func RegisterCampaignRoutes(e *xhttp.Group, h *CampaignHandler) {
	e.POST("/campaigns/{id}/send", h.SendCampaign)
	e.POST("/campaigns/{id}/test", h.SendTestEmail)
	e.GET("/campaigns/{id}/analytics", h.GetAnalytics)
}

func NewCampaignHandler(svc CampaignService, analytics AnalyticsService) *CampaignHandler {
	return &CampaignHandler{
		svc:       svc,
		analytics: analytics,
	}
}

type testEmailRequest struct {
	Email string `json:"email"`
}

func (h *CampaignHandler) SendCampaign(ctx *xhttp.RequestCtx) {
	id, uid, ok := campaignRequest(ctx)
	if !ok {
		return
	}

	result, err := h.svc.Send(ctx, id, uid)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, result)
}

func (h *CampaignHandler) SendTestEmail(ctx *xhttp.RequestCtx) {
	id, uid, ok := campaignRequest(ctx)
	if !ok {
		return
	}

	var req testEmailRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(ctx, xhttp.StatusBadRequest, "email is required")
		return
	}

	if err := h.svc.SendTest(ctx, id, uid, req.Email); err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]string{"message": "Test email sent to " + req.Email})
}

func (h *CampaignHandler) GetAnalytics(ctx *xhttp.RequestCtx) {
	id, uid, ok := campaignRequest(ctx)
	if !ok {
		return
	}

	summary, err := h.analytics.CampaignSummary(ctx, id, uid)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, summary)
}

func campaignRequest(ctx *xhttp.RequestCtx) (id, uid int64, ok bool) {
	uid, err := userID(ctx)
	if err != nil {
		writeError(ctx, xhttp.StatusUnauthorized, err.Error())
		return 0, 0, false
	}
	id, err = pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return id, uid, true
}

func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	var sendErr *mailer.SendError
	switch {
	case errors.Is(err, services.ErrCampaignNotFound):
		writeError(ctx, xhttp.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrCampaignAlreadyClaimed):
		writeError(ctx, xhttp.StatusConflict, err.Error())
	case errors.Is(err, model.ErrCampaignNotSendable),
		errors.Is(err, services.ErrNoRecipients),
		errors.Is(err, services.ErrInvalidEmail):
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNoSMTPCredentials),
		errors.Is(err, model.ErrSMTPAccountInactive),
		errors.Is(err, model.ErrSMTPAccountUnverified):
		writeError(ctx, xhttp.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &sendErr):
		writeError(ctx, xhttp.StatusBadGateway, err.Error())
	default:
		logger.Error("Campaign request failed", "path", string(ctx.Path()), "error", err)
		writeError(ctx, xhttp.StatusInternalServerError, "internal error")
	}
}
