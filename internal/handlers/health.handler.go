package handlers

import (
	"context"

	"github.com/beaconblast/campaign-delivery/internal/services"
	xhttp "github.com/beaconblast/campaign-delivery/pkg/http"
)

type HealthService interface {
	Check(ctx context.Context) (*services.HealthReport, bool)
}

type HealthHandler struct {
	svc HealthService
}

func RegisterHealthRoutes(e *xhttp.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(svc HealthService) *HealthHandler {
	return &HealthHandler{
		svc: svc,
	}
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	report, healthy := h.svc.Check(ctx)
	status := xhttp.StatusOK
	if !healthy {
		status = xhttp.StatusServiceUnavailable
	}
	writeJSON(ctx, status, report)
}
