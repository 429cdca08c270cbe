package handlers

import (
	"context"
	"testing"

	"github.com/beaconblast/campaign-delivery/internal/services"
	"github.com/stretchr/testify/assert"
)

type stubHealth struct {
	report  *services.HealthReport
	healthy bool
}

func (s stubHealth) Check(context.Context) (*services.HealthReport, bool) {
	return s.report, s.healthy
}

func TestHealthHandler_GetHealth(t *testing.T) {
	ctx := setupTestContext("GET", "/api/v1/health", nil)
	NewHealthHandler(stubHealth{report: &services.HealthReport{Status: "ok"}, healthy: true}).GetHealth(ctx)
	assert.Equal(t, 200, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), `"status":"ok"`)

	ctx = setupTestContext("GET", "/api/v1/health", nil)
	NewHealthHandler(stubHealth{report: &services.HealthReport{Status: "degraded"}}).GetHealth(ctx)
	assert.Equal(t, 503, ctx.Response.StatusCode())
}
