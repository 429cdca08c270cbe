package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/internal/services"
	"github.com/beaconblast/campaign-delivery/internal/tracking"
	xhttp "github.com/beaconblast/campaign-delivery/pkg/http"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
)

// transparent 1x1 GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

const unsubscribePage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Unsubscribed</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 48px;">
<h1>You have been unsubscribed</h1>
<p>You will no longer receive these emails.</p>
</body>
</html>
`

type TrackingService interface {
	RecordOpen(ctx context.Context, ref model.TrackingRef, e model.Engagement) error
	RecordClick(ctx context.Context, ref model.TrackingRef, destination string, e model.Engagement) error
	Unsubscribe(ctx context.Context, ref model.TrackingRef, email string) (*model.EmailLog, error)
}

// TrackingHandler serves the links embedded in sent mail. Whatever happens
// internally the recipient gets the pixel, the redirect or the page.
type TrackingHandler struct {
	svc TrackingService
}

func RegisterTrackingRoutes(r *xhttp.Router, h *TrackingHandler) {
	r.GET(tracking.OpenPath, h.Open)
	r.GET(tracking.ClickPath, h.Click)
	r.GET(tracking.UnsubscribePath, h.Unsubscribe)
}

func NewTrackingHandler(svc TrackingService) *TrackingHandler {
	return &TrackingHandler{
		svc: svc,
	}
}

func (h *TrackingHandler) Open(ctx *xhttp.RequestCtx) {
	ref := trackingRef(ctx)
	if err := h.svc.RecordOpen(ctx, ref, engagementOf(ctx)); err != nil {
		logTrackingError("open", ref, err)
	}

	ctx.Response.Header.Set("Content-Type", "image/gif")
	ctx.Response.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	ctx.Response.Header.Set("Pragma", "no-cache")
	ctx.Response.Header.Set("Expires", "0")
	ctx.Response.SetStatusCode(xhttp.StatusOK)
	ctx.Response.SetBodyRaw(pixelGIF)
}

func (h *TrackingHandler) Click(ctx *xhttp.RequestCtx) {
	destination := query(ctx, "url")
	if destination == "" {
		writeError(ctx, xhttp.StatusBadRequest, "Missing destination URL")
		return
	}

	ref := trackingRef(ctx)
	if err := h.svc.RecordClick(ctx, ref, destination, engagementOf(ctx)); err != nil {
		logTrackingError("click", ref, err)
	}

	ctx.Response.Header.Set("Location", destination)
	ctx.Response.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	ctx.Response.SetStatusCode(xhttp.StatusFound)
}

func (h *TrackingHandler) Unsubscribe(ctx *xhttp.RequestCtx) {
	ref := trackingRef(ctx)
	if _, err := h.svc.Unsubscribe(ctx, ref, query(ctx, "email")); err != nil {
		logTrackingError("unsubscribe", ref, err)
	}

	ctx.Response.Header.Set("Content-Type", "text/html; charset=utf-8")
	ctx.Response.SetStatusCode(xhttp.StatusOK)
	ctx.Response.SetBodyString(unsubscribePage)
}

func trackingRef(ctx *xhttp.RequestCtx) model.TrackingRef {
	return model.TrackingRef{
		LogID:      queryInt64(ctx, "log_id"),
		TrackingID: query(ctx, "tracking_id"),
	}
}

func engagementOf(ctx *xhttp.RequestCtx) model.Engagement {
	return model.Engagement{
		UserAgent: string(ctx.UserAgent()),
		IPAddress: xhttp.ClientIP(ctx),
		Referrer:  string(ctx.Referer()),
		At:        time.Now().UTC(),
	}
}

func logTrackingError(event string, ref model.TrackingRef, err error) {
	if errors.Is(err, services.ErrEmailLogNotFound) {
		logger.Debug("Tracking request for unknown email log", "event", event, "log_id", ref.LogID, "tracking_id", ref.TrackingID)
		return
	}
	logger.Error("Tracking request failed", "event", event, "log_id", ref.LogID, "tracking_id", ref.TrackingID, "error", err)
}
