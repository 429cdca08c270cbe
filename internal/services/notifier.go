package services

import (
	"context"
	"fmt"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
	"github.com/google/uuid"
)

type Publisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// Notifier tells campaign owners how a send went by publishing an event on
// the notification stream. Failures are logged and never reach the caller.
type Notifier struct {
	pub Publisher
}

func NewNotifier(pub Publisher) *Notifier {
	return &Notifier{pub: pub}
}

func (n *Notifier) CampaignCompleted(ctx context.Context, c *model.Campaign, result *model.CampaignResult, cause error) {
	if n == nil || n.pub == nil {
		return
	}
	ev := CompletedEvent(c, result, cause)
	id, err := n.pub.PublishJSON(ctx, ev, map[string]string{
		"event":       model.EventCampaignCompleted,
		"campaign_id": fmt.Sprint(c.ID),
	})
	if err != nil {
		logger.Error("Failed to publish campaign notification", "campaign_id", c.ID, "error", err)
		return
	}
	logger.Debug("Campaign notification published", "campaign_id", c.ID, "stream_id", id, "event_id", ev.EventID)
}

// CompletedEvent builds the owner notification for a finished send. cause is
// set when the send aborted.
func CompletedEvent(c *model.Campaign, result *model.CampaignResult, cause error) *model.CampaignCompletedEvent {
	ev := &model.CampaignCompletedEvent{
		EventID:    uuid.NewString(),
		UserID:     c.UserID,
		CampaignID: c.ID,
		Type:       model.NotificationCampaignFailed,
		Title:      "Campaign Failed",
		Status:     model.CampaignStatusFailed,
		OccurredAt: time.Now().UTC(),
	}

	switch {
	case cause != nil:
		ev.Message = fmt.Sprintf("Campaign '%s' failed: %v", c.Name, cause)
	case result == nil || result.Sent == 0:
		ev.Message = fmt.Sprintf("Campaign '%s' failed to send. No emails were delivered successfully.", c.Name)
	default:
		ev.Type = model.NotificationCampaignSuccess
		ev.Title = "Campaign Sent Successfully"
		ev.Status = model.CampaignStatusSent
		ev.Message = fmt.Sprintf("Campaign '%s' was sent successfully to %d out of %d recipients", c.Name, result.Sent, result.Recipients)
	}
	return ev
}
