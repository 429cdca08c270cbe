package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/internal/queue"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) (bool, error)
}

// NotificationProcessor persists campaign.completed events as user
// notifications.
type NotificationProcessor struct {
	repo        NotificationRepository
	idempotency *IdempotencyService
}

func NewNotificationProcessor(repo NotificationRepository, idempotency *IdempotencyService) *NotificationProcessor {
	return &NotificationProcessor{
		repo:        repo,
		idempotency: idempotency,
	}
}

func (p *NotificationProcessor) GetType() string {
	return model.EventCampaignCompleted
}

func (p *NotificationProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var ev model.CampaignCompletedEvent
	// a payload that does not decode never will, ack it
	if err := msg.Decode(&ev); err != nil || ev.EventID == "" {
		logger.Error("Dropping malformed notification event", "stream_id", msg.ID, "error", err)
		return nil
	}

	pc, err := p.idempotency.AcquireProcessingLock(ctx, ev.EventID)
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		return nil
	case errors.Is(err, ErrMaxRetriesExceeded):
		logger.Error("Giving up on notification event", "event_id", ev.EventID, "campaign_id", ev.CampaignID)
		return nil
	case errors.Is(err, ErrLockAcquireFailed):
		return fmt.Errorf("event %s: %w", ev.EventID, err)
	case err != nil:
		return err
	}
	defer func() {
		_ = p.idempotency.ReleaseLock(ctx, pc)
	}()

	created, err := p.repo.Create(ctx, ev.ToNotification())
	if err != nil {
		logger.Error("Failed to store notification", "event_id", ev.EventID, "campaign_id", ev.CampaignID, "error", err)
		_ = p.idempotency.MarkFailure(ctx, pc, err)
		return err
	}
	if !created {
		logger.Debug("Notification already stored", "event_id", ev.EventID)
	}

	logger.Info("Notification stored",
		"event_id", ev.EventID,
		"user_id", ev.UserID,
		"campaign_id", ev.CampaignID,
		"type", ev.Type,
		"retry_count", pc.RetryCount)

	if err := p.idempotency.MarkSuccess(ctx, pc); err != nil {
		logger.Error("Failed to mark success", "event_id", ev.EventID, "error", err)
	}
	return nil
}
