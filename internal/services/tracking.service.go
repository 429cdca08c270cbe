package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/internal/repository"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
	"github.com/beaconblast/campaign-delivery/pkg/prom"
)

var ErrEmailLogNotFound = errors.New("email log not found")

type EmailLogTracker interface {
	Find(ctx context.Context, ref model.TrackingRef) (*model.EmailLog, error)
	MarkOpened(ctx context.Context, id int64, e model.Engagement) (bool, error)
	MarkClicked(ctx context.Context, id int64, at time.Time) (bool, error)
	CreateLinkClick(ctx context.Context, click *model.LinkClick) (*model.LinkClick, error)
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type CampaignCounters interface {
	IncrementOpened(ctx context.Context, id int64) error
	IncrementClicked(ctx context.Context, id int64) error
}

type EngagementMarker interface {
	MarkEngaged(ctx context.Context, campaignID, contactID int64, clicked bool) error
}

// TrackingService records opens and clicks. Status only moves forward: an
// open applies to sent logs, a click to sent or opened logs. Every click is
// kept as a LinkClick.
type TrackingService struct {
	logs       EmailLogTracker
	campaigns  CampaignCounters
	recipients EngagementMarker
}

func NewTrackingService(logs EmailLogTracker, campaigns CampaignCounters, recipients EngagementMarker) *TrackingService {
	return &TrackingService{
		logs:       logs,
		campaigns:  campaigns,
		recipients: recipients,
	}
}

func (s *TrackingService) RecordOpen(ctx context.Context, ref model.TrackingRef, e model.Engagement) error {
	entry, err := s.find(ctx, ref)
	if err != nil {
		return err
	}

	moved, err := s.logs.MarkOpened(ctx, entry.ID, e)
	if err != nil {
		return fmt.Errorf("mark opened: %w", err)
	}
	if !moved {
		prom.TrackingEvent("open_repeat")
		return nil
	}
	prom.TrackingEvent("open")

	if err := s.campaigns.IncrementOpened(ctx, entry.CampaignID); err != nil {
		logger.Error("Failed to increment campaign opens", "campaign_id", entry.CampaignID, "error", err)
	}
	s.markEngaged(ctx, entry, false)
	return nil
}

// RecordClick moves the log to clicked, bumps the campaign counter and stores
// the LinkClick in one transaction, so a failed insert leaves no half-counted
// click behind.
func (s *TrackingService) RecordClick(ctx context.Context, ref model.TrackingRef, destination string, e model.Engagement) error {
	entry, err := s.find(ctx, ref)
	if err != nil {
		return err
	}

	var moved bool
	err = s.logs.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		moved, err = s.logs.MarkClicked(ctx, entry.ID, e.At)
		if err != nil {
			return fmt.Errorf("mark clicked: %w", err)
		}
		if moved {
			if err := s.campaigns.IncrementClicked(ctx, entry.CampaignID); err != nil {
				return fmt.Errorf("increment campaign clicks: %w", err)
			}
		}
		_, err = s.logs.CreateLinkClick(ctx, &model.LinkClick{
			EmailLogID: entry.ID,
			URL:        destination,
			ClickedAt:  e.At,
			UserAgent:  e.UserAgent,
			IPAddress:  e.IPAddress,
			Referrer:   e.Referrer,
		})
		if err != nil {
			return fmt.Errorf("record link click: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !moved {
		prom.TrackingEvent("click_repeat")
		return nil
	}
	prom.TrackingEvent("click")
	s.markEngaged(ctx, entry, true)
	return nil
}

// Unsubscribe resolves the log behind an unsubscribe link. Nothing is
// persisted yet.
func (s *TrackingService) Unsubscribe(ctx context.Context, ref model.TrackingRef, email string) (*model.EmailLog, error) {
	entry, err := s.find(ctx, ref)
	if err != nil {
		return nil, err
	}
	logger.Info("Unsubscribe requested",
		"email_log_id", entry.ID,
		"campaign_id", entry.CampaignID,
		"contact_id", entry.ContactID,
		"email", email)
	prom.TrackingEvent("unsubscribe")
	return entry, nil
}

func (s *TrackingService) find(ctx context.Context, ref model.TrackingRef) (*model.EmailLog, error) {
	if ref.IsZero() {
		return nil, ErrEmailLogNotFound
	}
	entry, err := s.logs.Find(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrEmailLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find email log: %w", err)
	}
	return entry, nil
}

func (s *TrackingService) markEngaged(ctx context.Context, entry *model.EmailLog, clicked bool) {
	if s.recipients == nil {
		return
	}
	if err := s.recipients.MarkEngaged(ctx, entry.CampaignID, entry.ContactID, clicked); err != nil {
		logger.Warn("Failed to flag recipient engagement", "email_log_id", entry.ID, "error", err)
	}
}
