package model

import "time"

type NotificationType string

const (
	NotificationCampaignSuccess NotificationType = "campaign_success"
	NotificationCampaignFailed  NotificationType = "campaign_failed"
)

const EventCampaignCompleted = "campaign.completed"

type Notification struct {
	ID         int64            `json:"id"`
	EventID    string           `json:"event_id"`
	UserID     int64            `json:"user_id"`
	CampaignID *int64           `json:"campaign_id,omitempty"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	Status     string           `json:"status"`
	IsRead     bool             `json:"is_read"`
	CreatedAt  time.Time        `json:"created_at"`
}

// CampaignCompletedEvent is published on the notification stream when a
// send loop ends.
type CampaignCompletedEvent struct {
	EventID    string           `json:"event_id"`
	UserID     int64            `json:"user_id"`
	CampaignID int64            `json:"campaign_id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	Status     CampaignStatus   `json:"status"`
	OccurredAt time.Time        `json:"occurred_at"`
}

func (e *CampaignCompletedEvent) ToNotification() *Notification {
	campaignID := e.CampaignID
	return &Notification{
		EventID:    e.EventID,
		UserID:     e.UserID,
		CampaignID: &campaignID,
		Type:       e.Type,
		Title:      e.Title,
		Message:    e.Message,
		Status:     string(e.Status),
	}
}
