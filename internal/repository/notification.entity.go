package repository

import (
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
)

type NotificationEntity struct {
	ID         int64     `db:"id"          gorm:"primaryKey;autoIncrement;column:id"`
	EventID    string    `db:"event_id"    gorm:"column:event_id;not null;uniqueIndex"`
	UserID     int64     `db:"user_id"     gorm:"column:user_id;not null;index"`
	CampaignID *int64    `db:"campaign_id" gorm:"column:campaign_id"`
	Type       string    `db:"type"        gorm:"column:type;not null"`
	Title      string    `db:"title"       gorm:"column:title;not null"`
	Message    string    `db:"message"     gorm:"column:message;type:text"`
	Status     string    `db:"status"      gorm:"column:status"`
	IsRead     bool      `db:"is_read"     gorm:"column:is_read;not null;default:false"`
	CreatedAt  time.Time `db:"created_at"  gorm:"column:created_at;autoCreateTime"`
}

func (NotificationEntity) TableName() string {
	return "notifications"
}

func toNotificationEntity(m *model.Notification) *NotificationEntity {
	if m == nil {
		return nil
	}
	return &NotificationEntity{
		ID:         m.ID,
		EventID:    m.EventID,
		UserID:     m.UserID,
		CampaignID: m.CampaignID,
		Type:       string(m.Type),
		Title:      m.Title,
		Message:    m.Message,
		Status:     m.Status,
		IsRead:     m.IsRead,
		CreatedAt:  m.CreatedAt,
	}
}

func toNotificationModel(e *NotificationEntity) *model.Notification {
	if e == nil {
		return nil
	}
	return &model.Notification{
		ID:         e.ID,
		EventID:    e.EventID,
		UserID:     e.UserID,
		CampaignID: e.CampaignID,
		Type:       model.NotificationType(e.Type),
		Title:      e.Title,
		Message:    e.Message,
		Status:     e.Status,
		IsRead:     e.IsRead,
		CreatedAt:  e.CreatedAt,
	}
}
