package repository

import (
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
)

type CampaignEntity struct {
	ID              int64      `db:"id"               gorm:"primaryKey;autoIncrement;column:id"`
	UserID          int64      `db:"user_id"          gorm:"column:user_id;not null;index"`
	SmtpAccountID   *int64     `db:"smtp_account_id"  gorm:"column:smtp_account_id;index"`
	Name            string     `db:"name"             gorm:"column:name;not null"`
	Subject         string     `db:"subject"          gorm:"column:subject"`
	SenderName      string     `db:"sender_name"      gorm:"column:sender_name"`
	SenderEmail     string     `db:"sender_email"     gorm:"column:sender_email"`
	ReplyTo         string     `db:"reply_to"         gorm:"column:reply_to"`
	HTMLContent     string     `db:"html_content"     gorm:"column:html_content;type:text"`
	TextContent     string     `db:"text_content"     gorm:"column:text_content;type:text"`
	Status          string     `db:"status"           gorm:"column:status;not null;default:draft;index"`
	ScheduledAt     *time.Time `db:"scheduled_at"     gorm:"column:scheduled_at;index"`
	SendImmediately bool       `db:"send_immediately" gorm:"column:send_immediately;not null;default:false"`
	TotalRecipients int        `db:"total_recipients" gorm:"column:total_recipients;not null;default:0"`
	EmailsSent      int        `db:"emails_sent"      gorm:"column:emails_sent;not null;default:0"`
	EmailsDelivered int        `db:"emails_delivered" gorm:"column:emails_delivered;not null;default:0"`
	EmailsOpened    int        `db:"emails_opened"    gorm:"column:emails_opened;not null;default:0"`
	EmailsClicked   int        `db:"emails_clicked"   gorm:"column:emails_clicked;not null;default:0"`
	EmailsBounced   int        `db:"emails_bounced"   gorm:"column:emails_bounced;not null;default:0"`
	EmailsFailed    int        `db:"emails_failed"    gorm:"column:emails_failed;not null;default:0"`
	CreatedAt       time.Time  `db:"created_at"       gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `db:"updated_at"       gorm:"column:updated_at;autoUpdateTime"`
	SentAt          *time.Time `db:"sent_at"          gorm:"column:sent_at"`
	CompletedAt     *time.Time `db:"completed_at"     gorm:"column:completed_at"`
}

func (CampaignEntity) TableName() string {
	return "campaigns"
}

func toCampaignEntity(m *model.Campaign) *CampaignEntity {
	if m == nil {
		return nil
	}
	return &CampaignEntity{
		ID:              m.ID,
		UserID:          m.UserID,
		SmtpAccountID:   m.SmtpAccountID,
		Name:            m.Name,
		Subject:         m.Subject,
		SenderName:      m.SenderName,
		SenderEmail:     m.SenderEmail,
		ReplyTo:         m.ReplyTo,
		HTMLContent:     m.HTMLContent,
		TextContent:     m.TextContent,
		Status:          string(m.Status),
		ScheduledAt:     m.ScheduledAt,
		SendImmediately: m.SendImmediately,
		TotalRecipients: m.TotalRecipients,
		EmailsSent:      m.EmailsSent,
		EmailsDelivered: m.EmailsDelivered,
		EmailsOpened:    m.EmailsOpened,
		EmailsClicked:   m.EmailsClicked,
		EmailsBounced:   m.EmailsBounced,
		EmailsFailed:    m.EmailsFailed,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		SentAt:          m.SentAt,
		CompletedAt:     m.CompletedAt,
	}
}

func toCampaignModel(e *CampaignEntity) *model.Campaign {
	if e == nil {
		return nil
	}
	return &model.Campaign{
		ID:              e.ID,
		UserID:          e.UserID,
		SmtpAccountID:   e.SmtpAccountID,
		Name:            e.Name,
		Subject:         e.Subject,
		SenderName:      e.SenderName,
		SenderEmail:     e.SenderEmail,
		ReplyTo:         e.ReplyTo,
		HTMLContent:     e.HTMLContent,
		TextContent:     e.TextContent,
		Status:          model.CampaignStatus(e.Status),
		ScheduledAt:     e.ScheduledAt,
		SendImmediately: e.SendImmediately,
		TotalRecipients: e.TotalRecipients,
		EmailsSent:      e.EmailsSent,
		EmailsDelivered: e.EmailsDelivered,
		EmailsOpened:    e.EmailsOpened,
		EmailsClicked:   e.EmailsClicked,
		EmailsBounced:   e.EmailsBounced,
		EmailsFailed:    e.EmailsFailed,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
		SentAt:          e.SentAt,
		CompletedAt:     e.CompletedAt,
	}
}

func toCampaignModels(entities []*CampaignEntity) []*model.Campaign {
	models := make([]*model.Campaign, len(entities))
	for i, e := range entities {
		models[i] = toCampaignModel(e)
	}
	return models
}
