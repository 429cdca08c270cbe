package repository

import (
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
)

type EmailLogEntity struct {
	ID               int64      `db:"id"                gorm:"primaryKey;autoIncrement;column:id"`
	CampaignID       int64      `db:"campaign_id"       gorm:"column:campaign_id;not null;index"`
	SmtpAccountID    *int64     `db:"smtp_account_id"   gorm:"column:smtp_account_id"`
	ContactID        int64      `db:"contact_id"        gorm:"column:contact_id;index"`
	RecipientEmail   string     `db:"recipient_email"   gorm:"column:recipient_email;not null"`
	RecipientName    string     `db:"recipient_name"    gorm:"column:recipient_name"`
	Subject          string     `db:"subject"           gorm:"column:subject"`
	Status           string     `db:"status"            gorm:"column:status;not null;default:sent;index"`
	TrackingID       string     `db:"tracking_id"       gorm:"column:tracking_id;not null;uniqueIndex"`
	MessageID        string     `db:"message_id"        gorm:"column:message_id"`
	SentAt           *time.Time `db:"sent_at"           gorm:"column:sent_at"`
	OpenedAt         *time.Time `db:"opened_at"         gorm:"column:opened_at"`
	ClickedAt        *time.Time `db:"clicked_at"        gorm:"column:clicked_at"`
	BouncedAt        *time.Time `db:"bounced_at"        gorm:"column:bounced_at"`
	BounceType       string     `db:"bounce_type"       gorm:"column:bounce_type"`
	BounceReason     string     `db:"bounce_reason"     gorm:"column:bounce_reason"`
	BounceDiagnostic string     `db:"bounce_diagnostic" gorm:"column:bounce_diagnostic;type:text"`
	UserAgent        string     `db:"user_agent"        gorm:"column:user_agent;size:500"`
	IPAddress        string     `db:"ip_address"        gorm:"column:ip_address;size:45"`
	CreatedAt        time.Time  `db:"created_at"        gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `db:"updated_at"        gorm:"column:updated_at;autoUpdateTime"`
}

func (EmailLogEntity) TableName() string {
	return "email_logs"
}

type LinkClickEntity struct {
	ID         int64     `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	EmailLogID int64     `db:"email_log_id" gorm:"column:email_log_id;not null;index"`
	URL        string    `db:"url"          gorm:"column:url;not null;type:text"`
	ClickedAt  time.Time `db:"clicked_at"   gorm:"column:clicked_at;not null"`
	UserAgent  string    `db:"user_agent"   gorm:"column:user_agent;size:500"`
	IPAddress  string    `db:"ip_address"   gorm:"column:ip_address;size:45"`
	Referrer   string    `db:"referrer"     gorm:"column:referrer;size:500"`
}

func (LinkClickEntity) TableName() string {
	return "link_clicks"
}

func toEmailLogEntity(m *model.EmailLog) *EmailLogEntity {
	if m == nil {
		return nil
	}
	return &EmailLogEntity{
		ID:               m.ID,
		CampaignID:       m.CampaignID,
		SmtpAccountID:    m.SmtpAccountID,
		ContactID:        m.ContactID,
		RecipientEmail:   m.RecipientEmail,
		RecipientName:    m.RecipientName,
		Subject:          m.Subject,
		Status:           string(m.Status),
		TrackingID:       m.TrackingID,
		MessageID:        m.MessageID,
		SentAt:           m.SentAt,
		OpenedAt:         m.OpenedAt,
		ClickedAt:        m.ClickedAt,
		BouncedAt:        m.BouncedAt,
		BounceType:       string(m.BounceType),
		BounceReason:     m.BounceReason,
		BounceDiagnostic: m.BounceDiagnostic,
		UserAgent:        m.UserAgent,
		IPAddress:        m.IPAddress,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func toEmailLogModel(e *EmailLogEntity) *model.EmailLog {
	if e == nil {
		return nil
	}
	return &model.EmailLog{
		ID:               e.ID,
		CampaignID:       e.CampaignID,
		SmtpAccountID:    e.SmtpAccountID,
		ContactID:        e.ContactID,
		RecipientEmail:   e.RecipientEmail,
		RecipientName:    e.RecipientName,
		Subject:          e.Subject,
		Status:           model.EmailStatus(e.Status),
		TrackingID:       e.TrackingID,
		MessageID:        e.MessageID,
		SentAt:           e.SentAt,
		OpenedAt:         e.OpenedAt,
		ClickedAt:        e.ClickedAt,
		BouncedAt:        e.BouncedAt,
		BounceType:       model.BounceType(e.BounceType),
		BounceReason:     e.BounceReason,
		BounceDiagnostic: e.BounceDiagnostic,
		UserAgent:        e.UserAgent,
		IPAddress:        e.IPAddress,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

func toLinkClickModel(e *LinkClickEntity) *model.LinkClick {
	if e == nil {
		return nil
	}
	return &model.LinkClick{
		ID:         e.ID,
		EmailLogID: e.EmailLogID,
		URL:        e.URL,
		ClickedAt:  e.ClickedAt,
		UserAgent:  e.UserAgent,
		IPAddress:  e.IPAddress,
		Referrer:   e.Referrer,
	}
}
