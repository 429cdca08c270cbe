package repository

import (
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
)

type ContactEntity struct {
	ID         int64     `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	UserID     int64     `db:"user_id"    gorm:"column:user_id;not null;uniqueIndex:idx_contacts_user_email"`
	Email      string    `db:"email"      gorm:"column:email;not null;uniqueIndex:idx_contacts_user_email"`
	FirstName  string    `db:"first_name" gorm:"column:first_name"`
	LastName   string    `db:"last_name"  gorm:"column:last_name"`
	Status     string    `db:"status"     gorm:"column:status;not null;default:active"`
	Subscribed bool      `db:"subscribed" gorm:"column:subscribed;not null"`
	CreatedAt  time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (ContactEntity) TableName() string {
	return "contacts"
}

func toContactEntity(m *model.Contact) *ContactEntity {
	if m == nil {
		return nil
	}
	return &ContactEntity{
		ID:         m.ID,
		UserID:     m.UserID,
		Email:      model.NormalizeEmail(m.Email),
		FirstName:  m.FirstName,
		LastName:   m.LastName,
		Status:     string(m.Status),
		Subscribed: m.Subscribed,
		CreatedAt:  m.CreatedAt,
	}
}

func toContactModel(e *ContactEntity) *model.Contact {
	if e == nil {
		return nil
	}
	return &model.Contact{
		ID:         e.ID,
		UserID:     e.UserID,
		Email:      e.Email,
		FirstName:  e.FirstName,
		LastName:   e.LastName,
		Status:     model.ContactStatus(e.Status),
		Subscribed: e.Subscribed,
		CreatedAt:  e.CreatedAt,
	}
}

type CampaignRecipientEntity struct {
	ID           int64          `db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	CampaignID   int64          `db:"campaign_id"   gorm:"column:campaign_id;not null;uniqueIndex:idx_recipient_campaign_contact"`
	ContactID    int64          `db:"contact_id"    gorm:"column:contact_id;not null;uniqueIndex:idx_recipient_campaign_contact"`
	Contact      *ContactEntity `gorm:"foreignKey:ContactID;references:ID;constraint:OnDelete:CASCADE"`
	EmailSent    bool           `db:"email_sent"    gorm:"column:email_sent;not null;default:false"`
	SentAt       *time.Time     `db:"sent_at"       gorm:"column:sent_at"`
	EmailFailed  bool           `db:"email_failed"  gorm:"column:email_failed;not null;default:false"`
	ErrorMessage string         `db:"error_message" gorm:"column:error_message"`
	EmailBounced bool           `db:"email_bounced" gorm:"column:email_bounced;not null;default:false"`
	BounceReason string         `db:"bounce_reason" gorm:"column:bounce_reason"`
	BouncedAt    *time.Time     `db:"bounced_at"    gorm:"column:bounced_at"`
	EmailOpened  bool           `db:"email_opened"  gorm:"column:email_opened;not null;default:false"`
	EmailClicked bool           `db:"email_clicked" gorm:"column:email_clicked;not null;default:false"`
	CreatedAt    time.Time      `db:"created_at"    gorm:"column:created_at;autoCreateTime"`
}

func (CampaignRecipientEntity) TableName() string {
	return "campaign_recipients"
}

func toCampaignRecipientModel(e *CampaignRecipientEntity) *model.CampaignRecipient {
	if e == nil {
		return nil
	}
	return &model.CampaignRecipient{
		ID:           e.ID,
		CampaignID:   e.CampaignID,
		ContactID:    e.ContactID,
		EmailSent:    e.EmailSent,
		SentAt:       e.SentAt,
		EmailFailed:  e.EmailFailed,
		ErrorMessage: e.ErrorMessage,
		EmailBounced: e.EmailBounced,
		BounceReason: e.BounceReason,
		BouncedAt:    e.BouncedAt,
		EmailOpened:  e.EmailOpened,
		EmailClicked: e.EmailClicked,
		CreatedAt:    e.CreatedAt,
	}
}
