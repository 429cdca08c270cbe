package model

import (
	"strings"
	"time"
)

type ContactStatus string

const (
	ContactStatusActive       ContactStatus = "active"
	ContactStatusUnsubscribed ContactStatus = "unsubscribed"
	ContactStatusBounced      ContactStatus = "bounced"
	ContactStatusSpam         ContactStatus = "spam"
	ContactStatusInvalid      ContactStatus = "invalid"
)

type Contact struct {
	ID         int64         `json:"id"`
	UserID     int64         `json:"user_id"`
	Email      string        `json:"email"`
	FirstName  string        `json:"first_name"`
	LastName   string        `json:"last_name"`
	Status     ContactStatus `json:"status"`
	Subscribed bool          `json:"subscribed"`
	CreatedAt  time.Time     `json:"created_at"`
}

// IsSendable reports whether mail may be sent to the contact.
func (c *Contact) IsSendable() bool {
	return c.Status == ContactStatusActive && c.Subscribed && strings.Contains(c.Email, "@")
}

func (c *Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type CampaignRecipient struct {
	ID           int64      `json:"id"`
	CampaignID   int64      `json:"campaign_id"`
	ContactID    int64      `json:"contact_id"`
	EmailSent    bool       `json:"email_sent"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	EmailFailed  bool       `json:"email_failed"`
	ErrorMessage string     `json:"error_message,omitempty"`
	EmailBounced bool       `json:"email_bounced"`
	BounceReason string     `json:"bounce_reason,omitempty"`
	BouncedAt    *time.Time `json:"bounced_at,omitempty"`
	EmailOpened  bool       `json:"email_opened"`
	EmailClicked bool       `json:"email_clicked"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Recipient is one resolved delivery target of a campaign.
type Recipient struct {
	Email       string
	Name        string
	FirstName   string
	LastName    string
	ContactID   int64
	RecipientID int64
}
