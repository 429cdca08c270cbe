package model

import (
	"time"
	"unicode/utf8"
)

type EmailStatus string

const (
	EmailStatusSent    EmailStatus = "sent"
	EmailStatusOpened  EmailStatus = "opened"
	EmailStatusClicked EmailStatus = "clicked"
	EmailStatusBounced EmailStatus = "bounced"
	EmailStatusFailed  EmailStatus = "failed"
)

type BounceType string

const (
	BounceTypeHard BounceType = "hard"
	BounceTypeSoft BounceType = "soft"
)

// MaxTrackedFieldLength caps user agent and referrer values.
const MaxTrackedFieldLength = 500

type EmailLog struct {
	ID               int64       `json:"id"`
	CampaignID       int64       `json:"campaign_id"`
	SmtpAccountID    *int64      `json:"smtp_account_id,omitempty"`
	ContactID        int64       `json:"contact_id"`
	RecipientEmail   string      `json:"recipient_email"`
	RecipientName    string      `json:"recipient_name"`
	Subject          string      `json:"subject"`
	Status           EmailStatus `json:"status"`
	TrackingID       string      `json:"tracking_id"`
	MessageID        string      `json:"message_id,omitempty"`
	SentAt           *time.Time  `json:"sent_at,omitempty"`
	OpenedAt         *time.Time  `json:"opened_at,omitempty"`
	ClickedAt        *time.Time  `json:"clicked_at,omitempty"`
	BouncedAt        *time.Time  `json:"bounced_at,omitempty"`
	BounceType       BounceType  `json:"bounce_type,omitempty"`
	BounceReason     string      `json:"bounce_reason,omitempty"`
	BounceDiagnostic string      `json:"bounce_diagnostic,omitempty"`
	UserAgent        string      `json:"user_agent,omitempty"`
	IPAddress        string      `json:"ip_address,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

type LinkClick struct {
	ID         int64     `json:"id"`
	EmailLogID int64     `json:"email_log_id"`
	URL        string    `json:"url"`
	ClickedAt  time.Time `json:"clicked_at"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Referrer   string    `json:"referrer,omitempty"`
}

// TrackingRef identifies an EmailLog from tracking query parameters. LogID
// wins when both are set.
type TrackingRef struct {
	LogID      int64
	TrackingID string
}

func (r TrackingRef) IsZero() bool {
	return r.LogID == 0 && r.TrackingID == ""
}

// Engagement is the client context captured by a tracking request.
type Engagement struct {
	UserAgent string
	IPAddress string
	Referrer  string
	At        time.Time
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
