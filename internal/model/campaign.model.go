package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusSent      CampaignStatus = "sent"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCancelled CampaignStatus = "cancelled"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// ClaimableStatuses are the states a send may start from.
var ClaimableStatuses = []CampaignStatus{CampaignStatusDraft, CampaignStatusScheduled}

var ErrCampaignNotSendable = errors.New("campaign cannot be sent")

type Campaign struct {
	ID              int64          `json:"id"`
	UserID          int64          `json:"user_id"`
	SmtpAccountID   *int64         `json:"smtp_account_id,omitempty"`
	Name            string         `json:"name"`
	Subject         string         `json:"subject"`
	SenderName      string         `json:"sender_name"`
	SenderEmail     string         `json:"sender_email"`
	ReplyTo         string         `json:"reply_to,omitempty"`
	HTMLContent     string         `json:"html_content"`
	TextContent     string         `json:"text_content"`
	Status          CampaignStatus `json:"status"`
	ScheduledAt     *time.Time     `json:"scheduled_at,omitempty"`
	SendImmediately bool           `json:"send_immediately"`

	TotalRecipients int `json:"total_recipients"`
	EmailsSent      int `json:"emails_sent"`
	EmailsDelivered int `json:"emails_delivered"`
	EmailsOpened    int `json:"emails_opened"`
	EmailsClicked   int `json:"emails_clicked"`
	EmailsBounced   int `json:"emails_bounced"`
	EmailsFailed    int `json:"emails_failed"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CanBeSent returns nil when the campaign may enter the send loop, otherwise
// an error wrapping ErrCampaignNotSendable with the reason.
func (c *Campaign) CanBeSent() error {
	switch {
	case c.Status != CampaignStatusDraft && c.Status != CampaignStatusScheduled:
		return fmt.Errorf("%w: status is %s", ErrCampaignNotSendable, c.Status)
	case strings.TrimSpace(c.Subject) == "":
		return fmt.Errorf("%w: subject is empty", ErrCampaignNotSendable)
	case strings.TrimSpace(c.HTMLContent) == "" && strings.TrimSpace(c.TextContent) == "":
		return fmt.Errorf("%w: content is empty", ErrCampaignNotSendable)
	case strings.TrimSpace(c.SenderEmail) == "":
		return fmt.Errorf("%w: sender email is empty", ErrCampaignNotSendable)
	}
	return nil
}

// CampaignResult is what a finished send loop wrote back to the campaign.
type CampaignResult struct {
	CampaignID  int64          `json:"campaign_id"`
	Status      CampaignStatus `json:"status"`
	Recipients  int            `json:"recipients"`
	Sent        int            `json:"sent"`
	Bounced     int            `json:"bounced"`
	HardBounces int            `json:"hard_bounces"`
	SoftBounces int            `json:"soft_bounces"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

// CampaignSummary is the engagement report of one campaign.
type CampaignSummary struct {
	CampaignID int64            `json:"campaign_id"`
	Status     CampaignStatus   `json:"status"`
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"by_status"`
	Opened     int64            `json:"opened"`
	Clicked    int64            `json:"clicked"`
	Bounced    int64            `json:"bounced"`
	LinkClicks int64            `json:"link_clicks"`
	OpenRate   float64          `json:"open_rate"`
	ClickRate  float64          `json:"click_rate"`
	BounceRate float64          `json:"bounce_rate"`
}
