package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/bounce"
	"github.com/beaconblast/campaign-delivery/internal/mailer"
	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/internal/repository"
	"github.com/beaconblast/campaign-delivery/internal/tracking"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
	"github.com/beaconblast/campaign-delivery/pkg/prom"
	"github.com/google/uuid"
)

type CampaignStore interface {
	GetForUser(ctx context.Context, id, userID int64) (*model.Campaign, error)
	ClaimForSending(ctx context.Context, id int64, totalRecipients int, now time.Time) error
	Complete(ctx context.Context, result *model.CampaignResult) error
	MarkFailed(ctx context.Context, id int64) error
}

type EmailLogWriter interface {
	Create(ctx context.Context, log *model.EmailLog) (*model.EmailLog, error)
	SetMessageID(ctx context.Context, id int64, messageID string) error
	MarkBounced(ctx context.Context, id int64, bounceType model.BounceType, reason, diagnostic string, at time.Time) error
}

type RecipientMarker interface {
	MarkSent(ctx context.Context, recipientID int64, at time.Time) error
	MarkFailed(ctx context.Context, recipientID int64, reason string, at time.Time) error
}

type UsageRecorder interface {
	IncrementUsage(ctx context.Context, id int64, at time.Time) (int, error)
}

type MailTransport interface {
	Send(ctx context.Context, msg *mailer.Message) (string, error)
	Close() error
}

// TransportFactory opens a transport for one campaign send.
type TransportFactory func(creds *model.SmtpCredentials) MailTransport

// MailerTransports returns a factory backed by SMTP transports.
func MailerTransports(opts mailer.Options) TransportFactory {
	return func(creds *model.SmtpCredentials) MailTransport {
		return mailer.NewTransport(creds, opts)
	}
}

type CampaignSenderDeps struct {
	Campaigns    CampaignStore
	Logs         EmailLogWriter
	Recipients   RecipientMarker
	Usage        UsageRecorder
	Resolver     *RecipientResolver
	Credentials  *CredentialsResolver
	Rewriter     *tracking.Rewriter
	Personalizer *Personalizer
	Transports   TransportFactory
	Notifier     *Notifier
	Now          func() time.Time
}

// CampaignSender runs the send loop of a campaign: claim, deliver to every
// recipient in order, record per-recipient outcomes and finish the campaign.
type CampaignSender struct {
	campaigns    CampaignStore
	logs         EmailLogWriter
	recipients   RecipientMarker
	usage        UsageRecorder
	resolver     *RecipientResolver
	credentials  *CredentialsResolver
	rewriter     *tracking.Rewriter
	personalizer *Personalizer
	transports   TransportFactory
	notifier     *Notifier
	now          func() time.Time
}

func NewCampaignSender(deps CampaignSenderDeps) *CampaignSender {
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.Personalizer == nil {
		deps.Personalizer = NewPersonalizer()
	}
	return &CampaignSender{
		campaigns:    deps.Campaigns,
		logs:         deps.Logs,
		recipients:   deps.Recipients,
		usage:        deps.Usage,
		resolver:     deps.Resolver,
		credentials:  deps.Credentials,
		rewriter:     deps.Rewriter,
		personalizer: deps.Personalizer,
		transports:   deps.Transports,
		notifier:     deps.Notifier,
		now:          deps.Now,
	}
}

// Send loads the user's campaign and sends it. Precondition failures return
// an error before any state changes. Once the campaign is claimed, errors
// mark it failed.
func (s *CampaignSender) Send(ctx context.Context, campaignID, userID int64) (*model.CampaignResult, error) {
	c, err := s.loadCampaign(ctx, campaignID, userID)
	if err != nil {
		return nil, err
	}
	return s.SendCampaign(ctx, c)
}

func (s *CampaignSender) SendCampaign(ctx context.Context, c *model.Campaign) (*model.CampaignResult, error) {
	if err := c.CanBeSent(); err != nil {
		return nil, err
	}

	creds, err := s.credentials.Resolve(ctx, c)
	if err != nil {
		return nil, err
	}

	recipients, err := s.resolver.Resolve(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	started := s.now()
	if err := s.campaigns.ClaimForSending(ctx, c.ID, len(recipients), started); err != nil {
		return nil, err
	}
	log := logger.With("campaign_id", c.ID, "user_id", c.UserID)
	log.Info("Campaign send started",
		"recipients", len(recipients),
		"smtp_account_id", creds.AccountID,
		"smtp_source", creds.Source)

	result, err := s.deliver(ctx, log, c, creds, recipients, started)
	if err != nil {
		log.Error("Campaign send aborted", "error", err)
		if mErr := s.campaigns.MarkFailed(context.WithoutCancel(ctx), c.ID); mErr != nil {
			log.Error("Failed to mark campaign failed", "error", mErr)
		}
		prom.CampaignFinished(string(model.CampaignStatusFailed), s.now().Sub(started).Seconds())
		s.notifier.CampaignCompleted(context.WithoutCancel(ctx), c, nil, err)
		return nil, fmt.Errorf("send campaign %d: %w", c.ID, err)
	}

	prom.CampaignFinished(string(result.Status), result.CompletedAt.Sub(started).Seconds())
	log.Info("Campaign send finished",
		"status", result.Status,
		"sent", result.Sent,
		"bounced", result.Bounced,
		"hard_bounces", result.HardBounces,
		"soft_bounces", result.SoftBounces)
	s.notifier.CampaignCompleted(ctx, c, result, nil)
	return result, nil
}

func (s *CampaignSender) deliver(ctx context.Context, log *logger.ZapLogger, c *model.Campaign, creds *model.SmtpCredentials, recipients []model.Recipient, started time.Time) (result *model.CampaignResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in send loop: %v", r)
		}
	}()

	transport := s.transports(creds)
	defer func() {
		if cErr := transport.Close(); cErr != nil {
			log.Debug("Closing smtp transport failed", "error", cErr)
		}
	}()

	prepared := s.personalizer.Prepare(c.ID, Content{
		Subject: c.Subject,
		HTML:    c.HTMLContent,
		Text:    c.TextContent,
	})

	result = &model.CampaignResult{
		CampaignID: c.ID,
		Recipients: len(recipients),
		StartedAt:  started,
	}

	for _, r := range recipients {
		if err := s.deliverOne(ctx, log, c, creds, transport, prepared, r, result); err != nil {
			return nil, err
		}
	}

	result.CompletedAt = s.now()
	result.Status = model.CampaignStatusFailed
	if result.Sent > 0 {
		result.Status = model.CampaignStatusSent
	}
	if err := s.campaigns.Complete(ctx, result); err != nil {
		return nil, fmt.Errorf("complete campaign: %w", err)
	}
	return result, nil
}

// deliverOne returns an error only for failures that abort the whole loop.
// A refused delivery is recorded as a bounce.
func (s *CampaignSender) deliverOne(ctx context.Context, log *logger.ZapLogger, c *model.Campaign, creds *model.SmtpCredentials, transport MailTransport, prepared *Prepared, r model.Recipient, result *model.CampaignResult) error {
	content := prepared.Render(r)
	now := s.now()

	accountID := creds.AccountID
	entry, err := s.logs.Create(ctx, &model.EmailLog{
		CampaignID:     c.ID,
		SmtpAccountID:  &accountID,
		ContactID:      r.ContactID,
		RecipientEmail: r.Email,
		RecipientName:  r.Name,
		Subject:        content.Subject,
		Status:         model.EmailStatusSent,
		TrackingID:     NewTrackingID(),
		SentAt:         &now,
	})
	if err != nil {
		return fmt.Errorf("create email log for %s: %w", r.Email, err)
	}

	headers := map[string]string{
		"X-Campaign-ID":    strconv.FormatInt(c.ID, 10),
		"List-Unsubscribe": "<" + s.rewriter.UnsubscribeURL(entry.ID, entry.TrackingID, r.Email) + ">",
	}
	if c.ReplyTo != "" {
		headers["Reply-To"] = c.ReplyTo
	}

	messageID, sendErr := transport.Send(ctx, &mailer.Message{
		ToEmail: r.Email,
		ToName:  r.Name,
		Subject: content.Subject,
		HTML:    s.rewriter.Rewrite(content.HTML, entry.ID, entry.TrackingID),
		Text:    content.Text,
		Headers: headers,
	})
	at := s.now()

	if sendErr == nil {
		result.Sent++
		prom.EmailOutcome("sent")
		if err := s.logs.SetMessageID(ctx, entry.ID, messageID); err != nil {
			log.Warn("Failed to store message id", "email_log_id", entry.ID, "error", err)
		}
		if r.RecipientID > 0 {
			if err := s.recipients.MarkSent(ctx, r.RecipientID, at); err != nil {
				log.Warn("Failed to mark recipient sent", "recipient_id", r.RecipientID, "error", err)
			}
		}
		s.recordUsage(ctx, creds, at)
		return nil
	}

	reason := sendErr.Error()
	bounceType, _ := bounce.Classify(reason)
	diagnostic := bounce.Diagnostic(reason)

	result.Bounced++
	if bounceType == model.BounceTypeHard {
		result.HardBounces++
	} else {
		result.SoftBounces++
	}
	prom.EmailOutcome("bounced_" + string(bounceType))

	log.Warn("Delivery failed",
		"email_log_id", entry.ID,
		"recipient", r.Email,
		"kind", mailer.KindOf(sendErr).String(),
		"bounce_type", bounceType,
		"diagnostic", diagnostic,
		"error", reason)

	if err := s.logs.MarkBounced(ctx, entry.ID, bounceType, reason, diagnostic, at); err != nil {
		return fmt.Errorf("mark email log %d bounced: %w", entry.ID, err)
	}
	if r.RecipientID > 0 {
		if err := s.recipients.MarkFailed(ctx, r.RecipientID, reason, at); err != nil {
			log.Warn("Failed to mark recipient failed", "recipient_id", r.RecipientID, "error", err)
		}
	}
	return nil
}

func (s *CampaignSender) recordUsage(ctx context.Context, creds *model.SmtpCredentials, at time.Time) {
	today, err := s.usage.IncrementUsage(ctx, creds.AccountID, at)
	if err != nil {
		logger.Warn("Failed to record smtp usage", "smtp_account_id", creds.AccountID, "error", err)
		return
	}
	if creds.DailyLimit != nil && today > *creds.DailyLimit {
		logger.Warn("Smtp account over its daily limit",
			"smtp_account_id", creds.AccountID,
			"sent_today", today,
			"daily_limit", *creds.DailyLimit)
	}
}

// SendTest delivers the campaign once to an arbitrary address with the
// subject prefixed "[TEST] ". Nothing is logged or tracked and the campaign
// status does not change.
func (s *CampaignSender) SendTest(ctx context.Context, campaignID, userID int64, to string) error {
	to = strings.TrimSpace(to)
	if !strings.Contains(to, "@") {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, to)
	}

	c, err := s.loadCampaign(ctx, campaignID, userID)
	if err != nil {
		return err
	}
	creds, err := s.credentials.Resolve(ctx, c)
	if err != nil {
		return err
	}

	r := model.Recipient{Email: to, Name: to}
	content := s.personalizer.Prepare(c.ID, Content{
		Subject: c.Subject,
		HTML:    c.HTMLContent,
		Text:    c.TextContent,
	}).Render(r)

	transport := s.transports(creds)
	defer transport.Close()

	_, err = transport.Send(ctx, &mailer.Message{
		ToEmail: to,
		Subject: "[TEST] " + content.Subject,
		HTML:    content.HTML,
		Text:    content.Text,
	})
	if err != nil {
		logger.Warn("Test email failed", "campaign_id", c.ID, "to", to, "error", err)
		return err
	}
	logger.Info("Test email sent", "campaign_id", c.ID, "to", to)
	return nil
}

func (s *CampaignSender) loadCampaign(ctx context.Context, campaignID, userID int64) (*model.Campaign, error) {
	c, err := s.campaigns.GetForUser(ctx, campaignID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	return c, nil
}

// NewTrackingID returns 32 random hex characters.
func NewTrackingID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
