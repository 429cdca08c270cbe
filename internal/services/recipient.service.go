package services

import (
	"context"
	"fmt"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/internal/repository"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
)

type RecipientStore interface {
	ListForCampaign(ctx context.Context, campaignID int64) ([]repository.RecipientWithContact, error)
	CreateForContacts(ctx context.Context, campaignID int64, contacts []*model.Contact) ([]*model.CampaignRecipient, error)
}

type ContactStore interface {
	ListActiveForUser(ctx context.Context, userID int64) ([]*model.Contact, error)
}

// RecipientResolver computes who a campaign goes to. Explicit recipient rows
// win; a campaign without any is addressed to all of the owner's active
// contacts, and rows are created for them.
type RecipientResolver struct {
	recipients RecipientStore
	contacts   ContactStore
}

func NewRecipientResolver(recipients RecipientStore, contacts ContactStore) *RecipientResolver {
	return &RecipientResolver{
		recipients: recipients,
		contacts:   contacts,
	}
}

func (r *RecipientResolver) Resolve(ctx context.Context, c *model.Campaign) ([]model.Recipient, error) {
	rows, err := r.recipients.ListForCampaign(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list campaign recipients: %w", err)
	}

	if len(rows) == 0 {
		contacts, err := r.contacts.ListActiveForUser(ctx, c.UserID)
		if err != nil {
			return nil, fmt.Errorf("list contacts: %w", err)
		}
		sendable := make([]*model.Contact, 0, len(contacts))
		for _, ct := range contacts {
			if ct.IsSendable() {
				sendable = append(sendable, ct)
			}
		}
		if len(sendable) == 0 {
			return nil, nil
		}
		if _, err := r.recipients.CreateForContacts(ctx, c.ID, sendable); err != nil {
			return nil, fmt.Errorf("create campaign recipients: %w", err)
		}
		logger.Info("Materialized campaign recipients from contacts", "campaign_id", c.ID, "count", len(sendable))

		// re-read for the row ids
		if rows, err = r.recipients.ListForCampaign(ctx, c.ID); err != nil {
			return nil, fmt.Errorf("list campaign recipients: %w", err)
		}
	}

	out := make([]model.Recipient, 0, len(rows))
	for _, row := range rows {
		if !row.Contact.IsSendable() {
			continue
		}
		out = append(out, toRecipient(row.Contact, row.Recipient.ID))
	}
	return out, nil
}

func toRecipient(c *model.Contact, recipientID int64) model.Recipient {
	name := c.FullName()
	if name == "" {
		name = c.Email
	}
	return model.Recipient{
		Email:       c.Email,
		Name:        name,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		ContactID:   c.ID,
		RecipientID: recipientID,
	}
}
