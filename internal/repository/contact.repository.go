package repository

import (
	"context"
	"errors"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ContactRepository struct {
	*pg.DB
}

func NewContactRepository(db *pg.DB) *ContactRepository {
	return &ContactRepository{
		db,
	}
}

func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) (*model.Contact, error) {
	entity := toContactEntity(c)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toContactModel(entity), nil
}

func (r *ContactRepository) GetByID(ctx context.Context, id int64) (*model.Contact, error) {
	var entity ContactEntity
	if err := r.Read(ctx).First(&entity, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toContactModel(&entity), nil
}

// ListActiveForUser returns the user's active and subscribed contacts in id order.
func (r *ContactRepository) ListActiveForUser(ctx context.Context, userID int64) ([]*model.Contact, error) {
	var entities []*ContactEntity
	err := r.Read(ctx).
		Where("user_id = ? AND status = ? AND subscribed = ?", userID, string(model.ContactStatusActive), true).
		Order("id ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	contacts := make([]*model.Contact, len(entities))
	for i, e := range entities {
		contacts[i] = toContactModel(e)
	}
	return contacts, nil
}

// RecipientWithContact pairs a campaign recipient row with its contact.
type RecipientWithContact struct {
	Recipient *model.CampaignRecipient
	Contact   *model.Contact
}

type RecipientRepository struct {
	*pg.DB
}

func NewRecipientRepository(db *pg.DB) *RecipientRepository {
	return &RecipientRepository{
		db,
	}
}

// CountForCampaign counts every recipient row of the campaign regardless of
// contact state.
func (r *RecipientRepository) CountForCampaign(ctx context.Context, campaignID int64) (int64, error) {
	var n int64
	err := r.Read(ctx).Model(&CampaignRecipientEntity{}).Where("campaign_id = ?", campaignID).Count(&n).Error
	return n, err
}

// ListForCampaign returns the campaign's recipient rows with their contacts,
// in recipient id order.
func (r *RecipientRepository) ListForCampaign(ctx context.Context, campaignID int64) ([]RecipientWithContact, error) {
	var entities []*CampaignRecipientEntity
	err := r.Read(ctx).
		Preload("Contact").
		Where("campaign_id = ?", campaignID).
		Order("id ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	out := make([]RecipientWithContact, 0, len(entities))
	for _, e := range entities {
		if e.Contact == nil {
			continue
		}
		out = append(out, RecipientWithContact{
			Recipient: toCampaignRecipientModel(e),
			Contact:   toContactModel(e.Contact),
		})
	}
	return out, nil
}

// CreateForContacts materializes one recipient row per contact. Rows that
// already exist are left alone, so the returned ids of those are zero.
func (r *RecipientRepository) CreateForContacts(ctx context.Context, campaignID int64, contacts []*model.Contact) ([]*model.CampaignRecipient, error) {
	if len(contacts) == 0 {
		return nil, nil
	}
	entities := make([]*CampaignRecipientEntity, len(contacts))
	for i, c := range contacts {
		entities[i] = &CampaignRecipientEntity{CampaignID: campaignID, ContactID: c.ID}
	}
	err := r.Write(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "campaign_id"}, {Name: "contact_id"}}, DoNothing: true}).
		CreateInBatches(entities, 500).Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.CampaignRecipient, len(entities))
	for i, e := range entities {
		out[i] = toCampaignRecipientModel(e)
	}
	return out, nil
}

func (r *RecipientRepository) MarkSent(ctx context.Context, recipientID int64, at time.Time) error {
	return r.Write(ctx).Model(&CampaignRecipientEntity{}).
		Where("id = ?", recipientID).
		Updates(map[string]interface{}{
			"email_sent": true,
			"sent_at":    at,
		}).Error
}

// MarkFailed records a refused delivery on the recipient row.
func (r *RecipientRepository) MarkFailed(ctx context.Context, recipientID int64, reason string, at time.Time) error {
	return r.Write(ctx).Model(&CampaignRecipientEntity{}).
		Where("id = ?", recipientID).
		Updates(map[string]interface{}{
			"email_failed":  true,
			"error_message": reason,
			"email_bounced": true,
			"bounce_reason": reason,
			"bounced_at":    at,
		}).Error
}

// MarkEngaged sets the legacy opened/clicked flags for the contact's row.
func (r *RecipientRepository) MarkEngaged(ctx context.Context, campaignID, contactID int64, clicked bool) error {
	updates := map[string]interface{}{"email_opened": true}
	if clicked {
		updates["email_clicked"] = true
	}
	return r.Write(ctx).Model(&CampaignRecipientEntity{}).
		Where("campaign_id = ? AND contact_id = ?", campaignID, contactID).
		Updates(updates).Error
}

func (r *RecipientRepository) Add(ctx context.Context, campaignID, contactID int64) (*model.CampaignRecipient, error) {
	entity := &CampaignRecipientEntity{CampaignID: campaignID, ContactID: contactID}
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toCampaignRecipientModel(entity), nil
}
