package repository

import (
	"context"
	"errors"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/pkg/pg"
	"gorm.io/gorm"
)

type CampaignRepository struct {
	*pg.DB
}

func NewCampaignRepository(db *pg.DB) *CampaignRepository {
	return &CampaignRepository{
		db,
	}
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) (*model.Campaign, error) {
	entity := toCampaignEntity(c)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toCampaignModel(entity), nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	var entity CampaignEntity
	if err := r.Read(ctx).First(&entity, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toCampaignModel(&entity), nil
}

// GetForUser loads a campaign only when it belongs to userID.
func (r *CampaignRepository) GetForUser(ctx context.Context, id, userID int64) (*model.Campaign, error) {
	var entity CampaignEntity
	err := r.Read(ctx).Where("id = ? AND user_id = ?", id, userID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toCampaignModel(&entity), nil
}

// ListDue returns scheduled campaigns whose scheduled_at is not after now,
// oldest first.
func (r *CampaignRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Campaign, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var entities []*CampaignEntity
	err := r.Read(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", string(model.CampaignStatusScheduled), now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toCampaignModels(entities), nil
}

// ClaimForSending moves the campaign to sending when it is still draft or
// scheduled. It is the only gate into the send loop.
func (r *CampaignRepository) ClaimForSending(ctx context.Context, id int64, totalRecipients int, now time.Time) error {
	res := r.Write(ctx).Model(&CampaignEntity{}).
		Where("id = ? AND status IN ?", id, claimableStatuses()).
		Updates(map[string]interface{}{
			"status":           string(model.CampaignStatusSending),
			"sent_at":          now,
			"total_recipients": totalRecipients,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCampaignAlreadyClaimed
	}
	return nil
}

// Complete stores the outcome of a send loop.
func (r *CampaignRepository) Complete(ctx context.Context, result *model.CampaignResult) error {
	return r.Write(ctx).Model(&CampaignEntity{}).
		Where("id = ?", result.CampaignID).
		Updates(map[string]interface{}{
			"status":         string(result.Status),
			"emails_sent":    result.Sent,
			"emails_bounced": result.Bounced,
			"sent_at":        result.StartedAt,
			"completed_at":   result.CompletedAt,
		}).Error
}

// MarkFailed sets status failed unless the campaign already reached a
// terminal status.
func (r *CampaignRepository) MarkFailed(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	return r.Write(ctx).Model(&CampaignEntity{}).
		Where("id = ? AND status IN ?", id, []string{
			string(model.CampaignStatusDraft),
			string(model.CampaignStatusScheduled),
			string(model.CampaignStatusSending),
		}).
		Updates(map[string]interface{}{
			"status":       string(model.CampaignStatusFailed),
			"completed_at": now,
		}).Error
}

func (r *CampaignRepository) IncrementOpened(ctx context.Context, id int64) error {
	return r.increment(ctx, id, "emails_opened")
}

func (r *CampaignRepository) IncrementClicked(ctx context.Context, id int64) error {
	return r.increment(ctx, id, "emails_clicked")
}

func (r *CampaignRepository) increment(ctx context.Context, id int64, column string) error {
	return r.Write(ctx).Model(&CampaignEntity{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1)).Error
}

func claimableStatuses() []string {
	out := make([]string, len(model.ClaimableStatuses))
	for i, s := range model.ClaimableStatuses {
		out[i] = string(s)
	}
	return out
}
