package repository

import (
	"context"
	"errors"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/pkg/pg"
	"gorm.io/gorm"
)

type EmailLogRepository struct {
	*pg.DB
}

func NewEmailLogRepository(db *pg.DB) *EmailLogRepository {
	return &EmailLogRepository{
		db,
	}
}

func (r *EmailLogRepository) Create(ctx context.Context, log *model.EmailLog) (*model.EmailLog, error) {
	entity := toEmailLogEntity(log)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toEmailLogModel(entity), nil
}

// Find resolves a log by id when one is given, otherwise by tracking id.
func (r *EmailLogRepository) Find(ctx context.Context, ref model.TrackingRef) (*model.EmailLog, error) {
	q := r.Read(ctx)
	switch {
	case ref.LogID > 0:
		q = q.Where("id = ?", ref.LogID)
	case ref.TrackingID != "":
		q = q.Where("tracking_id = ?", ref.TrackingID)
	default:
		return nil, ErrNotFound
	}

	var entity EmailLogEntity
	if err := q.First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toEmailLogModel(&entity), nil
}

func (r *EmailLogRepository) ListForCampaign(ctx context.Context, campaignID int64) ([]*model.EmailLog, error) {
	var entities []*EmailLogEntity
	if err := r.Read(ctx).Where("campaign_id = ?", campaignID).Order("id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	logs := make([]*model.EmailLog, len(entities))
	for i, e := range entities {
		logs[i] = toEmailLogModel(e)
	}
	return logs, nil
}

// MarkOpened advances a sent log to opened. It reports whether the row moved.
func (r *EmailLogRepository) MarkOpened(ctx context.Context, id int64, e model.Engagement) (bool, error) {
	res := r.Write(ctx).Model(&EmailLogEntity{}).
		Where("id = ? AND status = ?", id, string(model.EmailStatusSent)).
		Updates(map[string]interface{}{
			"status":     string(model.EmailStatusOpened),
			"opened_at":  e.At,
			"user_agent": model.Truncate(e.UserAgent, model.MaxTrackedFieldLength),
			"ip_address": e.IPAddress,
		})
	return res.RowsAffected > 0, res.Error
}

// MarkClicked advances a sent or opened log to clicked. It reports whether
// the row moved.
func (r *EmailLogRepository) MarkClicked(ctx context.Context, id int64, at time.Time) (bool, error) {
	res := r.Write(ctx).Model(&EmailLogEntity{}).
		Where("id = ? AND status IN ?", id, []string{string(model.EmailStatusSent), string(model.EmailStatusOpened)}).
		Updates(map[string]interface{}{
			"status":     string(model.EmailStatusClicked),
			"clicked_at": at,
			"opened_at":  gorm.Expr("COALESCE(opened_at, ?)", at),
		})
	return res.RowsAffected > 0, res.Error
}

// MarkBounced records a refused delivery on a sent log.
func (r *EmailLogRepository) MarkBounced(ctx context.Context, id int64, bounceType model.BounceType, reason, diagnostic string, at time.Time) error {
	return r.Write(ctx).Model(&EmailLogEntity{}).
		Where("id = ? AND status = ?", id, string(model.EmailStatusSent)).
		Updates(map[string]interface{}{
			"status":            string(model.EmailStatusBounced),
			"bounce_type":       string(bounceType),
			"bounce_reason":     reason,
			"bounce_diagnostic": diagnostic,
			"bounced_at":        at,
		}).Error
}

func (r *EmailLogRepository) SetMessageID(ctx context.Context, id int64, messageID string) error {
	return r.Write(ctx).Model(&EmailLogEntity{}).Where("id = ?", id).UpdateColumn("message_id", messageID).Error
}

func (r *EmailLogRepository) CreateLinkClick(ctx context.Context, click *model.LinkClick) (*model.LinkClick, error) {
	entity := &LinkClickEntity{
		EmailLogID: click.EmailLogID,
		URL:        click.URL,
		ClickedAt:  click.ClickedAt,
		UserAgent:  model.Truncate(click.UserAgent, model.MaxTrackedFieldLength),
		IPAddress:  click.IPAddress,
		Referrer:   model.Truncate(click.Referrer, model.MaxTrackedFieldLength),
	}
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toLinkClickModel(entity), nil
}

func (r *EmailLogRepository) ListLinkClicks(ctx context.Context, emailLogID int64) ([]*model.LinkClick, error) {
	var entities []*LinkClickEntity
	if err := r.Read(ctx).Where("email_log_id = ?", emailLogID).Order("id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	clicks := make([]*model.LinkClick, len(entities))
	for i, e := range entities {
		clicks[i] = toLinkClickModel(e)
	}
	return clicks, nil
}

type statusCount struct {
	Status string `gorm:"column:status"`
	Count  int64  `gorm:"column:count"`
}

// CountByStatus groups the campaign's logs by status.
func (r *EmailLogRepository) CountByStatus(ctx context.Context, campaignID int64) (map[string]int64, error) {
	var rows []statusCount
	err := r.Read(ctx).Model(&EmailLogEntity{}).
		Select("status, COUNT(*) AS count").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// CountLinkClicks counts every click recorded against the campaign's logs.
func (r *EmailLogRepository) CountLinkClicks(ctx context.Context, campaignID int64) (int64, error) {
	var n int64
	err := r.Read(ctx).Model(&LinkClickEntity{}).
		Joins("JOIN email_logs ON email_logs.id = link_clicks.email_log_id").
		Where("email_logs.campaign_id = ?", campaignID).
		Count(&n).Error
	return n, err
}
