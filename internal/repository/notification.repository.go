package repository

import (
	"context"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/pkg/pg"
	"gorm.io/gorm/clause"
)

type NotificationRepository struct {
	*pg.DB
}

func NewNotificationRepository(db *pg.DB) *NotificationRepository {
	return &NotificationRepository{
		db,
	}
}

// Create inserts the notification. A second insert with the same event id
// is ignored and reports false.
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) (bool, error) {
	entity := toNotificationEntity(n)
	res := r.Write(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(entity)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *NotificationRepository) ListForUser(ctx context.Context, userID int64, limit int) ([]*model.Notification, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	var entities []*NotificationEntity
	err := r.Read(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.Notification, len(entities))
	for i, e := range entities {
		out[i] = toNotificationModel(e)
	}
	return out, nil
}
