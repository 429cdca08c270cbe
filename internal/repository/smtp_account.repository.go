package repository

import (
	"context"
	"errors"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/pkg/pg"
	"gorm.io/gorm"
)

type SmtpAccountRepository struct {
	*pg.DB
}

func NewSmtpAccountRepository(db *pg.DB) *SmtpAccountRepository {
	return &SmtpAccountRepository{
		db,
	}
}

func (r *SmtpAccountRepository) Create(ctx context.Context, a *model.SmtpAccount) (*model.SmtpAccount, error) {
	entity := toSmtpAccountEntity(a)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toSmtpAccountModel(entity), nil
}

func (r *SmtpAccountRepository) GetByID(ctx context.Context, id int64) (*model.SmtpAccount, error) {
	var entity SmtpAccountEntity
	if err := r.Read(ctx).First(&entity, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toSmtpAccountModel(&entity), nil
}

// FindUsableForUser returns the user's preferred active and verified account:
// the default assignment first, then the earliest assigned.
func (r *SmtpAccountRepository) FindUsableForUser(ctx context.Context, userID int64) (*model.SmtpAccount, error) {
	var entity SmtpAccountEntity
	err := r.Read(ctx).
		Joins("JOIN user_smtp_assignments ON user_smtp_assignments.smtp_account_id = smtp_accounts.id").
		Where("user_smtp_assignments.user_id = ? AND smtp_accounts.is_active = ? AND smtp_accounts.is_verified = ?", userID, true, true).
		Order("user_smtp_assignments.is_default DESC, user_smtp_assignments.assigned_at ASC, smtp_accounts.id ASC").
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toSmtpAccountModel(&entity), nil
}

// FindGlobalDefault returns the active and verified account flagged as the
// global default.
func (r *SmtpAccountRepository) FindGlobalDefault(ctx context.Context) (*model.SmtpAccount, error) {
	var entity SmtpAccountEntity
	err := r.Read(ctx).
		Where("is_global_default = ? AND is_active = ? AND is_verified = ?", true, true, true).
		Order("id ASC").
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toSmtpAccountModel(&entity), nil
}

func (r *SmtpAccountRepository) Assign(ctx context.Context, userID, accountID int64, isDefault bool) error {
	return r.Write(ctx).Create(&UserSmtpAssignmentEntity{
		UserID:        userID,
		SmtpAccountID: accountID,
		IsDefault:     isDefault,
	}).Error
}

// IncrementUsage bumps the send counters after one accepted message and
// returns the counter for today.
func (r *SmtpAccountRepository) IncrementUsage(ctx context.Context, id int64, at time.Time) (int, error) {
	err := r.Write(ctx).Model(&SmtpAccountEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_emails_sent": gorm.Expr("total_emails_sent + ?", 1),
			"emails_sent_today": gorm.Expr("emails_sent_today + ?", 1),
			"last_used_at":      at,
		}).Error
	if err != nil {
		return 0, err
	}
	var today []int
	err = r.Write(ctx).Model(&SmtpAccountEntity{}).
		Where("id = ?", id).
		Pluck("emails_sent_today", &today).Error
	if err != nil || len(today) == 0 {
		return 0, err
	}
	return today[0], nil
}

// ResetDailyCounters zeroes emails_sent_today on accounts not used since
// dayStart, so calling it again later the same day keeps today's counts.
func (r *SmtpAccountRepository) ResetDailyCounters(ctx context.Context, dayStart time.Time) (int64, error) {
	res := r.Write(ctx).Model(&SmtpAccountEntity{}).
		Where("emails_sent_today <> ?", 0).
		Where("last_used_at IS NULL OR last_used_at < ?", dayStart).
		UpdateColumn("emails_sent_today", 0)
	return res.RowsAffected, res.Error
}
