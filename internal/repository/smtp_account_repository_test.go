package repository

import (
	"context"
	"testing"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, db *testDB, name string, mutate func(a *model.SmtpAccount)) *model.SmtpAccount {
	a := &model.SmtpAccount{
		Name:       name,
		Host:       "smtp.example.com",
		Port:       587,
		Username:   "user",
		Password:   "secret",
		Encryption: model.EncryptionTLS,
		FromEmail:  name + "@example.com",
		IsActive:   true,
		IsVerified: true,
	}
	if mutate != nil {
		mutate(a)
	}
	created, err := NewSmtpAccountRepository(db.DB).Create(context.Background(), a)
	require.NoError(t, err)
	return created
}

func TestSmtpAccountRepository_FindUsableForUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSmtpAccountRepository(db.DB)
	ctx := context.Background()

	first := seedAccount(t, db, "first", nil)
	unverified := seedAccount(t, db, "unverified", func(a *model.SmtpAccount) { a.IsVerified = false })
	preferred := seedAccount(t, db, "preferred", nil)

	require.NoError(t, repo.Assign(ctx, 1, first.ID, false))
	require.NoError(t, repo.Assign(ctx, 1, unverified.ID, true))

	got, err := repo.FindUsableForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	require.NoError(t, repo.Assign(ctx, 1, preferred.ID, true))
	got, err = repo.FindUsableForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, preferred.ID, got.ID)

	_, err = repo.FindUsableForUser(ctx, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSmtpAccountRepository_FindGlobalDefault(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSmtpAccountRepository(db.DB)
	ctx := context.Background()

	_, err := repo.FindGlobalDefault(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	seedAccount(t, db, "inactive", func(a *model.SmtpAccount) {
		a.IsGlobalDefault = true
		a.IsActive = false
	})
	global := seedAccount(t, db, "global", func(a *model.SmtpAccount) { a.IsGlobalDefault = true })

	got, err := repo.FindGlobalDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, global.ID, got.ID)
	assert.Equal(t, "secret", got.Password)
}

func TestSmtpAccountRepository_UsageCounters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSmtpAccountRepository(db.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	a := seedAccount(t, db, "busy", nil)
	today, err := repo.IncrementUsage(ctx, a.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, today)
	today, err = repo.IncrementUsage(ctx, a.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 2, today)

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TotalEmailsSent)
	assert.NotNil(t, got.LastUsedAt)

	reset, err := repo.ResetDailyCounters(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, reset, "accounts used since the day started keep their count")

	reset, err = repo.ResetDailyCounters(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	got, err = repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, got.EmailsSentToday)
	assert.Equal(t, int64(2), got.TotalEmailsSent)
}
