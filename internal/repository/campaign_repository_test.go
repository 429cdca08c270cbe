package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/pkg/pg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestCampaignRepository_GetForUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db.DB)
	ctx := context.Background()

	c := seedCampaign(t, db, nil)

	got, err := repo.GetForUser(ctx, c.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, c.Subject, got.Subject)
	assert.Equal(t, model.CampaignStatusDraft, got.Status)

	_, err = repo.GetForUser(ctx, c.ID, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCampaignRepository_ListDue(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-5 * time.Minute)
	older := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	due := seedCampaign(t, db, func(c *model.Campaign) {
		c.Status = model.CampaignStatusScheduled
		c.ScheduledAt = &past
	})
	dueOlder := seedCampaign(t, db, func(c *model.Campaign) {
		c.Status = model.CampaignStatusScheduled
		c.ScheduledAt = &older
	})
	seedCampaign(t, db, func(c *model.Campaign) {
		c.Status = model.CampaignStatusScheduled
		c.ScheduledAt = &future
	})
	seedCampaign(t, db, func(c *model.Campaign) {
		c.Status = model.CampaignStatusDraft
		c.ScheduledAt = &past
	})
	seedCampaign(t, db, func(c *model.Campaign) {
		c.Status = model.CampaignStatusScheduled
	})

	campaigns, err := repo.ListDue(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, campaigns, 2)
	assert.Equal(t, dueOlder.ID, campaigns[0].ID)
	assert.Equal(t, due.ID, campaigns[1].ID)
}

func TestCampaignRepository_ClaimForSending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("first claim wins", func(t *testing.T) {
		c := seedCampaign(t, db, func(c *model.Campaign) { c.Status = model.CampaignStatusScheduled })

		require.NoError(t, repo.ClaimForSending(ctx, c.ID, 3, now))
		assert.ErrorIs(t, repo.ClaimForSending(ctx, c.ID, 3, now), ErrCampaignAlreadyClaimed)

		got, err := repo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, model.CampaignStatusSending, got.Status)
		assert.Equal(t, 3, got.TotalRecipients)
		assert.NotNil(t, got.SentAt)
	})

	t.Run("terminal campaigns cannot be claimed", func(t *testing.T) {
		c := seedCampaign(t, db, func(c *model.Campaign) { c.Status = model.CampaignStatusSent })
		assert.ErrorIs(t, repo.ClaimForSending(ctx, c.ID, 1, now), ErrCampaignAlreadyClaimed)
	})
}

func TestCampaignRepository_ClaimIsConditionalUpdate(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	repo := NewCampaignRepository(pg.New(gdb, gdb))
	ctx := context.Background()

	claimSQL := regexp.QuoteMeta(`UPDATE "campaigns" SET`) + `.*"status"=.*WHERE id = \$\d+ AND status IN \(\$\d+,\$\d+\)`

	mock.ExpectExec(claimSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.ClaimForSending(ctx, 7, 10, time.Now()), ErrCampaignAlreadyClaimed)

	mock.ExpectExec(claimSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.ClaimForSending(ctx, 7, 10, time.Now()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_CompleteAndMarkFailed(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	sent := seedCampaign(t, db, func(c *model.Campaign) { c.Status = model.CampaignStatusSending })
	require.NoError(t, repo.Complete(ctx, &model.CampaignResult{
		CampaignID:  sent.ID,
		Status:      model.CampaignStatusSent,
		Sent:        2,
		Bounced:     1,
		StartedAt:   now,
		CompletedAt: now,
	}))

	got, err := repo.GetByID(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusSent, got.Status)
	assert.Equal(t, 2, got.EmailsSent)
	assert.Equal(t, 1, got.EmailsBounced)
	assert.NotNil(t, got.CompletedAt)

	// a finished campaign is never flipped to failed
	require.NoError(t, repo.MarkFailed(ctx, sent.ID))
	got, err = repo.GetByID(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusSent, got.Status)

	scheduled := seedCampaign(t, db, func(c *model.Campaign) { c.Status = model.CampaignStatusScheduled })
	require.NoError(t, repo.MarkFailed(ctx, scheduled.ID))
	got, err = repo.GetByID(ctx, scheduled.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusFailed, got.Status)
}

func TestCampaignRepository_Increments(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db.DB)
	ctx := context.Background()

	c := seedCampaign(t, db, nil)
	require.NoError(t, repo.IncrementOpened(ctx, c.ID))
	require.NoError(t, repo.IncrementOpened(ctx, c.ID))
	require.NoError(t, repo.IncrementClicked(ctx, c.ID))

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.EmailsOpened)
	assert.Equal(t, 1, got.EmailsClicked)
}
