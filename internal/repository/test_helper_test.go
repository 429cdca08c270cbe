package repository

import (
	"context"
	"testing"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testDB struct {
	*pg.DB
	rawDB *gorm.DB
}

func setupTestDB(t *testing.T) *testDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// every connection to :memory: is a new database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))

	return &testDB{
		DB:    pg.New(db, db),
		rawDB: db,
	}
}

func seedCampaign(t *testing.T, db *testDB, mutate func(c *model.Campaign)) *model.Campaign {
	c := &model.Campaign{
		UserID:      1,
		Name:        "Spring launch",
		Subject:     "Hello {{ first_name }}",
		SenderName:  "Beacon",
		SenderEmail: "news@example.com",
		HTMLContent: `<html><body><a href="https://example.com">x</a></body></html>`,
		TextContent: "hello",
		Status:      model.CampaignStatusDraft,
	}
	if mutate != nil {
		mutate(c)
	}
	created, err := NewCampaignRepository(db.DB).Create(context.Background(), c)
	require.NoError(t, err)
	return created
}

func seedContact(t *testing.T, db *testDB, userID int64, email string, mutate func(c *model.Contact)) *model.Contact {
	c := &model.Contact{
		UserID:     userID,
		Email:      email,
		FirstName:  "Jane",
		LastName:   "Doe",
		Status:     model.ContactStatusActive,
		Subscribed: true,
	}
	if mutate != nil {
		mutate(c)
	}
	created, err := NewContactRepository(db.DB).Create(context.Background(), c)
	require.NoError(t, err)
	return created
}

func seedEmailLog(t *testing.T, db *testDB, campaignID int64, trackingID string) *model.EmailLog {
	now := time.Now().UTC()
	log, err := NewEmailLogRepository(db.DB).Create(context.Background(), &model.EmailLog{
		CampaignID:     campaignID,
		RecipientEmail: "jane@example.com",
		RecipientName:  "Jane Doe",
		Status:         model.EmailStatusSent,
		TrackingID:     trackingID,
		SentAt:         &now,
	})
	require.NoError(t, err)
	return log
}
