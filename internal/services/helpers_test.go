package services

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/mailer"
	"github.com/beaconblast/campaign-delivery/internal/mocksmtp"
	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/internal/repository"
	"github.com/beaconblast/campaign-delivery/internal/tracking"
	"github.com/beaconblast/campaign-delivery/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	db         *pg.DB
	smtp       *mocksmtp.Server
	campaigns  *repository.CampaignRepository
	contacts   *repository.ContactRepository
	recipients *repository.RecipientRepository
	logs       *repository.EmailLogRepository
	accounts   *repository.SmtpAccountRepository
	publisher  *recordingPublisher
	sender     *CampaignSender
	tracking   *TrackingService
	analytics  *AnalyticsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, repository.AutoMigrate(gdb))
	db := pg.New(gdb, gdb)

	srv := mocksmtp.New(mocksmtp.Config{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, 5*time.Millisecond)
	t.Cleanup(func() { _ = srv.Close() })

	env := &testEnv{
		db:         db,
		smtp:       srv,
		campaigns:  repository.NewCampaignRepository(db),
		contacts:   repository.NewContactRepository(db),
		recipients: repository.NewRecipientRepository(db),
		logs:       repository.NewEmailLogRepository(db),
		accounts:   repository.NewSmtpAccountRepository(db),
		publisher:  &recordingPublisher{},
	}

	env.sender = NewCampaignSender(CampaignSenderDeps{
		Campaigns:   env.campaigns,
		Logs:        env.logs,
		Recipients:  env.recipients,
		Usage:       env.accounts,
		Resolver:    NewRecipientResolver(env.recipients, env.contacts),
		Credentials: NewCredentialsResolver(env.accounts, 0),
		Rewriter:    tracking.NewRewriter("https://t.example.com"),
		Transports:  MailerTransports(mailer.Options{BatchSize: 10, DialTimeout: 2 * time.Second}),
		Notifier:    NewNotifier(env.publisher),
	})
	env.tracking = NewTrackingService(env.logs, env.campaigns, env.recipients)
	env.analytics = NewAnalyticsService(env.campaigns, env.logs)
	return env
}

func (e *testEnv) seedAccount(t *testing.T, mutate func(a *model.SmtpAccount)) *model.SmtpAccount {
	t.Helper()
	host, portStr, err := net.SplitHostPort(e.smtp.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	a := &model.SmtpAccount{
		Name:            "mock",
		Host:            host,
		Port:            port,
		Encryption:      model.EncryptionNone,
		FromName:        "Beacon News",
		FromEmail:       "news@beacon.test",
		IsActive:        true,
		IsVerified:      true,
		IsGlobalDefault: true,
	}
	if mutate != nil {
		mutate(a)
	}
	created, err := e.accounts.Create(context.Background(), a)
	require.NoError(t, err)
	return created
}

func (e *testEnv) seedCampaign(t *testing.T, mutate func(c *model.Campaign)) *model.Campaign {
	t.Helper()
	c := &model.Campaign{
		UserID:      1,
		Name:        "Spring launch",
		Subject:     "Hello {{ first_name }}",
		SenderName:  "Beacon",
		SenderEmail: "news@beacon.test",
		HTMLContent: `<html><body><p>Hi {{ name }}</p><a href="https://shop.example.com/sale">Sale</a></body></html>`,
		TextContent: "Hi {{ name }}",
		Status:      model.CampaignStatusDraft,
	}
	if mutate != nil {
		mutate(c)
	}
	created, err := e.campaigns.Create(context.Background(), c)
	require.NoError(t, err)
	return created
}

func (e *testEnv) seedContact(t *testing.T, userID int64, email, first string, mutate func(c *model.Contact)) *model.Contact {
	t.Helper()
	c := &model.Contact{
		UserID:     userID,
		Email:      email,
		FirstName:  first,
		Status:     model.ContactStatusActive,
		Subscribed: true,
	}
	if mutate != nil {
		mutate(c)
	}
	created, err := e.contacts.Create(context.Background(), c)
	require.NoError(t, err)
	return created
}

type recordingPublisher struct {
	events []*model.CampaignCompletedEvent
	err    error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, data interface{}, _ map[string]string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, data.(*model.CampaignCompletedEvent))
	return "1-0", nil
}
