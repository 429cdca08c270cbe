package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/beaconblast/campaign-delivery/internal/config"
	"github.com/beaconblast/campaign-delivery/internal/mailer"
	"github.com/beaconblast/campaign-delivery/internal/queue"
	"github.com/beaconblast/campaign-delivery/internal/repository"
	"github.com/beaconblast/campaign-delivery/internal/scheduler"
	"github.com/beaconblast/campaign-delivery/internal/services"
	"github.com/beaconblast/campaign-delivery/internal/tracking"
	"github.com/beaconblast/campaign-delivery/migrations"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
	"github.com/beaconblast/campaign-delivery/pkg/pg"
	"github.com/beaconblast/campaign-delivery/pkg/redis"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return pg.Migrate(config.Get().PostgresWrite(), migrations.FS, ".")
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the applied state of every migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return pg.MigrationStatus(config.Get().PostgresWrite(), migrations.FS, ".")
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <campaign-id>",
	Short: "Send a campaign now and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		campaignID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid campaign id %q", args[0])
		}
		userID, _ := cmd.Flags().GetInt64("user")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := newApp()
		if err != nil {
			return err
		}
		result, err := app.sender.Send(ctx, campaignID, userID)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var testEmailCmd = &cobra.Command{
	Use:   "test-email <campaign-id> <email>",
	Short: "Send one untracked copy of a campaign to an address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		campaignID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid campaign id %q", args[0])
		}
		userID, _ := cmd.Flags().GetInt64("user")

		app, err := newApp()
		if err != nil {
			return err
		}
		if err := app.sender.SendTest(cmd.Context(), campaignID, userID, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "test email sent to %s\n", args[1])
		return nil
	},
}

var scheduleTickCmd = &cobra.Command{
	Use:   "schedule-tick",
	Short: "Run a single scheduler poll and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		sched := scheduler.New(app.campaigns, app.accounts, app.sender, scheduler.Options{
			Interval:    config.Get().SchedulerInterval,
			StopTimeout: config.Get().SchedulerStopTimeout,
		})
		return printJSON(cmd, sched.RunOnce(cmd.Context()))
	},
}

type app struct {
	campaigns *repository.CampaignRepository
	accounts  *repository.SmtpAccountRepository
	sender    *services.CampaignSender
}

func newApp() (*app, error) {
	db, err := pg.CreateReadWrite(config.Get().PostgresRead(), config.Get().PostgresWrite(), config.Get().PostgresDebug)
	if err != nil {
		return nil, fmt.Errorf("failed connecting to pg: %w", err)
	}

	campaignRepo := repository.NewCampaignRepository(db)
	contactRepo := repository.NewContactRepository(db)
	recipientRepo := repository.NewRecipientRepository(db)
	emailLogRepo := repository.NewEmailLogRepository(db)
	smtpRepo := repository.NewSmtpAccountRepository(db)

	sender := services.NewCampaignSender(services.CampaignSenderDeps{
		Campaigns:   campaignRepo,
		Logs:        emailLogRepo,
		Recipients:  recipientRepo,
		Usage:       smtpRepo,
		Resolver:    services.NewRecipientResolver(recipientRepo, contactRepo),
		Credentials: services.NewCredentialsResolver(smtpRepo, config.Get().CredentialsCacheTTL),
		Rewriter:    tracking.NewRewriter(config.Get().TrackingBaseURL),
		Transports: services.MailerTransports(mailer.Options{
			BatchSize:   config.Get().SMTPBatchSize,
			DialTimeout: config.Get().SMTPDialTimeout,
			SendRate:    config.Get().SMTPSendRate,
			HeloName:    config.Get().SMTPHeloName,
		}),
		Notifier: services.NewNotifier(notificationPublisher()),
	})
	return &app{campaigns: campaignRepo, accounts: smtpRepo, sender: sender}, nil
}

// notificationPublisher returns nil when redis is unreachable, sends from the
// command line then go out without an owner notification.
func notificationPublisher() services.Publisher {
	adapter, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, config.Get().RedisOptions("cli"))
	if err != nil {
		logger.Warn("redis unavailable, campaign notifications disabled", "error", err)
		return nil
	}
	q, err := queue.NewQueue(adapter, config.Get().NotificationQueue("cli"))
	if err != nil {
		logger.Warn("failed creating notification queue", "error", err)
		return nil
	}
	return q
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
