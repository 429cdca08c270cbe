package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/beaconblast/campaign-delivery/internal/config"
	"github.com/beaconblast/campaign-delivery/internal/handlers"
	"github.com/beaconblast/campaign-delivery/internal/mailer"
	"github.com/beaconblast/campaign-delivery/internal/queue"
	"github.com/beaconblast/campaign-delivery/internal/repository"
	"github.com/beaconblast/campaign-delivery/internal/scheduler"
	"github.com/beaconblast/campaign-delivery/internal/services"
	"github.com/beaconblast/campaign-delivery/internal/tracking"
	xhttp "github.com/beaconblast/campaign-delivery/pkg/http"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
	"github.com/beaconblast/campaign-delivery/pkg/pg"
	"github.com/beaconblast/campaign-delivery/pkg/prom"
	"github.com/beaconblast/campaign-delivery/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(config.EnvPathFromArgs(os.Args))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	logger.Info("starting campaign api", "version", version, "commit", commit, "date", date)

	cfg := config.Get()

	// transport (tcp for now)
	opt := xhttp.DefaultServerOption
	opt.ReadTimeout = cfg.HttpServerReadTimeout
	// a campaign send holds the request open until every recipient is tried
	opt.WriteTimeout = cfg.HttpServerWriteTimeout
	opt.ReadBufferSize = cfg.HttpServerReadBufferSize
	opt.WriteBufferSize = cfg.HttpServerWriteBufferSize
	s := xhttp.NewServer(opt)
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpServerWriteTimeout))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), cfg.PostgresDebugEnabled())
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, cfg.RedisOptions("default"))
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	notificationQ, err := queue.NewQueue(redisAdap, cfg.NotificationQueue(cfg.QueueConsumerName))
	if err != nil {
		// sends still work, owners just miss the completion notification
		logger.Error("failed creating notification queue", "error", err)
	}

	campaignRepo := repository.NewCampaignRepository(db)
	contactRepo := repository.NewContactRepository(db)
	recipientRepo := repository.NewRecipientRepository(db)
	emailLogRepo := repository.NewEmailLogRepository(db)
	smtpRepo := repository.NewSmtpAccountRepository(db)

	// services
	var publisher services.Publisher
	if notificationQ != nil {
		publisher = notificationQ
	}
	sender := services.NewCampaignSender(services.CampaignSenderDeps{
		Campaigns:   campaignRepo,
		Logs:        emailLogRepo,
		Recipients:  recipientRepo,
		Usage:       smtpRepo,
		Resolver:    services.NewRecipientResolver(recipientRepo, contactRepo),
		Credentials: services.NewCredentialsResolver(smtpRepo, cfg.CredentialsCacheTTL),
		Rewriter:    tracking.NewRewriter(cfg.TrackingBaseURL),
		Transports: services.MailerTransports(mailer.Options{
			BatchSize:   cfg.SMTPBatchSize,
			DialTimeout: cfg.SMTPDialTimeout,
			SendRate:    cfg.SMTPSendRate,
			HeloName:    cfg.SMTPHeloName,
		}),
		Notifier: services.NewNotifier(publisher),
	})
	trackingService := services.NewTrackingService(emailLogRepo, campaignRepo, recipientRepo)
	analyticsService := services.NewAnalyticsService(campaignRepo, emailLogRepo)
	healthService := services.NewHealthService(map[string]services.Pinger{
		"database": db,
		"redis":    redisAdap,
	})

	// tracking links live at the root, they are embedded in sent mail
	handlers.RegisterTrackingRoutes(s.Router, handlers.NewTrackingHandler(trackingService))

	// v1 handlers
	g := s.Router.Group("/api/v1")
	handlers.RegisterCampaignRoutes(g, handlers.NewCampaignHandler(sender, analyticsService))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(healthService))

	sched := scheduler.New(campaignRepo, smtpRepo, sender, scheduler.Options{
		Interval:    cfg.SchedulerInterval,
		StopTimeout: cfg.SchedulerStopTimeout,
	})
	if cfg.IsSchedulerEnabled() {
		sched.Start()
	} else {
		logger.Info("campaign scheduler disabled")
	}

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
	} else {
		go prom.ListenAndServer(cfg.MetricsListenAddr, cfg.MetricsURI)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(cfg.HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	if err := sched.Stop(); err != nil {
		logger.Warn("scheduler did not stop in time", "error", err)
	}
	s.Shutdown()
}
