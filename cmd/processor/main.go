package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/beaconblast/campaign-delivery/internal/config"
	"github.com/beaconblast/campaign-delivery/internal/processor"
	"github.com/beaconblast/campaign-delivery/internal/repository"
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

// processor consumes campaign.completed events and stores them as owner
// notifications.
func main() {
	if err := config.Load(config.EnvPathFromArgs(os.Args)); err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting notification processor", "version", version, "commit", commit, "date", date)

	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), cfg.PostgresDebugEnabled())
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, cfg.RedisOptions("processor"))
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	service, err := processor.NewProcessorService(redisAdap)
	if err != nil {
		logger.Error("failed to create the processor", "error", err)
		return
	}
	service.RegisterProcessor(processor.NewNotificationProcessor(
		repository.NewNotificationRepository(db),
		processor.NewIdempotencyService(redisAdap, processor.DefaultIdempotencyConfig()),
	))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err := prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
	} else {
		if err := processor.RegisterMetrics(); err != nil {
			logger.Error("failed to register processor metrics", "error", err)
		}
		go prom.ListenAndServer(cfg.MetricsListenAddr, cfg.MetricsURI)
	}

	if err := service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		service.Stop()
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	service.Stop()
}
