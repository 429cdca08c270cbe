package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/config"
	"github.com/beaconblast/campaign-delivery/internal/queue"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
	"github.com/beaconblast/campaign-delivery/pkg/prom"
	"github.com/beaconblast/campaign-delivery/pkg/redis"
	"github.com/beaconblast/campaign-delivery/pkg/worker"
)

const (
	ProcessingTimeout = time.Second * 5
	HealthInterval    = time.Second * 30
	ReportInterval    = time.Second * 30
	ShutdownTimeout   = time.Minute

	// pending entries above this are reported as lag
	lagWarnThreshold = 10000
)

var ErrPoolClosed = errors.New("worker pool is shutting down")

// Processor handles one event type from the notification stream.
type Processor interface {
	Process(ctx context.Context, message *queue.Message) error
	GetType() string
}

// ProcessorService reads the notification stream with several consumers of
// one group and hands every entry to a worker pool. Entries are routed by
// their "event" metadata to the registered Processor for that type.
type ProcessorService struct {
	adapter    redis.RedisAdapter
	cfg        *config.Config
	queues     []*queue.Queue
	processors map[string]Processor
	metrics    *ServiceMetrics
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	pool       *worker.WorkerManager
	poolSize   int
}

func NewProcessorService(adapter redis.RedisAdapter) (*ProcessorService, error) {
	cfg := config.Get()
	if cfg.NotificationQueueName == "" {
		return nil, errors.New("notification queue name is not configured")
	}
	ctx, cancel := context.WithCancel(context.Background())
	poolSize := cfg.QueueWorkers * 100
	return &ProcessorService{
		adapter:    adapter,
		cfg:        cfg,
		processors: make(map[string]Processor),
		metrics:    NewServiceMetrics(),
		ctx:        ctx,
		cancel:     cancel,
		pool:       worker.NewWorkerManager(poolSize, cfg.QueueWorkers, nil),
		poolSize:   poolSize,
	}, nil
}

// RegisterProcessor routes events of p.GetType() to p. A second processor for
// the same type replaces the first.
func (s *ProcessorService) RegisterProcessor(p Processor) {
	s.processors[p.GetType()] = p
	logger.Info("Registered processor", "event", p.GetType())
}

// Backlog is the number of stream entries waiting for a free worker.
func (s *ProcessorService) Backlog() int64 {
	return s.pool.GetUnreadCount()
}

func (s *ProcessorService) consumerConfig(instance int) queue.QueueConfig {
	return s.cfg.NotificationQueue(fmt.Sprintf("%s-instance-%d", s.cfg.QueueConsumerName, instance))
}

func (s *ProcessorService) Start() error {
	logger.Info("Starting notification processor", "stream", s.cfg.NotificationQueueName, "events", len(s.processors))

	s.pool.SetWorker(s.workerHandler)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.pool.Start(); err != nil {
			logger.Error("Worker pool stopped", "error", err)
		}
	}()

	for i := 0; i < s.cfg.QueueConsumers; i++ {
		q, err := queue.NewQueue(s.adapter, s.consumerConfig(i))
		if err != nil {
			return fmt.Errorf("failed to create consumer %d: %w", i, err)
		}
		if err := q.Consume(s.messageHandler); err != nil {
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}
		s.queues = append(s.queues, q)
	}

	s.wg.Add(2)
	go s.every(ReportInterval, func() { s.reportMetrics(s.ctx) })
	go s.every(HealthInterval, s.performHealthCheck)

	logger.Info("Notification processor started", "consumers", len(s.queues), "workers", s.cfg.QueueWorkers)
	return nil
}

func (s *ProcessorService) every(d time.Duration, fn func()) {
	defer s.wg.Done()
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics(ctx context.Context) {
	stats, uptime := s.metrics.Snapshot()
	for _, st := range stats {
		logger.Info("Notification events",
			"event", st.Event,
			"handled", st.Handled,
			"failed", st.Failed,
			"dropped", st.Dropped,
			"avg_ms", st.AvgTimeMs,
			"uptime", uptime.Round(time.Second))
	}
	backlog := s.Backlog()
	prom.WorkerBacklog(backlog)
	logger.Info("Notification workers", "backlog", backlog, "workers", s.cfg.QueueWorkers)

	// every consumer reads the same stream, one stats call is enough
	if len(s.queues) > 0 {
		if qs, err := s.queues[0].GetStats(ctx); err == nil {
			logger.Info("Notification stream", "total", qs.TotalMessages, "pending", qs.PendingMessages)
		}
	}
}

func (s *ProcessorService) performHealthCheck() {
	if err := s.adapter.Ping(s.ctx); err != nil {
		logger.Error("Health check failed: redis unreachable", "error", err)
		return
	}
	if len(s.queues) == 0 {
		return
	}
	qs, err := s.queues[0].GetStats(s.ctx)
	if err != nil {
		logger.Warn("Health check: stream stats unavailable", "error", err)
		return
	}
	if backlog := s.Backlog(); backlog >= int64(s.poolSize) {
		logger.Warn("Health check: worker pool is saturated", "backlog", backlog)
	}
	if qs.PendingMessages > lagWarnThreshold {
		logger.Warn("Health check: notification stream is lagging", "pending", qs.PendingMessages)
		return
	}
	logger.Debug("Health check ok")
}

// Stop cancels background loops, drains the consumers and the pool, then
// logs the final tallies.
func (s *ProcessorService) Stop() {
	logger.Info("Shutting down notification processor...")
	s.cancel()

	var stopWg sync.WaitGroup
	for i, q := range s.queues {
		stopWg.Add(1)
		go func(i int, q *queue.Queue) {
			defer stopWg.Done()
			if err := q.Stop(ShutdownTimeout); err != nil {
				logger.Error("Error stopping consumer", "consumer", i, "error", err)
			}
		}(i, q)
	}
	stopWg.Wait()

	s.pool.Exit()
	s.wg.Wait()
	s.reportMetrics(context.Background())
	logger.Info("Notification processor stopped")
}

type job struct {
	msg    *queue.Message
	result chan error
	ctx    context.Context
}

// messageHandler blocks the consumer until a worker has handled the entry so
// the ack follows the processing result.
func (s *ProcessorService) messageHandler(ctx context.Context, msg *queue.Message) error {
	jobCtx, cancel := context.WithTimeout(ctx, ProcessingTimeout+time.Second)
	defer cancel()

	j := &job{msg: msg, result: make(chan error, 1), ctx: jobCtx}
	if !s.pool.Enqueue(j) {
		return ErrPoolClosed
	}

	select {
	case err := <-j.result:
		return err
	case <-jobCtx.Done():
		return fmt.Errorf("waiting for worker on %s: %w", msg.ID, jobCtx.Err())
	}
}

func (s *ProcessorService) workerHandler(workerIndex int, payload interface{}) {
	j, ok := payload.(*job)
	if !ok {
		logger.Error("Invalid job type in worker", "worker", workerIndex)
		return
	}
	if j.ctx.Err() != nil {
		logger.Warn("Job expired before a worker picked it up", "worker", workerIndex, "stream_id", j.msg.ID)
		return
	}
	// result is buffered, the send never blocks
	j.result <- s.dispatch(j.ctx, j.msg)
}

// dispatch runs the processor registered for the entry's event. Entries with
// no processor are acked; they would never succeed on redelivery.
func (s *ProcessorService) dispatch(ctx context.Context, msg *queue.Message) error {
	event := msg.Metadata["event"]
	p, ok := s.processors[event]
	if !ok {
		logger.Warn("No processor for event, dropping", "event", event, "stream_id", msg.ID)
		s.metrics.RecordDropped(event)
		return nil
	}

	start := time.Now()
	if err := p.Process(ctx, msg); err != nil {
		s.metrics.RecordFailure(event)
		logger.Error("Failed to process notification event", "event", event, "stream_id", msg.ID, "error", err)
		return err
	}
	s.metrics.RecordSuccess(event, time.Since(start))
	return nil
}
