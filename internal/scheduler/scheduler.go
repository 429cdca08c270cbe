// Package scheduler polls for due campaigns and hands them to the sender.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/internal/repository"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
	"github.com/beaconblast/campaign-delivery/pkg/prom"
)

const (
	DefaultInterval    = time.Minute
	DefaultStopTimeout = 5 * time.Second
	// due campaigns picked up per tick
	BatchLimit = 100
)

var ErrStopTimeout = errors.New("scheduler did not stop in time")

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type CampaignStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Campaign, error)
	MarkFailed(ctx context.Context, id int64) error
}

type UsageResetter interface {
	ResetDailyCounters(ctx context.Context, dayStart time.Time) (int64, error)
}

type Sender interface {
	Send(ctx context.Context, campaignID, userID int64) (*model.CampaignResult, error)
}

type Options struct {
	Interval    time.Duration
	StopTimeout time.Duration
	Clock       Clock
}

// Scheduler is owned by the process that starts it. Start and Stop may be
// called any number of times.
type Scheduler struct {
	store  CampaignStore
	usage  UsageResetter
	sender Sender
	clock  Clock

	interval    time.Duration
	stopTimeout time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	tickMu sync.Mutex
	// UTC day of the last counter reset
	lastReset string
}

func New(store CampaignStore, usage UsageResetter, sender Sender, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	return &Scheduler{
		store:       store,
		usage:       usage,
		sender:      sender,
		clock:       opts.Clock,
		interval:    opts.Interval,
		stopTimeout: opts.StopTimeout,
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.done)
	logger.Info("Scheduler started", "interval", s.interval)
}

// Stop prevents new ticks and waits up to the stop timeout for the current
// one. An in-flight send may still be running when it returns.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		logger.Info("Scheduler stopped")
		return nil
	case <-time.After(s.stopTimeout):
		logger.Warn("Scheduler stop timed out", "timeout", s.stopTimeout)
		return ErrStopTimeout
	}
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		// a canceled tick never picks up new campaigns
		if ctx.Err() != nil {
			return
		}
		s.RunOnce(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// TickResult summarizes one poll.
type TickResult struct {
	Due     int
	Sent    int
	Failed  int
	Skipped int
}

// RunOnce performs a single poll. Errors are logged, never returned, so one
// bad campaign or a database hiccup does not stop the loop.
func (s *Scheduler) RunOnce(ctx context.Context) TickResult {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now := s.clock.Now()
	var res TickResult

	s.resetDailyUsage(ctx, now)

	due, err := s.store.ListDue(ctx, now, BatchLimit)
	if err != nil {
		logger.Error("Failed to list due campaigns", "error", err)
		prom.SchedulerTick(0)
		return res
	}
	res.Due = len(due)
	prom.SchedulerTick(len(due))
	if len(due) > 0 {
		logger.Info("Processing scheduled campaigns", "count", len(due))
	}

	for _, c := range due {
		if ctx.Err() != nil {
			break
		}
		switch s.process(ctx, c) {
		case outcomeSent:
			res.Sent++
		case outcomeSkipped:
			res.Skipped++
		default:
			res.Failed++
		}
	}
	return res
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeSkipped
)

func (s *Scheduler) process(ctx context.Context, c *model.Campaign) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while sending scheduled campaign", "campaign_id", c.ID, "panic", fmt.Sprint(r))
			s.markFailed(ctx, c.ID)
			out = outcomeFailed
		}
	}()

	// Stop only keeps new campaigns from being picked up. A send that has
	// started runs to its final status.
	result, err := s.sender.Send(context.WithoutCancel(ctx), c.ID, c.UserID)
	switch {
	case errors.Is(err, repository.ErrCampaignAlreadyClaimed):
		logger.Info("Scheduled campaign already claimed, skipping", "campaign_id", c.ID)
		return outcomeSkipped
	case err != nil:
		logger.Error("Scheduled campaign failed", "campaign_id", c.ID, "error", err)
		s.markFailed(ctx, c.ID)
		return outcomeFailed
	case result == nil || result.Status != model.CampaignStatusSent:
		logger.Warn("Scheduled campaign finished without deliveries", "campaign_id", c.ID)
		s.markFailed(ctx, c.ID)
		return outcomeFailed
	}

	logger.Info("Scheduled campaign sent",
		"campaign_id", c.ID,
		"recipients", result.Recipients,
		"sent", result.Sent,
		"bounced", result.Bounced)
	return outcomeSent
}

func (s *Scheduler) markFailed(ctx context.Context, id int64) {
	if err := s.store.MarkFailed(context.WithoutCancel(ctx), id); err != nil {
		logger.Error("Failed to mark campaign failed", "campaign_id", id, "error", err)
	}
}

func (s *Scheduler) resetDailyUsage(ctx context.Context, now time.Time) {
	if s.usage == nil {
		return
	}
	day := now.UTC().Format(time.DateOnly)
	if day == s.lastReset {
		return
	}
	dayStart := now.UTC().Truncate(24 * time.Hour)
	n, err := s.usage.ResetDailyCounters(ctx, dayStart)
	if err != nil {
		logger.Error("Failed to reset daily smtp counters", "error", err)
		return
	}
	s.lastReset = day
	logger.Info("Daily smtp counters reset", "day", day, "accounts", n)
}
