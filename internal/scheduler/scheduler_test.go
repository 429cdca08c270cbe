package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeStore struct {
	mu        sync.Mutex
	campaigns map[int64]*model.Campaign
	failed    []int64
	listErr   error
}

func newFakeStore(cs ...*model.Campaign) *fakeStore {
	s := &fakeStore{campaigns: make(map[int64]*model.Campaign)}
	for _, c := range cs {
		s.campaigns[c.ID] = c
	}
	return s
}

func (s *fakeStore) ListDue(_ context.Context, now time.Time, _ int) ([]*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*model.Campaign
	for _, c := range s.campaigns {
		if c.Status == model.CampaignStatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, id)
	if c, ok := s.campaigns[id]; ok {
		c.Status = model.CampaignStatusFailed
	}
	return nil
}

func (s *fakeStore) status(id int64) model.CampaignStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaigns[id].Status
}

// fakeSender walks the campaign through sending to the status in outcomes.
type fakeSender struct {
	store    *fakeStore
	mu       sync.Mutex
	calls    []int64
	outcomes map[int64]model.CampaignStatus
	errs     map[int64]error
	panics   map[int64]bool
}

func (f *fakeSender) Send(_ context.Context, campaignID, userID int64) (*model.CampaignResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, campaignID)
	f.mu.Unlock()

	if f.panics[campaignID] {
		panic("boom")
	}
	if err := f.errs[campaignID]; err != nil {
		return nil, err
	}

	f.store.mu.Lock()
	c := f.store.campaigns[campaignID]
	c.Status = model.CampaignStatusSending
	status := model.CampaignStatusSent
	if s, ok := f.outcomes[campaignID]; ok {
		status = s
	}
	c.Status = status
	f.store.mu.Unlock()

	return &model.CampaignResult{CampaignID: campaignID, Status: status, Recipients: 1, Sent: 1}, nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeUsage struct {
	mu    sync.Mutex
	calls []time.Time
}

func (u *fakeUsage) ResetDailyCounters(_ context.Context, dayStart time.Time) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, dayStart)
	return 1, nil
}

func scheduled(id int64, at time.Time) *model.Campaign {
	return &model.Campaign{ID: id, UserID: 10, Status: model.CampaignStatusScheduled, ScheduledAt: &at}
}

func TestScheduler_PicksUpDueCampaign(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newFakeStore(
		scheduled(1, clock.now.Add(-5*time.Minute)),
		scheduled(2, clock.now.Add(time.Hour)),
	)
	sender := &fakeSender{store: store}
	s := New(store, nil, sender, Options{Clock: clock})

	res := s.RunOnce(context.Background())

	assert.Equal(t, TickResult{Due: 1, Sent: 1}, res)
	assert.Equal(t, model.CampaignStatusSent, store.status(1))
	assert.Equal(t, model.CampaignStatusScheduled, store.status(2))

	clock.Advance(2 * time.Hour)
	res = s.RunOnce(context.Background())
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, model.CampaignStatusSent, store.status(2))
}

func TestScheduler_FailuresAreIsolated(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	past := clock.now.Add(-time.Minute)
	store := newFakeStore(
		scheduled(1, past),
		scheduled(2, past),
		scheduled(3, past),
		scheduled(4, past),
		scheduled(5, past),
	)
	sender := &fakeSender{
		store:    store,
		errs:     map[int64]error{1: errors.New("no recipients"), 4: repository.ErrCampaignAlreadyClaimed},
		panics:   map[int64]bool{2: true},
		outcomes: map[int64]model.CampaignStatus{5: model.CampaignStatusFailed},
	}
	s := New(store, nil, sender, Options{Clock: clock})

	res := s.RunOnce(context.Background())

	assert.Equal(t, 5, res.Due)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 5, sender.callCount())

	assert.Equal(t, model.CampaignStatusFailed, store.status(1))
	assert.Equal(t, model.CampaignStatusFailed, store.status(2))
	assert.Equal(t, model.CampaignStatusSent, store.status(3))
	assert.Equal(t, model.CampaignStatusScheduled, store.status(4), "a lost claim is not marked failed")
	assert.ElementsMatch(t, []int64{1, 2, 5}, store.failed)
}

func TestScheduler_ListErrorDoesNotPanic(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("db down")
	s := New(store, nil, &fakeSender{store: store}, Options{})

	assert.Equal(t, TickResult{}, s.RunOnce(context.Background()))
}

func TestScheduler_DailyUsageReset(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)}
	store := newFakeStore()
	usage := &fakeUsage{}
	s := New(store, usage, &fakeSender{store: store}, Options{Clock: clock})

	s.RunOnce(context.Background())
	s.RunOnce(context.Background())
	require.Len(t, usage.calls, 1)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), usage.calls[0])

	clock.Advance(2 * time.Minute)
	s.RunOnce(context.Background())
	require.Len(t, usage.calls, 2)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), usage.calls[1])
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := newFakeStore(scheduled(1, clock.now.Add(-5*time.Minute)))
	sender := &fakeSender{store: store}
	s := New(store, nil, sender, Options{Clock: clock, Interval: time.Hour, StopTimeout: time.Second})

	s.Start()
	s.Start()
	assert.True(t, s.Running())

	// the first tick runs immediately
	require.Eventually(t, func() bool { return sender.callCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.False(t, s.Running())

	s.Start()
	require.NoError(t, s.Stop())
	assert.Equal(t, 1, sender.callCount(), "sent campaigns are not due again")
}

func TestScheduler_StopTimeout(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := newFakeStore(scheduled(1, clock.now.Add(-time.Minute)))
	release := make(chan struct{})
	sender := &blockingSender{release: release, started: make(chan struct{})}
	s := New(store, nil, sender, Options{Clock: clock, StopTimeout: 50 * time.Millisecond})

	s.Start()
	<-sender.started
	assert.ErrorIs(t, s.Stop(), ErrStopTimeout)
	close(release)
}

type blockingSender struct {
	release chan struct{}
	started chan struct{}
	once    sync.Once
	calls   atomic.Int32
	ctxErr  atomic.Bool
}

func (b *blockingSender) callCount() int {
	return int(b.calls.Load())
}

func (b *blockingSender) Send(ctx context.Context, _, _ int64) (*model.CampaignResult, error) {
	b.calls.Add(1)
	b.once.Do(func() { close(b.started) })
	<-b.release
	b.ctxErr.Store(ctx.Err() != nil)
	return &model.CampaignResult{Status: model.CampaignStatusSent}, nil
}

func TestScheduler_StopDoesNotAbortInFlightSend(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := newFakeStore(
		scheduled(1, clock.now.Add(-time.Minute)),
		scheduled(2, clock.now.Add(-time.Minute)),
	)
	release := make(chan struct{})
	sender := &blockingSender{release: release, started: make(chan struct{})}
	s := New(store, nil, sender, Options{Clock: clock, StopTimeout: time.Second})

	s.Start()
	<-sender.started

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop() }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-stopped)
	assert.False(t, sender.ctxErr.Load(), "the send must not see the scheduler's cancellation")
	assert.Empty(t, store.failed)
	assert.Equal(t, 1, sender.callCount(), "no new campaign is picked up after Stop")
}
