package processor

import (
	"sort"
	"sync"
	"time"

	"github.com/beaconblast/campaign-delivery/pkg/prom"
)

const (
	resultOK      = "ok"
	resultFailed  = "failed"
	resultDropped = "dropped"
)

// EventStats is the running tally for one event type.
type EventStats struct {
	Event     string
	Handled   int64
	Failed    int64
	Dropped   int64
	AvgTimeMs int64
}

// ServiceMetrics counts handled stream entries per event type and mirrors
// every observation to prometheus.
type ServiceMetrics struct {
	mu      sync.Mutex
	started time.Time
	events  map[string]*eventTally
}

type eventTally struct {
	handled, failed, dropped int64
	total                    time.Duration
}

// RegisterMetrics adds the processor-only gauges to an already created
// prom registry.
func RegisterMetrics() error {
	return prom.CreateMetric(prom.TypeGaugeVec, prom.SystemNotifier, prom.MetricWorkerBacklog)
}

func NewServiceMetrics() *ServiceMetrics {
	return &ServiceMetrics{
		started: time.Now(),
		events:  make(map[string]*eventTally),
	}
}

func (m *ServiceMetrics) tally(event string) *eventTally {
	t, ok := m.events[event]
	if !ok {
		t = &eventTally{}
		m.events[event] = t
	}
	return t
}

func (m *ServiceMetrics) RecordSuccess(event string, d time.Duration) {
	m.mu.Lock()
	t := m.tally(event)
	t.handled++
	t.total += d
	m.mu.Unlock()
	prom.NotificationHandled(event, resultOK, d.Seconds())
}

// RecordFailure counts an entry left pending for redelivery.
func (m *ServiceMetrics) RecordFailure(event string) {
	m.mu.Lock()
	m.tally(event).failed++
	m.mu.Unlock()
	prom.NotificationHandled(event, resultFailed, 0)
}

// RecordDropped counts an entry acked without a handler.
func (m *ServiceMetrics) RecordDropped(event string) {
	m.mu.Lock()
	m.tally(event).dropped++
	m.mu.Unlock()
	prom.NotificationHandled(event, resultDropped, 0)
}

// Snapshot returns the tallies sorted by event name and the time since start.
func (m *ServiceMetrics) Snapshot() ([]EventStats, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]EventStats, 0, len(m.events))
	for name, t := range m.events {
		s := EventStats{Event: name, Handled: t.handled, Failed: t.failed, Dropped: t.dropped}
		if t.handled > 0 {
			s.AvgTimeMs = (t.total / time.Duration(t.handled)).Milliseconds()
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Event < out[j].Event })
	return out, time.Since(m.started)
}
