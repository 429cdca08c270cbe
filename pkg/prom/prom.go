package prom

import (
	"fmt"
	"sync"

	xhttp "github.com/beaconblast/campaign-delivery/pkg/http"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemCampaign  = "campaign"
	SystemEmail     = "email"
	SystemTracking  = "tracking"
	SystemScheduler = "scheduler"
	SystemNotifier  = "notifier"
)

const (
	MetricCampaignSendsTotal    = "sends_total"
	MetricCampaignSendDuration  = "send_duration_seconds"
	MetricEmailsTotal           = "emails_total"
	MetricTrackingEventsTotal   = "events_total"
	MetricSchedulerTicksTotal   = "ticks_total"
	MetricSchedulerDueCampaigns = "due_campaigns"
	MetricNotificationsTotal    = "events_handled_total"
	MetricNotificationDuration  = "handle_duration_seconds"
	MetricWorkerBacklog         = "worker_backlog"
)

const (
	TypeCounter      = "counter"
	TypeCounterVec   = "counterVec"
	TypeHistogram    = "histogram"
	TypeHistogramVec = "histogramVec"
	TypeGaugeVec     = "gaugeVec"
)

var lockCreateMetricLock = &sync.Mutex{}
var namespace = "none"

var MetricSystemEnabled = false

var MetricCollectionCounters = make(map[string]prometheus.Counter)
var MetricCollectionCounterVec = make(map[string]*prometheus.CounterVec)
var MetricCollectionGaugeVec = make(map[string]*prometheus.GaugeVec)
var MetricCollectionHistogram = make(map[string]prometheus.Histogram)
var MetricCollectionHistogramVec = make(map[string]*prometheus.HistogramVec)

var defaultLabels prometheus.Labels

// Create registers the delivery metrics. Until it is called every recording
// helper is a no-op.
func Create(host string, env string, nameSpace string) error {
	defaultLabels = make(prometheus.Labels)
	defaultLabels["env"] = env
	defaultLabels["instance"] = host
	namespace = nameSpace
	MetricSystemEnabled = true

	var err error
	hasError := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	hasError(createCounterVec(SystemCampaign, MetricCampaignSendsTotal, []string{"status"}))
	hasError(createHistogram(SystemCampaign, MetricCampaignSendDuration))
	hasError(createCounterVec(SystemEmail, MetricEmailsTotal, []string{"outcome"}))
	hasError(createCounterVec(SystemTracking, MetricTrackingEventsTotal, []string{"event"}))
	hasError(createCounter(SystemScheduler, MetricSchedulerTicksTotal))
	hasError(createGaugeVec(SystemScheduler, MetricSchedulerDueCampaigns, []string{}))
	hasError(createCounterVec(SystemNotifier, MetricNotificationsTotal, []string{"event", "result"}))
	hasError(createHistogramVec(SystemNotifier, MetricNotificationDuration, []string{"event"}))

	return err
}

// CreateMetric registers one extra metric after Create, for metrics only a
// single binary reports.
func CreateMetric(metricType, metricSubsystem, metricName string, labelsValues ...string) error {
	switch metricType {
	case TypeCounter:
		return createCounter(metricSubsystem, metricName)
	case TypeCounterVec:
		return createCounterVec(metricSubsystem, metricName, labelsValues)
	case TypeHistogram:
		return createHistogram(metricSubsystem, metricName)
	case TypeHistogramVec:
		return createHistogramVec(metricSubsystem, metricName, labelsValues)
	case TypeGaugeVec:
		return createGaugeVec(metricSubsystem, metricName, labelsValues)
	}
	return fmt.Errorf("metric type %s is not defined", metricType)
}

func ListenAndServer(addr string, url string) {
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s := xhttp.CreateServer()
	s.GET(url, hh)
	logger.Info("[metrics-server] listening...", "addr", addr, "url", url)
	if err := s.ListenAndServe(addr); err != nil {
		logger.Error("[metrics-server] http listen error", "error", err)
	}
}

func createCounter(subsystem, name string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	m := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	})
	if err := prometheus.Register(m); err != nil {
		return err
	}
	MetricCollectionCounters[subsystem+name] = m
	return nil
}

func createCounterVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	m := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	}, labels)
	if err := prometheus.Register(m); err != nil {
		return err
	}
	MetricCollectionCounterVec[subsystem+name] = m
	return nil
}

func createHistogram(subsystem, name string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	m := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
		// a campaign run is seconds to tens of minutes
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})
	if err := prometheus.Register(m); err != nil {
		return err
	}
	MetricCollectionHistogram[subsystem+name] = m
	return nil
}

func createHistogramVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	m := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	}, labels)
	if err := prometheus.Register(m); err != nil {
		return err
	}
	MetricCollectionHistogramVec[subsystem+name] = m
	return nil
}

func createGaugeVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()

	m := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	}, labels)
	if err := prometheus.Register(m); err != nil {
		return err
	}
	MetricCollectionGaugeVec[subsystem+name] = m
	return nil
}

func IncCounter(subsystem, name string) {
	AddCounter(subsystem, name, 1)
}

func AddCounter(subsystem, name string, number float64) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionCounters[subsystem+name]; ok {
		v.Add(number)
		return
	}
	logger.Warn("[metrics-server] counter not found", "subsystem", subsystem, "name", name)
}

func SetGaugeVec(subsystem, name string, num float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionGaugeVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Set(num)
		return
	}
	logger.Warn("[metrics-server] gauge not found", "subsystem", subsystem, "name", name)
}

func AddCounterVec(subsystem, name string, num float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionCounterVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func IncCounterVec(subsystem, name string, labelValues ...string) {
	AddCounterVec(subsystem, name, 1, labelValues...)
}

func AddHistogram(subsystem, name string, number float64) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionHistogram[subsystem+name]; ok {
		v.Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram not found", "subsystem", subsystem, "name", name)
}

func AddHistogramVec(subsystem, name string, number float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionHistogramVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram vec not found", "subsystem", subsystem, "name", name)
}

// Domain helpers

func CampaignFinished(status string, seconds float64) {
	IncCounterVec(SystemCampaign, MetricCampaignSendsTotal, status)
	AddHistogram(SystemCampaign, MetricCampaignSendDuration, seconds)
}

// EmailOutcome records one delivery attempt: sent, bounced_hard or bounced_soft.
func EmailOutcome(outcome string) {
	IncCounterVec(SystemEmail, MetricEmailsTotal, outcome)
}

func TrackingEvent(event string) {
	IncCounterVec(SystemTracking, MetricTrackingEventsTotal, event)
}

func SchedulerTick(due int) {
	IncCounter(SystemScheduler, MetricSchedulerTicksTotal)
	SetGaugeVec(SystemScheduler, MetricSchedulerDueCampaigns, float64(due))
}

// WorkerBacklog reports jobs waiting for a processor worker. The gauge only
// exists once the processor has registered it with CreateMetric.
func WorkerBacklog(n int64) {
	SetGaugeVec(SystemNotifier, MetricWorkerBacklog, float64(n))
}

// NotificationHandled records one stream entry handled by the processor.
// result is ok, failed or dropped.
func NotificationHandled(event, result string, seconds float64) {
	IncCounterVec(SystemNotifier, MetricNotificationsTotal, event, result)
	if result == "ok" {
		AddHistogramVec(SystemNotifier, MetricNotificationDuration, seconds, event)
	}
}
