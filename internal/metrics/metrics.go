package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"termslens/internal/messaging"
)

// Metrics groups the service's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ScansStarted  prometheus.Counter
	ScansRejected prometheus.Counter
	ScanOutcomes  *prometheus.CounterVec
	ScanDuration  prometheus.Histogram
	RiskScores    prometheus.Histogram
	Messages      *prometheus.CounterVec
	MessageTime   *prometheus.HistogramVec
	QueueDepth    prometheus.Gauge
}

func New(runtimeMetrics bool) *Metrics {
	reg := prometheus.NewRegistry()
	if runtimeMetrics {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg.MustRegister(collectors.NewGoCollector())
	}
	m := &Metrics{
		registry: reg,
		ScansStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "termslens_scans_started_total", Help: "Scans accepted for analysis.",
		}),
		ScansRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "termslens_scans_rejected_total", Help: "Scan requests rejected because one was already in flight.",
		}),
		ScanOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "termslens_scans_finished_total", Help: "Finished scans by outcome.",
		}, []string{"outcome"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "termslens_scan_duration_seconds", Help: "Time from claim to published record.",
			Buckets: prometheus.DefBuckets,
		}),
		RiskScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "termslens_risk_score", Help: "Distribution of overall risk scores.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "termslens_messages_total", Help: "Envelopes handled by target, action and result.",
		}, []string{"target", "action", "result"}),
		MessageTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "termslens_message_duration_seconds", Help: "Envelope handling time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"target", "action"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "termslens_scan_queue_depth", Help: "Scan jobs waiting for a worker.",
		}),
	}
	reg.MustRegister(m.ScansStarted, m.ScansRejected, m.ScanOutcomes, m.ScanDuration,
		m.RiskScores, m.Messages, m.MessageTime, m.QueueDepth)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveMessage implements messaging.Observer.
func (m *Metrics) ObserveMessage(target messaging.Target, action messaging.Action, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Messages.WithLabelValues(string(target), string(action), result).Inc()
	m.MessageTime.WithLabelValues(string(target), string(action)).Observe(elapsed.Seconds())
}

// ScanFinished records a scan's outcome (analyzed, error, unavailable).
func (m *Metrics) ScanFinished(outcome string, elapsed time.Duration, score *int) {
	m.ScanOutcomes.WithLabelValues(outcome).Inc()
	m.ScanDuration.Observe(elapsed.Seconds())
	if score != nil {
		m.RiskScores.Observe(float64(*score))
	}
}

func (m *Metrics) ScanStarted()  { m.ScansStarted.Inc() }
func (m *Metrics) ScanRejected() { m.ScansRejected.Inc() }

// StatusCounter reports stored records per status.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// WatchRecords exports counter as termslens_records{status}, read on every
// scrape. A failed count leaves the series out of that scrape.
func (m *Metrics) WatchRecords(counter StatusCounter, log logrus.FieldLogger) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m.registry.MustRegister(&recordCollector{
		counter: counter,
		log:     log,
		desc:    prometheus.NewDesc("termslens_records", "Stored site records by status.", []string{"status"}, nil),
	})
}

type recordCollector struct {
	counter StatusCounter
	log     logrus.FieldLogger
	desc    *prometheus.Desc
}

func (c *recordCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *recordCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	counts, err := c.counter.CountByStatus(ctx)
	if err != nil {
		c.log.WithError(err).Warn("record count unavailable")
		return
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), status)
	}
}
