package setaside

import "github.com/prometheus/client_golang/prometheus"

var stats = metrics{
	collections: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "setaside",
		Subsystem: "coordinator",
		Name:      "collections",
		Help:      "Number of collections held in memory",
	}),
	operations: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "setaside",
		Subsystem: "coordinator",
		Name:      "operations_total",
		Help:      "Number of coordinator operations, per operation and result",
	}, []string{
		"op",
		"result",
	}),
	changes: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "setaside",
		Subsystem: "coordinator",
		Name:      "changes_total",
		Help:      "Number of metadata store changes handled, per kind and origin",
	}, []string{
		"kind",
		"origin",
	}),
	malformed: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "setaside",
		Subsystem: "coordinator",
		Name:      "malformed_records_total",
		Help:      "Number of metadata or blob records skipped because they failed to decode",
	}),
	gcDeleted: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "setaside",
		Subsystem: "coordinator",
		Name:      "gc_deleted_total",
		Help:      "Number of stale blob records deleted",
	}),
	queuedRequests: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "setaside",
		Subsystem: "coordinator",
		Name:      "queued_requests",
		Help:      "Number of subscriber requests waiting for hydration to finish",
	}),
	subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "setaside",
		Subsystem: "subscribers",
		Name:      "connected",
		Help:      "Number of connected subscriber channels",
	}),
	sent: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "setaside",
		Subsystem: "subscribers",
		Name:      "messages_sent_total",
		Help:      "Number of messages delivered to subscribers, per message type",
	}, []string{
		"type",
	}),
	sendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "setaside",
		Subsystem: "subscribers",
		Name:      "send_errors_total",
		Help:      "Number of failed deliveries to subscribers, per message type",
	}, []string{
		"type",
	}),
}

type metrics struct {
	collections    prometheus.Gauge
	operations     *prometheus.CounterVec
	changes        *prometheus.CounterVec
	malformed      prometheus.Counter
	gcDeleted      prometheus.Counter
	queuedRequests prometheus.Gauge
	subscribers    prometheus.Gauge
	sent           *prometheus.CounterVec
	sendErrors     *prometheus.CounterVec
}

func init() {
	prometheus.MustRegister(stats.collections)
	prometheus.MustRegister(stats.operations)
	prometheus.MustRegister(stats.changes)
	prometheus.MustRegister(stats.malformed)
	prometheus.MustRegister(stats.gcDeleted)
	prometheus.MustRegister(stats.queuedRequests)
	prometheus.MustRegister(stats.subscribers)
	prometheus.MustRegister(stats.sent)
	prometheus.MustRegister(stats.sendErrors)
}

func (m *metrics) Operation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
}

func (m *metrics) Change(kind string, local bool) {
	origin := "remote"
	if local {
		origin = "local"
	}
	m.changes.WithLabelValues(kind, origin).Inc()
}

func (m *metrics) Sent(msgType string, err error) {
	if err != nil {
		m.sendErrors.WithLabelValues(msgType).Inc()
		return
	}
	m.sent.WithLabelValues(msgType).Inc()
}
