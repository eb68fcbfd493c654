package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/streamsearch/internal/runtime/search"
)

// SearchMetrics tracks subscription statistics. Prometheus collectors carry
// the phase only; per-query counts are kept in memory for the web UI.
type SearchMetrics struct {
	mu sync.RWMutex

	queries       map[string]*QueryMetrics
	subscriptions uint64
	teardowns     uint64

	subscriptionsTotal prometheus.Counter
	itemsTotal         *prometheus.CounterVec
	failuresTotal      *prometheus.CounterVec
	teardownsTotal     prometheus.Counter
	activeListeners    prometheus.Gauge
	historySize        prometheus.Histogram

	registerer prometheus.Registerer
	registered bool
}

// QueryMetrics holds counters for a single query.
type QueryMetrics struct {
	ArchivedItems uint64    `json:"archived_items"`
	LiveItems     uint64    `json:"live_items"`
	Failures      uint64    `json:"failures"`
	Listeners     uint64    `json:"listeners"`
	SubscribedAt  time.Time `json:"subscribed_at"`
	LastItemAt    time.Time `json:"last_item_at,omitempty"`
}

// SearchMetricsSnapshot provides a point-in-time view of the search metrics.
type SearchMetricsSnapshot struct {
	Subscriptions uint64                   `json:"subscriptions"`
	Teardowns     uint64                   `json:"teardowns"`
	Queries       map[string]*QueryMetrics `json:"queries"`
	CollectedAt   time.Time                `json:"collected_at"`
}

func newSearchCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamsearch",
		Subsystem: "search",
		Name:      name,
		Help:      help,
	})
}

func newSearchCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streamsearch",
			Subsystem: "search",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewSearchMetrics creates a collector set registered with registerer on Register.
func NewSearchMetrics(registerer prometheus.Registerer) *SearchMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SearchMetrics{
		queries:            make(map[string]*QueryMetrics),
		registerer:         registerer,
		subscriptionsTotal: newSearchCounter("subscriptions_total", "Total number of subscribe calls that issued requests"),
		itemsTotal:         newSearchCounterVec("items_total", "Total number of items delivered to consumers", []string{"phase"}),
		failuresTotal:      newSearchCounterVec("failures_total", "Total number of failed request exchanges", []string{"phase", "condition"}),
		teardownsTotal:     newSearchCounter("teardowns_total", "Total number of bulk unsubscribes"),
		activeListeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamsearch",
			Subsystem: "search",
			Name:      "active_listeners",
			Help:      "Number of registered live listeners",
		}),
		historySize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "streamsearch",
			Subsystem: "search",
			Name:      "requested_history_items",
			Help:      "Number of historical items requested per subscription",
			Buckets:   []float64{1, 5, 10, 25, 50, 100},
		}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *SearchMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.subscriptionsTotal,
		m.itemsTotal,
		m.failuresTotal,
		m.teardownsTotal,
		m.activeListeners,
		m.historySize,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordSubscribe records a subscribe call.
func (m *SearchMetrics) RecordSubscribe(info search.SubscribeInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.query(info.Query)
	q.SubscribedAt = info.At
	m.subscriptions++

	m.subscriptionsTotal.Inc()
	m.historySize.Observe(float64(info.ContextCount))
}

// RecordListen records an acknowledged live subscription.
func (m *SearchMetrics) RecordListen(query string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.query(query).Listeners++
	m.activeListeners.Inc()
}

// RecordItem records a delivered item.
func (m *SearchMetrics) RecordItem(ev search.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.query(ev.Query)
	if ev.Archived() {
		q.ArchivedItems++
	} else {
		q.LiveItems++
	}
	q.LastItemAt = time.Now()

	m.itemsTotal.WithLabelValues(string(ev.Kind)).Inc()
}

// RecordFailure records a failed exchange.
func (m *SearchMetrics) RecordFailure(ev search.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.query(ev.Query).Failures++

	phase := ""
	if ev.Err != nil {
		phase = string(ev.Err.Phase)
	}
	m.failuresTotal.WithLabelValues(phase, ev.Response().Condition()).Inc()
}

// RecordTeardown records a bulk unsubscribe. Per-query counters are dropped.
func (m *SearchMetrics) RecordTeardown(info search.TeardownInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries = make(map[string]*QueryMetrics)
	m.teardowns++

	m.teardownsTotal.Inc()
	m.activeListeners.Sub(float64(info.Listeners))
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *SearchMetrics) Snapshot() SearchMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := SearchMetricsSnapshot{
		Subscriptions: m.subscriptions,
		Teardowns:     m.teardowns,
		Queries:       make(map[string]*QueryMetrics, len(m.queries)),
		CollectedAt:   time.Now(),
	}
	for query, metrics := range m.queries {
		copied := *metrics
		snapshot.Queries[query] = &copied
	}
	return snapshot
}

// QueryMetrics returns a copy of the counters of query, or nil.
func (m *SearchMetrics) QueryMetrics(query string) *QueryMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if metrics, ok := m.queries[query]; ok {
		copied := *metrics
		return &copied
	}
	return nil
}

func (m *SearchMetrics) query(query string) *QueryMetrics {
	if metrics, ok := m.queries[query]; ok {
		return metrics
	}
	metrics := &QueryMetrics{}
	m.queries[query] = metrics
	return metrics
}

// MetricsHooks returns hooks recording the subscription lifecycle in m.
func MetricsHooks(m *SearchMetrics) search.Hooks {
	if m == nil {
		return search.Hooks{}
	}
	return search.Hooks{
		OnSubscribe: m.RecordSubscribe,
		OnListen:    m.RecordListen,
		OnItem:      m.RecordItem,
		OnFailure:   m.RecordFailure,
		OnTeardown:  m.RecordTeardown,
	}
}
