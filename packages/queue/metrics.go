package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Latency histogram range in microseconds: 1us to 10m.
	minLatencyUs = 1
	maxLatencyUs = 600_000_000
)

// Metrics collects queue counters and operation latencies. Latency covers
// operations that ran to Succeeded or Failed.
type Metrics struct {
	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
	active    atomic.Int32

	mu        sync.Mutex
	histogram *hdrhistogram.Histogram

	submittedTotal prometheus.Counter
	finishedTotal  *prometheus.CounterVec
	inFlight       prometheus.Gauge
	duration       prometheus.Histogram
}

// Summary is a point-in-time view of Metrics.
type Summary struct {
	Submitted int64
	Succeeded int64
	Failed    int64
	Cancelled int64
	Active    int32

	P50  time.Duration
	P95  time.Duration
	P99  time.Duration
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// NewMetrics creates a collector. namespace prefixes the Prometheus metric
// names, e.g. "hitclient" gives hitclient_queue_operations_submitted_total.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, 3),

		submittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "operations_submitted_total",
			Help:      "Total number of operations added to the queue",
		}),
		finishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "operations_finished_total",
			Help:      "Total number of operations that reached a terminal state",
		}, []string{"state"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "operations_in_flight",
			Help:      "Number of operations currently executing",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "operation_duration_seconds",
			Help:      "Execution time of completed operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// Register adds the Prometheus collectors to reg. Collectors that are
// already registered are left in place.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.submittedTotal, m.finishedTotal, m.inFlight, m.duration} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

func (m *Metrics) recordSubmitted() {
	m.submitted.Add(1)
	m.submittedTotal.Inc()
}

func (m *Metrics) recordStarted() {
	m.active.Add(1)
	m.inFlight.Inc()
}

func (m *Metrics) recordStopped() {
	m.active.Add(-1)
	m.inFlight.Dec()
}

func (m *Metrics) recordFinished(state State, d time.Duration) {
	switch state {
	case StateSucceeded:
		m.succeeded.Add(1)
	case StateFailed:
		m.failed.Add(1)
	case StateCancelled:
		m.cancelled.Add(1)
		m.finishedTotal.WithLabelValues(state.String()).Inc()
		return
	default:
		return
	}
	m.finishedTotal.WithLabelValues(state.String()).Inc()
	m.duration.Observe(d.Seconds())

	latencyUs := d.Microseconds()
	if latencyUs < minLatencyUs {
		latencyUs = minLatencyUs
	}
	if latencyUs > maxLatencyUs {
		latencyUs = maxLatencyUs
	}

	m.mu.Lock()
	_ = m.histogram.RecordValue(latencyUs)
	m.mu.Unlock()
}

// Snapshot returns the current counters and latency percentiles.
func (m *Metrics) Snapshot() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{
		Submitted: m.submitted.Load(),
		Succeeded: m.succeeded.Load(),
		Failed:    m.failed.Load(),
		Cancelled: m.cancelled.Load(),
		Active:    m.active.Load(),
	}

	if m.histogram.TotalCount() > 0 {
		s.P50 = time.Duration(m.histogram.ValueAtQuantile(50)) * time.Microsecond
		s.P95 = time.Duration(m.histogram.ValueAtQuantile(95)) * time.Microsecond
		s.P99 = time.Duration(m.histogram.ValueAtQuantile(99)) * time.Microsecond
		s.Min = time.Duration(m.histogram.Min()) * time.Microsecond
		s.Max = time.Duration(m.histogram.Max()) * time.Microsecond
		s.Mean = time.Duration(m.histogram.Mean()) * time.Microsecond
	}

	return s
}

// Reset clears counters and latencies. Active operations are still counted.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.submitted.Store(0)
	m.succeeded.Store(0)
	m.failed.Store(0)
	m.cancelled.Store(0)
	m.histogram.Reset()
}
