package integlog

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// MaxPayloadBytes is the cap applied to stored request/response payloads.
const MaxPayloadBytes = 4096

var (
	outboundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipments_outbound_requests_total",
		Help: "Outbound integration attempts, labeled by service and outcome",
	}, []string{"service", "operation", "success"})

	outboundLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shipments_outbound_request_duration_seconds",
		Help:    "Latency of outbound integration attempts",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"service"})
)

// Entry is one outbound attempt. Append-only.
type Entry struct {
	Service         string
	Operation       string // METHOD /endpoint
	Attempt         int
	RequestPayload  string
	ResponsePayload string
	StatusCode      int
	Duration        time.Duration
	Success         bool
	Error           string
	CreatedAt       time.Time
}

type Sink interface {
	Append(ctx context.Context, e Entry) error
}

type Logger struct {
	sink Sink
	log  *zap.Logger
}

func New(sink Sink, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{sink: sink, log: log.Named("integration")}
}

// Record masks and truncates the payloads, then persists the entry. A sink failure
// is logged and swallowed so an audit-write problem never fails the business call.
func (l *Logger) Record(ctx context.Context, e Entry) {
	if l == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.RequestPayload = Truncate(Mask(e.RequestPayload), MaxPayloadBytes)
	e.ResponsePayload = Truncate(Mask(e.ResponsePayload), MaxPayloadBytes)
	e.Error = Truncate(Mask(e.Error), MaxPayloadBytes)

	outboundTotal.WithLabelValues(e.Service, e.Operation, boolLabel(e.Success)).Inc()
	outboundLatency.WithLabelValues(e.Service).Observe(e.Duration.Seconds())

	fields := []zap.Field{
		zap.String("integration", e.Service),
		zap.String("operation", e.Operation),
		zap.Int("attempt", e.Attempt),
		zap.Int("status_code", e.StatusCode),
		zap.Duration("duration", e.Duration),
	}
	if e.Success {
		l.log.Info("outbound call", fields...)
	} else {
		l.log.Warn("outbound call failed", append(fields, zap.String("error", e.Error))...)
	}

	if l.sink == nil {
		return
	}
	// audit log tetap ditulis walau request ctx sudah cancel
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := l.sink.Append(wctx, e); err != nil {
		l.log.Error("integration log append", zap.Error(err), zap.String("integration", e.Service))
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// MemorySink keeps entries in memory. Used in demo mode and tests.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *MemorySink) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemorySink) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
