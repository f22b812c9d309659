package middleware

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRICS MIDDLEWARE
// Counts handled updates per action and forwards them to Prometheus.
// The in-process snapshot backs the status endpoint.
// ══════════════════════════════════════════════════════════════════════════════

// Update statuses.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusDenied  = "denied"
	StatusLimited = "limited"
	StatusPanic   = "panic"
)

// UpdateRecorder receives one observation per handled update.
type UpdateRecorder interface {
	UpdateHandled(kind, status string)
}

// MetricsConfig holds configuration for the metrics middleware.
type MetricsConfig struct {
	// Recorder forwards counts to the metrics backend; may be nil.
	Recorder UpdateRecorder

	// OnSlowRequest is called when a request exceeds the slow threshold.
	OnSlowRequest func(action string, duration time.Duration, telegramID int64)

	// SlowRequestThreshold defines what's considered a slow request.
	SlowRequestThreshold time.Duration
}

// DefaultMetricsConfig returns sensible defaults for metrics middleware.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SlowRequestThreshold: 5 * time.Second,
	}
}

// MetricsMiddleware collects per-action counters.
type MetricsMiddleware struct {
	config MetricsConfig

	totalRequests  atomic.Int64
	totalErrors    atomic.Int64
	activeRequests atomic.Int64

	actions sync.Map // map[string]*actionMetrics
}

type actionMetrics struct {
	mu       sync.Mutex
	statuses map[string]int64
	total    time.Duration
	max      time.Duration
	count    int64
}

// NewMetricsMiddleware creates a new metrics middleware.
func NewMetricsMiddleware(config MetricsConfig) *MetricsMiddleware {
	return &MetricsMiddleware{config: config}
}

// RequestContext holds context for metrics collection.
type RequestContext struct {
	// Action is the command name, "search", "document" or a callback prefix.
	Action string

	// TelegramID of the user.
	TelegramID int64

	// StartTime when the request started.
	StartTime time.Time

	middleware *MetricsMiddleware
}

// Start begins tracking a new request.
func (m *MetricsMiddleware) Start(action string, telegramID int64) *RequestContext {
	m.totalRequests.Add(1)
	m.activeRequests.Add(1)

	return &RequestContext{
		Action:     action,
		TelegramID: telegramID,
		StartTime:  time.Now(),
		middleware: m,
	}
}

// End completes tracking with the given status.
func (rc *RequestContext) End(status string) {
	m := rc.middleware
	duration := time.Since(rc.StartTime)

	m.activeRequests.Add(-1)
	if status == StatusError || status == StatusPanic {
		m.totalErrors.Add(1)
	}

	am := m.getActionMetrics(rc.Action)
	am.mu.Lock()
	am.statuses[status]++
	am.count++
	am.total += duration
	if duration > am.max {
		am.max = duration
	}
	am.mu.Unlock()

	if m.config.Recorder != nil {
		m.config.Recorder.UpdateHandled(rc.Action, status)
	}

	if m.config.OnSlowRequest != nil && m.config.SlowRequestThreshold > 0 && duration > m.config.SlowRequestThreshold {
		m.config.OnSlowRequest(rc.Action, duration, rc.TelegramID)
	}
}

// EndWithError ends with StatusError when err is non-nil, StatusOK otherwise.
func (rc *RequestContext) EndWithError(err error) {
	if err != nil {
		rc.End(StatusError)
		return
	}
	rc.End(StatusOK)
}

func (m *MetricsMiddleware) getActionMetrics(action string) *actionMetrics {
	if val, ok := m.actions.Load(action); ok {
		return val.(*actionMetrics)
	}
	actual, _ := m.actions.LoadOrStore(action, &actionMetrics{statuses: make(map[string]int64)})
	return actual.(*actionMetrics)
}

// ─────────────────────────────────────────────────────────────────────────────
// SNAPSHOT
// ─────────────────────────────────────────────────────────────────────────────

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	TotalRequests  int64            `json:"total_requests"`
	TotalErrors    int64            `json:"total_errors"`
	ActiveRequests int64            `json:"active_requests"`
	Actions        []ActionSnapshot `json:"actions"`
}

// ActionSnapshot holds the counters of one action.
type ActionSnapshot struct {
	Action     string           `json:"action"`
	Count      int64            `json:"count"`
	Statuses   map[string]int64 `json:"statuses"`
	AvgLatency time.Duration    `json:"avg_latency_ns"`
	MaxLatency time.Duration    `json:"max_latency_ns"`
}

// Snapshot returns the current counters, actions sorted by name.
func (m *MetricsMiddleware) Snapshot() *MetricsSnapshot {
	snap := &MetricsSnapshot{
		TotalRequests:  m.totalRequests.Load(),
		TotalErrors:    m.totalErrors.Load(),
		ActiveRequests: m.activeRequests.Load(),
	}

	m.actions.Range(func(key, value any) bool {
		am := value.(*actionMetrics)
		am.mu.Lock()
		a := ActionSnapshot{
			Action:     key.(string),
			Count:      am.count,
			Statuses:   make(map[string]int64, len(am.statuses)),
			MaxLatency: am.max,
		}
		for s, n := range am.statuses {
			a.Statuses[s] = n
		}
		if am.count > 0 {
			a.AvgLatency = am.total / time.Duration(am.count)
		}
		am.mu.Unlock()
		snap.Actions = append(snap.Actions, a)
		return true
	})

	sort.Slice(snap.Actions, func(i, j int) bool {
		return snap.Actions[i].Action < snap.Actions[j].Action
	})
	return snap
}
