package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_agent_active_sessions",
		Help: "Number of active conversation sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_sessions_total",
		Help: "Total number of sessions handled",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_agent_session_duration_seconds",
		Help:    "Duration of conversation sessions in seconds",
		Buckets: []float64{10, 30, 60, 120, 300, 600, 1800},
	})

	// Turn metrics
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_turns_total",
		Help: "Total number of conversation turns",
	}, []string{"outcome"}) // completed, cancelled, degraded

	bargeInsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_barge_ins_total",
		Help: "Total number of confirmed barge-in interruptions",
	})

	// Stage latency metrics
	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_agent_stage_latency_seconds",
		Help:    "Per-turn latency of pipeline stages in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage"}) // recognition, generation, synthesis

	// Degradation metrics
	droppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_dropped_frames_total",
		Help: "Audio frames dropped because the recognition buffer overflowed",
	})

	skippedChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_skipped_chunks_total",
		Help: "Sentence chunks skipped after failed synthesis",
	})

	// Supervision metrics
	stageRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_stage_restarts_total",
		Help: "Stage restarts performed by the session supervisor",
	}, []string{"stage"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_errors_total",
		Help: "Total number of errors",
	}, []string{"severity", "component"})
)

// Metrics tracks metrics for a single session.
type Metrics struct {
	sessionID string
	startTime time.Time

	mu          sync.Mutex
	stageStarts map[string]time.Time
}

// NewSessionMetrics creates a metrics tracker for one session.
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID:   sessionID,
		startTime:   time.Now(),
		stageStarts: make(map[string]time.Time),
	}
}

// RecordSessionStart records the start of a session.
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session.
func (m *Metrics) RecordSessionEnd() {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordStageStart marks the start of a stage for latency tracking.
func (m *Metrics) RecordStageStart(stage string) {
	m.mu.Lock()
	m.stageStarts[stage] = time.Now()
	m.mu.Unlock()
}

// RecordStageEnd observes the latency of a stage started earlier.
func (m *Metrics) RecordStageEnd(stage string) {
	m.mu.Lock()
	start, ok := m.stageStarts[stage]
	delete(m.stageStarts, stage)
	m.mu.Unlock()

	if ok {
		stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// RecordTurn records a finished turn with its outcome.
func (m *Metrics) RecordTurn(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
}

// RecordBargeIn records a confirmed barge-in.
func (m *Metrics) RecordBargeIn() {
	bargeInsTotal.Inc()
}

// RecordDroppedFrames records frames lost to buffer overflow.
func (m *Metrics) RecordDroppedFrames(n int) {
	droppedFrames.Add(float64(n))
}

// RecordSkippedChunk records a chunk skipped after failed synthesis.
func (m *Metrics) RecordSkippedChunk() {
	skippedChunks.Inc()
}

// RecordStageRestart records a supervisor stage restart.
func (m *Metrics) RecordStageRestart(stage string) {
	stageRestarts.WithLabelValues(stage).Inc()
}

// RecordError records an error by severity and component.
func (m *Metrics) RecordError(severity, component string) {
	errorsTotal.WithLabelValues(severity, component).Inc()
}
