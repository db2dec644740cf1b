package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message kinds for RecordMessage
const (
	MessageCommand     = "command"
	MessageQuestion    = "question"
	MessageTooShort    = "too_short"
	MessageNonNumeric  = "non_numeric"
	MessageRateLimited = "rate_limited"
	MessageUnsupported = "unsupported"
)

// Metrics holds all custom Prometheus metrics for the bot. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// Message metrics
	Messages *prometheus.CounterVec
	Answers  *prometheus.CounterVec

	// Pipeline metrics
	PipelineLatency prometheus.Histogram
	PipelineErrors  *prometheus.CounterVec

	// Cache metrics
	CacheLookups      *prometheus.CounterVec
	CacheObservations *prometheus.CounterVec
	CachePromotions   prometheus.Counter
	StoreUnavailable  *prometheus.CounterVec

	// Dependency probes
	DependencyUp *prometheus.GaugeVec
}

// NewMetrics registers the bot metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "videobot_messages_total",
			Help: "Incoming Telegram messages by kind",
		}, []string{"kind"}),

		Answers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "videobot_answers_total",
			Help: "Answers sent by source",
		}, []string{"source"}), // cache, pipeline, empty, error

		// NL -> SQL -> DB latency, dominated by the LLM call
		PipelineLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "videobot_pipeline_duration_seconds",
			Help:    "Time spent computing an answer outside the cache",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		PipelineErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "videobot_pipeline_errors_total",
			Help: "Pipeline failures by stage",
		}, []string{"stage"}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "videobot_cache_lookups_total",
			Help: "Answer cache lookups by result",
		}, []string{"result"}),

		CacheObservations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "videobot_cache_observations_total",
			Help: "Usage observations by resulting state",
		}, []string{"state"}),

		CachePromotions: factory.NewCounter(prometheus.CounterOpts{
			Name: "videobot_cache_promotions_total",
			Help: "Answers promoted into the cache",
		}),

		StoreUnavailable: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "videobot_cache_store_unavailable_total",
			Help: "Cache store operations that failed and were skipped",
		}, []string{"op"}),

		DependencyUp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "videobot_dependency_up",
			Help: "1 if the dependency answered the last probe",
		}, []string{"dependency"}),
	}
}

// RecordMessage counts an incoming message
func (m *Metrics) RecordMessage(kind string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(kind).Inc()
}

// RecordAnswer counts a sent answer
func (m *Metrics) RecordAnswer(source string) {
	if m == nil {
		return
	}
	m.Answers.WithLabelValues(source).Inc()
}

// ObservePipeline records how long the expensive path took
func (m *Metrics) ObservePipeline(d time.Duration) {
	if m == nil {
		return
	}
	m.PipelineLatency.Observe(d.Seconds())
}

// RecordPipelineError records a failed stage
func (m *Metrics) RecordPipelineError(stage string) {
	if m == nil {
		return
	}
	m.PipelineErrors.WithLabelValues(stage).Inc()
}

// SetDependencyUp records a probe result
func (m *Metrics) SetDependencyUp(dependency string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.DependencyUp.WithLabelValues(dependency).Set(v)
}

// RecordCacheLookup implements cache.Recorder
func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordCacheObservation implements cache.Recorder
func (m *Metrics) RecordCacheObservation(state string) {
	if m == nil {
		return
	}
	m.CacheObservations.WithLabelValues(state).Inc()
}

// RecordCachePromotion implements cache.Recorder
func (m *Metrics) RecordCachePromotion() {
	if m == nil {
		return
	}
	m.CachePromotions.Inc()
}

// RecordStoreUnavailable implements cache.Recorder
func (m *Metrics) RecordStoreUnavailable(op string) {
	if m == nil {
		return
	}
	m.StoreUnavailable.WithLabelValues(op).Inc()
}
