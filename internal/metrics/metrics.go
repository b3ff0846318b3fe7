// Package metrics registers the Prometheus metrics emitted by the ingestion
// and retrieval pipelines. All recording methods are safe to call on a nil
// *Pipeline so components can run without metrics in tests and tools.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace prefixes every metric name.
const namespace = "studyai"

// Pipeline holds the pipeline-level metrics.
type Pipeline struct {
	// generationCalls counts generation attempts by purpose and outcome
	// ("ok" or "error").
	generationCalls *prometheus.CounterVec

	// generationRetries counts retried generation attempts by purpose.
	generationRetries *prometheus.CounterVec

	// generationInflight is the number of generation calls currently holding
	// a gate permit.
	generationInflight prometheus.Gauge

	// generationSeconds records per-attempt generation latency by purpose.
	generationSeconds *prometheus.HistogramVec

	// summaryFallbacks counts summarization batches that fell back to raw
	// text, by reason ("generation" or "parse").
	summaryFallbacks *prometheus.CounterVec

	// ingestFiles counts processed files by outcome.
	ingestFiles *prometheus.CounterVec

	// ingestRecords counts records written to the vector store.
	ingestRecords prometheus.Counter

	// retrievalSearches counts search steps by stage ("session" or "global")
	// and result ("hit" or "empty").
	retrievalSearches *prometheus.CounterVec

	// answers counts answer requests by outcome ("generated", "no_info" or
	// "error").
	answers *prometheus.CounterVec
}

// NewPipeline registers the pipeline metrics against reg. promauto.With(reg)
// keeps registration local to reg so tests can use an isolated registry.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	factory := promauto.With(reg)

	return &Pipeline{
		generationCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "calls_total",
			Help:      "Generation attempts, partitioned by purpose and outcome.",
		}, []string{"purpose", "outcome"}),

		generationRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "retries_total",
			Help:      "Generation attempts that were retried after a failure.",
		}, []string{"purpose"}),

		generationInflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "inflight",
			Help:      "Generation calls currently holding a concurrency permit.",
		}),

		generationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Latency of individual generation attempts.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"purpose"}),

		summaryFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "fallbacks_total",
			Help:      "Summarization batches that fell back to raw chunk text, partitioned by reason.",
		}, []string{"reason"}),

		ingestFiles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Files processed by ingestion, partitioned by outcome.",
		}, []string{"outcome"}),

		ingestRecords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Records written to the vector store.",
		}),

		retrievalSearches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "searches_total",
			Help:      "Context searches, partitioned by stage and result.",
		}, []string{"stage", "result"}),

		answers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "answers_total",
			Help:      "Answer requests, partitioned by outcome.",
		}, []string{"outcome"}),
	}
}

// GenerationAttempt records one generation attempt.
func (p *Pipeline) GenerationAttempt(purpose string, seconds float64, err error) {
	if p == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.generationCalls.WithLabelValues(purpose, outcome).Inc()
	p.generationSeconds.WithLabelValues(purpose).Observe(seconds)
}

// GenerationRetry records a retried attempt.
func (p *Pipeline) GenerationRetry(purpose string) {
	if p == nil {
		return
	}
	p.generationRetries.WithLabelValues(purpose).Inc()
}

// InflightAdd moves the in-flight gauge by delta.
func (p *Pipeline) InflightAdd(delta float64) {
	if p == nil {
		return
	}
	p.generationInflight.Add(delta)
}

// SummaryFallback records a batch that fell back to raw text.
func (p *Pipeline) SummaryFallback(reason string) {
	if p == nil {
		return
	}
	p.summaryFallbacks.WithLabelValues(reason).Inc()
}

// IngestFile records a processed file.
func (p *Pipeline) IngestFile(outcome string) {
	if p == nil {
		return
	}
	p.ingestFiles.WithLabelValues(outcome).Inc()
}

// IngestRecords records n written records.
func (p *Pipeline) IngestRecords(n int) {
	if p == nil {
		return
	}
	p.ingestRecords.Add(float64(n))
}

// RetrievalSearch records one search stage and whether it found anything.
func (p *Pipeline) RetrievalSearch(stage string, hit bool) {
	if p == nil {
		return
	}
	result := "empty"
	if hit {
		result = "hit"
	}
	p.retrievalSearches.WithLabelValues(stage, result).Inc()
}

// Answer records an answer outcome.
func (p *Pipeline) Answer(outcome string) {
	if p == nil {
		return
	}
	p.answers.WithLabelValues(outcome).Inc()
}
