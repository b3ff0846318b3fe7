package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue returns the value of the named counter whose labels include
// every pair in want, or -1 when not found.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
					matched++
				}
			}
			if matched == len(want) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return -1
}

func TestPipeline_Records(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	p := NewPipeline(reg)

	p.GenerationAttempt("summary", 0.1, nil)
	p.GenerationAttempt("summary", 0.1, errors.New("x"))
	p.GenerationAttempt("answer", 0.2, nil)
	p.SummaryFallback("parse")
	p.IngestFile("ingested")
	p.IngestFile("ingested")
	p.IngestRecords(7)
	p.RetrievalSearch("session", false)
	p.Answer("no_info")

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"studyai_generation_calls_total", map[string]string{"purpose": "summary", "outcome": "ok"}, 1},
		{"studyai_generation_calls_total", map[string]string{"purpose": "summary", "outcome": "error"}, 1},
		{"studyai_generation_calls_total", map[string]string{"purpose": "answer", "outcome": "ok"}, 1},
		{"studyai_summary_fallbacks_total", map[string]string{"reason": "parse"}, 1},
		{"studyai_ingest_files_total", map[string]string{"outcome": "ingested"}, 2},
		{"studyai_ingest_records_total", map[string]string{}, 7},
		{"studyai_retrieval_searches_total", map[string]string{"stage": "session", "result": "empty"}, 1},
		{"studyai_retrieval_answers_total", map[string]string{"outcome": "no_info"}, 1},
	}
	for _, tc := range tests {
		if got := counterValue(t, reg, tc.name, tc.labels); got != tc.want {
			t.Errorf("%s%v = %v, want %v", tc.name, tc.labels, got, tc.want)
		}
	}
}

func TestPipeline_NilSafe(t *testing.T) {
	t.Parallel()
	var p *Pipeline
	p.GenerationAttempt("summary", 1, nil)
	p.GenerationRetry("summary")
	p.InflightAdd(1)
	p.SummaryFallback("parse")
	p.IngestFile("failed")
	p.IngestRecords(1)
	p.RetrievalSearch("global", true)
	p.Answer("error")
}
