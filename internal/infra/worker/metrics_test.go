package worker

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWorkerMetrics(t *testing.T) {
	metrics := globalTestMetrics

	if metrics.ConfigMetrics == nil {
		t.Error("ConfigMetrics is nil")
	}
	if metrics.RunsTotal == nil || metrics.RunDurationSeconds == nil {
		t.Error("run metrics are nil")
	}
	if metrics.ItemsProcessedTotal == nil || metrics.LastSuccessTimestamp == nil {
		t.Error("item metrics are nil")
	}
}

func TestWorkerMetrics_RecordRun(t *testing.T) {
	tests := []struct {
		name      string
		succeeded int
		failed    int
		want      string
	}{
		{"all succeeded", 3, 0, RunSuccess},
		{"some failed", 2, 1, RunPartial},
		{"all failed", 0, 4, RunFailure},
		{"nothing to do", 0, 0, RunSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := testutil.ToFloat64(globalTestMetrics.RunsTotal.WithLabelValues(tt.want))
			failures := testutil.ToFloat64(globalTestMetrics.ItemsProcessedTotal.WithLabelValues("failure"))
			skipped := testutil.ToFloat64(globalTestMetrics.ItemsProcessedTotal.WithLabelValues("skipped"))

			status := globalTestMetrics.RecordRun(1.5, tt.succeeded, tt.failed, 2)

			if status != tt.want {
				t.Errorf("expected status %q, got %q", tt.want, status)
			}
			if got := testutil.ToFloat64(globalTestMetrics.RunsTotal.WithLabelValues(tt.want)); got != runs+1 {
				t.Errorf("expected runs_total{%s} %v, got %v", tt.want, runs+1, got)
			}
			if got := testutil.ToFloat64(globalTestMetrics.ItemsProcessedTotal.WithLabelValues("failure")); got != failures+float64(tt.failed) {
				t.Errorf("expected failure items %v, got %v", failures+float64(tt.failed), got)
			}
			if got := testutil.ToFloat64(globalTestMetrics.ItemsProcessedTotal.WithLabelValues("skipped")); got != skipped+2 {
				t.Errorf("expected skipped items %v, got %v", skipped+2, got)
			}
		})
	}

	if testutil.ToFloat64(globalTestMetrics.LastSuccessTimestamp) == 0 {
		t.Error("expected last success timestamp to be set")
	}
}

func TestWorkerMetrics_RecordRunError(t *testing.T) {
	before := testutil.ToFloat64(globalTestMetrics.RunsTotal.WithLabelValues(RunFailure))

	globalTestMetrics.RecordRunError()

	if got := testutil.ToFloat64(globalTestMetrics.RunsTotal.WithLabelValues(RunFailure)); got != before+1 {
		t.Errorf("expected %v, got %v", before+1, got)
	}
}
