package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsRunsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "founder-expiry"
	metrics.ObserveRun(job, OutcomeSucceeded, 250*time.Millisecond, 3)
	metrics.ObserveRun(job, OutcomeFailed, time.Second, 0)
	metrics.IncLockContended()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "cron_job_runs_total", "outcome", OutcomeFailed); err != nil {
		t.Fatalf("fetch failed runs: %v", err)
	} else if got != 1 {
		t.Fatalf("expected 1 failed run, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "cron_job_migrated_total", "job", job); err != nil {
		t.Fatalf("fetch migrated: %v", err)
	} else if got != 3 {
		t.Fatalf("expected migrated=3, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got < 1.25 {
		t.Fatalf("expected duration sum >= 1.25, got %f", got)
	}
	if mf := findMetricFamily(mfs, "cron_lock_contended_total"); mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatal("expected one contended cycle")
	}

	var unregistered *CronJobMetrics
	unregistered.ObserveRun(job, OutcomeSucceeded, time.Second, 1)
	NewCronJobMetrics(nil).IncLockContended()
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

func TestWebhookAndIdentityMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	webhooks := NewWebhookMetrics(reg)
	identity := NewIdentityMetrics(reg)

	webhooks.Observe("stripe", "invoice.paid", "processed")
	webhooks.Observe("stripe", "invoice.paid", "processed")
	identity.IncFailure("update_metadata")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "webhook_events_total", "outcome", "processed"); err != nil {
		t.Fatalf("fetch webhook events: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 webhook events, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "identity_sync_failures_total", "operation", "update_metadata"); err != nil {
		t.Fatalf("fetch identity failures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected 1 identity failure, got %f", got)
	}

	var nilMetrics *WebhookMetrics
	nilMetrics.Observe("stripe", "x", "y")
}
