package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserveExchange(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg, reg, "test")

	m.ObserveExchange(120*time.Millisecond, "")
	m.ObserveExchange(80*time.Millisecond, "status")
	m.ObserveSubmission("replied")
	m.SetAwaiting(true)

	if got := testutil.ToFloat64(m.TransportFailures.WithLabelValues("status")); got != 1 {
		t.Fatalf("failures{status} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Submissions.WithLabelValues("replied")); got != 1 {
		t.Fatalf("submissions{replied} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Awaiting); got != 1 {
		t.Fatalf("awaiting = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.TransportLatency); n != 1 {
		t.Fatalf("latency series = %d, want 1", n)
	}
}
