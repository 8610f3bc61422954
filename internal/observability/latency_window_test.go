package observability

import "testing"

func TestLatencyWindowSnapshot(t *testing.T) {
	w := NewLatencyWindow(8)
	w.Observe("clinical_kb", 100)
	w.Observe("clinical_kb", 120)
	w.Observe("clinical_kb", 140)
	w.Observe("", 10)
	w.Observe("route", -1)

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != "clinical_kb" || s.Samples != 3 {
		t.Fatalf("unexpected stage stats: %+v", s)
	}
	if s.LastMS != 140 || s.AvgMS != 120 || s.P50MS != 120 {
		t.Fatalf("unexpected latency stats: %+v", s)
	}
	if s.P95MS <= 120 || s.P95MS > 140 {
		t.Fatalf("P95MS = %.2f, want (120,140]", s.P95MS)
	}
	if s.TargetP95MS != 150 {
		t.Fatalf("TargetP95MS = %.2f, want 150", s.TargetP95MS)
	}
}

func TestLatencyWindowWrapsRing(t *testing.T) {
	w := NewLatencyWindow(2)
	for _, v := range []float64{1, 2, 3} {
		w.Observe("route", v)
	}
	s := w.Snapshot().Stages[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", s.Samples)
	}
	if s.AvgMS != 2.5 {
		t.Fatalf("AvgMS = %.2f, want 2.5", s.AvgMS)
	}
}
