package observability

import "testing"

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8, map[string]float64{StageWebhookCall: 60000})
	w.Observe(StageWebhookCall, 500)
	w.Observe(StageWebhookCall, 700)
	w.Observe(StageWebhookCall, 900)
	w.Observe("", 100)
	w.Observe(StageWebhookCall, -1)
	w.ObserveIndicator("webhook_ok")
	w.ObserveIndicator("webhook_ok")
	w.ObserveIndicator(" ")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageWebhookCall {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageWebhookCall)
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 60000 {
		t.Fatalf("TargetP95MS = %.2f, want 60000", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Name != "webhook_ok" || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want [webhook_ok:2]", snap.Indicators)
	}
}

func TestLatencyWindowWrapsAround(t *testing.T) {
	w := newLatencyWindow(4, nil)
	for i := 1; i <= 10; i++ {
		w.Observe(StageRoundTrip, float64(i*100))
	}
	s := w.Snapshot().Stages[0]
	if s.Samples != 4 {
		t.Fatalf("Samples = %d, want 4", s.Samples)
	}
	if s.LastMS != 1000 {
		t.Fatalf("LastMS = %.2f, want 1000", s.LastMS)
	}
	if s.AvgMS != 850 {
		t.Fatalf("AvgMS = %.2f, want 850 (mean of 700..1000)", s.AvgMS)
	}
	if s.TargetP95MS != 0 {
		t.Fatalf("TargetP95MS = %.2f, want 0", s.TargetP95MS)
	}
}
