package metrics

import (
	"testing"
	"time"
)

func TestCountersAccumulateByTopicAndStatus(t *testing.T) {
	r := NewRegistry()
	r.IncConsumed("orders", StatusSuccess)
	r.IncConsumed("orders", StatusSuccess)
	r.IncConsumed("orders", StatusError)
	r.IncConsumed("clickstream", StatusSuccess)

	snap := r.Snapshot()
	got := make(map[string]int64)
	for _, c := range snap.Consumed {
		got[c.Topic+"|"+c.Status] = c.Count
	}
	if got["orders|success"] != 2 || got["orders|error"] != 1 || got["clickstream|success"] != 1 {
		t.Errorf("unexpected counters: %v", got)
	}
}

func TestDurationStats(t *testing.T) {
	r := NewRegistry()
	r.ObserveProcessing("orders", "order_created", 10*time.Millisecond)
	r.ObserveProcessing("orders", "order_created", 30*time.Millisecond)

	snap := r.Snapshot()
	if len(snap.Processing) != 1 {
		t.Fatalf("processing entries = %d, want 1", len(snap.Processing))
	}
	p := snap.Processing[0]
	if p.Count != 2 || p.MinMs != 10 || p.MaxMs != 30 || p.AvgMs != 20 {
		t.Errorf("unexpected stats: %+v", p)
	}
}
