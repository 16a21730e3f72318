package metrics

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Registry holds the consumer's observability counters: events consumed by
// {topic, status} and processing duration by {topic, event_type}. It is safe
// for concurrent use and exported as a plain JSON snapshot.
type Registry struct {
	mu        sync.Mutex
	consumed  map[counterKey]int64
	durations map[counterKey]*durationStats
}

type counterKey struct {
	Topic string
	Label string
}

type durationStats struct {
	Count int64
	Sum   time.Duration
	Min   time.Duration
	Max   time.Duration
}

func NewRegistry() *Registry {
	return &Registry{
		consumed:  make(map[counterKey]int64),
		durations: make(map[counterKey]*durationStats),
	}
}

func (r *Registry) IncConsumed(topic, status string) {
	r.mu.Lock()
	r.consumed[counterKey{Topic: topic, Label: status}]++
	r.mu.Unlock()
}

func (r *Registry) ObserveProcessing(topic, eventType string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := counterKey{Topic: topic, Label: eventType}
	s, ok := r.durations[k]
	if !ok {
		s = &durationStats{Min: d}
		r.durations[k] = s
	}
	s.Count++
	s.Sum += d
	if d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
}

type ConsumedSnapshot struct {
	Topic  string `json:"topic"`
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type DurationSnapshot struct {
	Topic     string  `json:"topic"`
	EventType string  `json:"event_type"`
	Count     int64   `json:"count"`
	AvgMs     float64 `json:"avg_ms"`
	MinMs     float64 `json:"min_ms"`
	MaxMs     float64 `json:"max_ms"`
}

type Snapshot struct {
	Consumed   []ConsumedSnapshot `json:"events_consumed"`
	Processing []DurationSnapshot `json:"processing_duration"`
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{}
	for k, v := range r.consumed {
		snap.Consumed = append(snap.Consumed, ConsumedSnapshot{Topic: k.Topic, Status: k.Label, Count: v})
	}
	for k, s := range r.durations {
		avg := float64(s.Sum.Microseconds()) / float64(s.Count) / 1000
		snap.Processing = append(snap.Processing, DurationSnapshot{
			Topic:     k.Topic,
			EventType: k.Label,
			Count:     s.Count,
			AvgMs:     avg,
			MinMs:     float64(s.Min.Microseconds()) / 1000,
			MaxMs:     float64(s.Max.Microseconds()) / 1000,
		})
	}
	return snap
}

func (r *Registry) SnapshotJSON() []byte {
	b, _ := json.Marshal(r.Snapshot())
	return b
}
