package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ecomstream/analytics/internal/metrics"
	"github.com/ecomstream/analytics/internal/model"
	"github.com/ecomstream/analytics/internal/processing"
)

type fakeSource struct {
	mu       sync.Mutex
	msgs     chan kafka.Message
	commits  []kafka.Message
	fetchErr error
	closed   bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{msgs: make(chan kafka.Message, 16)}
}

func (s *fakeSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m, ok := <-s.msgs:
		if !ok {
			if s.fetchErr != nil {
				return kafka.Message{}, s.fetchErr
			}
			return kafka.Message{}, context.Canceled
		}
		return m, nil
	}
}

func (s *fakeSource) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, msgs...)
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) commitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commits)
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (p *fakePublisher) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *fakePublisher) published() []kafka.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafka.Message(nil), p.msgs...)
}

type fakeProcessor struct {
	types []model.EventType
	fn    func(ctx context.Context, evt model.Event) error
}

func (p *fakeProcessor) Process(ctx context.Context, evt model.Event) error {
	if p.fn == nil {
		return nil
	}
	return p.fn(ctx, evt)
}

func (p *fakeProcessor) EventTypes() []model.EventType { return p.types }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startConsumer(t *testing.T, src *fakeSource, pub *fakePublisher, procs ...processing.EventProcessor) (*StreamConsumer, context.CancelFunc, chan error) {
	t.Helper()
	sc := New(Options{
		Source:     src,
		DeadLetter: NewDeadLetterRouter(pub),
		Metrics:    metrics.NewRegistry(),
	})
	for _, p := range procs {
		if err := sc.Register(p); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sc.Run(ctx) }()
	return sc, cancel, done
}

func orderCreatedPayload(orderID string) []byte {
	return []byte(`{
		"event_type": "order_created",
		"event_timestamp": "2025-01-01T00:00:00Z",
		"order_id": "` + orderID + `",
		"customer_id": "C1",
		"total_amount": 50.0
	}`)
}

func TestRegisterRejectsDuplicateEventType(t *testing.T) {
	sc := New(Options{Source: newFakeSource()})
	first := &fakeProcessor{types: []model.EventType{model.OrderCreated}}
	second := &fakeProcessor{types: []model.EventType{model.OrderCreated, model.OrderUpdated}}

	if err := sc.Register(first); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	err := sc.Register(second)
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	// The rejected registration must not claim its other types either.
	if _, ok := sc.processors[model.OrderUpdated]; ok {
		t.Error("partial registration leaked from rejected processor")
	}
}

func TestSuccessCommitsExactlyOnce(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{}
	proc := &fakeProcessor{types: []model.EventType{model.OrderCreated}}
	sc, cancel, done := startConsumer(t, src, pub, proc)

	src.msgs <- kafka.Message{Topic: "orders", Partition: 0, Offset: 7, Value: orderCreatedPayload("O1")}
	waitFor(t, "commit", func() bool { return src.commitCount() == 1 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := src.commitCount(); got != 1 {
		t.Errorf("commits = %d, want exactly 1", got)
	}
	if len(pub.published()) != 0 {
		t.Error("no DLQ traffic expected on success")
	}
	if sc.State() != StateStopped {
		t.Errorf("state %s, want stopped", sc.State())
	}
}

func TestFailureDoesNotCommit(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{}
	proc := &fakeProcessor{
		types: []model.EventType{model.OrderCreated},
		fn: func(ctx context.Context, evt model.Event) error {
			return errors.New("warehouse down")
		},
	}
	_, cancel, done := startConsumer(t, src, pub, proc)

	src.msgs <- kafka.Message{Topic: "orders", Value: orderCreatedPayload("O1")}
	waitFor(t, "dlq publish", func() bool { return len(pub.published()) == 1 })

	cancel()
	<-done

	if got := src.commitCount(); got != 0 {
		t.Errorf("commits = %d, want 0 so the broker redelivers", got)
	}
	dlq := pub.published()[0]
	if dlq.Topic != "orders.dlq" {
		t.Errorf("dlq topic %q, want orders.dlq", dlq.Topic)
	}
	var record struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(dlq.Value, &record); err != nil {
		t.Fatalf("decode dlq record: %v", err)
	}
	if !strings.Contains(record.Error, "processing failed") {
		t.Errorf("dlq error %q should name the processing failure", record.Error)
	}
}

func TestParseFailureRoutesToDLQAndAdvancesOffset(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{}
	_, cancel, done := startConsumer(t, src, pub,
		&fakeProcessor{types: []model.EventType{model.OrderCreated}})

	payload := []byte(`{"order_id": "O1"}`) // no event_type
	src.msgs <- kafka.Message{Topic: "orders", Offset: 3, Value: payload}
	waitFor(t, "commit", func() bool { return src.commitCount() == 1 })

	cancel()
	<-done

	published := pub.published()
	if len(published) != 1 {
		t.Fatalf("dlq messages = %d, want 1", len(published))
	}
	var record struct {
		OriginalTopic string          `json:"original_topic"`
		OriginalData  json.RawMessage `json:"original_data"`
		Error         string          `json:"error"`
		FailedAt      string          `json:"failed_at"`
	}
	if err := json.Unmarshal(published[0].Value, &record); err != nil {
		t.Fatalf("decode dlq record: %v", err)
	}
	if record.OriginalTopic != "orders" {
		t.Errorf("original_topic %q, want orders", record.OriginalTopic)
	}
	if !strings.Contains(record.Error, "parsing failed") {
		t.Errorf("dlq error %q should carry a parse-failure indication", record.Error)
	}
	if string(record.OriginalData) != string(payload) {
		t.Errorf("original_data %s, want the raw payload", record.OriginalData)
	}
	if _, err := time.Parse(time.RFC3339, record.FailedAt); err != nil {
		t.Errorf("failed_at %q is not ISO-8601: %v", record.FailedAt, err)
	}
}

func TestUnregisteredEventTypeIsCommittedNoOp(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{}
	_, cancel, done := startConsumer(t, src, pub,
		&fakeProcessor{types: []model.EventType{model.PageView}})

	src.msgs <- kafka.Message{Topic: "events", Value: []byte(
		`{"event_type": "user_login", "event_timestamp": "2025-01-01T00:00:00Z"}`)}
	waitFor(t, "commit", func() bool { return src.commitCount() == 1 })

	cancel()
	<-done
	if len(pub.published()) != 0 {
		t.Error("missing handler is not a failure; no DLQ expected")
	}
}

func TestGracefulShutdownDrainsInFlightMessage(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{}
	started := make(chan struct{})
	release := make(chan struct{})
	proc := &fakeProcessor{
		types: []model.EventType{model.OrderCreated},
		fn: func(ctx context.Context, evt model.Event) error {
			close(started)
			<-release
			return nil
		},
	}
	sc, cancel, done := startConsumer(t, src, pub, proc)

	src.msgs <- kafka.Message{Topic: "orders", Value: orderCreatedPayload("O1")}
	<-started

	// Stop while the message is mid-processing: the consumer must wait.
	cancel()
	select {
	case err := <-done:
		t.Fatalf("consumer abandoned the in-flight message: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := src.commitCount(); got != 1 {
		t.Errorf("commits = %d, want the drained message committed", got)
	}
	if sc.State() != StateStopped {
		t.Errorf("state %s, want stopped", sc.State())
	}
	if !src.closed {
		t.Error("source must be closed on shutdown")
	}
}

func TestProcessorPanicIsProcessingFailure(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{}
	proc := &fakeProcessor{
		types: []model.EventType{model.OrderCreated},
		fn: func(ctx context.Context, evt model.Event) error {
			panic("boom")
		},
	}
	_, cancel, done := startConsumer(t, src, pub, proc)

	src.msgs <- kafka.Message{Topic: "orders", Value: orderCreatedPayload("O1")}
	waitFor(t, "dlq publish", func() bool { return len(pub.published()) == 1 })

	cancel()
	<-done
	if got := src.commitCount(); got != 0 {
		t.Errorf("commits = %d, want 0 after a panicking processor", got)
	}
}

func TestBrokerErrorStopsConsumer(t *testing.T) {
	src := newFakeSource()
	src.fetchErr = errors.New("broker gone")
	close(src.msgs)

	sc, _, done := startConsumer(t, src, &fakePublisher{})
	err := <-done
	if err == nil || !strings.Contains(err.Error(), "broker gone") {
		t.Fatalf("expected the broker error to surface, got %v", err)
	}
	if sc.State() != StateStopped {
		t.Errorf("state %s, want stopped", sc.State())
	}
}

func TestStartFailsFastWhenPingFails(t *testing.T) {
	sc := New(Options{
		Source: newFakeSource(),
		Ping:   func(ctx context.Context) error { return errors.New("unreachable") },
	})
	err := sc.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unreachable") {
		t.Fatalf("expected startup failure, got %v", err)
	}
	if sc.State() != StateStopped {
		t.Errorf("state %s, want stopped", sc.State())
	}
}
