package consumer

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher is the slice of the producer the dead-letter router needs.
// *kafka.Writer satisfies it when constructed without a fixed topic.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type deadLetterRecord struct {
	OriginalTopic string          `json:"original_topic"`
	OriginalData  json.RawMessage `json:"original_data"`
	Error         string          `json:"error"`
	FailedAt      string          `json:"failed_at"`
}

// DeadLetterRouter republishes failed payloads to {topic}.dlq. Publication is
// best-effort: a DLQ failure is logged and never blocks the main loop.
type DeadLetterRouter struct {
	pub Publisher
}

func NewDeadLetterRouter(pub Publisher) *DeadLetterRouter {
	return &DeadLetterRouter{pub: pub}
}

func (r *DeadLetterRouter) Route(ctx context.Context, topic string, payload []byte, reason string) {
	if r == nil || r.pub == nil {
		return
	}

	record := deadLetterRecord{
		OriginalTopic: topic,
		Error:         reason,
		FailedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	if json.Valid(payload) {
		record.OriginalData = json.RawMessage(payload)
	} else {
		record.OriginalData, _ = json.Marshal(string(payload))
	}

	b, err := json.Marshal(record)
	if err != nil {
		log.Printf("[dlq] marshal failed: %v", err)
		return
	}

	dlqTopic := topic + ".dlq"
	if err := r.pub.WriteMessages(ctx, kafka.Message{Topic: dlqTopic, Value: b}); err != nil {
		log.Printf("[dlq] publish to %s failed: %v", dlqTopic, err)
		return
	}
	log.Printf("[dlq] routed message topic=%s reason=%q", dlqTopic, reason)
}
