package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ecomstream/analytics/internal/config"
)

// KafkaClient bundles the consumer-group reader with the producer used for
// dead-letter publication. Auto-commit stays disabled (CommitInterval 0): the
// stream consumer is the sole offset-commit authority.
type KafkaClient struct {
	Consumer    *kafka.Reader
	DLQProducer *kafka.Writer
	brokers     []string
}

func NewKafkaClient(cfg *config.Config) *KafkaClient {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		DualStack: true,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     cfg.KafkaGroupID,
		GroupTopics: cfg.KafkaTopics,
		Dialer:      dialer,

		StartOffset:   parseOffsetReset(cfg.KafkaOffsetReset),
		MinBytes:      1,
		MaxBytes:      10e6,
		QueueCapacity: cfg.MaxPollRecords,

		SessionTimeout:    time.Duration(cfg.SessionTimeoutMs) * time.Millisecond,
		HeartbeatInterval: time.Duration(cfg.HeartbeatIntervalMs) * time.Millisecond,

		ReadBackoffMin: time.Duration(cfg.RetryBackoffMs) * time.Millisecond,
		ReadBackoffMax: time.Duration(cfg.RetryBackoffMs*4) * time.Millisecond,

		CommitInterval:  0,
		ReadLagInterval: -1,
	})

	// Topic left empty: the DLQ topic is set per message ({topic}.dlq).
	dlq := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  cfg.MaxAttempts,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &KafkaClient{Consumer: reader, DLQProducer: dlq, brokers: cfg.KafkaBrokers}
}

// Ping dials the first broker so startup can fail fast before the consume
// loop begins.
func (kc *KafkaClient) Ping(ctx context.Context) error {
	if len(kc.brokers) == 0 {
		return fmt.Errorf("broker: no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", kc.brokers[0])
	if err != nil {
		return fmt.Errorf("broker: dial %s: %w", kc.brokers[0], err)
	}
	return conn.Close()
}

func (kc *KafkaClient) Close() {
	_ = kc.Consumer.Close()
	_ = kc.DLQProducer.Close()
}

func parseOffsetReset(policy string) int64 {
	if policy == "latest" {
		return kafka.LastOffset
	}
	return kafka.FirstOffset
}
