package broker

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/ecomstream/analytics/internal/config"
)

const (
	defaultTopicReplication = 1
	defaultRetentionMs      = "604800000"  // 7d
	defaultDLQRetentionMs   = "1209600000" // 14d
)

// EnsureTopics provisions each input topic and its {topic}.dlq companion.
// Failures are logged, not fatal: the broker may disallow topic admin.
func EnsureTopics(ctx context.Context, cfg *config.Config) {
	if len(cfg.KafkaBrokers) == 0 {
		log.Printf("[warn] no brokers for ensure topics")
		return
	}
	broker := cfg.KafkaBrokers[0]

	for _, topic := range cfg.KafkaTopics {
		if err := ensureTopic(ctx, broker, topic, cfg.TopicPartitions,
			map[string]string{"cleanup.policy": "delete", "retention.ms": defaultRetentionMs}); err != nil {
			log.Printf("[warn] ensure topic (%s): %v", topic, err)
		} else {
			log.Printf("[topics] ensured topic=%s partitions=%d", topic, cfg.TopicPartitions)
		}

		dlqTopic := topic + ".dlq"
		if err := ensureTopic(ctx, broker, dlqTopic, cfg.DLQTopicPartitions,
			map[string]string{"cleanup.policy": "delete", "retention.ms": defaultDLQRetentionMs}); err != nil {
			log.Printf("[warn] ensure dlq topic (%s): %v", dlqTopic, err)
		} else {
			log.Printf("[topics] ensured dlq topic=%s partitions=%d", dlqTopic, cfg.DLQTopicPartitions)
		}
	}
}

func ensureTopic(ctx context.Context, broker, topic string, partitions int, topicConfig map[string]string) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}

	ctrlAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	ctrlConn, err := kafka.DialContext(ctx, "tcp", ctrlAddr)
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer ctrlConn.Close()

	tc := kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: defaultTopicReplication,
		ConfigEntries:     toConfigEntries(topicConfig),
	}
	if err := ctrlConn.CreateTopics(tc); err != nil {
		if !strings.Contains(strings.ToLower(err.Error()), "exists") {
			return fmt.Errorf("create topic %s: %w", topic, err)
		}
	}
	return nil
}

func toConfigEntries(m map[string]string) []kafka.ConfigEntry {
	if len(m) == 0 {
		return nil
	}
	out := make([]kafka.ConfigEntry, 0, len(m))
	for k, v := range m {
		out = append(out, kafka.ConfigEntry{ConfigName: k, ConfigValue: v})
	}
	return out
}
