package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	DefaultKafkaBrokers = "localhost:9092"
	DefaultGroupID      = "ecommerce-analytics"
	DefaultTopics       = "orders,clickstream"
	DefaultOffsetReset  = "earliest"

	DefaultTopicPartitions    = 3
	DefaultDLQTopicPartitions = 1

	DefaultMaxPollRecords      = 500
	DefaultSessionTimeoutMs    = 30000
	DefaultHeartbeatIntervalMs = 10000
	DefaultMaxAttempts         = 3
	DefaultRetryBackoffMs      = 1000
	DefaultShutdownTimeoutMs   = 30000

	DefaultPostgresDSN = "host=localhost user=analytics password=analytics dbname=warehouse port=5432 sslmode=disable"

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisNamespace = "analytics"
	DefaultCacheTTLSec    = 300

	DefaultZThreshold         = 3.0
	DefaultIQRMultiplier      = 1.5
	DefaultPctChangeThreshold = 50.0
	DefaultLookbackDays       = 30

	DefaultMetricsDumpIntervalSec = 60
)

type Config struct {
	// Kafka
	KafkaBrokers        []string
	KafkaGroupID        string
	KafkaTopics         []string
	KafkaOffsetReset    string // earliest | latest
	MaxPollRecords      int
	SessionTimeoutMs    int
	HeartbeatIntervalMs int
	MaxAttempts         int
	RetryBackoffMs      int
	ShutdownTimeoutMs   int

	TopicPartitions    int
	DLQTopicPartitions int

	// Warehouse
	PostgresDSN string

	// Cache
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisNamespace string
	CacheTTLSec    int

	// Anomaly detection
	ZThreshold         float64
	IQRMultiplier      float64
	PctChangeThreshold float64
	LookbackDays       int
	AlertWebhookURL    string

	MetricsDumpIntervalSec int
}

func (c *Config) String() string {
	return fmt.Sprintf(`
Kafka:
  Brokers:          %v
  GroupID:          %s
  Topics:           %v
  OffsetReset:      %s
  MaxPollRecords:   %d
  SessionTimeout:   %dms
  Heartbeat:        %dms
  MaxAttempts:      %d
  RetryBackoff:     %dms
  ShutdownTimeout:  %dms
Warehouse:
  PostgresDSN:      %s
Cache:
  RedisAddr:        %s
  RedisNamespace:   %s
  CacheTTL:         %ds
Anomaly:
  ZThreshold:       %.2f
  IQRMultiplier:    %.2f
  PctChange:        %.2f
  LookbackDays:     %d
  AlertWebhook:     %s`,
		c.KafkaBrokers, c.KafkaGroupID, c.KafkaTopics, c.KafkaOffsetReset,
		c.MaxPollRecords, c.SessionTimeoutMs, c.HeartbeatIntervalMs,
		c.MaxAttempts, c.RetryBackoffMs, c.ShutdownTimeoutMs,
		redactDSN(c.PostgresDSN),
		c.RedisAddr, c.RedisNamespace, c.CacheTTLSec,
		c.ZThreshold, c.IQRMultiplier, c.PctChangeThreshold, c.LookbackDays,
		c.AlertWebhookURL)
}

func Load() (*Config, error) {
	cfg := &Config{
		KafkaBrokers:        splitCSV(envOrDefault("KAFKA_BROKERS", DefaultKafkaBrokers)),
		KafkaGroupID:        envOrDefault("KAFKA_GROUP_ID", DefaultGroupID),
		KafkaTopics:         splitCSV(envOrDefault("KAFKA_TOPICS", DefaultTopics)),
		KafkaOffsetReset:    envOrDefault("KAFKA_OFFSET_RESET", DefaultOffsetReset),
		MaxPollRecords:      envOrDefaultInt("KAFKA_MAX_POLL_RECORDS", DefaultMaxPollRecords),
		SessionTimeoutMs:    envOrDefaultInt("KAFKA_SESSION_TIMEOUT_MS", DefaultSessionTimeoutMs),
		HeartbeatIntervalMs: envOrDefaultInt("KAFKA_HEARTBEAT_INTERVAL_MS", DefaultHeartbeatIntervalMs),
		MaxAttempts:         envOrDefaultInt("KAFKA_MAX_ATTEMPTS", DefaultMaxAttempts),
		RetryBackoffMs:      envOrDefaultInt("KAFKA_RETRY_BACKOFF_MS", DefaultRetryBackoffMs),
		ShutdownTimeoutMs:   envOrDefaultInt("SHUTDOWN_TIMEOUT_MS", DefaultShutdownTimeoutMs),

		TopicPartitions:    envOrDefaultInt("KAFKA_TOPIC_PARTITIONS", DefaultTopicPartitions),
		DLQTopicPartitions: envOrDefaultInt("KAFKA_DLQ_TOPIC_PARTITIONS", DefaultDLQTopicPartitions),

		PostgresDSN: envOrDefault("POSTGRES_DSN", DefaultPostgresDSN),

		RedisAddr:      envOrDefault("REDIS_ADDR", DefaultRedisAddr),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        envOrDefaultInt("REDIS_DB", 0),
		RedisNamespace: envOrDefault("REDIS_NAMESPACE", DefaultRedisNamespace),
		CacheTTLSec:    envOrDefaultInt("CACHE_TTL_SEC", DefaultCacheTTLSec),

		ZThreshold:         envOrDefaultFloat("ANOMALY_Z_THRESHOLD", DefaultZThreshold),
		IQRMultiplier:      envOrDefaultFloat("ANOMALY_IQR_MULTIPLIER", DefaultIQRMultiplier),
		PctChangeThreshold: envOrDefaultFloat("ANOMALY_PCT_CHANGE_THRESHOLD", DefaultPctChangeThreshold),
		LookbackDays:       envOrDefaultInt("ANOMALY_LOOKBACK_DAYS", DefaultLookbackDays),
		AlertWebhookURL:    os.Getenv("ALERT_WEBHOOK_URL"),

		MetricsDumpIntervalSec: envOrDefaultInt("METRICS_DUMP_INTERVAL_SEC", DefaultMetricsDumpIntervalSec),
	}

	if len(cfg.KafkaTopics) == 0 {
		return nil, errors.New("config: KAFKA_TOPICS must name at least one topic")
	}
	if strings.TrimSpace(cfg.KafkaGroupID) == "" {
		return nil, errors.New("config: KAFKA_GROUP_ID is empty")
	}
	if cfg.KafkaOffsetReset != "earliest" && cfg.KafkaOffsetReset != "latest" {
		return nil, fmt.Errorf("config: KAFKA_OFFSET_RESET must be earliest or latest, got %q", cfg.KafkaOffsetReset)
	}
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if n != 0 || v == "0" {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func redactDSN(dsn string) string {
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=***"
		}
	}
	return strings.Join(fields, " ")
}
