// Package dto holds the viper-decoded configuration tree: the ambient
// application/Kafka/observability/shutdown settings plus the recursive
// store composition tree under `store`.
package dto

import (
	"fmt"
	"time"
)

// ApplicationConfig is the root configuration structure.
type ApplicationConfig struct {
	Application ApplicationInfo `mapstructure:"application"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	Store StoreNode `mapstructure:"store"`
	Retry RetryConfig `mapstructure:"retry"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata.
type ApplicationInfo struct {
	Name string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// KafkaConfig contains Kafka-related configuration for the frontend
// consumer.
type KafkaConfig struct {
	BootstrapServers []string `mapstructure:"bootstrap_servers"`
	SecurityProtocol string `mapstructure:"security_protocol"`
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUsername string `mapstructure:"sasl_username"`
	SASLPassword string `mapstructure:"sasl_password"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	DLQ DLQConfig `mapstructure:"dlq"`
}

// ConsumerConfig contains Kafka consumer configuration.
type ConsumerConfig struct {
	GroupID string `mapstructure:"group_id"`
	Topics []string `mapstructure:"topics"`
	AutoOffsetReset string `mapstructure:"auto_offset_reset"`
	EnableAutoCommit bool `mapstructure:"enable_auto_commit"`
	MaxPollRecords int `mapstructure:"max_poll_records"`
	MaxPollIntervalMS int `mapstructure:"max_poll_interval_ms"`
	SessionTimeoutMS int `mapstructure:"session_timeout_ms"`
	HeartbeatIntervalMS int `mapstructure:"heartbeat_interval_ms"`
}

// DLQConfig contains dead letter queue configuration.
type DLQConfig struct {
	Enabled bool `mapstructure:"enabled"`
	TopicSuffix string `mapstructure:"topic_suffix"`
	MaxRetries int `mapstructure:"max_retries"`
}

// StoreNode is one node of the recursive store composition tree,
// mirroring Scribe's own store.h-driven .conf format but expressed as
// YAML via viper instead of a custom parser.
//
// Type selects the concrete store: "null", "file", "framed_file",
// "network", "buffer", "multi", "bucket", "category", "multi_file",
// "framed_multi_file". Options is the flat string map passed to
// Configure. Children populates MultiStore/BucketStore's child list.
// Primary/Secondary populate BufferStore. Model populates CategoryStore
// and its specializations.
type StoreNode struct {
	Type string `mapstructure:"type"`
	Category string `mapstructure:"category"`
	Options map[string]string `mapstructure:"options"`
	Children []StoreNode `mapstructure:"children"`
	Primary *StoreNode `mapstructure:"primary"`
	Secondary *StoreNode `mapstructure:"secondary"`
	Model *StoreNode `mapstructure:"model"`
}

// RetryConfig contains retry/circuit-breaker settings. NetworkStore does
// not read them: its gobreaker.CircuitBreaker uses fixed settings (trip
// after 3 consecutive failures, 10s open timeout, 1 half-open request).
type RetryConfig struct {
	CircuitBreakerEnabled bool `mapstructure:"circuit_breaker_enabled"`
	CircuitBreakerMaxFailures int `mapstructure:"circuit_breaker_max_failures"`
	CircuitBreakerTimeoutSeconds int `mapstructure:"circuit_breaker_timeout_seconds"`
	CircuitBreakerMaxRequests int `mapstructure:"circuit_breaker_max_requests"`
}

// ProcessingConfig contains worker-pool sizing for the CategoryRouter.
type ProcessingConfig struct {
	WorkerPoolSize int `mapstructure:"worker_pool_size"`
	PeriodicCheckMS int `mapstructure:"periodic_check_ms"`
	ConnPoolMaxIdle int `mapstructure:"conn_pool_max_idle"`
}

// ObservabilityConfig contains observability settings.
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health HealthConfig `mapstructure:"health"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port int `mapstructure:"port"`
	Path string `mapstructure:"path"`
}

// HealthConfig contains health check settings.
type HealthConfig struct {
	Port int `mapstructure:"port"`
	LivenessPath string `mapstructure:"liveness_path"`
	ReadinessPath string `mapstructure:"readiness_path"`
}

// ShutdownConfig contains shutdown settings.
type ShutdownConfig struct {
	GracePeriodSeconds time.Duration `mapstructure:"grace_period_seconds"`
	ForceTimeoutSeconds time.Duration `mapstructure:"force_timeout_seconds"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Application.Name == "" {
		return fmt.Errorf("application name is required")
	}
	if len(c.Kafka.BootstrapServers) == 0 {
		return fmt.Errorf("kafka bootstrap servers are required")
	}
	if c.Kafka.Consumer.GroupID == "" {
		return fmt.Errorf("kafka consumer group ID is required")
	}
	if c.Store.Type == "" {
		return fmt.Errorf("store.type is required")
	}
	return c.Store.Validate()
}

// Validate recursively validates a StoreNode's shape against what its
// Type requires, without inspecting the contents of Options. Unknown
// keys there are warnings, not errors, deferred to the concrete
// store's Configure.
func (n *StoreNode) Validate() error {
	switch n.Type {
	case "null", "file", "framed_file", "network":
		return nil
	case "multi", "bucket":
		if len(n.Children) == 0 {
			return fmt.Errorf("store type %q requires at least one child", n.Type)
		}
		for i := range n.Children {
			if err := n.Children[i].Validate(); err != nil {
				return err
			}
		}
		return nil
	case "buffer":
		if n.Primary == nil || n.Secondary == nil {
			return fmt.Errorf("store type \"buffer\" requires primary and secondary")
		}
		if err := n.Primary.Validate(); err != nil {
			return err
		}
		return n.Secondary.Validate()
	case "category", "multi_file", "framed_multi_file":
		if n.Type == "category" && n.Model == nil {
			return fmt.Errorf("store type \"category\" requires a model")
		}
		if n.Model != nil {
			return n.Model.Validate()
		}
		return nil
	default:
		return fmt.Errorf("unrecognized store type %q", n.Type)
	}
}
