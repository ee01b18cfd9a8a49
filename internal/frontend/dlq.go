package frontend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	lerrors "github.com/jittakal/logaggregator/internal/errors"
	"github.com/jittakal/logaggregator/pkg/consumer"
	"github.com/jittakal/logaggregator/pkg/store"
)

var _ consumer.DLQPublisher = (*DLQPublisher)(nil)

// DLQRecord is the JSON envelope published to the dead letter topic,
// Modeled on DLQEvent.
type DLQRecord struct {
	OriginalCategory string `json:"original_category"`
	OriginalMessage []byte `json:"original_message"`
	OriginalTopic string `json:"original_topic"`
	OriginalPartition int32 `json:"original_partition"`
	OriginalOffset int64 `json:"original_offset"`
	FailureReason string `json:"failure_reason"`
	FailureTimestamp time.Time `json:"failure_timestamp"`
	ProcessorID string `json:"processor_id"`
}

// DLQConfig contains DLQ configuration.
type DLQConfig struct {
	Enabled bool
	TopicSuffix string
	MaxRetries int
}

// DLQPublisher publishes entries the router could not place to a dead
// letter Kafka topic.
type DLQPublisher struct {
	producer sarama.SyncProducer
	config DLQConfig
	logger *slog.Logger
	mu sync.RWMutex
	closed bool
	processorID string
}

// NewDLQPublisher creates a new DLQ publisher.
func NewDLQPublisher(
	bootstrapServers []string,
	securityConfig ConsumerConfig,
	dlqConfig DLQConfig,
	logger *slog.Logger,
	processorID string,
) (*DLQPublisher, error) {
	if !dlqConfig.Enabled {
		logger.Info("DLQ is disabled")
		return &DLQPublisher{config: dlqConfig, logger: logger, processorID: processorID, closed: true}, nil
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	if err := configureSecurity(saramaConfig, securityConfig); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	producer, err := sarama.NewSyncProducer(bootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	logger.Info("DLQ publisher created", "bootstrap_servers", bootstrapServers, "topic_suffix", dlqConfig.TopicSuffix)

	return &DLQPublisher{
		producer: producer,
		config: dlqConfig,
		logger: logger,
		processorID: processorID,
		closed: false,
	}, nil
}

// Publish publishes a failed entry to the DLQ, per
// consumer.DLQPublisher.
func (p *DLQPublisher) Publish(ctx context.Context, entry store.LogEntry, metadata consumer.SourceMetadata, reason string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return lerrors.ErrConsumerClosed
	}
	if !p.config.Enabled {
		p.logger.Debug("DLQ disabled, skipping publish")
		return nil
	}

	dlqTopic := metadata.Topic + p.config.TopicSuffix

	record := DLQRecord{
		OriginalCategory: entry.Category,
		OriginalMessage: entry.Message,
		OriginalTopic: metadata.Topic,
		OriginalPartition: metadata.Partition,
		OriginalOffset: metadata.Offset,
		FailureReason: reason,
		FailureTimestamp: time.Now().UTC(),
		ProcessorID: p.processorID,
	}

	dlqData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ record: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: dlqTopic,
		Key: sarama.StringEncoder(entry.Category),
		Value: sarama.ByteEncoder(dlqData),
		Headers: []sarama.RecordHeader{
			{Key: []byte("failure_reason"), Value: []byte(reason)},
			{Key: []byte("original_topic"), Value: []byte(metadata.Topic)},
			{Key: []byte("processor_id"), Value: []byte(p.processorID)},
		},
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error("failed to publish to DLQ", "error", err, "dlq_topic", dlqTopic, "category", entry.Category)
		return fmt.Errorf("failed to send message to DLQ: %w", err)
	}

	p.logger.Info("published entry to DLQ",
		"dlq_topic", dlqTopic,
		"partition", partition,
		"offset", offset,
		"category", entry.Category,
		"reason", reason,
	)

	return nil
}

func (p *DLQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	p.logger.Info("closing DLQ publisher")

	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			p.logger.Error("error closing producer", "error", err)
			return err
		}
	}

	p.logger.Info("DLQ publisher closed")
	return nil
}
