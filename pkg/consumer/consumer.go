// Package consumer defines the boundary to the front-end that accepts
// remote submissions: something that reads messages off the wire and
// turns them into LogEntry values for the CategoryRouter.
package consumer

import (
	"context"

	"github.com/jittakal/logaggregator/pkg/store"
)

// SourceMetadata carries the provenance of a consumed message, used for
// logging, metrics, and dead-lettering; it is opaque to the store
// pipeline itself.
type SourceMetadata struct {
	Topic string
	Partition int32
	Offset int64
	Headers map[string]string
}

// ConsumedEntry is one message read from the front-end, not yet
// submitted to the router.
type ConsumedEntry struct {
	Entry store.LogEntry
	Metadata SourceMetadata
	CommitFunc func() error
}

// Consumer reads messages from an upstream transport.
type Consumer interface {
	// Subscribe subscribes to one or more topics/streams.
	Subscribe(ctx context.Context, topics []string) error

	// Consume starts consuming and returns channels of entries and
	// errors.
	Consume(ctx context.Context) (<-chan *ConsumedEntry, <-chan error, error)

	// Commit commits the read position for a topic/partition.
	Commit(ctx context.Context, topic string, partition int32, offset int64) error

	// Close releases consumer resources.
	Close() error
}

// DLQPublisher publishes entries the pipeline could not place (unknown
// category, validation failure, or a batch residual rejected by a
// category's store) to a dead letter queue.
type DLQPublisher interface {
	Publish(ctx context.Context, entry store.LogEntry, metadata SourceMetadata, reason string) error
	Close() error
}
