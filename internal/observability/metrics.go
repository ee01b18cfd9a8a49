package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the store pipeline: the
// Kafka frontend consuming raw messages, the CategoryRouter dispatching
// them, and the Store composition tree committing them.
type Metrics struct {
	// Frontend (Kafka consumer) metrics
	MessagesConsumed  *prometheus.CounterVec
	OffsetCommits     *prometheus.CounterVec
	Rebalances        *prometheus.CounterVec
	RebalanceDuration *prometheus.HistogramVec
	CommitLatency     *prometheus.HistogramVec
	DLQPublished      *prometheus.CounterVec
	PartitionsAssigned *prometheus.GaugeVec

	// Router/buffer metrics
	EntriesRouted     *prometheus.CounterVec
	BufferRecordCount *prometheus.GaugeVec
	BufferDropped     *prometheus.CounterVec

	// Store domain metrics
	FilesRotated     *prometheus.CounterVec
	BytesWritten     *prometheus.CounterVec
	StoreStatus      *prometheus.GaugeVec
	HandleMessagesOK *prometheus.CounterVec
	ResidualEntries  *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logaggd_kafka_messages_consumed_total",
				Help: "Total number of messages consumed from Kafka",
			},
			[]string{"topic", "partition"},
		),
		OffsetCommits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logaggd_kafka_offset_commit_total",
				Help: "Total number of offset commits",
			},
			[]string{"topic", "partition", "status"},
		),
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logaggd_kafka_rebalance_total",
				Help: "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),
		RebalanceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "logaggd_kafka_rebalance_duration_seconds",
				Help:    "Duration of consumer group rebalances",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"group"},
		),
		CommitLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "logaggd_kafka_commit_latency_seconds",
				Help:    "Latency of offset commit operations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"topic", "partition"},
		),
		DLQPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logaggd_dlq_published_total",
				Help: "Total number of entries published to the dead letter topic",
			},
			[]string{"reason"},
		),
		PartitionsAssigned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "logaggd_kafka_partitions_assigned",
				Help: "Number of partitions currently assigned to this consumer",
			},
			[]string{"topic"},
		),

		EntriesRouted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logaggd_router_entries_total",
				Help: "Total number of entries submitted to the category router",
			},
			[]string{"category"},
		),
		BufferRecordCount: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "logaggd_buffer_record_count",
				Help: "Current number of records buffered per category",
			},
			[]string{"category"},
		),
		BufferDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logaggd_buffer_dropped_total",
				Help: "Total number of buffered records dropped due to overflow",
			},
			[]string{"category"},
		),

		FilesRotated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logaggd_store_files_rotated_total",
				Help: "Total number of rotated files closed by a FileStoreBase-derived store",
			},
			[]string{"category", "fs_type"},
		),
		BytesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logaggd_store_bytes_written_total",
				Help: "Total number of bytes committed by a store",
			},
			[]string{"category", "fs_type"},
		),
		StoreStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "logaggd_store_status",
				Help: "1 if the category's store reports a non-empty status (unhealthy), 0 otherwise",
			},
			[]string{"category"},
		),
		HandleMessagesOK: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logaggd_store_handle_messages_total",
				Help: "Total number of HandleMessages calls by outcome",
			},
			[]string{"category", "status"},
		),
		ResidualEntries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logaggd_store_residual_entries_total",
				Help: "Total number of entries returned as residual by a failed HandleMessages call",
			},
			[]string{"category"},
		),
	}
}

// IncMessagesConsumed increments the messages consumed counter.
func (m *Metrics) IncMessagesConsumed(topic string, partition int32) {
	m.MessagesConsumed.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Inc()
}

// IncRebalances increments the rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// IncOffsetCommits increments the offset commits counter.
func (m *Metrics) IncOffsetCommits(topic string, partition int32, status string) {
	m.OffsetCommits.WithLabelValues(topic, fmt.Sprintf("%d", partition), status).Inc()
}

// ObserveRebalanceDuration observes a rebalance duration.
func (m *Metrics) ObserveRebalanceDuration(groupID string, duration float64) {
	m.RebalanceDuration.WithLabelValues(groupID).Observe(duration)
}

// ObserveCommitLatency observes an offset commit latency.
func (m *Metrics) ObserveCommitLatency(topic string, partition int32, duration float64) {
	m.CommitLatency.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Observe(duration)
}

// SetPartitionsAssigned sets the partitions-assigned gauge.
func (m *Metrics) SetPartitionsAssigned(topic string, count float64) {
	m.PartitionsAssigned.WithLabelValues(topic).Set(count)
}

// IncDLQPublished increments the DLQ published counter.
func (m *Metrics) IncDLQPublished(reason string) {
	m.DLQPublished.WithLabelValues(reason).Inc()
}

// IncEntriesRouted increments the router entries counter.
func (m *Metrics) IncEntriesRouted(category string) {
	m.EntriesRouted.WithLabelValues(category).Inc()
}

// SetBufferRecordCount sets the per-category buffered record count gauge.
func (m *Metrics) SetBufferRecordCount(category string, count float64) {
	m.BufferRecordCount.WithLabelValues(category).Set(count)
}

// IncBufferDropped increments the buffer overflow drop counter.
func (m *Metrics) IncBufferDropped(category string, n int) {
	m.BufferDropped.WithLabelValues(category).Add(float64(n))
}

// SetStoreStatus sets the per-category store status gauge: 1 if status
// is non-empty (unhealthy), 0 otherwise.
func (m *Metrics) SetStoreStatus(category, status string) {
	v := 0.0
	if status != "" {
		v = 1.0
	}
	m.StoreStatus.WithLabelValues(category).Set(v)
}

// IncHandleMessages increments the HandleMessages outcome counter.
func (m *Metrics) IncHandleMessages(category, status string) {
	m.HandleMessagesOK.WithLabelValues(category, status).Inc()
}

// AddResidualEntries adds to the residual entries counter.
func (m *Metrics) AddResidualEntries(category string, n int) {
	m.ResidualEntries.WithLabelValues(category).Add(float64(n))
}
