// Package router implements the category router: something that
// dispatches log entries to per-category store instances, generalized
// from a single hardcoded writer to the full Store composition tree.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jittakal/logaggregator/internal/buffer"
	bufiface "github.com/jittakal/logaggregator/pkg/buffer"
	"github.com/jittakal/logaggregator/pkg/store"
)

// Config tunes how the router drives its per-category workers.
type Config struct {
	PeriodicCheckInterval time.Duration
	MaxBufferedRecords int
}

// DefaultConfig returns sane defaults matching a 1-2s periodic_check
// cadence for FileStoreBase-backed stores.
func DefaultConfig() Config {
	return Config{
		PeriodicCheckInterval: 2 * time.Second,
		MaxBufferedRecords: 1000,
	}
}

// category holds the per-category worker state: its materialized
// store, its buffer, and the goroutine driving both.
type category struct {
	store store.Store
	buf bufiface.Buffer
	stop chan struct{}
	done chan struct{}
}

// CategoryRouter maintains category -> Store bindings, materializing a
// dedicated Store per category from a model via CopyForCategory (the
// same mechanism CategoryStore uses internally), and drives
// handle_messages/periodic_check/flush on a dedicated worker goroutine
// per category: each category-bound store chain is driven by its own
// worker.
type CategoryRouter struct {
	mu sync.Mutex
	model store.Store
	cfg Config
	logger *slog.Logger
	dlq DLQPublisher

	categories map[string]*category
}

// DLQPublisher receives the residual entries of a batch that a
// category's Store chain rejected; the router publishes them after that
// single HandleMessages call, without retrying the batch itself.
type DLQPublisher interface {
	PublishRouterFailure(ctx context.Context, entry store.LogEntry, reason string)
}

// New creates a CategoryRouter dispatching onto stores materialized
// from model.
func New(model store.Store, cfg Config, logger *slog.Logger, dlq DLQPublisher) *CategoryRouter {
	return &CategoryRouter{
		model: model,
		cfg: cfg,
		logger: logger,
		dlq: dlq,
		categories: make(map[string]*category),
	}
}

// Submit hands a single entry to its category's buffer, materializing
// and starting that category's worker on first sight.
func (r *CategoryRouter) Submit(ctx context.Context, entry store.LogEntry) error {
	c, err := r.categoryFor(entry.Category)
	if err != nil {
		return err
	}
	if dropped := c.buf.Add(store.MessageBatch{entry}); dropped > 0 {
		r.logger.Warn("category buffer overflow, dropped oldest entries",
			"category", entry.Category, "dropped", dropped)
	}
	return nil
}

func (r *CategoryRouter) categoryFor(name string) (*category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.categories[name]; ok {
		return c, nil
	}

	child, err := r.model.CopyForCategory(name)
	if err != nil {
		return nil, fmt.Errorf("router: materialize category %q: %w", name, err)
	}
	if err := child.Open(); err != nil {
		return nil, fmt.Errorf("router: open category %q: %w", name, err)
	}

	c := &category{
		store: child,
		buf: buffer.New(r.cfg.MaxBufferedRecords),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	r.categories[name] = c
	go r.runWorker(name, c)
	return c, nil
}

// runWorker periodically drains the category's buffer into its store
// and calls periodic_check, one goroutine per category.
func (r *CategoryRouter) runWorker(name string, c *category) {
	defer close(c.done)

	ticker := time.NewTicker(r.cfg.PeriodicCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			r.drainOnce(name, c)
			return
		case <-ticker.C:
			c.store.PeriodicCheck(context.Background())
			r.drainOnce(name, c)
		}
	}
}

func (r *CategoryRouter) drainOnce(name string, c *category) {
	if c.buf.IsEmpty() {
		return
	}
	batch := c.buf.Drain()

	ok, residual := c.store.HandleMessages(context.Background(), batch)
	if ok {
		return
	}
	if len(residual) == 0 {
		return
	}

	r.logger.Warn("category store rejected entries, routing to DLQ",
		"category", name, "rejected", len(residual), "status", c.store.GetStatus())

	if r.dlq != nil {
		for _, entry := range residual {
			r.dlq.PublishRouterFailure(context.Background(), entry, c.store.GetStatus())
		}
	}
}

// Flush flushes every category's store.
func (r *CategoryRouter) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, c := range r.categories {
		r.drainOnce(name, c)
		if err := c.store.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("router: flush category %q: %w", name, err)
		}
	}
	return firstErr
}

// Close stops every worker and closes every materialized store.
func (r *CategoryRouter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, c := range r.categories {
		close(c.stop)
		<-c.done
		if err := c.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("router: close category %q: %w", name, err)
		}
	}
	return firstErr
}

// Status returns a snapshot of every category's store status, for the
// health server.
func (r *CategoryRouter) Status() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := make(map[string]string, len(r.categories))
	for name, c := range r.categories {
		s := c.store.GetStatus()
		if s == "" {
			s = "ok"
		}
		status[name] = s
	}
	return status
}
