package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	lerrors "github.com/jittakal/logaggregator/internal/errors"
	"github.com/jittakal/logaggregator/pkg/store"
)

var _ store.Store = (*BufferStore)(nil)

// bufferState is one of STREAMING, DISCONNECTED, or SENDING_BUFFER.
type bufferState int

const (
	stateStreaming bufferState = iota
	stateDisconnected
	stateSendingBuffer
)

func (s bufferState) String() string {
	switch s {
	case stateStreaming:
		return "STREAMING"
	case stateDisconnected:
		return "DISCONNECTED"
	case stateSendingBuffer:
		return "SENDING_BUFFER"
	default:
		return "UNKNOWN"
	}
}

// readableStore is the Store+Readable pair BufferStore requires of its
// secondary.
type readableStore interface {
	store.Store
	store.Readable
}

// BufferStore is the primary/secondary state machine at the heart of
// the pipeline: writes stream straight to primary while
// healthy, fail over to a durable secondary disk queue on outage, and
// drain the queue back into primary once it recovers.
type BufferStore struct {
	mu sync.Mutex
	statusMu sync.Mutex
	status string

	primary store.Store
	secondary readableStore
	now func() time.Time

	state bufferState
	lastWriteTime time.Time
	lastOpenAttempt time.Time
	retryInterval time.Duration

	avgRetry time.Duration
	retryRange time.Duration

	maxQueueLength int
	bufferSendRate int
	limiter *rate.Limiter

	overflow []store.LogEntry
}

// NewBufferStore wires a BufferStore over an already-constructed
// primary and a Readable secondary. now supplies wall-clock time and is
// overridable for tests.
func NewBufferStore(primary store.Store, secondary readableStore, now func() time.Time) *BufferStore {
	if now == nil {
		now = time.Now
	}
	return &BufferStore{
		primary: primary,
		secondary: secondary,
		now: now,
		state: stateDisconnected,
		avgRetry: 30 * time.Second,
		retryRange: 10 * time.Second,
		maxQueueLength: 10000,
		bufferSendRate: 1,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
}

func (s *BufferStore) Configure(opts store.ConfigOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := opts["max_queue_length"]; ok {
		if n, ok := parseInt(v); ok {
			s.maxQueueLength = n
		}
	}
	if v, ok := opts["buffer_send_rate"]; ok {
		if n, ok := parseInt(v); ok && n > 0 {
			s.bufferSendRate = n
		}
	}
	if v, ok := opts["retry_interval"]; ok {
		if n, ok := parseInt(v); ok {
			s.avgRetry = time.Duration(n) * time.Second
		}
	}
	if v, ok := opts["retry_interval_range"]; ok {
		if n, ok := parseInt(v); ok {
			s.retryRange = time.Duration(n) * time.Second
		}
	}
	s.limiter = rate.NewLimiter(rate.Limit(s.bufferSendRate), s.bufferSendRate)
	return s.primary.Configure(opts)
}

func (s *BufferStore) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.secondary.Open(); err != nil {
		return &lerrors.StorageError{Operation: "open", Path: "buffer-secondary", Err: err}
	}
	if err := s.primary.Open(); err != nil {
		s.transition(stateDisconnected)
		return nil
	}
	s.transition(stateStreaming)
	return nil
}

func (s *BufferStore) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secondary.IsOpen()
}

func (s *BufferStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	primaryErr := s.primary.Close()
	secondaryErr := s.secondary.Close()
	if primaryErr != nil {
		return primaryErr
	}
	return secondaryErr
}

func (s *BufferStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.secondary.Flush(); err != nil {
		return err
	}
	return s.primary.Flush()
}

func (s *BufferStore) GetStatus() string {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

func (s *BufferStore) setStatus(msg string) {
	s.statusMu.Lock()
	s.status = msg
	s.statusMu.Unlock()
}

func (s *BufferStore) CopyForCategory(category string) (store.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.primary.CopyForCategory(category)
	if err != nil {
		return nil, err
	}
	secRaw, err := s.secondary.CopyForCategory(category)
	if err != nil {
		return nil, err
	}
	sec, ok := secRaw.(readableStore)
	if !ok {
		return nil, fmt.Errorf("bufferstore: secondary copy for category %q is not Readable", category)
	}
	clone := NewBufferStore(p, sec, s.now)
	clone.avgRetry = s.avgRetry
	clone.retryRange = s.retryRange
	clone.maxQueueLength = s.maxQueueLength
	clone.bufferSendRate = s.bufferSendRate
	clone.limiter = rate.NewLimiter(rate.Limit(s.bufferSendRate), s.bufferSendRate)
	return clone, nil
}

func (s *BufferStore) IsMultiCategory() bool { return false }

// newRetryInterval produces a jittered interval in
// [avgRetry - range/2, avgRetry + range/2].
// Uses cenkalti/backoff's ExponentialBackOff with Multiplier=1 (no
// growth) purely for its randomization behavior.
func (s *BufferStore) newRetryInterval() time.Duration {
	avg := s.avgRetry
	if avg <= 0 {
		avg = time.Second
	}
	factor := 0.0
	if avg > 0 && s.retryRange > 0 {
		factor = (float64(s.retryRange) / 2) / float64(avg)
		if factor > 1 {
			factor = 1
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = avg
	bo.MaxInterval = avg
	bo.Multiplier = 1
	bo.RandomizationFactor = factor
	bo.Reset()

	d := bo.NextBackOff()
	lo := avg - s.retryRange/2
	hi := avg + s.retryRange/2
	if d < lo {
		d = lo
	}
	if d > hi {
		d = hi
	}
	return d
}

// transition moves to newState, refreshing retry bookkeeping and the
// status line.
func (s *BufferStore) transition(newState bufferState) {
	s.state = newState
	s.lastOpenAttempt = s.now()
	s.retryInterval = s.newRetryInterval()
	s.setStatus(fmt.Sprintf("%s (retry in %s)", newState, s.retryInterval))
}

// HandleMessages routes the batch according to the current state.
func (s *BufferStore) HandleMessages(ctx context.Context, batch store.MessageBatch) (bool, store.MessageBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastWriteTime = s.now()

	switch s.state {
	case stateStreaming:
		ok, _ := s.primary.HandleMessages(ctx, batch)
		if ok {
			s.setStatus("")
			return true, nil
		}
		s.writeToSecondary(batch)
		s.transition(stateDisconnected)
		return true, nil

	case stateDisconnected, stateSendingBuffer:
		// Incoming writes during SENDING_BUFFER also go to secondary to
		// preserve order relative to what's still being drained.
		s.writeToSecondary(batch)
		return true, nil

	default:
		return false, batch
	}
}

// writeToSecondary commits batch to the secondary queue. If secondary
// itself rejects the write, the excess is absorbed into an in-memory
// overflow ring bounded by max_queue_length; anything past that bound
// is dropped and recorded as an OverflowError rather than blocking
// the caller.
func (s *BufferStore) writeToSecondary(batch store.MessageBatch) {
	ok, residual := s.secondary.HandleMessages(context.Background(), batch)
	if ok {
		return
	}
	s.overflow = append(s.overflow, residual...)
	if excess := len(s.overflow) - s.maxQueueLength; excess > 0 {
		s.overflow = s.overflow[excess:]
		s.setStatus((&lerrors.OverflowError{Dropped: excess}).Error())
	}
}

// PeriodicCheck drives state transitions and the drain algorithm.
func (s *BufferStore) PeriodicCheck(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.drainOverflow()

	switch s.state {
	case stateDisconnected:
		if now.Sub(s.lastOpenAttempt) < s.retryInterval {
			return
		}
		if err := s.primary.Open(); err != nil {
			s.transition(stateDisconnected)
			return
		}
		s.transition(stateSendingBuffer)

	case stateSendingBuffer:
		s.drain(ctx, now)

	case stateStreaming:
		s.primary.PeriodicCheck(ctx)
	}

	s.secondary.PeriodicCheck(ctx)
}

// drain forwards up to bufferSendRate buffer files (one ReadOldest batch
// each) from secondary to primary per tick, oldest first, rate-limited by
// the configured send rate.
func (s *BufferStore) drain(ctx context.Context, now time.Time) {
	nowUnix := now.Unix()

	for i := 0; i < s.bufferSendRate; i++ {
		if !s.limiter.AllowN(now, 1) {
			return
		}
		if s.secondary.Empty(nowUnix) {
			s.transition(stateStreaming)
			return
		}

		batch, err := s.secondary.ReadOldest(nowUnix)
		if err != nil {
			s.transition(stateDisconnected)
			return
		}
		if len(batch) == 0 {
			s.transition(stateStreaming)
			return
		}

		ok, residual := s.primary.HandleMessages(ctx, batch)
		if ok {
			if err := s.secondary.DeleteOldest(nowUnix); err != nil {
				s.transition(stateDisconnected)
				return
			}
			continue
		}

		if len(residual) > 0 {
			if err := s.secondary.ReplaceOldest(residual, nowUnix); err != nil {
				s.transition(stateDisconnected)
				return
			}
		}
		s.transition(stateDisconnected)
		return
	}
}

// drainOverflow is invoked opportunistically to push in-memory overflow
// entries back into the secondary once it's accepting writes again.
func (s *BufferStore) drainOverflow() {
	if len(s.overflow) == 0 {
		return
	}
	ok, residual := s.secondary.HandleMessages(context.Background(), s.overflow)
	if ok {
		s.overflow = nil
		return
	}
	s.overflow = residual
}
