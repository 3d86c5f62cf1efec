// Package memory provides an in-process messaging.Queue with bounded
// redelivery and a dead letter list.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/cascade/internal/clock"
	"github.com/viant/cascade/internal/idgen"
	"github.com/viant/cascade/service/messaging"
)

// Config represents memory queue configuration
type Config struct {
	// Buffer is the channel capacity; Publish blocks when full
	Buffer int `json:"buffer,omitempty" yaml:"buffer,omitempty"`

	// MaxRedeliveries bounds Nack redeliveries of a single message
	MaxRedeliveries int `json:"maxRedeliveries,omitempty" yaml:"maxRedeliveries,omitempty"`

	// RedeliveryDelay is the pause before a nacked message is redelivered
	RedeliveryDelay time.Duration `json:"redeliveryDelay,omitempty" yaml:"redeliveryDelay,omitempty"`

	// DeadLetter keeps messages that exhausted their redeliveries
	DeadLetter bool `json:"deadLetter,omitempty" yaml:"deadLetter,omitempty"`
}

// DefaultConfig returns default memory queue configuration
func DefaultConfig() Config {
	return Config{
		Buffer:          256,
		MaxRedeliveries: 3,
		RedeliveryDelay: 50 * time.Millisecond,
		DeadLetter:      true,
	}
}

// Envelope wraps a payload with delivery bookkeeping
type Envelope[T any] struct {
	ID          string
	Deliveries  int
	PublishedAt time.Time
	LastError   error

	payload T
	queue   *Queue[T]
	once    sync.Once
}

// T returns the payload
func (e *Envelope[T]) T() *T {
	return &e.payload
}

// Ack settles the envelope
func (e *Envelope[T]) Ack() error {
	return e.settle(nil, false)
}

// Nack settles the envelope as failed and schedules a redelivery while the
// redelivery budget lasts; afterwards the envelope goes to the dead letters.
func (e *Envelope[T]) Nack(err error) error {
	return e.settle(err, true)
}

func (e *Envelope[T]) settle(cause error, failed bool) error {
	settled := false
	e.once.Do(func() { settled = true })
	if !settled {
		return fmt.Errorf("%w: %v", messaging.ErrSettled, e.ID)
	}
	if !failed {
		return nil
	}
	e.LastError = cause
	if e.Deliveries <= e.queue.config.MaxRedeliveries {
		next := &Envelope[T]{ID: e.ID, Deliveries: e.Deliveries, PublishedAt: e.PublishedAt, LastError: cause, payload: e.payload, queue: e.queue}
		e.queue.redeliver(next)
		return nil
	}
	e.queue.bury(e)
	return nil
}

// Queue is a channel backed messaging.Queue
type Queue[T any] struct {
	config   Config
	ch       chan *Envelope[T]
	mu       sync.RWMutex
	closed   bool
	pending  sync.WaitGroup
	deadMu   sync.Mutex
	dead     []*Envelope[T]
	closeCh  chan struct{}
	closeOne sync.Once
}

// New creates a memory queue
func New[T any](config Config) *Queue[T] {
	if config.Buffer <= 0 {
		config.Buffer = DefaultConfig().Buffer
	}
	return &Queue[T]{
		config:  config,
		ch:      make(chan *Envelope[T], config.Buffer),
		closeCh: make(chan struct{}),
	}
}

// Publish enqueues a copy of t
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if t == nil {
		return fmt.Errorf("messaging: nil payload")
	}
	envelope := &Envelope[T]{ID: idgen.New(), PublishedAt: clock.Now(), payload: *t, queue: q}
	return q.push(ctx, envelope)
}

func (q *Queue[T]) push(ctx context.Context, envelope *Envelope[T]) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return messaging.ErrClosed
	}
	select {
	case q.ch <- envelope:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeCh:
		return messaging.ErrClosed
	}
}

// Consume returns the next envelope
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case envelope := <-q.ch:
		envelope.Deliveries++
		return envelope, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.closeCh:
		select {
		case envelope := <-q.ch:
			envelope.Deliveries++
			return envelope, nil
		default:
			return nil, messaging.ErrClosed
		}
	}
}

func (q *Queue[T]) redeliver(envelope *Envelope[T]) {
	q.pending.Add(1)
	time.AfterFunc(q.config.RedeliveryDelay, func() {
		defer q.pending.Done()
		if err := q.push(context.Background(), envelope); err != nil {
			q.bury(envelope)
		}
	})
}

func (q *Queue[T]) bury(envelope *Envelope[T]) {
	if !q.config.DeadLetter {
		return
	}
	q.deadMu.Lock()
	q.dead = append(q.dead, envelope)
	q.deadMu.Unlock()
}

// Len returns number of buffered envelopes
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// DeadLetters returns envelopes that exhausted their redeliveries
func (q *Queue[T]) DeadLetters() []*Envelope[T] {
	q.deadMu.Lock()
	defer q.deadMu.Unlock()
	return append([]*Envelope[T](nil), q.dead...)
}

// Close stops accepting messages; buffered envelopes stay consumable.
func (q *Queue[T]) Close() error {
	q.closeOne.Do(func() {
		close(q.closeCh)
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
	})
	q.pending.Wait()
	return nil
}

var _ messaging.Queue[int] = (*Queue[int])(nil)
