// Package messaging defines a small generic queue abstraction used to stream
// job outcomes out of the dispatch layer.
package messaging

import (
	"context"
	"errors"
)

// ErrClosed is returned when publishing to or consuming from a closed queue
var ErrClosed = errors.New("messaging: queue closed")

// ErrSettled is returned when a message is acknowledged twice
var ErrSettled = errors.New("messaging: message already settled")

// Queue publishes and consumes payloads of type T
type Queue[T any] interface {
	Publish(ctx context.Context, t *T) error

	// Consume blocks until a message is available or ctx is done
	Consume(ctx context.Context) (Message[T], error)
}

// Message is a consumed payload awaiting settlement
type Message[T any] interface {
	T() *T

	// Ack settles the message as processed
	Ack() error

	// Nack settles the message as failed; it may be redelivered
	Nack(err error) error
}
