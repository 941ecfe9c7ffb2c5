// Package api defines public API contracts for plugin-signal.
package api

import (
	"context"
	"time"
)

// Signal broadcasts the latest value of T to every subscriber. It is not a queue:
// values sent while a subscriber is not receiving collapse to the most recent one.
type Signal[T any] interface {
	// Send stores value as the latest value and releases every current subscriber.
	Send(value T) error
	// Subscribe registers a new subscriber. Values sent before Subscribe returns
	// are not delivered to it.
	Subscribe() (Subscription[T], error)
	// Latest returns the current value without consuming anything.
	Latest() T
	// Close releases every resource held by the signal. Closing twice is a no-op.
	Close() error
}

// Subscription is one subscriber's private view of a Signal.
type Subscription[T any] interface {
	// Receive blocks until a Send releases this subscriber, then returns the
	// current value. When ctx is done it returns the current value and ctx.Err().
	Receive(ctx context.Context) (T, error)
	// ReceiveTimeout is Receive bounded by timeout. On expiry it returns the
	// current value together with a timeout error.
	ReceiveTimeout(timeout time.Duration) (T, error)
	// Close unregisters the subscriber.
	Close() error
}

// Buffer stores one serialized value where other processes can read it.
type Buffer[T any] interface {
	SetBuffer(ctx context.Context, value T, seq uint64) error
	GetBuffer(ctx context.Context) (T, uint64, error)
}

// Serializer converts values of T to bytes and back.
type Serializer[T any] interface {
	Serialize(value T) ([]byte, error)
	Deserialize(data []byte) (T, error)
}
