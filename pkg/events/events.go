// Package events provides a small publisher abstraction used to relay
// asynchronous happenings (task logs, state changes, transfer progress) from
// the components that produce them to whoever cares.
package events

import "context"

// Publisher accepts events of some type as they occur.
type Publisher[T any] interface {
	Publish(context.Context, T) error
}

// FuncPublisher adapts a plain func to the Publisher interface.
type FuncPublisher[T any] func(context.Context, T) error

// Publish implements Publisher.
func (f FuncPublisher[T]) Publish(ctx context.Context, e T) error {
	return f(ctx, e)
}

// NilPublisher discards all events without error. Useful in tests.
type NilPublisher[T any] struct{}

// Publish implements Publisher.
func (p NilPublisher[T]) Publish(ctx context.Context, e T) error {
	return nil
}

// ChannelPublisher adapts a channel to the Publisher interface. Publishing
// blocks when the channel is full, until the context is canceled.
func ChannelPublisher[T any](events chan<- T) FuncPublisher[T] {
	return func(ctx context.Context, e T) error {
		select {
		case events <- e:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
