// Package concurrency hides channel plumbing behind a message-passing API.
package concurrency

import (
	"context"
	"errors"
)

var (
	// ErrMailboxClosed is returned when sending to or receiving from a closed mailbox.
	ErrMailboxClosed = errors.New("mailbox is closed")

	// ErrMailboxFull is returned when a non-blocking send hits a full mailbox.
	ErrMailboxFull = errors.New("mailbox is full")
)

// Mailbox is a bounded, closeable message queue.
// Send never blocks; a full mailbox is reported as backpressure.
type Mailbox[T any] interface {
	// Send enqueues msg. Returns ErrMailboxFull when the mailbox is at
	// capacity and ErrMailboxClosed after Close.
	Send(msg T) error

	// Receive dequeues the next message, blocking until one is available,
	// the mailbox is closed, or ctx is cancelled.
	Receive(ctx context.Context) (T, error)

	// TryReceive dequeues without blocking. The bool reports whether a
	// message was available.
	TryReceive() (T, bool, error)

	// Chan exposes the underlying receive channel. It is closed when the
	// mailbox is closed and drained, so range loops terminate normally.
	Chan() <-chan T

	// Close closes the mailbox. Idempotent.
	Close()

	// Capacity returns the maximum number of buffered messages.
	Capacity() int

	// Size returns the current number of buffered messages.
	Size() int

	// IsClosed reports whether Close has been called.
	IsClosed() bool
}
