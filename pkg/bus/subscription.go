package bus

import (
	"sync"
	"sync/atomic"

	"github.com/fluxorio/actionbus/pkg/action"
	"github.com/fluxorio/actionbus/pkg/concurrency"
)

// Callback handles one matched action. A non-nil error aborts the remaining
// fan-out of the dispatch that invoked it.
type Callback func(a *action.Action) error

// DefaultPriority is used when a subscriber does not specify one.
const DefaultPriority = 100

// Subscription is a live registration binding one classifier tag and one
// priority to a callback. The caller holds the handle; the registry entry
// itself belongs to the dispatcher and Dispose is the only way to remove it.
//
// Besides the callback, a subscription can expose matched actions as two
// independent lazy streams: a hot channel that drops emissions its consumer
// is not ready for, and a bounded back-pressure stream that drops its oldest
// buffered action to admit the newest. Both complete (close) on Dispose.
type Subscription struct {
	id       uint64
	tag      action.Tag
	priority int
	callback Callback
	d        *Dispatcher

	disposed atomic.Bool

	streamMu sync.Mutex
	hot      chan *action.Action
	flow     concurrency.Mailbox[*action.Action]
}

// ID returns the registration id, unique per dispatcher and monotonically
// increasing. It is the tie-break within one priority.
func (s *Subscription) ID() uint64 { return s.id }

// Tag returns the classifier tag this subscription matches.
func (s *Subscription) Tag() action.Tag { return s.tag }

// Priority returns the dispatch priority; lower values fire first.
func (s *Subscription) Priority() int { return s.priority }

// Disposed reports whether Dispose has completed.
func (s *Subscription) Disposed() bool { return s.disposed.Load() }

// Actions returns the hot stream, creating it on first call. Emission is
// non-blocking: a consumer that is not receiving at delivery time loses that
// action. The channel closes when the subscription is disposed.
func (s *Subscription) Actions() <-chan *action.Action {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.hot == nil {
		s.hot = make(chan *action.Action)
		if s.disposed.Load() {
			close(s.hot)
		}
	}
	return s.hot
}

// Flow returns the back-pressure stream, creating it on first call. The
// stream buffers up to the dispatcher's flow capacity; when full, the oldest
// buffered action is dropped to admit the newest. The channel closes when the
// subscription is disposed.
func (s *Subscription) Flow() <-chan *action.Action {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.flow == nil {
		s.flow = concurrency.NewBoundedMailbox[*action.Action](s.d.flowCapacity)
		if s.disposed.Load() {
			s.flow.Close()
		}
	}
	return s.flow.Chan()
}

// Dispose removes the subscription from the registry and completes any
// created streams. Idempotent: a second call logs a diagnostic and no-ops.
//
// The disposed flag is set before the registry lock is taken, so a Dispose
// racing an in-flight fan-out on another goroutine can cause that fan-out to
// drop the delivery with the disposed-subscription warning. That drop is the
// race resolving, not an upstream disposal bug.
func (s *Subscription) Dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		s.d.logger.Warnf("bus: subscription %d (tag %q) disposed twice", s.id, s.tag)
		return
	}

	s.d.remove(s)

	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.hot != nil {
		close(s.hot)
	}
	if s.flow != nil {
		s.flow.Close()
	}
}

// deliver invokes the callback and pushes the action onto any created
// streams, callback first. Called by the root link with the dispatcher lock
// held. A delivery reaching an already-disposed subscription indicates a
// disposal bug upstream; it is logged and dropped, never raised.
func (s *Subscription) deliver(a *action.Action) error {
	if s.disposed.Load() {
		s.d.logger.Warnf("bus: dropping action %q for disposed subscription %d (tag %q)", a.Type(), s.id, s.tag)
		s.d.stats.dropped.Add(1)
		return nil
	}

	if err := s.callback(a); err != nil {
		return err
	}
	// The callback may have disposed its own subscription; the streams are
	// closed then and must not be pushed.
	if !s.disposed.Load() {
		s.pushStreams(a)
	}
	s.d.stats.delivered.Add(1)
	return nil
}

func (s *Subscription) pushStreams(a *action.Action) {
	s.streamMu.Lock()
	hot, flow := s.hot, s.flow
	s.streamMu.Unlock()

	if hot != nil {
		select {
		case hot <- a:
		default:
			// Hot semantics: nobody listening right now, the emission is lost.
		}
	}
	if flow != nil {
		if err := flow.Send(a); err == concurrency.ErrMailboxFull {
			// Drop the oldest buffered action to admit the newest.
			flow.TryReceive()
			if err := flow.Send(a); err != nil {
				s.d.logger.Warnf("bus: flow stream for subscription %d rejected action %q: %v", s.id, a.Type(), err)
			}
		}
	}
}
