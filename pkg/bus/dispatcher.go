// Package bus implements an in-process action dispatch bus: one synchronous
// broadcaster delivering typed actions to subscribers in deterministic
// (priority, registration id) order, each action passing through an
// interceptor chain before fan-out.
//
// Exactly one goroutine, the owner bound at construction, may publish
// synchronously. Registry mutation is safe from any goroutine and is
// serialized with fan-out by a single instance lock, which is also what makes
// reentrant dispatch detectable and fatal rather than silently deadlocking.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fluxorio/actionbus/pkg/action"
	"github.com/fluxorio/actionbus/pkg/failfast"
	"github.com/fluxorio/actionbus/pkg/logging"
)

// Options configures a Dispatcher at construction.
type Options struct {
	// DisableOwnerCheck turns off owner-goroutine verification for
	// synchronous Dispatch calls. The reentrancy guard stays active.
	DisableOwnerCheck bool `yaml:"disable_owner_check" json:"disable_owner_check"`

	// QueueSize bounds the async dispatch queue. Default 1024.
	QueueSize int `yaml:"queue_size" json:"queue_size"`

	// FlowCapacity bounds each subscription's back-pressure stream. Default 64.
	FlowCapacity int `yaml:"flow_capacity" json:"flow_capacity"`

	// Logger receives warning and error diagnostics. Default: stdlib logger.
	Logger logging.Logger `yaml:"-" json:"-"`
}

// Stats is a point-in-time snapshot of dispatch counters. Diagnostic only;
// counters are read without a lock and may be momentarily inconsistent.
type Stats struct {
	Dispatched uint64 // completed Dispatch calls
	Delivered  uint64 // successful subscription deliveries
	Dropped    uint64 // deliveries dropped because the subscription was disposed
	Failed     uint64 // Dispatch calls aborted by a callback or interceptor error
}

type statCounters struct {
	dispatched atomic.Uint64
	delivered  atomic.Uint64
	dropped    atomic.Uint64
	failed     atomic.Uint64
}

// Dispatcher is the bus façade: it owns the subscription registry and the
// interceptor chain, and exposes the publish and subscribe operations.
// Construct exactly one per process and share it by reference.
type Dispatcher struct {
	mu  sync.Mutex // instance lock: registry mutation and full fan-out
	reg *registry

	chain *chain

	nextSubID   atomic.Uint64
	subCount    atomic.Int64
	dispatching atomic.Bool
	dispatchGID atomic.Int64 // goroutine currently fanning out, 0 when idle

	owner      atomic.Int64 // owner goroutine id
	checkOwner bool

	queue  chan func()
	done   chan struct{}
	closed atomic.Bool

	flowCapacity int
	logger       logging.Logger
	stats        statCounters
}

// New creates a dispatcher owned by the calling goroutine.
func New(opts Options) *Dispatcher {
	if opts.QueueSize < 1 {
		opts.QueueSize = 1024
	}
	if opts.FlowCapacity < 1 {
		opts.FlowCapacity = 64
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewStdLogger()
	}

	d := &Dispatcher{
		reg:          newRegistry(),
		checkOwner:   !opts.DisableOwnerCheck,
		queue:        make(chan func(), opts.QueueSize),
		done:         make(chan struct{}),
		flowCapacity: opts.FlowCapacity,
		logger:       opts.Logger,
	}
	d.owner.Store(goroutineID())
	d.chain = newChain(d.fanOut)
	return d
}

// NewDefault creates a dispatcher with default options.
func NewDefault() *Dispatcher {
	return New(Options{})
}

// SubscribeOption configures a registration.
type SubscribeOption func(s *Subscription)

// WithPriority sets the dispatch priority; lower values fire first.
func WithPriority(priority int) SubscribeOption {
	return func(s *Subscription) {
		s.priority = priority
	}
}

// Subscribe registers callback against one classifier tag and returns the
// live handle. Registration always succeeds; duplicate registrations are
// independent entries and both fire. Safe from any goroutine, including a
// callback running inside an in-progress fan-out (the new entry will not see
// the action currently in flight).
func (d *Dispatcher) Subscribe(tag action.Tag, callback Callback, opts ...SubscribeOption) *Subscription {
	failfast.If(tag != "", "subscribe: tag must be non-empty")
	failfast.NotNil(callback, "callback")
	failfast.If(!d.closed.Load(), "subscribe on closed dispatcher")

	s := &Subscription{
		id:       d.nextSubID.Add(1),
		tag:      tag,
		priority: DefaultPriority,
		callback: callback,
		d:        d,
	}
	for _, opt := range opts {
		opt(s)
	}

	unlock := d.lockRegistry()
	d.reg.insert(s)
	unlock()
	d.subCount.Add(1)
	return s
}

// Dispatch synchronously delivers a to every subscription whose tag appears
// in a's tag list, in ascending (priority, id) order per tag, tags visited in
// declared order. It returns the action as (possibly) transformed by the
// interceptor chain, or the first callback/interceptor error; an error aborts
// delivery to the remaining subscribers with no retry and no isolation.
//
// Fails fast (panics with a typed *Error) when called reentrantly, or from a
// non-owner goroutine while owner verification is enabled. The dispatching
// flag is restored before any failure surfaces, so the dispatcher is Idle
// again for the next top-level call.
func (d *Dispatcher) Dispatch(a *action.Action) (*action.Action, error) {
	failfast.NotNil(a, "action")
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if d.checkOwner && goroutineID() != d.owner.Load() {
		failfast.Err(ErrWrongGoroutine)
	}

	if !d.dispatching.CompareAndSwap(false, true) {
		failfast.Err(ErrReentrantDispatch)
	}
	d.dispatchGID.Store(goroutineID())
	defer func() {
		d.dispatchGID.Store(0)
		d.dispatching.Store(false)
	}()

	// Capture the chain before entering the critical section: interceptor
	// changes made while we run must not retroactively join this dispatch.
	head := d.chain.head()

	d.mu.Lock()
	defer d.mu.Unlock()

	out, err := head(a)
	if err != nil {
		d.stats.failed.Add(1)
		return nil, err
	}
	d.stats.dispatched.Add(1)
	return out, nil
}

// DispatchAsync schedules delivery on the owner goroutine and returns
// immediately. Deliveries from the same origin run FIFO as scheduled.
// Requires Run to be draining the queue; returns ErrBackpressure when the
// queue is full and ErrClosed after Close.
func (d *Dispatcher) DispatchAsync(a *action.Action) error {
	failfast.NotNil(a, "action")
	if d.closed.Load() {
		return ErrClosed
	}
	select {
	case d.queue <- func() {
		if _, err := d.Dispatch(a); err != nil {
			d.logger.Errorf("bus: async dispatch of %q failed: %v", a.Type(), err)
		}
	}:
		return nil
	default:
		return ErrBackpressure
	}
}

// DispatchSync schedules delivery on the owner goroutine and blocks the
// calling goroutine until that delivery, including all subscriber callbacks,
// completes. A full queue blocks the enqueue as well, until space opens, ctx
// is cancelled, or the dispatcher closes. Fails fast when called from the
// owner goroutine itself: the owner would be waiting on its own loop.
func (d *Dispatcher) DispatchSync(ctx context.Context, a *action.Action) (*action.Action, error) {
	failfast.NotNil(a, "action")
	if goroutineID() == d.owner.Load() {
		failfast.Err(ErrSyncFromOwner)
	}
	if d.closed.Load() {
		return nil, ErrClosed
	}

	type result struct {
		a   *action.Action
		err error
	}
	done := make(chan result, 1)

	select {
	case d.queue <- func() {
		out, err := d.Dispatch(a)
		done <- result{a: out, err: err}
	}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.done:
		return nil, ErrClosed
	}

	select {
	case r := <-done:
		return r.a, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.done:
		return nil, ErrClosed
	}
}

// Run drains the async dispatch queue on the calling goroutine until ctx is
// cancelled or the dispatcher is closed. With owner verification enabled it
// must be called on the owner goroutine; with verification disabled the
// calling goroutine becomes the owner.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.checkOwner {
		failfast.If(goroutineID() == d.owner.Load(), "Run must be called on the owner goroutine")
	} else {
		d.owner.Store(goroutineID())
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.done:
			return nil
		case fn := <-d.queue:
			fn()
		}
	}
}

// AddInterceptor appends fn to the interceptor chain and rebuilds the
// composition. The returned handle removes it again. A dispatch already in
// flight keeps the chain it captured.
func (d *Dispatcher) AddInterceptor(fn Interceptor) uint64 {
	failfast.NotNil(fn, "interceptor")
	return d.chain.add(fn)
}

// RemoveInterceptor removes the interceptor registered under handle and
// rebuilds the composition. Returns false for an unknown handle.
func (d *Dispatcher) RemoveInterceptor(handle uint64) bool {
	return d.chain.remove(handle)
}

// InterceptorCount returns the number of registered interceptors.
func (d *Dispatcher) InterceptorCount() int {
	return d.chain.size()
}

// SubscriptionCount returns the number of live subscriptions across all
// tags. Diagnostic only.
func (d *Dispatcher) SubscriptionCount() int {
	return int(d.subCount.Load())
}

// Stats returns a snapshot of the dispatch counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched: d.stats.dispatched.Load(),
		Delivered:  d.stats.delivered.Load(),
		Dropped:    d.stats.dropped.Load(),
		Failed:     d.stats.failed.Load(),
	}
}

// Close disposes every live subscription (completing their streams), stops
// the owner loop, and rejects further work. Idempotent.
func (d *Dispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.mu.Lock()
	subs := d.reg.all()
	d.mu.Unlock()

	for _, s := range subs {
		s.Dispose()
	}
	close(d.done)
	return nil
}

// fanOut is the root link of the interceptor chain: for each tag on the
// action, in declared order, deliver to that tag's subscriptions in
// (priority, id) order. Absent tags are skipped. Runs with d.mu held.
//
// Every tag's set is snapshotted before the first callback runs, so a
// subscription added from inside a callback cannot receive the action
// currently in flight, whichever of the action's tags it registered on.
func (d *Dispatcher) fanOut(a *action.Action) (*action.Action, error) {
	tags := a.Tags()
	sets := make([][]*Subscription, len(tags))
	for i, tag := range tags {
		sets[i] = d.reg.snapshot(tag)
	}
	for _, subs := range sets {
		for _, s := range subs {
			if err := s.deliver(a); err != nil {
				return nil, err
			}
		}
	}
	return a, nil
}

// lockRegistry acquires the instance lock, unless the caller is the
// goroutine currently running this dispatcher's fan-out. The lock is held
// upstack there, and sync.Mutex is not reentrant. Returns the release func.
func (d *Dispatcher) lockRegistry() func() {
	if gid := d.dispatchGID.Load(); gid != 0 && gid == goroutineID() {
		return func() {}
	}
	d.mu.Lock()
	return d.mu.Unlock
}

// remove deregisters s, logging when the entry was already gone (a
// double-dispose bug upstream, not a fatal condition).
func (d *Dispatcher) remove(s *Subscription) {
	unlock := d.lockRegistry()
	defer unlock()
	if !d.reg.remove(s) {
		d.logger.Warnf("bus: subscription %d (tag %q) was not registered; possible double dispose", s.id, s.tag)
		return
	}
	d.subCount.Add(-1)
}
