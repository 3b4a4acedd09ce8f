package bus

import (
	"errors"
	"testing"

	"github.com/fluxorio/actionbus/pkg/action"
	"github.com/fluxorio/actionbus/pkg/logging"
)

func newTestDispatcher() *Dispatcher {
	return New(Options{Logger: logging.Nop()})
}

func TestDispatch_PriorityOrder(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	var order []string
	d.Subscribe("T", func(a *action.Action) error {
		order = append(order, "p200")
		return nil
	}, WithPriority(200))
	d.Subscribe("T", func(a *action.Action) error {
		order = append(order, "p50")
		return nil
	}, WithPriority(50))
	d.Subscribe("T", func(a *action.Action) error {
		order = append(order, "p100")
		return nil
	}, WithPriority(100))

	if _, err := d.Dispatch(action.New("T", nil, action.WithTags("T"))); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	want := []string{"p50", "p100", "p200"}
	if len(order) != len(want) {
		t.Fatalf("callback order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("callback order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestDispatch_TieBreakByRegistrationOrder(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		d.Subscribe("T", func(a *action.Action) error {
			order = append(order, i)
			return nil
		}, WithPriority(50))
	}

	if _, err := d.Dispatch(action.New("T", nil)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	for i, got := range order {
		if got != i {
			t.Fatalf("tie-break order = %v, want ascending registration order", order)
		}
	}
}

func TestDispatch_AbsentTagSkipped(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	fired := 0
	d.Subscribe("B", func(a *action.Action) error {
		fired++
		return nil
	})

	// Tag A has no subscribers; it must be skipped, not an error.
	a := action.New("X", nil, action.WithTags("A", "B"))
	if _, err := d.Dispatch(a); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if fired != 1 {
		t.Errorf("subscriber on B fired %d times, want 1", fired)
	}
}

func TestDispatch_TagOrderVisitsEachSetFully(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	var order []string
	d.Subscribe("B", func(a *action.Action) error {
		order = append(order, "B1")
		return nil
	}, WithPriority(1))
	d.Subscribe("A", func(a *action.Action) error {
		order = append(order, "A1")
		return nil
	}, WithPriority(1))
	d.Subscribe("A", func(a *action.Action) error {
		order = append(order, "A2")
		return nil
	}, WithPriority(2))

	if _, err := d.Dispatch(action.New("X", nil, action.WithTags("A", "B"))); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	want := []string{"A1", "A2", "B1"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("delivery order = %v, want %v", order, want)
		}
	}
}

func TestDispatch_ExampleScenario(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	var order []string
	d.Subscribe("T", func(a *action.Action) error {
		order = append(order, "S1")
		return nil
	}, WithPriority(50))
	d.Subscribe("T", func(a *action.Action) error {
		order = append(order, "S2")
		return nil
	}, WithPriority(100))

	x := action.New("X", "payload", action.WithTags(action.Any, "T"))
	out, err := d.Dispatch(x)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if out != x {
		t.Error("Dispatch() with no interceptors should return the action unmodified")
	}
	if len(order) != 2 || order[0] != "S1" || order[1] != "S2" {
		t.Errorf("callback order = %v, want [S1 S2]", order)
	}
}

func TestDispatch_ReentrantFailsFatallyAndRecovers(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	var nested interface{}
	d.Subscribe("T", func(a *action.Action) error {
		func() {
			defer func() { nested = recover() }()
			d.Dispatch(action.New("T", nil))
		}()
		return nil
	})

	if _, err := d.Dispatch(action.New("T", nil)); err != nil {
		t.Fatalf("outer Dispatch() error = %v", err)
	}

	if nested == nil {
		t.Fatal("nested Dispatch() should panic")
	}
	err, ok := nested.(error)
	if !ok || !errors.Is(err, ErrReentrantDispatch) {
		t.Fatalf("nested panic = %v, want ErrReentrantDispatch", nested)
	}

	// The dispatcher must be Idle again: a subsequent top-level dispatch works.
	fired := false
	d.Subscribe("U", func(a *action.Action) error {
		fired = true
		return nil
	})
	if _, err := d.Dispatch(action.New("U", nil)); err != nil {
		t.Fatalf("subsequent Dispatch() error = %v", err)
	}
	if !fired {
		t.Error("subsequent dispatch did not reach its subscriber")
	}
}

func TestDispatch_WrongGoroutineFailsFatally(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	got := make(chan interface{}, 1)
	go func() {
		defer func() { got <- recover() }()
		d.Dispatch(action.New("T", nil))
	}()

	r := <-got
	if r == nil {
		t.Fatal("Dispatch() from another goroutine should panic")
	}
	if err, ok := r.(error); !ok || !errors.Is(err, ErrWrongGoroutine) {
		t.Fatalf("panic = %v, want ErrWrongGoroutine", r)
	}
}

func TestDispatch_OwnerCheckDisabled(t *testing.T) {
	d := New(Options{DisableOwnerCheck: true, Logger: logging.Nop()})
	defer d.Close()

	fired := make(chan struct{})
	d.Subscribe("T", func(a *action.Action) error {
		close(fired)
		return nil
	})

	errc := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(action.New("T", nil))
		errc <- err
	}()

	if err := <-errc; err != nil {
		t.Fatalf("Dispatch() with owner check disabled error = %v", err)
	}
	<-fired
}

func TestDispatch_CallbackErrorAbortsFanOut(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	boom := errors.New("boom")
	laterFired := false
	d.Subscribe("T", func(a *action.Action) error {
		return boom
	}, WithPriority(1))
	d.Subscribe("T", func(a *action.Action) error {
		laterFired = true
		return nil
	}, WithPriority(2))

	if _, err := d.Dispatch(action.New("T", nil)); !errors.Is(err, boom) {
		t.Fatalf("Dispatch() error = %v, want boom", err)
	}
	if laterFired {
		t.Error("subscriber after the failing one must not be invoked")
	}

	// Guaranteed release: the dispatcher is Idle again.
	if _, err := d.Dispatch(action.New("U", nil)); err != nil {
		t.Fatalf("Dispatch() after failure error = %v", err)
	}
}

func TestDispatch_DuplicateRegistrationsBothFire(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	fired := 0
	cb := func(a *action.Action) error {
		fired++
		return nil
	}
	d.Subscribe("T", cb)
	d.Subscribe("T", cb)

	if _, err := d.Dispatch(action.New("T", nil)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if fired != 2 {
		t.Errorf("duplicate registrations fired %d times, want 2", fired)
	}
}

func TestDispatch_SubscribeFromCallbackMissesInFlightAction(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	lateFired := 0
	d.Subscribe("T", func(a *action.Action) error {
		d.Subscribe("T", func(a *action.Action) error {
			lateFired++
			return nil
		})
		return nil
	})

	if _, err := d.Dispatch(action.New("T", nil)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if lateFired != 0 {
		t.Error("subscription added mid-fanout must not receive the in-flight action")
	}

	if _, err := d.Dispatch(action.New("T", nil)); err != nil {
		t.Fatalf("second Dispatch() error = %v", err)
	}
	if lateFired != 1 {
		t.Errorf("late subscriber fired %d times on the next dispatch, want 1", lateFired)
	}
}

func TestDispatch_SubscribeToLaterTagFromCallbackMissesInFlightAction(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	// The callback on tag A registers on tag B, which the in-flight action
	// also carries and which the fan-out has not reached yet. The new entry
	// must still miss this action: all tag sets are fixed before delivery.
	lateFired := 0
	d.Subscribe("A", func(a *action.Action) error {
		d.Subscribe("B", func(a *action.Action) error {
			lateFired++
			return nil
		})
		return nil
	})

	if _, err := d.Dispatch(action.New("X", nil, action.WithTags("A", "B"))); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if lateFired != 0 {
		t.Error("subscription added mid-fanout received the in-flight action")
	}

	if _, err := d.Dispatch(action.New("X", nil, action.WithTags("A", "B"))); err != nil {
		t.Fatalf("second Dispatch() error = %v", err)
	}
	if lateFired != 1 {
		t.Errorf("late subscriber fired %d times on the next dispatch, want 1", lateFired)
	}
}

func TestSubscriptionCount(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	s1 := d.Subscribe("A", func(a *action.Action) error { return nil })
	s2 := d.Subscribe("B", func(a *action.Action) error { return nil })
	if got := d.SubscriptionCount(); got != 2 {
		t.Errorf("SubscriptionCount() = %d, want 2", got)
	}

	s1.Dispose()
	if got := d.SubscriptionCount(); got != 1 {
		t.Errorf("SubscriptionCount() after dispose = %d, want 1", got)
	}
	s2.Dispose()
	if got := d.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount() after both disposed = %d, want 0", got)
	}
}

func TestClose_DisposesSubscriptionsAndRejectsWork(t *testing.T) {
	d := newTestDispatcher()

	s := d.Subscribe("T", func(a *action.Action) error { return nil })
	flow := s.Flow()

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !s.Disposed() {
		t.Error("Close() must dispose live subscriptions")
	}
	if _, ok := <-flow; ok {
		t.Error("flow stream must be completed on Close()")
	}

	if _, err := d.Dispatch(action.New("T", nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("Dispatch() after Close() error = %v, want ErrClosed", err)
	}
	if err := d.DispatchAsync(action.New("T", nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("DispatchAsync() after Close() error = %v, want ErrClosed", err)
	}

	// Idempotent.
	if err := d.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
