package bus

import (
	"errors"
	"testing"

	"github.com/fluxorio/actionbus/pkg/action"
)

func TestInterceptor_VetoSuppressesDelivery(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	fired := false
	s := d.Subscribe("T", func(a *action.Action) error {
		fired = true
		return nil
	})
	hot := s.Actions()

	d.AddInterceptor(func(a *action.Action, next Next) (*action.Action, error) {
		// Never calls next: full veto.
		return a, nil
	})

	out, err := d.Dispatch(action.New("T", nil))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if out == nil {
		t.Error("vetoed Dispatch() should still return normally")
	}
	if fired {
		t.Error("vetoed action must not reach subscriber callbacks")
	}
	select {
	case a := <-hot:
		t.Errorf("vetoed action emitted on hot stream: %v", a)
	default:
	}
}

func TestInterceptor_FirstRegisteredSeesActionFirst(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	var order []string
	d.AddInterceptor(func(a *action.Action, next Next) (*action.Action, error) {
		order = append(order, "first")
		return next(a)
	})
	d.AddInterceptor(func(a *action.Action, next Next) (*action.Action, error) {
		order = append(order, "second")
		return next(a)
	})
	d.Subscribe("T", func(a *action.Action) error {
		order = append(order, "root")
		return nil
	})

	if _, err := d.Dispatch(action.New("T", nil)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	want := []string{"first", "second", "root"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("chain order = %v, want %v", order, want)
		}
	}
}

func TestInterceptor_TransformReplacesAction(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	d.AddInterceptor(func(a *action.Action, next Next) (*action.Action, error) {
		return next(a.WithPayload("transformed"))
	})

	var seen interface{}
	d.Subscribe("T", func(a *action.Action) error {
		seen = a.Payload()
		return nil
	})

	out, err := d.Dispatch(action.New("T", "original"))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if seen != "transformed" {
		t.Errorf("subscriber saw payload %v, want transformed", seen)
	}
	if out.Payload() != "transformed" {
		t.Errorf("Dispatch() returned payload %v, want transformed", out.Payload())
	}
}

func TestInterceptor_MultipleNextCallsFanThePublish(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	d.AddInterceptor(func(a *action.Action, next Next) (*action.Action, error) {
		if _, err := next(a); err != nil {
			return nil, err
		}
		return next(a)
	})

	fired := 0
	d.Subscribe("T", func(a *action.Action) error {
		fired++
		return nil
	})

	if _, err := d.Dispatch(action.New("T", nil)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if fired != 2 {
		t.Errorf("subscriber fired %d times, want 2", fired)
	}
}

func TestInterceptor_ErrorPropagates(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	veto := errors.New("rejected")
	handle := d.AddInterceptor(func(a *action.Action, next Next) (*action.Action, error) {
		return nil, veto
	})

	if _, err := d.Dispatch(action.New("T", nil)); !errors.Is(err, veto) {
		t.Fatalf("Dispatch() error = %v, want rejected", err)
	}

	// Dispatching flag cleared before the error surfaced.
	d.RemoveInterceptor(handle)
	if _, err := d.Dispatch(action.New("T", nil)); err != nil {
		t.Fatalf("Dispatch() after interceptor error = %v", err)
	}
}

func TestRemoveInterceptor(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	calls := 0
	handle := d.AddInterceptor(func(a *action.Action, next Next) (*action.Action, error) {
		calls++
		return next(a)
	})
	if d.InterceptorCount() != 1 {
		t.Fatalf("InterceptorCount() = %d, want 1", d.InterceptorCount())
	}

	if _, err := d.Dispatch(action.New("T", nil)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("interceptor calls = %d, want 1", calls)
	}

	if !d.RemoveInterceptor(handle) {
		t.Fatal("RemoveInterceptor() = false, want true")
	}
	if d.RemoveInterceptor(handle) {
		t.Error("RemoveInterceptor() of removed handle = true, want false")
	}

	if _, err := d.Dispatch(action.New("T", nil)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("removed interceptor still ran, calls = %d", calls)
	}
}

func TestInterceptor_ChangeDuringDispatchDoesNotJoinIt(t *testing.T) {
	d := newTestDispatcher()
	defer d.Close()

	lateCalls := 0
	d.Subscribe("T", func(a *action.Action) error {
		// The chain for this dispatch was captured before the callback ran;
		// an interceptor added now must only apply to later dispatches.
		d.AddInterceptor(func(a *action.Action, next Next) (*action.Action, error) {
			lateCalls++
			return next(a)
		})
		return nil
	})

	if _, err := d.Dispatch(action.New("T", nil)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if lateCalls != 0 {
		t.Errorf("interceptor added mid-dispatch ran %d times in that dispatch", lateCalls)
	}

	if _, err := d.Dispatch(action.New("T", nil)); err != nil {
		t.Fatalf("second Dispatch() error = %v", err)
	}
	if lateCalls == 0 {
		t.Error("interceptor added during first dispatch must apply to the second")
	}
}
