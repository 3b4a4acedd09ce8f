package bus

// Error is a typed bus error. Protocol violations are surfaced as fail-fast
// panics wrapping one of the sentinel values below, so recovered callers can
// still match them with errors.Is.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrReentrantDispatch: Dispatch was called while this dispatcher was
	// already mid-dispatch. The reentrancy guard is per-instance, not
	// per-goroutine.
	ErrReentrantDispatch = &Error{Code: "REENTRANT_DISPATCH", Message: "dispatch called while a dispatch is already in progress"}

	// ErrWrongGoroutine: a synchronous Dispatch came from a goroutine other
	// than the owner while owner verification was enabled.
	ErrWrongGoroutine = &Error{Code: "WRONG_GOROUTINE", Message: "dispatch called off the owner goroutine"}

	// ErrSyncFromOwner: DispatchSync was called on the owner goroutine, which
	// would deadlock against the owner loop.
	ErrSyncFromOwner = &Error{Code: "SYNC_FROM_OWNER", Message: "DispatchSync called from the owner goroutine"}

	// ErrBackpressure: the async dispatch queue is full.
	ErrBackpressure = &Error{Code: "BACKPRESSURE", Message: "async dispatch queue is full"}

	// ErrClosed: the dispatcher has been closed.
	ErrClosed = &Error{Code: "CLOSED", Message: "dispatcher is closed"}
)
