package messenger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrTimeout is returned by Await when the bound elapses first.
	ErrTimeout = errors.New("messenger: timed out waiting for platform")
	// ErrLoopStopped is returned when the loop is not accepting jobs.
	ErrLoopStopped = errors.New("messenger: loop stopped")
	// ErrAlreadyParticipant is returned by ApproveJoinRequest when the user is already a member.
	ErrAlreadyParticipant = errors.New("messenger: user already participant")
)

// Future is the pending result of a job submitted to the loop.
type Future[T any] struct {
	name      string
	submitted time.Time
	done      chan struct{}
	logger    zerolog.Logger

	mu        sync.Mutex
	value     T
	err       error
	finished  bool
	abandoned bool
	onLate    func(T, error)
	onDone    []func(T, error)
}

func newFuture[T any](name string, logger zerolog.Logger) *Future[T] {
	return &Future[T]{name: name, submitted: time.Now(), done: make(chan struct{}), logger: logger}
}

// Name returns the job name.
func (f *Future[T]) Name() string {
	return f.name
}

// Done is closed when the job has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await waits for the job for at most timeout. On timeout or ctx cancellation the
// job keeps running; its result is routed to OnLate instead.
func (f *Future[T]) Await(ctx context.Context, timeout time.Duration) (T, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.value, f.err
	case <-timer.C:
		return f.abandon(ErrTimeout)
	case <-ctx.Done():
		return f.abandon(ctx.Err())
	}
}

// OnLate registers fn to receive the result if the job finishes after its caller
// stopped waiting.
func (f *Future[T]) OnLate(fn func(T, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onLate = fn
}

// OnComplete registers fn to run when the job finishes. If it already has, fn runs
// immediately.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	f.mu.Lock()
	if f.finished {
		value, err := f.value, f.err
		f.mu.Unlock()
		f.callback("complete", fn, value, err)
		return
	}
	f.onDone = append(f.onDone, fn)
	f.mu.Unlock()
}

func (f *Future[T]) abandon(reason error) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		// finished while the timer fired
		return f.value, f.err
	default:
	}
	f.abandoned = true
	var zero T
	return zero, reason
}

// complete stores the result. It reports whether the caller had already given up.
// Only the first call has any effect.
func (f *Future[T]) complete(value T, err error) bool {
	f.mu.Lock()
	if f.finished {
		f.mu.Unlock()
		return false
	}
	f.finished = true
	f.value, f.err = value, err
	close(f.done)
	abandoned := f.abandoned
	onLate := f.onLate
	onDone := f.onDone
	f.mu.Unlock()

	for _, fn := range onDone {
		f.callback("complete", fn, value, err)
	}
	if abandoned && onLate != nil {
		f.callback("late", onLate, value, err)
	}
	return abandoned
}

// callback runs fn and contains its panic so the loop keeps going.
func (f *Future[T]) callback(kind string, fn func(T, error), value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error().Str("job", f.name).Str("callback", kind).Interface("panic", r).Msg("future callback panicked")
		}
	}()
	fn(value, err)
}
