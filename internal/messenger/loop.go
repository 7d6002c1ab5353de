package messenger

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultQueueSize = 64

// job is one unit of work executed on the loop goroutine.
type job struct {
	name string
	run  func(ctx context.Context)
	fail func(err error)
}

// Loop owns the platform connection. Inbound events and submitted jobs share one
// queue and run serially in enqueue order on a single goroutine.
type Loop struct {
	platform Platform
	source   Source
	handler  Handler
	logger   zerolog.Logger

	jobs       chan job
	jobTimeout time.Duration
	stopped    chan struct{}

	// closing is closed when the loop starts shutting down. closeMu keeps
	// enqueue from landing a job after the final drain.
	closing   chan struct{}
	closeOnce sync.Once
	closeMu   sync.RWMutex
	isClosed  bool

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithSource sets the inbound event source.
func WithSource(source Source) LoopOption {
	return func(l *Loop) {
		l.source = source
	}
}

// WithHandler sets the inbound event handler.
func WithHandler(handler Handler) LoopOption {
	return func(l *Loop) {
		l.handler = handler
	}
}

// WithQueueSize sets the job queue capacity.
func WithQueueSize(n int) LoopOption {
	return func(l *Loop) {
		l.jobs = make(chan job, n)
	}
}

// WithJobTimeout caps how long a single job may hold the loop. Zero disables the cap.
func WithJobTimeout(d time.Duration) LoopOption {
	return func(l *Loop) {
		l.jobTimeout = d
	}
}

// WithLogger sets the loop logger.
func WithLogger(logger zerolog.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// NewLoop creates a loop around platform. It does nothing until Start.
func NewLoop(platform Platform, opts ...LoopOption) *Loop {
	l := &Loop{
		platform: platform,
		logger:   zerolog.Nop(),
		jobs:     make(chan job, defaultQueueSize),
		stopped:  make(chan struct{}),
		closing:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With().Str("component", "messenger.loop").Logger()
	return l
}

// Platform returns the platform the loop drives.
func (l *Loop) Platform() Platform {
	return l.platform
}

// Start begins consuming inbound events and jobs. It returns once the loop is running.
func (l *Loop) Start(ctx context.Context) error {
	err := fmt.Errorf("loop already started")
	l.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		l.cancel = cancel

		if l.source != nil {
			updates, uerr := l.source.Updates(runCtx)
			if uerr != nil {
				cancel()
				l.shutdown()
				close(l.stopped)
				err = fmt.Errorf("failed to start updates: %w", uerr)
				return
			}
			go l.pump(runCtx, updates)
		}
		go l.run(runCtx)
		err = nil
	})
	return err
}

// Stop cancels the loop and waits for the current job to finish. Queued jobs fail
// with ErrLoopStopped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		if l.cancel != nil {
			l.cancel()
		} else {
			l.shutdown()
			close(l.stopped)
		}
	})
	<-l.stopped
}

// Stopped is closed once the loop has exited.
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.stopped)
	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return
		case j := <-l.jobs:
			l.exec(ctx, j)
		}
	}
}

func (l *Loop) exec(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Str("job", j.name).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("job panicked")
			j.fail(fmt.Errorf("job %s panicked: %v", j.name, r))
		}
	}()
	if l.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.jobTimeout)
		defer cancel()
	}
	j.run(ctx)
}

// shutdown stops accepting jobs and fails everything still queued.
func (l *Loop) shutdown() {
	l.closeOnce.Do(func() {
		close(l.closing)
		// Wait out in-flight enqueues; they either landed a job or saw closing.
		l.closeMu.Lock()
		l.isClosed = true
		l.closeMu.Unlock()
	})
	l.drain()
}

func (l *Loop) drain() {
	for {
		select {
		case j := <-l.jobs:
			j.fail(ErrLoopStopped)
		default:
			return
		}
	}
}

// pump moves inbound events into the shared queue so they keep their order
// relative to submitted jobs.
func (l *Loop) pump(ctx context.Context, updates <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-updates:
			if !ok {
				l.logger.Warn().Msg("update channel closed")
				return
			}
			if l.handler == nil {
				continue
			}
			j := job{
				name: "event:" + string(ev.Kind),
				run: func(ctx context.Context) {
					l.handler.HandleEvent(ctx, ev)
				},
				fail: func(err error) {
					l.logger.Warn().Err(err).Str("kind", string(ev.Kind)).Int64("user_id", ev.From.ID).Msg("inbound event dropped")
				},
			}
			if err := l.enqueue(ctx, j); err != nil {
				return
			}
		}
	}
}

func (l *Loop) enqueue(ctx context.Context, j job) error {
	l.closeMu.RLock()
	defer l.closeMu.RUnlock()
	if l.isClosed {
		return ErrLoopStopped
	}
	select {
	case l.jobs <- j:
		return nil
	case <-l.closing:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues fn to run on the loop goroutine and returns its future. ctx only
// bounds the enqueue; fn itself receives the loop's context.
func Submit[T any](ctx context.Context, l *Loop, name string, fn func(ctx context.Context, p Platform) (T, error)) (*Future[T], error) {
	f := newFuture[T](name, l.logger)
	j := job{
		name: name,
		run: func(ctx context.Context) {
			var (
				value T
				err   error
			)
			func() {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("job %s panicked: %v", name, r)
						l.logger.Error().Str("job", name).Interface("panic", r).Msg("job panicked")
					}
				}()
				value, err = fn(ctx, l.platform)
			}()
			if late := f.complete(value, err); late {
				evt := l.logger.Warn().Str("job", name).Dur("elapsed", time.Since(f.submitted))
				if err != nil {
					evt = evt.Err(err)
				}
				evt.Msg("job finished after caller stopped waiting")
			}
		},
		fail: func(err error) {
			var zero T
			f.complete(zero, err)
		},
	}
	if err := l.enqueue(ctx, j); err != nil {
		return nil, err
	}
	return f, nil
}

// SubmitWithin is Submit with the enqueue bounded by timeout. It returns what is
// left of timeout for Await. A queue that stays full past the bound yields
// ErrTimeout.
func SubmitWithin[T any](ctx context.Context, l *Loop, name string, timeout time.Duration, fn func(ctx context.Context, p Platform) (T, error)) (*Future[T], time.Duration, error) {
	start := time.Now()
	enqueueCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	f, err := Submit(enqueueCtx, l, name, fn)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: queue full", ErrTimeout)
		}
		return nil, 0, err
	}
	return f, timeout - time.Since(start), nil
}

// Call submits fn and awaits it. timeout covers both the enqueue and the wait.
func Call[T any](ctx context.Context, l *Loop, name string, timeout time.Duration, fn func(ctx context.Context, p Platform) (T, error)) (T, error) {
	f, remaining, err := SubmitWithin(ctx, l, name, timeout, fn)
	if err != nil {
		var zero T
		return zero, err
	}
	return f.Await(ctx, remaining)
}
