// Package debounce coalesces bursts of triggers into a single delayed
// invocation. Every Trigger cancels the pending invocation and re-arms the
// timer, so only the arguments of the latest trigger are ever executed.
//
// Rapid triggers with no quiet period postpone execution indefinitely;
// this is a debounce, not a throttle.
package debounce

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrSuperseded resolves calls that were replaced by a later trigger
	// before their timer fired.
	ErrSuperseded = errors.New("debounce: superseded by a later trigger")
	// ErrStopped resolves calls made after, or pending at, Stop.
	ErrStopped = errors.New("debounce: stopped")
)

// Func is the debounced function.
type Func[A, R any] func(ctx context.Context, arg A) (R, error)

// TimerFunc arms f to run once after d and returns a function that
// disarms it. The returned stop reports whether f was prevented from
// running, like (*time.Timer).Stop.
type TimerFunc func(d time.Duration, f func()) (stop func() bool)

func realTimer(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Option configures a Debouncer.
type Option func(*options)

type options struct {
	timer TimerFunc
}

// WithTimerFunc replaces the timer source (time.AfterFunc by default).
func WithTimerFunc(tf TimerFunc) Option {
	return func(o *options) { o.timer = tf }
}

// Call is the handle returned by Trigger. It resolves when the executed
// invocation completes, or with ErrSuperseded when a later trigger
// replaced it.
type Call[R any] struct {
	done chan struct{}
	val  R
	err  error
}

func newCall[R any]() *Call[R] {
	return &Call[R]{done: make(chan struct{})}
}

func (c *Call[R]) resolve(val R, err error) {
	c.val = val
	c.err = err
	close(c.done)
}

// Done is closed once the call is resolved.
func (c *Call[R]) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call resolves or ctx is done.
func (c *Call[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Superseded reports whether the call resolved without executing.
func (c *Call[R]) Superseded() bool {
	select {
	case <-c.done:
		return errors.Is(c.err, ErrSuperseded)
	default:
		return false
	}
}

// Debouncer wraps a Func with debounce semantics. It is safe for
// concurrent use.
type Debouncer[A, R any] struct {
	ctx   context.Context
	delay time.Duration
	fn    Func[A, R]
	timer TimerFunc

	mu      sync.Mutex
	seq     uint64
	stop    func() bool
	pending *Call[R]
	arg     A
	stopped bool
}

// New returns a Debouncer running fn with ctx after delay of quiet.
func New[A, R any](ctx context.Context, delay time.Duration, fn Func[A, R], opts ...Option) *Debouncer[A, R] {
	o := options{timer: realTimer}
	for _, opt := range opts {
		opt(&o)
	}
	return &Debouncer[A, R]{
		ctx:   ctx,
		delay: delay,
		fn:    fn,
		timer: o.timer,
	}
}

// Delay returns the quiet period.
func (d *Debouncer[A, R]) Delay() time.Duration {
	return d.delay
}

// Trigger schedules fn(arg) delay from now, superseding any pending
// invocation.
func (d *Debouncer[A, R]) Trigger(arg A) *Call[R] {
	call := newCall[R]()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		var zero R
		call.resolve(zero, ErrStopped)
		return call
	}

	d.cancelLocked(ErrSuperseded)

	d.seq++
	seq := d.seq
	d.pending = call
	d.arg = arg
	d.stop = d.timer(d.delay, func() { d.fire(seq) })
	return call
}

// Flush runs the pending invocation now, if any, and returns its handle.
// It returns nil when nothing is pending.
func (d *Debouncer[A, R]) Flush() *Call[R] {
	d.mu.Lock()
	if d.pending == nil {
		d.mu.Unlock()
		return nil
	}
	call := d.pending
	if d.stop != nil {
		d.stop()
	}
	seq := d.seq
	d.mu.Unlock()

	d.fire(seq)
	return call
}

// Pending reports whether an invocation is armed.
func (d *Debouncer[A, R]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Stop disarms the pending invocation and rejects later triggers.
func (d *Debouncer[A, R]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked(ErrStopped)
	d.stopped = true
}

func (d *Debouncer[A, R]) cancelLocked(reason error) {
	if d.pending == nil {
		return
	}
	if d.stop != nil {
		d.stop()
	}
	var zero R
	d.pending.resolve(zero, reason)
	d.pending = nil
	d.stop = nil
}

// fire runs the invocation armed under seq. A timer that fires after its
// call was superseded finds a newer seq and does nothing.
func (d *Debouncer[A, R]) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq || d.pending == nil {
		d.mu.Unlock()
		return
	}
	call := d.pending
	arg := d.arg
	d.pending = nil
	d.stop = nil
	var zero A
	d.arg = zero
	d.mu.Unlock()

	val, err := d.fn(d.ctx, arg)
	call.resolve(val, err)
}
