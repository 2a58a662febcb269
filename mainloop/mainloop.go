// Package mainloop provides a small poll-based reactor with
// GLib-style sources: each iteration prepares every source, polls
// their descriptors, checks which are ready and dispatches the ready
// sources that share the best priority.
//
// A Loop is owned by a single goroutine. Use Invoke to run code on
// that goroutine from anywhere else.
package mainloop

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"deedles.dev/wlexport/internal/ev"
	"golang.org/x/exp/slices"
	"golang.org/x/sys/unix"
)

// Events is a set of poll conditions.
type Events int16

const (
	In  Events = unix.POLLIN
	Out Events = unix.POLLOUT
	Err Events = unix.POLLERR
	Hup Events = unix.POLLHUP
)

// PriorityDefault is the priority of sources that don't implement
// Prioritized. Lower values are dispatched first.
const PriorityDefault = 0

var ErrClosed = errors.New("main loop closed")

// Source is a pollable event source.
type Source interface {
	// FD returns the descriptor to poll for input, or -1 if the source
	// doesn't have one.
	FD() int

	// Prepare is called before polling. It returns the longest time the
	// loop may block on this source's behalf, negative for no limit,
	// and whether the source is already ready without polling.
	Prepare() (timeout time.Duration, ready bool)

	// Check is called after polling with the conditions reported for
	// the source's descriptor. It reports whether the source should be
	// dispatched.
	Check(revents Events) bool

	// Dispatch handles the source's events. Returning false detaches
	// the source from the loop.
	Dispatch(revents Events) bool
}

// Prioritized is implemented by sources that want a priority other
// than PriorityDefault.
type Prioritized interface {
	Priority() int
}

// Recursive is implemented by sources that may be dispatched again by
// an iteration that is started from inside their own Dispatch.
type Recursive interface {
	CanRecurse() bool
}

// Named is implemented by sources that have a name for debugging.
type Named interface {
	Name() string
}

type Loop struct {
	entries []*Attachment
	wake    int
	queue   *ev.Queue
	pending atomic.Int64
	closed  bool
}

// Attachment is a source's membership in a Loop.
type Attachment struct {
	loop     *Loop
	src      Source
	priority int
	recurse  bool

	dispatching bool
	detached    bool
}

func New() (*Loop, error) {
	wake, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	return &Loop{
		wake:  wake,
		queue: ev.NewQueue(),
	}, nil
}

// Attach adds src to the loop.
func (l *Loop) Attach(src Source) *Attachment {
	a := Attachment{
		loop:     l,
		src:      src,
		priority: PriorityDefault,
	}
	if p, ok := src.(Prioritized); ok {
		a.priority = p.Priority()
	}
	if r, ok := src.(Recursive); ok {
		a.recurse = r.CanRecurse()
	}

	l.entries = append(l.entries, &a)
	slices.SortStableFunc(l.entries, func(a, b *Attachment) int {
		return cmp.Compare(a.priority, b.priority)
	})
	return &a
}

// Source returns the attached source.
func (a *Attachment) Source() Source {
	return a.src
}

// Detached reports whether the source has been removed from its loop,
// either explicitly or by returning false from Dispatch.
func (a *Attachment) Detached() bool {
	return a.detached
}

// Detach removes the source from the loop. It is safe to call more
// than once.
func (a *Attachment) Detach() {
	if a.detached {
		return
	}
	a.detached = true

	l := a.loop
	l.entries = slices.DeleteFunc(l.entries, func(e *Attachment) bool { return e == a })
}

// Invoke schedules f to run on the loop's goroutine during the next
// iteration. It may be called from any goroutine.
func (l *Loop) Invoke(f func()) {
	l.pending.Add(1)
	l.queue.Add() <- f
	l.wakeup()
}

func (l *Loop) wakeup() {
	var one [8]byte
	one[0] = 1
	unix.Write(l.wake, one[:])
}

func (l *Loop) runInvoked() bool {
	var ran bool
	for l.pending.Load() > 0 {
		events := <-l.queue.Get()
		l.pending.Add(-int64(events.Len()))
		events.Flush()
		ran = true
	}
	return ran
}

// Iterate runs a single iteration of the loop. If block is true it
// waits until at least one source is ready. It reports whether
// anything was dispatched. Iterate may be called recursively from a
// source's Dispatch.
func (l *Loop) Iterate(block bool) bool {
	if l.closed {
		return false
	}

	var entries []*Attachment
	for _, e := range l.entries {
		if e.dispatching && !e.recurse {
			continue
		}
		entries = append(entries, e)
	}

	timeout := time.Duration(-1)
	ready := make([]bool, len(entries))
	var anyReady bool
	for i, e := range entries {
		t, r := e.src.Prepare()
		ready[i] = r
		anyReady = anyReady || r
		if t >= 0 && (timeout < 0 || t < timeout) {
			timeout = t
		}
	}
	if anyReady || !block {
		timeout = 0
	}

	pfds := make([]unix.PollFd, 0, len(entries)+1)
	pfds = append(pfds, unix.PollFd{Fd: int32(l.wake), Events: unix.POLLIN})
	index := make([]int, len(entries))
	for i, e := range entries {
		index[i] = -1
		fd := e.src.FD()
		if fd < 0 {
			continue
		}
		index[i] = len(pfds)
		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN | unix.POLLERR | unix.POLLHUP})
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}
	_, err := unix.Poll(pfds, ms)
	if err != nil && !errors.Is(err, unix.EINTR) {
		return false
	}

	var dispatched bool
	if pfds[0].Revents != 0 {
		var buf [8]byte
		unix.Read(l.wake, buf[:])
	}
	if l.runInvoked() {
		dispatched = true
	}

	var best int
	var haveBest bool
	checked := make([]Events, len(entries))
	ok := make([]bool, len(entries))
	for i, e := range entries {
		if e.detached {
			continue
		}
		var revents Events
		if index[i] >= 0 {
			revents = Events(pfds[index[i]].Revents)
		}
		checked[i] = revents
		ok[i] = e.src.Check(revents) || ready[i]
		if ok[i] && (!haveBest || e.priority < best) {
			best = e.priority
			haveBest = true
		}
	}

	for i, e := range entries {
		if !ok[i] || e.detached || e.priority != best {
			continue
		}

		e.dispatching = true
		keep := e.src.Dispatch(checked[i])
		e.dispatching = false
		dispatched = true

		if !keep {
			e.Detach()
		}
	}

	return dispatched
}

// Run iterates the loop until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	if l.closed {
		return ErrClosed
	}

	stop := context.AfterFunc(ctx, l.wakeup)
	defer stop()

	for ctx.Err() == nil {
		l.Iterate(true)
	}
	return ctx.Err()
}

// Close detaches every source and releases the loop's resources.
func (l *Loop) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true

	for _, e := range l.entries {
		e.detached = true
	}
	l.entries = nil
	l.queue.Stop()
	return unix.Close(l.wake)
}
