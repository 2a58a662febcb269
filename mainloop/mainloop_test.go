package mainloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type testSource struct {
	fd       int
	priority int
	recurse  bool
	keep     bool

	prepared   int
	dispatched []Events
	onDispatch func()
}

func (s *testSource) FD() int       { return s.fd }
func (s *testSource) Priority() int { return s.priority }
func (s *testSource) CanRecurse() bool {
	return s.recurse
}

func (s *testSource) Prepare() (time.Duration, bool) {
	s.prepared++
	return -1, false
}

func (s *testSource) Check(revents Events) bool {
	return revents != 0
}

func (s *testSource) Dispatch(revents Events) bool {
	s.dispatched = append(s.dispatched, revents)
	if s.onDispatch != nil {
		s.onDispatch()
	}
	if revents&In != 0 {
		var buf [8]byte
		unix.Read(s.fd, buf[:])
	}
	return s.keep
}

func newLoop(t *testing.T) *Loop {
	t.Helper()

	l, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func newEventFD(t *testing.T) int {
	t.Helper()

	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(fd) })
	return fd
}

func signal(fd int) {
	unix.Write(fd, []byte{1, 0, 0, 0, 0, 0, 0, 0})
}

func TestIterate(t *testing.T) {
	l := newLoop(t)
	src := &testSource{fd: newEventFD(t), keep: true}
	l.Attach(src)

	assert.False(t, l.Iterate(false))
	assert.Equal(t, 1, src.prepared)
	assert.Empty(t, src.dispatched)

	signal(src.fd)
	assert.True(t, l.Iterate(false))
	require.Len(t, src.dispatched, 1)
	assert.NotZero(t, src.dispatched[0]&In)
}

func TestDetachOnFalse(t *testing.T) {
	l := newLoop(t)
	src := &testSource{fd: newEventFD(t), keep: false}
	a := l.Attach(src)

	signal(src.fd)
	require.True(t, l.Iterate(false))
	assert.True(t, a.Detached())

	signal(src.fd)
	assert.False(t, l.Iterate(false))
	assert.Len(t, src.dispatched, 1)
}

func TestPriority(t *testing.T) {
	l := newLoop(t)
	low := &testSource{fd: newEventFD(t), priority: 100, keep: true}
	high := &testSource{fd: newEventFD(t), priority: -70, keep: true}
	l.Attach(low)
	l.Attach(high)

	signal(low.fd)
	signal(high.fd)
	require.True(t, l.Iterate(false))
	assert.Len(t, high.dispatched, 1)
	assert.Empty(t, low.dispatched)

	require.True(t, l.Iterate(false))
	assert.Len(t, low.dispatched, 1)
}

func TestRecursion(t *testing.T) {
	for _, recurse := range []bool{true, false} {
		t.Run("", func(t *testing.T) {
			l := newLoop(t)
			src := &testSource{fd: newEventFD(t), recurse: recurse, keep: true}
			var nested bool
			src.onDispatch = func() {
				if nested {
					return
				}
				nested = true
				l.Iterate(false)
			}
			l.Attach(src)

			signal(src.fd)
			l.Iterate(false)
			if recurse {
				assert.Len(t, src.dispatched, 2)
			} else {
				assert.Len(t, src.dispatched, 1)
			}
		})
	}
}

func TestInvoke(t *testing.T) {
	l := newLoop(t)

	var wg sync.WaitGroup
	var got []int
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Invoke(func() { got = append(got, i) })
		}()
	}
	wg.Wait()

	require.True(t, l.Iterate(true))
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4}, got)
}

func TestRun(t *testing.T) {
	l := newLoop(t)

	ctx, cancel := context.WithCancel(context.Background())
	l.Invoke(cancel)

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
