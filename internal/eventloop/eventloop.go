// Package eventloop implements the protocol display's event loop. The
// whole loop is represented by a single epoll descriptor that becomes
// readable whenever any of the sources registered with it are ready,
// which lets it be nested inside another poll-based main loop.
package eventloop

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Mask is a set of readiness conditions.
type Mask uint32

const (
	Readable Mask = unix.EPOLLIN
	Writable Mask = unix.EPOLLOUT
	Hangup   Mask = unix.EPOLLHUP
	Error    Mask = unix.EPOLLERR
)

var ErrClosed = errors.New("event loop closed")

// Loop multiplexes file descriptor sources.
type Loop struct {
	epfd    int
	sources map[int]*Source
	events  []unix.EpollEvent
}

// Source is a file descriptor registered with a Loop.
type Source struct {
	loop *Loop
	fd   int
	f    func(Mask)
}

func New() (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	return &Loop{
		epfd:    epfd,
		sources: make(map[int]*Source),
		events:  make([]unix.EpollEvent, 32),
	}, nil
}

// FD returns the descriptor that represents the whole loop. It is
// readable whenever Dispatch would have work to do.
func (l *Loop) FD() int {
	return l.epfd
}

// AddFD registers fd with the loop. f is called from Dispatch with the
// conditions that are ready. Hangup and Error are always reported,
// whether or not they are in mask.
func (l *Loop) AddFD(fd int, mask Mask, f func(Mask)) (*Source, error) {
	if l.epfd < 0 {
		return nil, ErrClosed
	}

	ev := unix.EpollEvent{Events: uint32(mask), Fd: int32(fd)}
	err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	if err != nil {
		return nil, fmt.Errorf("epoll_ctl add %v: %w", fd, err)
	}

	s := Source{loop: l, fd: fd, f: f}
	l.sources[fd] = &s
	return &s, nil
}

// Update changes the set of conditions the source is watching for.
func (s *Source) Update(mask Mask) error {
	if s.loop == nil {
		return ErrClosed
	}

	ev := unix.EpollEvent{Events: uint32(mask), Fd: int32(s.fd)}
	err := unix.EpollCtl(s.loop.epfd, unix.EPOLL_CTL_MOD, s.fd, &ev)
	if err != nil {
		return fmt.Errorf("epoll_ctl mod %v: %w", s.fd, err)
	}
	return nil
}

// Remove unregisters the source. It does not close the descriptor. It
// is safe to call from inside the source's own callback and more than
// once.
func (s *Source) Remove() error {
	l := s.loop
	if l == nil {
		return nil
	}
	s.loop = nil

	delete(l.sources, s.fd)
	if l.epfd < 0 {
		return nil
	}
	err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, s.fd, nil)
	if err != nil {
		return fmt.Errorf("epoll_ctl del %v: %w", s.fd, err)
	}
	return nil
}

// Dispatch waits up to timeout for sources to become ready and then
// calls each ready source once. A negative timeout waits forever and a
// zero timeout doesn't wait at all.
func (l *Loop) Dispatch(timeout time.Duration) error {
	if l.epfd < 0 {
		return ErrClosed
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}

	n, err := unix.EpollWait(l.epfd, l.events, ms)
	if err != nil && !errors.Is(err, unix.EINTR) {
		return fmt.Errorf("epoll_wait: %w", err)
	}

	for _, ev := range l.events[:max(n, 0)] {
		s := l.sources[int(ev.Fd)]
		if s == nil {
			// Removed by an earlier source during this pass.
			continue
		}
		s.f(Mask(ev.Events))
	}
	return nil
}

// Close removes all sources and closes the epoll descriptor.
func (l *Loop) Close() error {
	if l.epfd < 0 {
		return nil
	}

	for _, s := range l.sources {
		s.loop = nil
	}
	clear(l.sources)

	err := unix.Close(l.epfd)
	l.epfd = -1
	return err
}
