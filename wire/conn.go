package wire

import (
	"errors"
	"fmt"
	"io"

	"deedles.dev/wlexport/internal/bin"
	"golang.org/x/sys/unix"
)

const (
	// MaxFDs is the maximum number of file descriptors sent in one
	// control message.
	MaxFDs = 28

	headerSize = 8
	readSize   = 4096
)

// Conn represents a low-level Wayland connection over a non-blocking
// Unix domain socket. Incoming data is buffered until complete
// messages are available and outgoing data is buffered until Flush is
// called.
type Conn struct {
	fd     int
	in     []byte
	inFDs  []int
	out    []byte
	outFDs []int
}

// NewConn creates a new Conn that takes ownership of fd and puts it
// into non-blocking mode.
func NewConn(fd int) (*Conn, error) {
	err := unix.SetNonblock(fd, true)
	if err != nil {
		return nil, fmt.Errorf("set non-blocking: %w", err)
	}

	return &Conn{fd: fd}, nil
}

// Pair creates a connected pair of stream sockets suitable for
// handing one end to a client process.
func Pair() (server, client int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, -1, fmt.Errorf("socketpair: %w", err)
	}
	return fds[0], fds[1], nil
}

// FD returns the underlying socket.
func (c *Conn) FD() int {
	return c.fd
}

// Close closes the socket along with any file descriptors that were
// received but never consumed or queued but never sent.
func (c *Conn) Close() error {
	errs := make([]error, 0, 1+len(c.inFDs)+len(c.outFDs))
	for _, fd := range c.inFDs {
		errs = append(errs, unix.Close(fd))
	}
	for _, fd := range c.outFDs {
		errs = append(errs, unix.Close(fd))
	}
	c.inFDs, c.outFDs = nil, nil
	errs = append(errs, unix.Close(c.fd))
	return errors.Join(errs...)
}

// Fill reads all data that is currently available from the socket
// without blocking. It returns io.EOF if the other end has hung up.
func (c *Conn) Fill() error {
	buf := make([]byte, readSize)
	oob := make([]byte, unix.CmsgSpace(MaxFDs*4))
	for {
		n, oobn, _, _, err := unix.Recvmsg(c.fd, buf, oob, unix.MSG_DONTWAIT|unix.MSG_CMSG_CLOEXEC)
		if err != nil {
			switch {
			case errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.EAGAIN):
				return nil
			default:
				return fmt.Errorf("recvmsg: %w", err)
			}
		}

		err = c.readFDs(oob[:oobn])
		if err != nil {
			return err
		}
		if n == 0 {
			return io.EOF
		}

		c.in = append(c.in, buf[:n]...)
		if n < len(buf) {
			return nil
		}
	}
}

func (c *Conn) readFDs(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	cmsgs, err := unix.ParseSocketControlMessage(data)
	if err != nil {
		return fmt.Errorf("parse socket control messages: %w", err)
	}
	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			if errors.Is(err, unix.EINVAL) {
				continue
			}
			return fmt.Errorf("parse unix control message: %w", err)
		}
		c.inFDs = append(c.inFDs, fds...)
	}
	return nil
}

// Next returns the next complete message that has been read, or nil
// if there isn't one buffered yet.
func (c *Conn) Next() (*MessageBuffer, error) {
	if len(c.in) < headerSize {
		return nil, nil
	}

	sender := bin.Value[uint32]([4]byte(c.in[0:4]))
	so := bin.Value[uint32]([4]byte(c.in[4:8]))
	size := int(so >> 16)
	if (size < headerSize) || (size%4 != 0) {
		return nil, InvalidSizeError{Sender: sender, Size: size}
	}
	if len(c.in) < size {
		return nil, nil
	}

	data := make([]byte, size-headerSize)
	copy(data, c.in[headerSize:size])
	c.in = c.in[size:]
	if len(c.in) == 0 {
		c.in = nil
	}

	msg := MessageBuffer{
		sender: sender,
		op:     uint16(so & 0xFFFF),
		size:   uint16(size),
		conn:   c,
	}
	msg.data.Reset(data)
	return &msg, nil
}

func (c *Conn) popFD() (int, bool) {
	if len(c.inFDs) == 0 {
		return -1, false
	}

	fd := c.inFDs[0]
	c.inFDs = c.inFDs[1:]
	return fd, true
}

// Pending reports whether there is outgoing data that has not been
// written to the socket yet.
func (c *Conn) Pending() bool {
	return len(c.out) > 0
}

// Flush writes as much buffered outgoing data as the socket will
// accept without blocking. If data remains afterwards, Pending will
// return true and Flush should be called again once the socket is
// writable.
func (c *Conn) Flush() error {
	for len(c.out) > 0 {
		var oob []byte
		nfds := min(len(c.outFDs), MaxFDs)
		if nfds > 0 {
			oob = unix.UnixRights(c.outFDs[:nfds]...)
		}

		n, err := unix.SendmsgN(c.fd, c.out, oob, nil, unix.MSG_DONTWAIT|unix.MSG_NOSIGNAL)
		if err != nil {
			switch {
			case errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.EAGAIN):
				return nil
			default:
				return fmt.Errorf("sendmsg: %w", err)
			}
		}

		for _, fd := range c.outFDs[:nfds] {
			unix.Close(fd)
		}
		c.outFDs = c.outFDs[nfds:]
		c.out = c.out[n:]
	}

	c.out = nil
	return nil
}
