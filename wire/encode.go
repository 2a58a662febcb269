package wire

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"unsafe"

	"deedles.dev/wlexport/internal/bin"
	"golang.org/x/sys/unix"
)

// MessageBuilder is a message that is under construction.
type MessageBuilder struct {
	// Method is the name of the method being called. It is included
	// purely for debugging purposes.
	Method string

	sender Sender
	op     uint16
	data   bytes.Buffer
	fds    []int
	args   []any
	err    error
}

func NewMessage(sender Sender, op uint16) *MessageBuilder {
	return &MessageBuilder{
		sender: sender,
		op:     op,
	}
}

func (mb *MessageBuilder) Sender() Sender {
	return mb.sender
}

func (mb *MessageBuilder) Op() uint16 {
	return mb.op
}

func (mb *MessageBuilder) WriteInt(v int32) {
	if mb.err != nil {
		return
	}

	bin.Write(&mb.data, v)
	mb.args = append(mb.args, v)
}

func (mb *MessageBuilder) WriteUint(v uint32) {
	if mb.err != nil {
		return
	}

	bin.Write(&mb.data, v)
	mb.args = append(mb.args, v)
}

func (mb *MessageBuilder) WriteObject(v Sender) {
	var id uint32
	if !isNil(v) {
		id = v.ID()
	}
	mb.WriteUint(id)
}

func (mb *MessageBuilder) WriteNewID(v NewID) {
	if mb.err != nil {
		return
	}

	mb.WriteString(v.Interface)
	mb.WriteUint(v.Version)
	mb.WriteUint(v.ID)
}

func (mb *MessageBuilder) WriteString(v string) {
	if mb.err != nil {
		return
	}

	pad := padding(uint32(len(v) + 1))
	bin.Write(&mb.data, uint32(len(v)+1))
	mb.data.WriteString(v)
	mb.data.WriteByte(0)
	for i := uint32(0); i < pad; i++ {
		mb.data.WriteByte(0)
	}
	mb.args = append(mb.args, v)
}

func (mb *MessageBuilder) WriteArray(v []byte) {
	if mb.err != nil {
		return
	}

	pad := padding(uint32(len(v)))
	bin.Write(&mb.data, uint32(len(v)))
	mb.data.Write(v)
	for i := uint32(0); i < pad; i++ {
		mb.data.WriteByte(0)
	}
	mb.args = append(mb.args, v)
}

// WriteFile queues a duplicate of v's descriptor to be sent alongside
// the message. v itself is left open.
func (mb *MessageBuilder) WriteFile(v *os.File) {
	if mb.err != nil {
		return
	}

	fd, err := unix.FcntlInt(v.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		mb.err = fmt.Errorf("dup: %w", err)
		return
	}

	if len(mb.fds) == 0 {
		runtime.SetFinalizer(mb, (*MessageBuilder).close)
	}

	mb.fds = append(mb.fds, fd)
	mb.args = append(mb.args, v)
}

// Build encodes the message into c's outgoing buffer. Nothing is
// written to the socket until c is flushed. The MessageBuilder should
// not be used again after this method is called.
func (mb *MessageBuilder) Build(c *Conn) error {
	if mb.err != nil {
		mb.close()
		return mb.err
	}

	length := headerSize + mb.data.Len()
	if length > math.MaxUint16 {
		mb.close()
		return fmt.Errorf("message too large: %v bytes", length)
	}

	c.out = bin.Append(c.out, mb.sender.ID(), (uint32(length)<<16)|uint32(mb.op))
	c.out = append(c.out, mb.data.Bytes()...)
	c.outFDs = append(c.outFDs, mb.fds...)

	mb.fds = nil
	runtime.SetFinalizer(mb, nil)
	return nil
}

func (mb *MessageBuilder) close() {
	errs := make([]error, 0, len(mb.fds))
	for _, fd := range mb.fds {
		errs = append(errs, unix.Close(fd))
	}
	if mb.err == nil {
		mb.err = errors.Join(errs...)
	}
	mb.fds = nil
	runtime.SetFinalizer(mb, nil)
}

func (mb *MessageBuilder) String() string {
	return fmt.Sprintf("%v#%v.%v(%v)", mb.sender.Interface(), mb.sender.ID(), mb.Method, formatArgs(mb.args))
}

func isNil(v any) bool {
	return (v == nil) || ((*[2]uintptr)(unsafe.Pointer(&v))[1] == 0)
}
