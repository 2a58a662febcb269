package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"deedles.dev/wlexport/internal/bin"
)

// MessageBuffer holds message data that has been read from the socket
// but not yet decoded. Read methods record the first error that
// occurs, after which they do nothing. Check Err once all arguments
// have been read.
type MessageBuffer struct {
	sender uint32
	op     uint16
	size   uint16
	data   bytes.Reader
	conn   *Conn
	err    error
	args   []any
}

// Sender is the object ID of the sender of the message.
func (r *MessageBuffer) Sender() uint32 {
	return r.sender
}

// Op is the opcode of the message.
func (r *MessageBuffer) Op() uint16 {
	return r.op
}

// Size is the total size of the message, including the 8 byte header.
func (r *MessageBuffer) Size() uint16 {
	return r.size
}

// Err returns the first error encountered while decoding arguments.
func (r *MessageBuffer) Err() error {
	if errors.Is(r.err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return r.err
}

func (r *MessageBuffer) ReadInt() (v int32) {
	if r.err != nil {
		return
	}

	v, r.err = bin.Read[int32](&r.data)
	r.args = append(r.args, v)
	return v
}

func (r *MessageBuffer) ReadUint() (v uint32) {
	if r.err != nil {
		return
	}

	v, r.err = bin.Read[uint32](&r.data)
	r.args = append(r.args, v)
	return v
}

func (r *MessageBuffer) ReadNewID() NewID {
	return NewID{
		Interface: r.ReadString(),
		Version:   r.ReadUint(),
		ID:        r.ReadUint(),
	}
}

func (r *MessageBuffer) ReadString() string {
	if r.err != nil {
		return ""
	}

	length, err := bin.Read[uint32](&r.data)
	if err != nil {
		r.err = err
		return ""
	}
	if length == 0 {
		r.args = append(r.args, nil)
		return ""
	}
	total, ok := r.fits(length)
	if !ok {
		return ""
	}

	var str strings.Builder
	str.Grow(int(total))
	_, r.err = io.CopyN(&str, &r.data, total)
	if r.err != nil {
		return ""
	}
	v := str.String()
	if v[length-1] != 0 {
		r.err = errors.New("string is not null-terminated")
		return ""
	}

	r.args = append(r.args, v[:length-1])
	return v[:length-1]
}

func (r *MessageBuffer) ReadArray() []byte {
	if r.err != nil {
		return nil
	}

	length, err := bin.Read[uint32](&r.data)
	if err != nil {
		r.err = err
		return nil
	}
	total, ok := r.fits(length)
	if !ok {
		return nil
	}

	buf := make([]byte, total)
	_, r.err = io.ReadFull(&r.data, buf)
	if r.err != nil {
		return nil
	}

	r.args = append(r.args, buf[:length])
	return buf[:length]
}

// fits returns the padded size of an argument of the given length and
// whether that many bytes remain in the message. The length comes from
// the peer, so it must not be trusted before this check.
func (r *MessageBuffer) fits(length uint32) (int64, bool) {
	total := int64(length) + int64(padding(length))
	if total > int64(r.data.Len()) {
		r.err = io.ErrUnexpectedEOF
		return 0, false
	}
	return total, true
}

// ReadFile takes the next file descriptor that arrived on the
// connection. The caller owns the returned file.
func (r *MessageBuffer) ReadFile() *os.File {
	if r.err != nil {
		return nil
	}

	fd, ok := r.conn.popFD()
	if !ok {
		r.err = errors.New("no more file descriptors")
		return nil
	}

	f := os.NewFile(uintptr(fd), "")
	r.args = append(r.args, f)
	return f
}

// Debug formats the decoded arguments as a call on sender.
func (r *MessageBuffer) Debug(sender, method string) string {
	return fmt.Sprintf("%v.%v(%v)", sender, method, formatArgs(r.args))
}

func formatArgs(vals []any) string {
	args := make([]string, 0, len(vals))
	for _, arg := range vals {
		switch arg := arg.(type) {
		case nil:
			args = append(args, "nil")
		case string:
			args = append(args, strconv.Quote(arg))
		case *os.File:
			args = append(args, "fd "+fmt.Sprint(arg.Fd()))
		default:
			args = append(args, fmt.Sprint(arg))
		}
	}
	return strings.Join(args, ", ")
}
