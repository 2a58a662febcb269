package wl

import (
	"deedles.dev/wlexport/wire"
)

const BufferInterface = "wl_buffer"

// Buffer is a wl_buffer. Buffers are created by whichever extension
// provides their storage, which records itself in Data.
type Buffer struct {
	Resource

	// Data is the storage behind the buffer. Its type depends on the
	// extension that created it.
	Data any

	// OnRequestDestroy, if not nil, is called when the client
	// destroys the buffer, before the resource is destroyed.
	OnRequestDestroy func()
}

func NewBuffer(c *Client, id uint32) (*Buffer, error) {
	var b Buffer
	b.Init(c, BufferInterface, 1, id)
	err := c.Add(&b)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *Buffer) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		if b.OnRequestDestroy != nil {
			b.OnRequestDestroy()
		}
		b.Destroy()
		return nil

	default:
		return b.unknownOp(msg.Op())
	}
}

// Release tells the client that the server no longer uses the
// buffer's contents.
func (b *Buffer) Release() {
	b.Send(b.NewEvent(0))
}
