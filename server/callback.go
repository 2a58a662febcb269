package wl

import (
	"deedles.dev/wlexport/wire"
)

const CallbackInterface = "wl_callback"

// Callback is a one-shot wl_callback.
type Callback struct {
	Resource
	done bool
}

// NewCallback creates a callback with the client-chosen id.
func NewCallback(c *Client, id uint32) (*Callback, error) {
	var cb Callback
	cb.Init(c, CallbackInterface, 1, id)
	err := c.Add(&cb)
	if err != nil {
		return nil, err
	}
	return &cb, nil
}

func (cb *Callback) Dispatch(msg *wire.MessageBuffer) error {
	return cb.unknownOp(msg.Op())
}

// Done fires the callback and destroys it. Only the first call has any
// effect.
func (cb *Callback) Done(data uint32) {
	if cb.done || cb.destroyed {
		return
	}
	cb.done = true

	msg := cb.NewEvent(0)
	msg.WriteUint(data)
	cb.Send(msg)
	cb.Destroy()
}

// Fired reports whether Done has been called.
func (cb *Callback) Fired() bool {
	return cb.done
}
