package wl

import (
	"deedles.dev/wlexport/wire"
)

const DisplayInterface = "wl_display"

// Display is a client's wl_display object. It always has ID 1.
type Display struct {
	Resource
}

func newDisplay(c *Client) *Display {
	var d Display
	d.Init(c, DisplayInterface, 1, 1)
	return &d
}

func (d *Display) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}

		cb, err := NewCallback(d.client, id)
		if err != nil {
			return err
		}
		cb.Done(d.client.server.NextSerial())
		return nil

	case 1:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}

		registry, err := newRegistry(d.client, id)
		if err != nil {
			return err
		}
		for _, g := range d.client.server.sortedGlobals() {
			registry.sendGlobal(g)
		}
		return nil

	default:
		return d.unknownOp(msg.Op())
	}
}

func (d *Display) sendError(obj wire.Sender, code uint32, message string) {
	msg := d.NewEvent(0)
	msg.WriteObject(obj)
	msg.WriteUint(code)
	msg.WriteString(message)
	d.client.Enqueue(msg)
}

func (d *Display) deleteID(id uint32) {
	msg := d.NewEvent(1)
	msg.WriteUint(id)
	d.client.Enqueue(msg)
}
