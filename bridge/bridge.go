// Package bridge implements wpe_bridge, which lets a client associate
// one of its surfaces with a view backend living in the host process.
package bridge

import (
	wl "deedles.dev/wlexport/server"
	"deedles.dev/wlexport/wire"
)

const (
	Interface = "wpe_bridge"
	Version   = 1
)

// Connect asks for Surface to be correlated with a view backend. The
// host answers with Connected.
type Connect struct {
	Surface *wl.Surface
}

// Bridge is a client's wpe_bridge object.
type Bridge struct {
	wl.Resource
	Handler func(Connect) error
}

// AddGlobal advertises wpe_bridge. setup is called for every bound
// bridge so that the caller can install a handler.
func AddGlobal(srv *wl.Server, setup func(*Bridge)) *wl.Global {
	return srv.AddGlobal(Interface, Version, func(c *wl.Client, version, id uint32) error {
		b, err := New(c, version, id)
		if err != nil {
			return err
		}
		if setup != nil {
			setup(b)
		}
		return nil
	})
}

func New(c *wl.Client, version, id uint32) (*Bridge, error) {
	var b Bridge
	b.Init(c, Interface, version, id)
	err := c.Add(&b)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *Bridge) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		sid := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}

		s, err := wl.LookupObject[*wl.Surface](b.Client(), sid, false)
		if err != nil {
			return err
		}
		if b.Handler == nil {
			return nil
		}
		return b.Handler(Connect{Surface: s})

	default:
		return wire.UnknownOpError{Interface: Interface, Type: "request", Op: msg.Op()}
	}
}

// Connected tells the client the ID that its surface was given.
func (b *Bridge) Connected(id uint32) {
	msg := b.NewEvent(0)
	msg.WriteUint(id)
	b.Send(msg)
}
