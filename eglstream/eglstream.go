// Package eglstream implements wl_eglstream_controller, through which
// EGLStream clients attach a stream consumer to a surface.
package eglstream

import (
	wl "deedles.dev/wlexport/server"
	"deedles.dev/wlexport/wire"
)

const (
	Interface = "wl_eglstream_controller"
	Version   = 2
)

// Attribute names used in AttachConsumer.Attribs.
const (
	AttribPresentMode int32 = 0
	AttribFIFOLength  int32 = 1
)

// Present modes.
const (
	PresentDontCare int32 = 0
	PresentFIFO     int32 = 1
	PresentMailbox  int32 = 2
)

// AttachConsumer is sent for both attach_eglstream_consumer and
// attach_eglstream_consumer_attribs. Attribs is nil for the former.
type AttachConsumer struct {
	Surface *wl.Surface
	Buffer  *wl.Buffer
	Attribs map[int32]int32
}

type Controller struct {
	wl.Resource
	Handler func(AttachConsumer) error
}

// AddGlobal advertises the controller. setup is called for every
// bound controller.
func AddGlobal(srv *wl.Server, setup func(*Controller)) *wl.Global {
	return srv.AddGlobal(Interface, Version, func(c *wl.Client, version, id uint32) error {
		ctrl, err := New(c, version, id)
		if err != nil {
			return err
		}
		if setup != nil {
			setup(ctrl)
		}
		return nil
	})
}

func New(c *wl.Client, version, id uint32) (*Controller, error) {
	var ctrl Controller
	ctrl.Init(c, Interface, version, id)
	err := c.Add(&ctrl)
	if err != nil {
		return nil, err
	}
	return &ctrl, nil
}

func (ctrl *Controller) Dispatch(msg *wire.MessageBuffer) error {
	switch op := msg.Op(); op {
	case 0, 1:
		sid := msg.ReadUint()
		bid := msg.ReadUint()
		var attribs []byte
		if op == 1 {
			attribs = msg.ReadArray()
		}
		if err := msg.Err(); err != nil {
			return err
		}

		s, err := wl.LookupObject[*wl.Surface](ctrl.Client(), sid, false)
		if err != nil {
			return err
		}
		b, err := wl.LookupObject[*wl.Buffer](ctrl.Client(), bid, false)
		if err != nil {
			return err
		}

		req := AttachConsumer{Surface: s, Buffer: b}
		if op == 1 {
			req.Attribs, err = decodeAttribs(attribs)
			if err != nil {
				return wl.NewProtocolError(ctrl, wl.ErrorInvalidMethod, "%v", err)
			}
		}

		if ctrl.Handler == nil {
			return nil
		}
		return ctrl.Handler(req)

	default:
		return wire.UnknownOpError{Interface: Interface, Type: "request", Op: op}
	}
}
