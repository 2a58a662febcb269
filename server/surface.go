package wl

import (
	"deedles.dev/wlexport/wire"
)

const SurfaceInterface = "wl_surface"

// SurfaceRequest is a decoded wl_surface request. Object arguments
// have already been resolved and new objects already created.
type SurfaceRequest interface {
	surfaceRequest()
}

type SurfaceDestroy struct{}

// SurfaceAttach sets the pending buffer. Buffer is nil if the client
// attached a null buffer.
type SurfaceAttach struct {
	Buffer *Buffer
	X, Y   int32
}

type SurfaceDamage struct {
	X, Y, Width, Height int32
}

// SurfaceFrame carries the frame callback that the client created.
type SurfaceFrame struct {
	Callback *Callback
}

type SurfaceSetOpaqueRegion struct {
	Region *Region
}

type SurfaceSetInputRegion struct {
	Region *Region
}

type SurfaceCommit struct{}

type SurfaceSetBufferTransform struct {
	Transform int32
}

type SurfaceSetBufferScale struct {
	Scale int32
}

type SurfaceDamageBuffer struct {
	X, Y, Width, Height int32
}

func (SurfaceDestroy) surfaceRequest()            {}
func (SurfaceAttach) surfaceRequest()             {}
func (SurfaceDamage) surfaceRequest()             {}
func (SurfaceFrame) surfaceRequest()              {}
func (SurfaceSetOpaqueRegion) surfaceRequest()    {}
func (SurfaceSetInputRegion) surfaceRequest()     {}
func (SurfaceCommit) surfaceRequest()             {}
func (SurfaceSetBufferTransform) surfaceRequest() {}
func (SurfaceSetBufferScale) surfaceRequest()     {}
func (SurfaceDamageBuffer) surfaceRequest()       {}

// Surface is a wl_surface. All requests are decoded and passed to
// Handler. The resource is destroyed after Handler has seen a
// SurfaceDestroy.
type Surface struct {
	Resource
	Handler func(SurfaceRequest) error
}

func NewSurface(c *Client, version, id uint32) (*Surface, error) {
	var s Surface
	s.Init(c, SurfaceInterface, version, id)
	err := c.Add(&s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Surface) Dispatch(msg *wire.MessageBuffer) error {
	req, err := s.decode(msg)
	if err != nil {
		return err
	}

	err = handle(s.Handler, req)
	if _, ok := req.(SurfaceDestroy); ok {
		s.Destroy()
	}
	return err
}

func (s *Surface) decode(msg *wire.MessageBuffer) (SurfaceRequest, error) {
	switch msg.Op() {
	case 0:
		return SurfaceDestroy{}, nil

	case 1:
		bid := msg.ReadUint()
		x, y := msg.ReadInt(), msg.ReadInt()
		if err := msg.Err(); err != nil {
			return nil, err
		}

		b, err := LookupObject[*Buffer](s.client, bid, true)
		if err != nil {
			return nil, err
		}
		return SurfaceAttach{Buffer: b, X: x, Y: y}, nil

	case 2, 9:
		x, y := msg.ReadInt(), msg.ReadInt()
		w, h := msg.ReadInt(), msg.ReadInt()
		if err := msg.Err(); err != nil {
			return nil, err
		}

		if msg.Op() == 9 {
			return SurfaceDamageBuffer{X: x, Y: y, Width: w, Height: h}, nil
		}
		return SurfaceDamage{X: x, Y: y, Width: w, Height: h}, nil

	case 3:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return nil, err
		}

		cb, err := NewCallback(s.client, id)
		if err != nil {
			return nil, err
		}
		return SurfaceFrame{Callback: cb}, nil

	case 4, 5:
		rid := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return nil, err
		}

		r, err := LookupObject[*Region](s.client, rid, true)
		if err != nil {
			return nil, err
		}
		if msg.Op() == 5 {
			return SurfaceSetInputRegion{Region: r}, nil
		}
		return SurfaceSetOpaqueRegion{Region: r}, nil

	case 6:
		return SurfaceCommit{}, nil

	case 7:
		t := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return nil, err
		}
		return SurfaceSetBufferTransform{Transform: t}, nil

	case 8:
		scale := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return nil, err
		}
		return SurfaceSetBufferScale{Scale: scale}, nil

	default:
		return nil, s.unknownOp(msg.Op())
	}
}
