package wl

import (
	"deedles.dev/wlexport/wire"
)

const CompositorInterface = "wl_compositor"

// CompositorRequest is a request sent to a wl_compositor. It is one
// of CompositorCreateSurface or CompositorCreateRegion.
type CompositorRequest interface {
	compositorRequest()
}

// CompositorCreateSurface is sent after a new surface has been added
// to the client.
type CompositorCreateSurface struct {
	Surface *Surface
}

// CompositorCreateRegion is sent after a new region has been added to
// the client.
type CompositorCreateRegion struct {
	Region *Region
}

func (CompositorCreateSurface) compositorRequest() {}
func (CompositorCreateRegion) compositorRequest()  {}

type Compositor struct {
	Resource
	Handler func(CompositorRequest) error
}

func NewCompositor(c *Client, version, id uint32) (*Compositor, error) {
	var comp Compositor
	comp.Init(c, CompositorInterface, version, id)
	err := c.Add(&comp)
	if err != nil {
		return nil, err
	}
	return &comp, nil
}

func (comp *Compositor) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}

		s, err := NewSurface(comp.client, comp.version, id)
		if err != nil {
			return err
		}
		return handle(comp.Handler, CompositorRequest(CompositorCreateSurface{Surface: s}))

	case 1:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}

		r, err := NewRegion(comp.client, id)
		if err != nil {
			return err
		}
		return handle(comp.Handler, CompositorRequest(CompositorCreateRegion{Region: r}))

	default:
		return comp.unknownOp(msg.Op())
	}
}

const RegionInterface = "wl_region"

// RegionRequest is one of RegionDestroy, RegionAdd or RegionSubtract.
type RegionRequest interface {
	regionRequest()
}

type RegionDestroy struct{}

type RegionAdd struct {
	X, Y, Width, Height int32
}

type RegionSubtract struct {
	X, Y, Width, Height int32
}

func (RegionDestroy) regionRequest()  {}
func (RegionAdd) regionRequest()      {}
func (RegionSubtract) regionRequest() {}

// Region is a wl_region. The server does not track region contents;
// requests are only passed to Handler.
type Region struct {
	Resource
	Handler func(RegionRequest) error
}

func NewRegion(c *Client, id uint32) (*Region, error) {
	var r Region
	r.Init(c, RegionInterface, 1, id)
	err := c.Add(&r)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Region) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		err := handle(r.Handler, RegionRequest(RegionDestroy{}))
		r.Destroy()
		return err

	case 1, 2:
		x, y := msg.ReadInt(), msg.ReadInt()
		w, h := msg.ReadInt(), msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}

		var req RegionRequest = RegionAdd{X: x, Y: y, Width: w, Height: h}
		if msg.Op() == 2 {
			req = RegionSubtract{X: x, Y: y, Width: w, Height: h}
		}
		return handle(r.Handler, req)

	default:
		return r.unknownOp(msg.Op())
	}
}
