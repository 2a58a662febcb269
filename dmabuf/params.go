package dmabuf

import (
	"io"
	"math"
	"os"

	wl "deedles.dev/wlexport/server"
	"deedles.dev/wlexport/wire"
)

type params struct {
	wl.Resource
	manager *Manager
	used    bool
	planes  [MaxPlanes]plane
}

type plane struct {
	file     *os.File
	offset   uint32
	stride   uint32
	modifier uint64
}

func newParams(c *wl.Client, m *Manager, version, id uint32) error {
	p := params{manager: m}
	p.Init(c, ParamsInterface, version, id)
	err := c.Add(&p)
	if err != nil {
		return err
	}

	p.OnDestroy(p.closeFiles)
	return nil
}

func (p *params) closeFiles() {
	for i := range p.planes {
		if p.planes[i].file != nil {
			p.planes[i].file.Close()
			p.planes[i].file = nil
		}
	}
}

func (p *params) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		p.Destroy()
		return nil

	case 1:
		file := msg.ReadFile()
		idx := msg.ReadUint()
		offset, stride := msg.ReadUint(), msg.ReadUint()
		hi, lo := msg.ReadUint(), msg.ReadUint()
		if err := msg.Err(); err != nil {
			if file != nil {
				file.Close()
			}
			return err
		}

		err := p.add(file, idx, plane{offset: offset, stride: stride, modifier: (uint64(hi) << 32) | uint64(lo)})
		if err != nil {
			file.Close()
		}
		return err

	case 2, 3:
		var id uint32
		if msg.Op() == 3 {
			id = msg.ReadUint()
		}
		w, h := msg.ReadInt(), msg.ReadInt()
		format, flags := msg.ReadUint(), msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}

		return p.create(id, msg.Op() == 3, Attributes{Width: w, Height: h, Format: format, Flags: flags})

	default:
		return wire.UnknownOpError{Interface: ParamsInterface, Type: "request", Op: msg.Op()}
	}
}

func (p *params) add(file *os.File, idx uint32, pl plane) error {
	if p.used {
		return wl.NewProtocolError(p, ErrorAlreadyUsed, "params was already used to create a wl_buffer")
	}
	if idx >= MaxPlanes {
		return wl.NewProtocolError(p, ErrorPlaneIdx, "plane index %v is out of bounds", idx)
	}
	if p.planes[idx].file != nil {
		return wl.NewProtocolError(p, ErrorPlaneSet, "plane %v was already set", idx)
	}

	pl.file = file
	p.planes[idx] = pl
	return nil
}

func (p *params) create(id uint32, immed bool, attr Attributes) error {
	if p.used {
		return wl.NewProtocolError(p, ErrorAlreadyUsed, "params was already used to create a wl_buffer")
	}
	p.used = true

	err := p.validate(&attr)
	if err != nil {
		return err
	}

	if !p.manager.supports(attr.Format, attr.Modifier[0]) {
		return p.fail(immed, "format %#x with modifier %#x is not supported", attr.Format, attr.Modifier[0])
	}

	buf := Buffer{attributes: attr}
	for i := range attr.Planes {
		buf.files[i] = p.planes[i].file
		p.planes[i].file = nil
	}

	if validate := p.manager.Validate; validate != nil {
		err := validate(&buf)
		if err != nil {
			buf.close()
			return p.fail(immed, "import failed: %v", err)
		}
	}

	if !immed {
		id, err = p.Client().NewServerID()
		if err != nil {
			buf.close()
			return err
		}
	}

	res, err := wl.NewBuffer(p.Client(), id)
	if err != nil {
		buf.close()
		return err
	}
	res.Data = &buf
	res.OnDestroy(buf.close)
	buf.resource = res

	if !immed {
		msg := p.NewEvent(0)
		msg.WriteObject(res)
		p.Send(msg)
	}
	return nil
}

func (p *params) fail(immed bool, format string, args ...any) error {
	if immed {
		return wl.NewProtocolError(p, ErrorInvalidWLBuffer, format, args...)
	}
	p.Send(p.NewEvent(1))
	return nil
}

// validate fills in the plane attributes and checks them, returning a
// protocol error if they are inconsistent.
func (p *params) validate(attr *Attributes) error {
	for attr.Planes < MaxPlanes && p.planes[attr.Planes].file != nil {
		attr.Planes++
	}
	if attr.Planes == 0 {
		return wl.NewProtocolError(p, ErrorIncomplete, "no dmabuf has been added")
	}
	for i := attr.Planes; i < MaxPlanes; i++ {
		if p.planes[i].file != nil {
			return wl.NewProtocolError(p, ErrorIncomplete, "plane %v is missing", attr.Planes)
		}
	}

	if (attr.Width <= 0) || (attr.Height <= 0) {
		return wl.NewProtocolError(p, ErrorInvalidDimensions, "invalid width %v or height %v", attr.Width, attr.Height)
	}

	for i := range attr.Planes {
		pl := p.planes[i]
		if pl.modifier != p.planes[0].modifier {
			return wl.NewProtocolError(p, ErrorInvalidFormat, "planes have different modifiers")
		}

		if uint64(pl.offset)+uint64(pl.stride) > math.MaxUint32 {
			return wl.NewProtocolError(p, ErrorOutOfBounds, "size overflow for plane %v", i)
		}
		if (i == 0) && (uint64(pl.offset)+uint64(pl.stride)*uint64(attr.Height) > math.MaxUint32) {
			return wl.NewProtocolError(p, ErrorOutOfBounds, "size overflow for plane %v", i)
		}

		// Not every dma-buf can report its size. Only check the bounds
		// if this one can.
		size, err := pl.file.Seek(0, io.SeekEnd)
		if (err != nil) || (size <= 0) {
			continue
		}
		if int64(pl.offset) >= size {
			return wl.NewProtocolError(p, ErrorOutOfBounds, "invalid offset %v for plane %v", pl.offset, i)
		}
		if int64(pl.offset)+int64(pl.stride) > size {
			return wl.NewProtocolError(p, ErrorOutOfBounds, "invalid stride %v for plane %v", pl.stride, i)
		}
		if (i == 0) && (int64(pl.offset)+int64(pl.stride)*int64(attr.Height) > size) {
			return wl.NewProtocolError(p, ErrorOutOfBounds, "invalid buffer stride or height for plane %v", i)
		}
	}

	for i := range attr.Planes {
		pl := p.planes[i]
		attr.FD[i] = int(pl.file.Fd())
		attr.Offset[i] = pl.offset
		attr.Stride[i] = pl.stride
		attr.Modifier[i] = pl.modifier
	}
	return nil
}
