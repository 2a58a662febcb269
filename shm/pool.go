package shm

import (
	"os"

	wl "deedles.dev/wlexport/server"
	"deedles.dev/wlexport/wire"
	"golang.org/x/sys/unix"
)

const (
	Interface     = "wl_shm"
	PoolInterface = "wl_shm_pool"
	Version       = 1
)

// Pixel formats. Every wl_shm implementation supports both of these.
const (
	FormatARGB8888 uint32 = 0
	FormatXRGB8888 uint32 = 1
)

// wl_shm error codes.
const (
	ErrorInvalidFormat uint32 = 0
	ErrorInvalidStride uint32 = 1
	ErrorInvalidFD     uint32 = 2
)

var formats = []uint32{FormatARGB8888, FormatXRGB8888}

// AddGlobal advertises wl_shm on srv.
func AddGlobal(srv *wl.Server) *wl.Global {
	return srv.AddGlobal(Interface, Version, bind)
}

func bind(c *wl.Client, version, id uint32) error {
	var s shmResource
	s.Init(c, Interface, version, id)
	err := c.Add(&s)
	if err != nil {
		return err
	}

	for _, f := range formats {
		msg := s.NewEvent(0)
		msg.WriteUint(f)
		s.Send(msg)
	}
	return nil
}

type shmResource struct {
	wl.Resource
}

func (s *shmResource) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		id := msg.ReadUint()
		file := msg.ReadFile()
		size := msg.ReadInt()
		if err := msg.Err(); err != nil {
			if file != nil {
				file.Close()
			}
			return err
		}

		if size <= 0 {
			file.Close()
			return wl.NewProtocolError(s, ErrorInvalidStride, "invalid size (%v)", size)
		}

		mmap, err := Map(file, int(size), unix.PROT_READ)
		if err != nil {
			file.Close()
			return wl.NewProtocolError(s, ErrorInvalidFD, "failed mmap fd %v: %v", file.Fd(), err)
		}

		pool := Pool{file: file, mmap: mmap, size: size, refs: 1}
		pool.Init(s.Client(), PoolInterface, s.Version(), id)
		err = s.Client().Add(&pool)
		if err != nil {
			pool.unref()
			return err
		}
		pool.OnDestroy(pool.unref)
		return nil

	default:
		return wire.UnknownOpError{Interface: Interface, Type: "request", Op: msg.Op()}
	}
}

// Pool is a wl_shm_pool. The mapping stays alive until the pool and
// every buffer created from it have been destroyed.
type Pool struct {
	wl.Resource
	file *os.File
	mmap Mmap
	size int32
	refs int
}

func (p *Pool) ref() {
	p.refs++
}

func (p *Pool) unref() {
	p.refs--
	if p.refs > 0 {
		return
	}

	p.mmap.Unmap()
	p.mmap = nil
	p.file.Close()
}

func (p *Pool) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		id := msg.ReadUint()
		offset := msg.ReadInt()
		w, h := msg.ReadInt(), msg.ReadInt()
		stride := msg.ReadInt()
		format := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}

		return p.createBuffer(id, offset, w, h, stride, format)

	case 1:
		p.Destroy()
		return nil

	case 2:
		size := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}

		return p.resize(size)

	default:
		return wire.UnknownOpError{Interface: PoolInterface, Type: "request", Op: msg.Op()}
	}
}

func (p *Pool) createBuffer(id uint32, offset, w, h, stride int32, format uint32) error {
	if (format != FormatARGB8888) && (format != FormatXRGB8888) {
		return wl.NewProtocolError(p, ErrorInvalidFormat, "invalid format %#x", format)
	}
	if (offset < 0) || (w <= 0) || (h <= 0) || (stride < w*4) || (int64(offset) > int64(p.size)-int64(stride)*int64(h)) {
		return wl.NewProtocolError(p, ErrorInvalidStride, "invalid width, height or stride (%vx%v, %v)", w, h, stride)
	}

	res, err := wl.NewBuffer(p.Client(), id)
	if err != nil {
		return err
	}

	buf := Buffer{
		resource: res,
		pool:     p,
		offset:   offset,
		width:    w,
		height:   h,
		stride:   stride,
		format:   format,
	}
	res.Data = &buf
	p.ref()
	res.OnDestroy(p.unref)
	return nil
}

func (p *Pool) resize(size int32) error {
	if size < p.size {
		return wl.NewProtocolError(p, ErrorInvalidStride, "shrinking pool invalid")
	}
	if size == p.size {
		return nil
	}

	mmap, err := Map(p.file, int(size), unix.PROT_READ)
	if err != nil {
		return wl.NewProtocolError(p, ErrorInvalidFD, "failed mremap: %v", err)
	}
	p.mmap.Unmap()
	p.mmap = mmap
	p.size = size
	return nil
}
