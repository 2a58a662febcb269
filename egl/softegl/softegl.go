// Package softegl provides an egl.Display that imports buffers into
// memory instead of onto a GPU. It supports wl_shm buffers through
// EGL_WL_bind_wayland_display and single-plane linear dma-bufs through
// EGL_EXT_image_dma_buf_import.
package softegl

import (
	"errors"
	"fmt"
	"image"
	"slices"
	"strings"

	"deedles.dev/wlexport/dmabuf"
	"deedles.dev/wlexport/egl"
	wl "deedles.dev/wlexport/server"
	"deedles.dev/wlexport/shm"
	"deedles.dev/ximage"
	"golang.org/x/image/draw"
	"golang.org/x/sys/unix"
)

var extensions = []string{
	egl.ExtBindWaylandDisplay,
	egl.ExtImageBase,
	egl.ExtImageDMABufImport,
}

var formats = []dmabuf.Format{
	{FourCC: dmabuf.FormatARGB8888, Modifiers: []uint64{dmabuf.ModifierLinear}},
	{FourCC: dmabuf.FormatXRGB8888, Modifiers: []uint64{dmabuf.ModifierLinear}},
}

var (
	errUnsupported = errors.New("unsupported buffer")
	errBadAttribs  = errors.New("malformed attribute list")
)

// Option configures a Display.
type Option func(*Display)

// WithoutExtensions hides the named extensions, along with the
// functions that they provide.
func WithoutExtensions(names ...string) Option {
	return func(d *Display) {
		d.exts = slices.DeleteFunc(d.exts, func(ext string) bool { return slices.Contains(names, ext) })
	}
}

// Display is a software import display. It is not safe for
// concurrent use.
type Display struct {
	exts    []string
	bound   *wl.Server
	shm     *wl.Global
	images  map[egl.Image]*image.RGBA
	next    egl.Image
	lastErr error
}

func New(opts ...Option) *Display {
	d := Display{
		exts:   slices.Clone(extensions),
		images: make(map[egl.Image]*image.RGBA),
		next:   1,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return &d
}

func (d *Display) Extensions() string {
	return strings.Join(d.exts, " ")
}

func (d *Display) has(ext string) bool {
	return slices.Contains(d.exts, ext)
}

func (d *Display) Proc(name string) any {
	switch name {
	case egl.ProcBindWaylandDisplay:
		if d.has(egl.ExtBindWaylandDisplay) {
			return egl.BindWaylandDisplayFunc(d.bind)
		}
	case egl.ProcUnbindWaylandDisplay:
		if d.has(egl.ExtBindWaylandDisplay) {
			return egl.UnbindWaylandDisplayFunc(d.unbind)
		}
	case egl.ProcCreateImage:
		if d.has(egl.ExtImageBase) {
			return egl.CreateImageFunc(d.createImage)
		}
	case egl.ProcDestroyImage:
		if d.has(egl.ExtImageBase) {
			return egl.DestroyImageFunc(d.destroyImage)
		}
	}
	return nil
}

// DMABufFormats returns the dma-buf formats that the display can
// import.
func (d *Display) DMABufFormats() []dmabuf.Format {
	if !d.has(egl.ExtImageDMABufImport) {
		return nil
	}
	return formats
}

// Server returns the server that the display is bound to, if any.
func (d *Display) Server() *wl.Server {
	return d.bound
}

func (d *Display) bind(srv *wl.Server) bool {
	if d.bound != nil {
		return d.bound == srv
	}

	d.bound = srv
	d.shm = shm.AddGlobal(srv)
	return true
}

func (d *Display) unbind(srv *wl.Server) bool {
	if (d.bound == nil) || (d.bound != srv) {
		return false
	}

	d.shm.Remove()
	d.shm = nil
	d.bound = nil
	return true
}

// Image returns the pixels of an imported image.
func (d *Display) Image(img egl.Image) (*image.RGBA, bool) {
	rgba, ok := d.images[img]
	return rgba, ok
}

// Len returns the number of live images.
func (d *Display) Len() int {
	return len(d.images)
}

// Err returns the reason that the most recent import failed.
func (d *Display) Err() error {
	return d.lastErr
}

func (d *Display) createImage(target uint32, buffer any, attribs []int32) egl.Image {
	var src image.Image
	var err error
	switch target {
	case egl.TargetWaylandBuffer:
		src, err = importWaylandBuffer(buffer)
	case egl.TargetLinuxDMABuf:
		if !d.has(egl.ExtImageDMABufImport) || (buffer != nil) {
			err = errUnsupported
			break
		}
		src, err = importDMABuf(attribs)
	default:
		err = fmt.Errorf("%w: target %#x", errUnsupported, target)
	}
	d.lastErr = err
	if err != nil {
		return egl.NoImage
	}

	dst := image.NewRGBA(src.Bounds())
	draw.Copy(dst, image.Point{}, src, src.Bounds(), draw.Src, nil)

	img := d.next
	d.next++
	d.images[img] = dst
	return img
}

func (d *Display) destroyImage(img egl.Image) bool {
	_, ok := d.images[img]
	delete(d.images, img)
	return ok
}

func importWaylandBuffer(buffer any) (image.Image, error) {
	b, ok := buffer.(*wl.Buffer)
	if !ok || (b == nil) || b.Destroyed() {
		return nil, errUnsupported
	}

	buf, ok := shm.Get(b)
	if !ok {
		return nil, fmt.Errorf("%w: %v is not a shm buffer", errUnsupported, b)
	}
	return buf.Image(), nil
}

func importDMABuf(attribs []int32) (image.Image, error) {
	attr, ok := egl.ParseDMABufAttribs(attribs)
	if !ok {
		return nil, errBadAttribs
	}
	if attr.Planes != 1 {
		return nil, fmt.Errorf("%w: %v planes", errUnsupported, attr.Planes)
	}
	if (attr.Format != dmabuf.FormatARGB8888) && (attr.Format != dmabuf.FormatXRGB8888) {
		return nil, fmt.Errorf("%w: format %#x", errUnsupported, attr.Format)
	}
	if mod := attr.Modifier[0]; (mod != dmabuf.ModifierLinear) && (mod != dmabuf.ModifierInvalid) {
		return nil, fmt.Errorf("%w: modifier %#x", errUnsupported, mod)
	}
	if (attr.Width <= 0) || (attr.Height <= 0) || (int64(attr.Stride[0]) < int64(attr.Width)*4) {
		return nil, errBadAttribs
	}

	offset := int(attr.Offset[0])
	stride := int(attr.Stride[0])
	size := offset + stride*int(attr.Height)
	mmap, err := unix.Mmap(attr.FD[0], 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap plane 0: %w", err)
	}
	defer unix.Munmap(mmap)

	w, h := int(attr.Width), int(attr.Height)
	pix := make([]byte, 0, w*4*h)
	for y := range h {
		start := offset + y*stride
		pix = append(pix, mmap[start:start+w*4]...)
	}

	return &ximage.FormatImage{
		Format: ximage.ARGB8888,
		Rect:   image.Rect(0, 0, w, h),
		Pix:    pix,
	}, nil
}
