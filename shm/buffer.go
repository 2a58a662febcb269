package shm

import (
	"image"

	wl "deedles.dev/wlexport/server"
	"deedles.dev/ximage"
)

// Buffer is the storage behind a wl_buffer created from a wl_shm_pool.
type Buffer struct {
	resource *wl.Buffer
	pool     *Pool
	offset   int32
	width    int32
	height   int32
	stride   int32
	format   uint32
}

// Get returns the shared memory storage of b, if it has any.
func Get(b *wl.Buffer) (*Buffer, bool) {
	if b == nil {
		return nil, false
	}
	buf, ok := b.Data.(*Buffer)
	return buf, ok
}

func (b *Buffer) Resource() *wl.Buffer {
	return b.resource
}

func (b *Buffer) Width() int32 {
	return b.width
}

func (b *Buffer) Height() int32 {
	return b.height
}

func (b *Buffer) Stride() int32 {
	return b.stride
}

func (b *Buffer) Format() uint32 {
	return b.format
}

func (b *Buffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, int(b.width), int(b.height))
}

// Data returns the buffer's bytes in the pool's mapping. The slice is
// only valid until the pool is next resized.
func (b *Buffer) Data() []byte {
	end := b.offset + b.stride*b.height
	return b.pool.mmap[b.offset:end:end]
}

// Image returns a view of the buffer's contents. Rows are copied if
// the stride has padding. XRGB8888 pixels are presented as ARGB8888.
func (b *Buffer) Image() image.Image {
	pix := b.Data()
	if row := b.width * 4; b.stride != row {
		tight := make([]byte, 0, row*b.height)
		for y := range b.height {
			start := y * b.stride
			tight = append(tight, pix[start:start+row]...)
		}
		pix = tight
	}

	return &ximage.FormatImage{
		Format: ximage.ARGB8888,
		Rect:   b.Bounds(),
		Pix:    pix,
	}
}
