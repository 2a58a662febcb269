// Package dmabuf implements zwp_linux_dmabuf_v1, which lets clients
// create wl_buffers out of one or more dma-buf planes.
package dmabuf

import (
	"fmt"
	"os"
	"slices"

	wl "deedles.dev/wlexport/server"
	"deedles.dev/wlexport/wire"
)

const (
	Interface       = "zwp_linux_dmabuf_v1"
	ParamsInterface = "zwp_linux_buffer_params_v1"
	Version         = 3

	MaxPlanes = 4

	// ModifierInvalid is advertised for formats that have no explicit
	// modifiers.
	ModifierInvalid uint64 = 0x00FFFFFFFFFFFFFF
	ModifierLinear  uint64 = 0
)

// Buffer flags.
const (
	FlagYInvert     uint32 = 1
	FlagInterlaced  uint32 = 2
	FlagBottomFirst uint32 = 4
)

// zwp_linux_buffer_params_v1 error codes.
const (
	ErrorAlreadyUsed       uint32 = 0
	ErrorPlaneIdx          uint32 = 1
	ErrorPlaneSet          uint32 = 2
	ErrorIncomplete        uint32 = 3
	ErrorInvalidFormat     uint32 = 4
	ErrorInvalidDimensions uint32 = 5
	ErrorOutOfBounds       uint32 = 6
	ErrorInvalidWLBuffer   uint32 = 7
)

// FourCC builds a DRM format code.
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a) | (uint32(b) << 8) | (uint32(c) << 16) | (uint32(d) << 24)
}

var (
	FormatARGB8888 = FourCC('A', 'R', '2', '4')
	FormatXRGB8888 = FourCC('X', 'R', '2', '4')
)

// Format is a supported pixel format together with the modifiers it
// can be used with.
type Format struct {
	FourCC    uint32
	Modifiers []uint64
}

// DefaultFormats are advertised when no formats are given to Setup.
var DefaultFormats = []Format{
	{FourCC: FormatARGB8888, Modifiers: []uint64{ModifierLinear}},
	{FourCC: FormatXRGB8888, Modifiers: []uint64{ModifierLinear}},
}

// Attributes describe the layout of a dma-buf backed buffer. Only the
// first Planes entries of the per-plane arrays are meaningful.
type Attributes struct {
	Width, Height int32
	Format        uint32
	Flags         uint32
	Planes        int
	FD            [MaxPlanes]int
	Offset        [MaxPlanes]uint32
	Stride        [MaxPlanes]uint32
	Modifier      [MaxPlanes]uint64
}

// Buffer is the storage behind a wl_buffer created from dma-bufs. It
// owns the plane file descriptors, which are closed when the wl_buffer
// is destroyed.
type Buffer struct {
	resource   *wl.Buffer
	attributes Attributes
	files      [MaxPlanes]*os.File
}

// Get returns the dma-buf storage of b, if it has any.
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

func (b *Buffer) Attributes() Attributes {
	return b.attributes
}

func (b *Buffer) String() string {
	return fmt.Sprintf("dmabuf(%v, %vx%v)", b.resource, b.attributes.Width, b.attributes.Height)
}

func (b *Buffer) close() {
	for i, f := range b.files {
		if f != nil {
			f.Close()
			b.files[i] = nil
		}
	}
}

// Manager advertises zwp_linux_dmabuf_v1 on a server.
type Manager struct {
	global  *wl.Global
	formats []Format

	// Validate, if not nil, is called for every buffer before it is
	// handed to the client. A non-nil error causes the creation to
	// fail.
	Validate func(*Buffer) error
}

// Setup advertises zwp_linux_dmabuf_v1 with the given formats, or
// DefaultFormats if there are none.
func Setup(srv *wl.Server, formats []Format) *Manager {
	if len(formats) == 0 {
		formats = DefaultFormats
	}

	m := Manager{formats: slices.Clone(formats)}
	m.global = srv.AddGlobal(Interface, Version, m.bind)
	return &m
}

// Formats returns the advertised formats.
func (m *Manager) Formats() []Format {
	return m.formats
}

// Teardown withdraws the global.
func (m *Manager) Teardown() {
	m.global.Remove()
}

func (m *Manager) supports(format uint32, modifier uint64) bool {
	i := slices.IndexFunc(m.formats, func(f Format) bool { return f.FourCC == format })
	if i < 0 {
		return false
	}
	mods := m.formats[i].Modifiers
	return (len(mods) == 0) || slices.Contains(mods, modifier)
}

func (m *Manager) bind(c *wl.Client, version, id uint32) error {
	r := dmabufResource{manager: m}
	r.Init(c, Interface, version, id)
	err := c.Add(&r)
	if err != nil {
		return err
	}

	for _, f := range m.formats {
		msg := r.NewEvent(0)
		msg.WriteUint(f.FourCC)
		r.Send(msg)

		if version < 3 {
			continue
		}
		mods := f.Modifiers
		if len(mods) == 0 {
			mods = []uint64{ModifierInvalid}
		}
		for _, mod := range mods {
			msg := r.NewEvent(1)
			msg.WriteUint(f.FourCC)
			msg.WriteUint(uint32(mod >> 32))
			msg.WriteUint(uint32(mod & 0xFFFFFFFF))
			r.Send(msg)
		}
	}

	return nil
}

type dmabufResource struct {
	wl.Resource
	manager *Manager
}

func (r *dmabufResource) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		r.Destroy()
		return nil

	case 1:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}

		return newParams(r.Client(), r.manager, r.Version(), id)

	default:
		return wire.UnknownOpError{Interface: Interface, Type: "request", Op: msg.Op()}
	}
}
