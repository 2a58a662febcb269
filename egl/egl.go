// Package egl describes the display that client buffers are imported
// into. Implementations wrap a real EGL display or, as with softegl,
// emulate one. Only the pieces of EGL that buffer import needs are
// modeled: the extension string, function lookup and image handles.
package egl

import (
	"slices"
	"strings"

	"deedles.dev/wlexport/dmabuf"
	wl "deedles.dev/wlexport/server"
)

// Extension names.
const (
	ExtBindWaylandDisplay = "EGL_WL_bind_wayland_display"
	ExtImageBase          = "EGL_KHR_image_base"
	ExtImageDMABufImport  = "EGL_EXT_image_dma_buf_import"
)

// Function names looked up with Display.Proc.
const (
	ProcBindWaylandDisplay   = "eglBindWaylandDisplayWL"
	ProcUnbindWaylandDisplay = "eglUnbindWaylandDisplayWL"
	ProcCreateImage          = "eglCreateImageKHR"
	ProcDestroyImage         = "eglDestroyImageKHR"
)

// Display is an import display.
type Display interface {
	// Extensions returns the space-separated extension string.
	Extensions() string

	// Proc returns the named function, which must be of the matching
	// Func type in this package, or nil if it is not available.
	Proc(name string) any
}

// FormatQuerier is implemented by displays that can report which
// dma-buf formats they are able to import.
type FormatQuerier interface {
	DMABufFormats() []dmabuf.Format
}

// Image is a handle to an imported image. NoImage is the null handle.
type Image uintptr

const NoImage Image = 0

type (
	BindWaylandDisplayFunc   func(srv *wl.Server) bool
	UnbindWaylandDisplayFunc func(srv *wl.Server) bool

	// CreateImageFunc imports buffer as target, configured by the
	// NONE-terminated attribute list attribs. buffer is a *wl.Buffer
	// for TargetWaylandBuffer and nil for TargetLinuxDMABuf.
	CreateImageFunc func(target uint32, buffer any, attribs []int32) Image

	DestroyImageFunc func(img Image) bool
)

// HasExtension reports whether d advertises the named extension.
func HasExtension(d Display, name string) bool {
	return slices.Contains(strings.Fields(d.Extensions()), name)
}

// Resolve looks up a function and checks that it has the expected
// type.
func Resolve[F any](d Display, name string) (f F, ok bool) {
	p := d.Proc(name)
	if p == nil {
		return f, false
	}
	f, ok = p.(F)
	return f, ok
}
