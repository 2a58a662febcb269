package relay

import (
	"errors"
	"fmt"

	"deedles.dev/wlexport/dmabuf"
	"deedles.dev/wlexport/egl"
	"deedles.dev/wlexport/eglstream"
	wl "deedles.dev/wlexport/server"
)

var errImportFailed = errors.New("display cannot import buffer")

// Backend is the buffer import strategy of an Instance. It is either
// *DefaultBackend or *EGLStreamBackend.
type Backend interface {
	// Initialized reports whether a display has been bound.
	Initialized() bool

	initialize(d egl.Display) error
	surfaceAttach(s *Surface, buf *wl.Buffer)
	surfaceCommit(s *Surface)
	teardown()
}

func newBackend(inst *Instance, kind BackendKind) Backend {
	switch kind {
	case BackendEGLStream:
		return &EGLStreamBackend{inst: inst}
	default:
		return &DefaultBackend{inst: inst}
	}
}

// bindDisplay probes d for the extensions that every backend needs,
// binds it to the server and records its image functions. If
// requireImages is false, missing image functions are tolerated.
func (inst *Instance) bindDisplay(d egl.Display, requireImages bool) error {
	var bind egl.BindWaylandDisplayFunc
	if egl.HasExtension(d, egl.ExtBindWaylandDisplay) {
		bind, _ = egl.Resolve[egl.BindWaylandDisplayFunc](d, egl.ProcBindWaylandDisplay)
	}
	if bind == nil {
		return fmt.Errorf("%w: %v", ErrMissingExtension, egl.ExtBindWaylandDisplay)
	}

	var create egl.CreateImageFunc
	var destroy egl.DestroyImageFunc
	if egl.HasExtension(d, egl.ExtImageBase) {
		create, _ = egl.Resolve[egl.CreateImageFunc](d, egl.ProcCreateImage)
		destroy, _ = egl.Resolve[egl.DestroyImageFunc](d, egl.ProcDestroyImage)
	}
	if ((create == nil) || (destroy == nil)) && requireImages {
		return fmt.Errorf("%w: %v", ErrMissingExtension, egl.ExtImageBase)
	}

	if !bind(inst.server) {
		return ErrBindFailed
	}

	if (create != nil) && (destroy != nil) {
		inst.createImage = create
		inst.destroyImage = destroy
	}
	return nil
}

// DefaultBackend imports legacy buffers through the display's
// wl_buffer binding and serves zwp_linux_dmabuf_v1.
type DefaultBackend struct {
	inst        *Instance
	dmabuf      *dmabuf.Manager
	initialized bool
}

func (b *DefaultBackend) Initialized() bool {
	return b.initialized
}

// DMABuf returns the dma-buf manager, which is nil until a display
// has been bound.
func (b *DefaultBackend) DMABuf() *dmabuf.Manager {
	return b.dmabuf
}

func (b *DefaultBackend) initialize(d egl.Display) error {
	err := b.inst.bindDisplay(d, true)
	if err != nil {
		return err
	}

	formats := b.inst.config.DMABufFormats
	if q, ok := d.(egl.FormatQuerier); ok && (len(formats) == 0) {
		formats = q.DMABufFormats()
	}
	b.dmabuf = dmabuf.Setup(b.inst.server, formats)
	b.dmabuf.Validate = b.validate
	b.initialized = true
	return nil
}

// validate checks that the display can import buf before the client
// is allowed to use it.
func (b *DefaultBackend) validate(buf *dmabuf.Buffer) error {
	img := b.inst.createImage(egl.TargetLinuxDMABuf, nil, egl.DMABufAttribs(buf.Attributes()))
	if img == egl.NoImage {
		return errImportFailed
	}
	b.inst.destroyImage(img)
	return nil
}

func (b *DefaultBackend) surfaceAttach(s *Surface, buf *wl.Buffer) {
	if d, ok := dmabuf.Get(buf); ok {
		s.dmabuf = d
		return
	}
	s.attachLegacy(buf)
}

func (b *DefaultBackend) surfaceCommit(s *Surface) {
	ec := s.exportable()
	if ec == nil {
		s.drop()
		return
	}

	if d := s.pendingDMABuf(); d != nil {
		ec.ExportLinuxDmabuf(d)
		return
	}
	s.commitLegacy(ec)
}

func (b *DefaultBackend) teardown() {
	if b.dmabuf != nil {
		b.dmabuf.Teardown()
		b.dmabuf = nil
	}
}

// EGLStreamBackend serves wl_eglstream_controller. All attached
// buffers are treated as legacy buffers.
type EGLStreamBackend struct {
	inst        *Instance
	controller  *wl.Global
	initialized bool
}

func (b *EGLStreamBackend) Initialized() bool {
	return b.initialized
}

func (b *EGLStreamBackend) initialize(d egl.Display) error {
	err := b.inst.bindDisplay(d, false)
	if err != nil {
		return err
	}

	b.controller = eglstream.AddGlobal(b.inst.server, func(ctrl *eglstream.Controller) {
		ctrl.Handler = b.attachConsumer
	})
	b.initialized = true
	return nil
}

func (b *EGLStreamBackend) attachConsumer(req eglstream.AttachConsumer) error {
	s, ok := b.inst.surfaces[req.Surface]
	if !ok {
		return nil
	}

	if ec := s.exportable(); ec != nil {
		ec.ExportEGLStreamProducer(req.Buffer)
	}
	return nil
}

func (b *EGLStreamBackend) surfaceAttach(s *Surface, buf *wl.Buffer) {
	s.attachLegacy(buf)
}

func (b *EGLStreamBackend) surfaceCommit(s *Surface) {
	ec := s.exportable()
	if ec == nil {
		s.drop()
		return
	}
	s.commitLegacy(ec)
}

func (b *EGLStreamBackend) teardown() {
	if b.controller != nil {
		b.controller.Remove()
		b.controller = nil
	}
}
