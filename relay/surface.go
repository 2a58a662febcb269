package relay

import (
	"deedles.dev/wlexport/dmabuf"
	wl "deedles.dev/wlexport/server"
)

// Surface is the relay's state for a wl_surface. Buffers are held
// until commit, when they are passed to the surface's ExportableClient
// if it has one.
type Surface struct {
	inst     *Instance
	resource *wl.Surface
	viewID   uint32
	buffer   *wl.Buffer
	dmabuf   *dmabuf.Buffer
}

func (inst *Instance) newSurface(res *wl.Surface) *Surface {
	s := Surface{inst: inst, resource: res}
	res.Handler = s.handle
	res.OnDestroy(func() { delete(inst.surfaces, res) })
	inst.surfaces[res] = &s
	return &s
}

// Resource returns the surface's protocol object.
func (s *Surface) Resource() *wl.Surface {
	return s.resource
}

// exportable returns the ExportableClient registered for the surface.
func (s *Surface) exportable() ExportableClient {
	if s.viewID == 0 {
		return nil
	}
	v, ok := s.inst.views[s.viewID]
	if !ok || (v.surface != s) {
		return nil
	}
	return v.exportable
}

func (s *Surface) handle(req wl.SurfaceRequest) error {
	switch req := req.(type) {
	case wl.SurfaceAttach:
		s.inst.backend.surfaceAttach(s, req.Buffer)

	case wl.SurfaceCommit:
		s.inst.backend.surfaceCommit(s)

	case wl.SurfaceFrame:
		if ec := s.exportable(); ec != nil {
			ec.FrameCallback(req.Callback)
		}

	case wl.SurfaceDestroy:
		// The correlation entry stays until the host unregisters it.
	}

	return nil
}

// pendingDMABuf returns the pending dma-buf buffer, forgetting it if
// its wl_buffer has since been destroyed.
func (s *Surface) pendingDMABuf() *dmabuf.Buffer {
	if (s.dmabuf != nil) && s.dmabuf.Resource().Destroyed() {
		s.dmabuf = nil
	}
	return s.dmabuf
}

func (s *Surface) pendingBuffer() *wl.Buffer {
	if (s.buffer != nil) && s.buffer.Destroyed() {
		s.buffer = nil
	}
	return s.buffer
}

func (s *Surface) attachLegacy(buf *wl.Buffer) {
	s.dmabuf = nil
	if prev := s.pendingBuffer(); (prev != nil) && (prev != buf) {
		prev.Release()
	}
	s.buffer = buf
}

// drop discards the pending buffers of a surface that has no
// exportable client. The legacy buffer is released so that the client
// may reuse it. That release is the only effect the client can see.
func (s *Surface) drop() {
	if buf := s.pendingBuffer(); buf != nil {
		buf.Release()
	}
	s.buffer = nil
	s.dmabuf = nil
}

func (s *Surface) commitLegacy(ec ExportableClient) {
	buf := s.pendingBuffer()
	s.buffer = nil
	ec.ExportBufferResource(buf)
}
