package relay

import (
	"deedles.dev/wlexport/dmabuf"
	wl "deedles.dev/wlexport/server"
)

// ExportableClient consumes the buffers that a surface commits. It is
// implemented by the host's view backend.
type ExportableClient interface {
	// FrameCallback is given every frame callback that the surface
	// requests. The receiver must call Done exactly once when the next
	// frame has been presented.
	FrameCallback(cb *wl.Callback)

	// ExportBufferResource is called when a legacy buffer is
	// committed. buf is nil if the client committed without a buffer.
	// The receiver is responsible for releasing buf.
	ExportBufferResource(buf *wl.Buffer)

	// ExportLinuxDmabuf is called when a dma-buf buffer is committed.
	ExportLinuxDmabuf(buf *dmabuf.Buffer)

	// ExportEGLStreamProducer is called when the client attaches an
	// EGLStream to the surface. It is only used by BackendEGLStream.
	ExportEGLStreamProducer(buf *wl.Buffer)
}

type view struct {
	surface    *Surface
	exportable ExportableClient
}
