package relay

import (
	"log/slog"

	"deedles.dev/wlexport/dmabuf"
)

// BackendKind selects the buffer import backend.
type BackendKind int

const (
	// BackendDefault imports legacy buffers through
	// EGL_WL_bind_wayland_display and dma-bufs through
	// zwp_linux_dmabuf_v1.
	BackendDefault BackendKind = iota

	// BackendEGLStream serves wl_eglstream_controller for drivers that
	// use EGLStreams instead of dma-bufs.
	BackendEGLStream
)

func (k BackendKind) String() string {
	switch k {
	case BackendDefault:
		return "default"
	case BackendEGLStream:
		return "eglstream"
	default:
		return "unknown"
	}
}

const (
	// SourceName is the name of the main loop source.
	SourceName = "wlexport::Host"

	// DefaultSourcePriority is the main loop priority of the source.
	DefaultSourcePriority = -70
)

// Config holds the settings of an Instance.
type Config struct {
	Logger         *slog.Logger
	Backend        BackendKind
	SourcePriority int

	// DMABufFormats are advertised by the default backend. If empty,
	// the formats reported by the display are used if it implements
	// egl.FormatQuerier, and dmabuf.DefaultFormats otherwise.
	DMABufFormats []dmabuf.Format
}

func defaultConfig() Config {
	return Config{
		Logger:         slog.Default(),
		Backend:        BackendDefault,
		SourcePriority: DefaultSourcePriority,
	}
}

type Option func(*Config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

func WithBackend(kind BackendKind) Option {
	return func(c *Config) {
		c.Backend = kind
	}
}

func WithSourcePriority(priority int) Option {
	return func(c *Config) {
		c.SourcePriority = priority
	}
}

func WithDMABufFormats(formats ...dmabuf.Format) Option {
	return func(c *Config) {
		c.DMABufFormats = formats
	}
}
