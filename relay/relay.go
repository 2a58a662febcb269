// Package relay runs an embedded protocol server that passes buffers
// committed by out-of-process renderers on to the host.
//
// An Instance serves wl_compositor and wpe_bridge. A client connects
// one of its surfaces over wpe_bridge and receives an ID, which it
// hands to the host out of band. The host then registers an
// ExportableClient under that ID and from then on receives every
// buffer that the surface commits, which it can import with
// CreateImage or CreateDMABufImage.
//
// All methods must be called from the goroutine that runs the
// main loop that the Instance is attached to. Use Invoke from other
// goroutines.
package relay

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"reflect"
	"sync/atomic"

	"deedles.dev/wlexport/egl"
	"deedles.dev/wlexport/mainloop"
	wl "deedles.dev/wlexport/server"
	"deedles.dev/wlexport/wire"
	"golang.org/x/sys/unix"
)

var (
	ErrInstanceExists   = errors.New("an instance already exists")
	ErrNotInitialized   = errors.New("no display has been bound")
	ErrDisplayConflict  = errors.New("multiple displays are not supported")
	ErrMissingExtension = errors.New("missing extension")
	ErrBindFailed       = errors.New("binding display failed")
)

// fatalExitCode is the status that the process exits with when the
// embedder breaks the registration contract.
const fatalExitCode = 134

var live atomic.Bool

// Instance is the server. Only one may exist at a time.
type Instance struct {
	logger *slog.Logger
	config Config

	server     *wl.Server
	loop       *mainloop.Loop
	attachment *mainloop.Attachment
	compositor *wl.Global
	bridge     *wl.Global
	backend    Backend

	display      egl.Display
	createImage  egl.CreateImageFunc
	destroyImage egl.DestroyImageFunc

	surfaces   map[*wl.Surface]*Surface
	views      map[uint32]*view
	lastViewID uint32

	closed bool
}

// New creates the Instance and attaches it to loop. It fails with
// ErrInstanceExists if another Instance has not been closed yet.
func New(loop *mainloop.Loop, opts ...Option) (*Instance, error) {
	if !live.CompareAndSwap(false, true) {
		return nil, ErrInstanceExists
	}

	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	server, err := wl.New()
	if err != nil {
		live.Store(false)
		return nil, fmt.Errorf("create server: %w", err)
	}

	inst := Instance{
		logger:   config.Logger,
		config:   config,
		server:   server,
		loop:     loop,
		surfaces: make(map[*wl.Surface]*Surface),
		views:    make(map[uint32]*view),
	}
	inst.backend = newBackend(&inst, config.Backend)
	inst.compositor = inst.addCompositor()
	inst.bridge = inst.addBridge()
	inst.attachment = loop.Attach(&source{inst: &inst})

	inst.logger.Debug("instance created", "backend", config.Backend, "priority", config.SourcePriority)
	return &inst, nil
}

// Server returns the protocol server.
func (inst *Instance) Server() *wl.Server {
	return inst.server
}

// Backend returns the buffer import backend.
func (inst *Instance) Backend() Backend {
	return inst.backend
}

// Initialize binds the display that buffers are imported into. Only
// one display can ever be bound. Binding the same display again does
// nothing. On failure, nothing is changed.
func (inst *Instance) Initialize(d egl.Display) error {
	if d == nil {
		return fmt.Errorf("%w: no display", ErrBindFailed)
	}
	if sameDisplay(inst.display, d) {
		return nil
	}
	if inst.display != nil {
		inst.logger.Error("refusing to bind a second display")
		return ErrDisplayConflict
	}

	err := inst.backend.initialize(d)
	if err != nil {
		inst.logger.Warn("initialize failed", "backend", inst.config.Backend, "err", err)
		return err
	}

	inst.display = d
	inst.logger.Info("display bound", "backend", inst.config.Backend)
	return nil
}

// sameDisplay reports whether a and b are the same display. Displays
// of types that can't be compared with == are equal if their contents
// are deeply equal.
func sameDisplay(a, b egl.Display) bool {
	if (a == nil) || (b == nil) {
		return false
	}

	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) {
		return false
	}
	if t.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// Display returns the bound display, or nil.
func (inst *Instance) Display() egl.Display {
	return inst.display
}

// CreateClient creates a new client connection and returns the
// descriptor of the client's end of it. The caller owns the
// descriptor. It returns -1 if no display has been bound yet or if the
// connection could not be created.
func (inst *Instance) CreateClient() (int, error) {
	if inst.display == nil {
		return -1, ErrNotInitialized
	}

	sfd, cfd, err := wire.Pair()
	if err != nil {
		return -1, err
	}

	client, err := inst.server.CreateClient(sfd)
	if err != nil {
		unix.Close(cfd)
		return -1, fmt.Errorf("create client: %w", err)
	}

	inst.logger.Debug("client created", "client", client)
	return cfd, nil
}

// Clients iterates over the connected clients.
func (inst *Instance) Clients() iter.Seq[*wl.Client] {
	return inst.server.Clients()
}

// RegisterViewBackend attaches ec to the surface that was given id by
// the bridge and returns that surface's client. Registering an id that
// the bridge never handed out is a programming error and terminates
// the process.
func (inst *Instance) RegisterViewBackend(id uint32, ec ExportableClient) *wl.Client {
	v, ok := inst.views[id]
	if !ok {
		inst.logger.Error("registering a view backend for an unknown id", "id", id)
		os.Exit(fatalExitCode)
	}

	v.exportable = ec
	v.surface.viewID = id
	inst.logger.Debug("view backend registered", "id", id, "surface", v.surface.resource)
	return v.surface.resource.Client()
}

// UnregisterViewBackend detaches whatever was registered under id and
// forgets the id. Unknown ids are ignored.
func (inst *Instance) UnregisterViewBackend(id uint32) {
	v, ok := inst.views[id]
	if !ok {
		return
	}

	delete(inst.views, id)
	if v.surface.viewID == id {
		v.surface.viewID = 0
	}
	inst.logger.Debug("view backend unregistered", "id", id)
}

// Invoke runs f on the main loop's goroutine. It may be called from
// any goroutine.
func (inst *Instance) Invoke(f func()) {
	inst.loop.Invoke(f)
}

// Close detaches the Instance from its loop, disconnects all clients
// and releases the single-instance guard.
func (inst *Instance) Close() error {
	if inst.closed {
		return nil
	}
	inst.closed = true
	defer live.Store(false)

	inst.backend.teardown()
	inst.attachment.Detach()
	inst.compositor.Remove()
	inst.bridge.Remove()

	if inst.display != nil {
		unbind, ok := egl.Resolve[egl.UnbindWaylandDisplayFunc](inst.display, egl.ProcUnbindWaylandDisplay)
		if ok {
			unbind(inst.server)
		}
	}

	return inst.server.Close()
}
