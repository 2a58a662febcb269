package relay_test

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"deedles.dev/wlexport/bridge"
	"deedles.dev/wlexport/dmabuf"
	"deedles.dev/wlexport/egl/softegl"
	"deedles.dev/wlexport/internal/wltest"
	"deedles.dev/wlexport/mainloop"
	"deedles.dev/wlexport/relay"
	wl "deedles.dev/wlexport/server"
	"deedles.dev/wlexport/shm"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type recorder struct {
	frames  []*wl.Callback
	buffers []*wl.Buffer
	dmabufs []*dmabuf.Buffer
	streams []*wl.Buffer
}

func (r *recorder) FrameCallback(cb *wl.Callback) {
	r.frames = append(r.frames, cb)
}

func (r *recorder) ExportBufferResource(buf *wl.Buffer) {
	r.buffers = append(r.buffers, buf)
}

func (r *recorder) ExportLinuxDmabuf(buf *dmabuf.Buffer) {
	r.dmabufs = append(r.dmabufs, buf)
}

func (r *recorder) ExportEGLStreamProducer(buf *wl.Buffer) {
	r.streams = append(r.streams, buf)
}

func (r *recorder) calls() int {
	return len(r.frames) + len(r.buffers) + len(r.dmabufs) + len(r.streams)
}

type env struct {
	t       *testing.T
	loop    *mainloop.Loop
	inst    *relay.Instance
	display *softegl.Display
}

func newEnv(t *testing.T, opts ...relay.Option) *env {
	t.Helper()

	loop, err := mainloop.New()
	require.NoError(t, err)
	t.Cleanup(func() { loop.Close() })

	opts = append([]relay.Option{relay.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	inst, err := relay.New(loop, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { inst.Close() })

	return &env{t: t, loop: loop, inst: inst}
}

func newInitializedEnv(t *testing.T, opts ...relay.Option) *env {
	t.Helper()

	e := newEnv(t, opts...)
	e.display = softegl.New()
	require.NoError(t, e.inst.Initialize(e.display))
	return e
}

func (e *env) pump() {
	e.loop.Iterate(false)
}

func (e *env) connect() *wltest.Client {
	e.t.Helper()

	fd, err := e.inst.CreateClient()
	require.NoError(e.t, err)
	return wltest.New(e.t, fd, e.pump)
}

// surface creates a surface and connects it over the bridge,
// returning the surface and its view ID.
func (e *env) surface(tc *wltest.Client) (wltest.Object, uint32) {
	e.t.Helper()

	comp := tc.Bind(wl.CompositorInterface, 4)
	surface := tc.NewObject(wl.SurfaceInterface)
	tc.Send(comp, 0, surface)

	b := tc.Bind(bridge.Interface, 1)
	tc.Send(b, 0, surface)
	require.True(e.t, tc.Roundtrip())

	connected := tc.Take(b, 0)
	require.Len(e.t, connected, 1)
	id := connected[0].ReadUint()
	require.NoError(e.t, connected[0].Err())
	return surface, id
}

// shmBuffer creates a 1x1 wl_shm buffer.
func (e *env) shmBuffer(tc *wltest.Client) wltest.Object {
	e.t.Helper()

	file, err := shm.Create("relay-test", 4)
	require.NoError(e.t, err)
	defer file.Close()

	wlshm := tc.Bind(shm.Interface, 1)
	pool := tc.NewObject(shm.PoolInterface)
	tc.Send(wlshm, 0, pool, file, int32(4))
	buffer := tc.NewObject(wl.BufferInterface)
	tc.Send(pool, 0, buffer, int32(0), int32(1), int32(1), int32(4), shm.FormatARGB8888)
	tc.Send(pool, 1)
	return buffer
}

// dmabufBuffer creates a 2x2 single-plane linear ARGB8888 dma-buf
// buffer backed by a memfd.
func (e *env) dmabufBuffer(tc *wltest.Client) wltest.Object {
	e.t.Helper()

	fd, err := unix.MemfdCreate("relay-test", unix.MFD_CLOEXEC)
	require.NoError(e.t, err)
	file := os.NewFile(uintptr(fd), "relay-test")
	defer file.Close()
	require.NoError(e.t, file.Truncate(16))

	obj := tc.Bind(dmabuf.Interface, 3)
	params := tc.NewObject(dmabuf.ParamsInterface)
	tc.Send(obj, 1, params)
	tc.Send(params, 1, file, uint32(0), uint32(0), uint32(8), uint32(0), uint32(0))
	buffer := tc.NewObject(wl.BufferInterface)
	tc.Send(params, 3, buffer, int32(2), int32(2), dmabuf.FormatARGB8888, uint32(0))
	return buffer
}

func (e *env) buffer(client *wl.Client, obj wltest.Object) *wl.Buffer {
	e.t.Helper()

	res, ok := client.Get(obj.ID())
	require.True(e.t, ok)
	buf, ok := res.(*wl.Buffer)
	require.True(e.t, ok)
	return buf
}

func (e *env) onlyClient() *wl.Client {
	e.t.Helper()

	var clients []*wl.Client
	for c := range e.inst.Clients() {
		clients = append(clients, c)
	}
	require.Len(e.t, clients, 1)
	return clients[0]
}
