package shm_test

import (
	"testing"

	"deedles.dev/wlexport/internal/wltest"
	wl "deedles.dev/wlexport/server"
	"deedles.dev/wlexport/shm"
	"deedles.dev/wlexport/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func setup(t *testing.T) (*wl.Client, *wltest.Client, wltest.Object) {
	t.Helper()

	srv, err := wl.New()
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	shm.AddGlobal(srv)

	sfd, cfd, err := wire.Pair()
	require.NoError(t, err)
	client, err := srv.CreateClient(sfd)
	require.NoError(t, err)

	tc := wltest.New(t, cfd, func() {
		require.NoError(t, srv.Dispatch(0))
		srv.FlushClients()
	})
	obj := tc.Bind(shm.Interface, 1)
	return client, tc, obj
}

func TestFormats(t *testing.T) {
	_, tc, obj := setup(t)
	require.True(t, tc.Roundtrip())

	evs := tc.Take(obj, 0)
	require.Len(t, evs, 2)
	assert.Equal(t, shm.FormatARGB8888, evs[0].ReadUint())
	assert.Equal(t, shm.FormatXRGB8888, evs[1].ReadUint())
}

func TestBuffer(t *testing.T) {
	client, tc, obj := setup(t)

	const w, h, stride = 2, 2, 12
	file, err := shm.Create("shm-test", stride*h)
	require.NoError(t, err)
	defer file.Close()

	mmap, err := shm.Map(file, stride*h, unix.PROT_READ|unix.PROT_WRITE)
	require.NoError(t, err)
	defer mmap.Unmap()
	copy(mmap[stride:], []byte{0x80, 0x80, 0x80, 0xFF, 0x40, 0x40, 0x40, 0xFF})

	pool := tc.NewObject(shm.PoolInterface)
	tc.Send(obj, 0, pool, file, int32(stride*h))
	buffer := tc.NewObject(wl.BufferInterface)
	tc.Send(pool, 0, buffer, int32(0), int32(w), int32(h), int32(stride), shm.FormatARGB8888)
	tc.Send(pool, 1)
	require.True(t, tc.Roundtrip())

	res, ok := client.Get(buffer.ID())
	require.True(t, ok)
	buf, ok := shm.Get(res.(*wl.Buffer))
	require.True(t, ok)
	assert.Equal(t, int32(w), buf.Width())
	assert.Equal(t, int32(h), buf.Height())
	assert.Equal(t, int32(stride), buf.Stride())
	assert.Len(t, buf.Data(), stride*h)

	img := buf.Image()
	assert.Equal(t, 2, img.Bounds().Dx())
	r, g, b, a := img.At(0, 1).RGBA()
	assert.Equal(t, []uint32{0x8080, 0x8080, 0x8080, 0xFFFF}, []uint32{r, g, b, a})
	r, _, _, _ = img.At(0, 0).RGBA()
	assert.Zero(t, r)
}

func TestInvalidStride(t *testing.T) {
	_, tc, obj := setup(t)

	file, err := shm.Create("shm-test", 64)
	require.NoError(t, err)
	defer file.Close()

	pool := tc.NewObject(shm.PoolInterface)
	tc.Send(obj, 0, pool, file, int32(64))
	tc.Send(pool, 0, tc.NewObject(wl.BufferInterface), int32(0), int32(4), int32(4), int32(8), shm.FormatARGB8888)
	require.False(t, tc.Roundtrip())

	perr, ok := tc.Error()
	require.True(t, ok)
	assert.Equal(t, pool.ID(), perr.Object)
	assert.Equal(t, shm.ErrorInvalidStride, perr.Code)
}

func TestInvalidFormat(t *testing.T) {
	_, tc, obj := setup(t)

	file, err := shm.Create("shm-test", 64)
	require.NoError(t, err)
	defer file.Close()

	pool := tc.NewObject(shm.PoolInterface)
	tc.Send(obj, 0, pool, file, int32(64))
	tc.Send(pool, 0, tc.NewObject(wl.BufferInterface), int32(0), int32(4), int32(4), int32(16), uint32(0x3231564E))
	require.False(t, tc.Roundtrip())

	perr, ok := tc.Error()
	require.True(t, ok)
	assert.Equal(t, shm.ErrorInvalidFormat, perr.Code)
}

func TestShrinkPool(t *testing.T) {
	_, tc, obj := setup(t)

	file, err := shm.Create("shm-test", 64)
	require.NoError(t, err)
	defer file.Close()

	pool := tc.NewObject(shm.PoolInterface)
	tc.Send(obj, 0, pool, file, int32(64))
	tc.Send(pool, 2, int32(32))
	require.False(t, tc.Roundtrip())

	perr, ok := tc.Error()
	require.True(t, ok)
	assert.Equal(t, shm.ErrorInvalidStride, perr.Code)
}
