package dmabuf_test

import (
	"errors"
	"os"
	"testing"

	"deedles.dev/wlexport/dmabuf"
	"deedles.dev/wlexport/internal/wltest"
	wl "deedles.dev/wlexport/server"
	"deedles.dev/wlexport/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func setup(t *testing.T, formats []dmabuf.Format) (*dmabuf.Manager, *wl.Client, *wltest.Client) {
	t.Helper()

	srv, err := wl.New()
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	m := dmabuf.Setup(srv, formats)

	sfd, cfd, err := wire.Pair()
	require.NoError(t, err)
	client, err := srv.CreateClient(sfd)
	require.NoError(t, err)

	tc := wltest.New(t, cfd, func() {
		require.NoError(t, srv.Dispatch(0))
		srv.FlushClients()
	})
	return m, client, tc
}

func memfd(t *testing.T, size int64) *os.File {
	t.Helper()

	fd, err := unix.MemfdCreate("dmabuf-test", unix.MFD_CLOEXEC)
	require.NoError(t, err)
	f := os.NewFile(uintptr(fd), "dmabuf-test")
	t.Cleanup(func() { f.Close() })
	require.NoError(t, f.Truncate(size))
	return f
}

func TestFormats(t *testing.T) {
	_, _, tc := setup(t, nil)

	obj := tc.Bind(dmabuf.Interface, 3)
	require.True(t, tc.Roundtrip())

	formats := tc.Take(obj, 0)
	require.Len(t, formats, 2)
	assert.Equal(t, dmabuf.FormatARGB8888, formats[0].ReadUint())
	assert.Equal(t, dmabuf.FormatXRGB8888, formats[1].ReadUint())

	mods := tc.Take(obj, 1)
	require.Len(t, mods, 2)
	assert.Equal(t, dmabuf.FormatARGB8888, mods[0].ReadUint())
	assert.Equal(t, uint32(0), mods[0].ReadUint())
	assert.Equal(t, uint32(0), mods[0].ReadUint())
}

func TestFormatsWithoutModifiers(t *testing.T) {
	_, _, tc := setup(t, []dmabuf.Format{{FourCC: dmabuf.FormatXRGB8888}})

	obj := tc.Bind(dmabuf.Interface, 3)
	require.True(t, tc.Roundtrip())

	mods := tc.Take(obj, 1)
	require.Len(t, mods, 1)
	assert.Equal(t, dmabuf.FormatXRGB8888, mods[0].ReadUint())
	assert.Equal(t, uint32(dmabuf.ModifierInvalid>>32), mods[0].ReadUint())
	assert.Equal(t, uint32(dmabuf.ModifierInvalid&0xFFFFFFFF), mods[0].ReadUint())
}

func TestVersion2OmitsModifiers(t *testing.T) {
	_, _, tc := setup(t, nil)

	obj := tc.Bind(dmabuf.Interface, 2)
	require.True(t, tc.Roundtrip())

	assert.Len(t, tc.Take(obj, 0), 2)
	assert.Empty(t, tc.Take(obj, 1))
}

func TestCreateImmed(t *testing.T) {
	_, client, tc := setup(t, nil)

	obj := tc.Bind(dmabuf.Interface, 3)
	params := tc.NewObject(dmabuf.ParamsInterface)
	tc.Send(obj, 1, params)
	tc.Send(params, 1, memfd(t, 64*16*4), uint32(0), uint32(0), uint32(64*4), uint32(0), uint32(0))
	buffer := tc.NewObject(wl.BufferInterface)
	tc.Send(params, 3, buffer, int32(64), int32(16), dmabuf.FormatARGB8888, uint32(0))
	require.True(t, tc.Roundtrip())

	_, failed := tc.Error()
	require.False(t, failed)

	obj2, ok := client.Get(buffer.ID())
	require.True(t, ok)
	res, ok := obj2.(*wl.Buffer)
	require.True(t, ok)

	buf, ok := dmabuf.Get(res)
	require.True(t, ok)
	attr := buf.Attributes()
	assert.Equal(t, int32(64), attr.Width)
	assert.Equal(t, int32(16), attr.Height)
	assert.Equal(t, dmabuf.FormatARGB8888, attr.Format)
	assert.Equal(t, 1, attr.Planes)
	assert.Equal(t, uint32(256), attr.Stride[0])
	assert.Equal(t, dmabuf.ModifierLinear, attr.Modifier[0])
	assert.Same(t, res, buf.Resource())
}

func TestCreate(t *testing.T) {
	_, client, tc := setup(t, nil)

	obj := tc.Bind(dmabuf.Interface, 3)
	params := tc.NewObject(dmabuf.ParamsInterface)
	tc.Send(obj, 1, params)
	tc.Send(params, 1, memfd(t, 4*4*4), uint32(0), uint32(0), uint32(16), uint32(0), uint32(0))
	tc.Send(params, 2, int32(4), int32(4), dmabuf.FormatXRGB8888, uint32(0))
	require.True(t, tc.Roundtrip())

	created := tc.Take(params, 0)
	require.Len(t, created, 1)
	id := created[0].ReadUint()
	assert.GreaterOrEqual(t, id, uint32(0xFF000000))

	res, ok := client.Get(id)
	require.True(t, ok)
	_, ok = dmabuf.Get(res.(*wl.Buffer))
	assert.True(t, ok)
}

func TestCreateUnsupportedFormat(t *testing.T) {
	_, _, tc := setup(t, nil)

	obj := tc.Bind(dmabuf.Interface, 3)
	params := tc.NewObject(dmabuf.ParamsInterface)
	tc.Send(obj, 1, params)
	tc.Send(params, 1, memfd(t, 64), uint32(0), uint32(0), uint32(16), uint32(0), uint32(0))
	tc.Send(params, 2, int32(4), int32(4), dmabuf.FourCC('N', 'V', '1', '2'), uint32(0))
	require.True(t, tc.Roundtrip())

	assert.Len(t, tc.Take(params, 1), 1)
	assert.Empty(t, tc.Take(params, 0))
}

func TestValidateFailure(t *testing.T) {
	m, _, tc := setup(t, nil)
	m.Validate = func(*dmabuf.Buffer) error { return errors.New("nope") }

	obj := tc.Bind(dmabuf.Interface, 3)
	params := tc.NewObject(dmabuf.ParamsInterface)
	tc.Send(obj, 1, params)
	tc.Send(params, 1, memfd(t, 64), uint32(0), uint32(0), uint32(16), uint32(0), uint32(0))
	tc.Send(params, 3, tc.NewObject(wl.BufferInterface), int32(4), int32(4), dmabuf.FormatARGB8888, uint32(0))
	require.False(t, tc.Roundtrip())

	perr, ok := tc.Error()
	require.True(t, ok)
	assert.Equal(t, params.ID(), perr.Object)
	assert.Equal(t, dmabuf.ErrorInvalidWLBuffer, perr.Code)
}

func TestParamsErrors(t *testing.T) {
	tests := []struct {
		name string
		send func(tc *wltest.Client, params wltest.Object, fd func() *os.File)
		code uint32
	}{
		{
			name: "PlaneIdx",
			send: func(tc *wltest.Client, params wltest.Object, fd func() *os.File) {
				tc.Send(params, 1, fd(), uint32(4), uint32(0), uint32(16), uint32(0), uint32(0))
			},
			code: dmabuf.ErrorPlaneIdx,
		},
		{
			name: "PlaneSet",
			send: func(tc *wltest.Client, params wltest.Object, fd func() *os.File) {
				tc.Send(params, 1, fd(), uint32(0), uint32(0), uint32(16), uint32(0), uint32(0))
				tc.Send(params, 1, fd(), uint32(0), uint32(0), uint32(16), uint32(0), uint32(0))
			},
			code: dmabuf.ErrorPlaneSet,
		},
		{
			name: "Incomplete",
			send: func(tc *wltest.Client, params wltest.Object, fd func() *os.File) {
				tc.Send(params, 2, int32(4), int32(4), dmabuf.FormatARGB8888, uint32(0))
			},
			code: dmabuf.ErrorIncomplete,
		},
		{
			name: "MissingPlane",
			send: func(tc *wltest.Client, params wltest.Object, fd func() *os.File) {
				tc.Send(params, 1, fd(), uint32(1), uint32(0), uint32(16), uint32(0), uint32(0))
				tc.Send(params, 2, int32(4), int32(4), dmabuf.FormatARGB8888, uint32(0))
			},
			code: dmabuf.ErrorIncomplete,
		},
		{
			name: "InvalidDimensions",
			send: func(tc *wltest.Client, params wltest.Object, fd func() *os.File) {
				tc.Send(params, 1, fd(), uint32(0), uint32(0), uint32(16), uint32(0), uint32(0))
				tc.Send(params, 2, int32(0), int32(4), dmabuf.FormatARGB8888, uint32(0))
			},
			code: dmabuf.ErrorInvalidDimensions,
		},
		{
			name: "OutOfBounds",
			send: func(tc *wltest.Client, params wltest.Object, fd func() *os.File) {
				tc.Send(params, 1, fd(), uint32(0), uint32(0), uint32(16), uint32(0), uint32(0))
				tc.Send(params, 2, int32(4), int32(100), dmabuf.FormatARGB8888, uint32(0))
			},
			code: dmabuf.ErrorOutOfBounds,
		},
		{
			name: "AlreadyUsed",
			send: func(tc *wltest.Client, params wltest.Object, fd func() *os.File) {
				tc.Send(params, 1, fd(), uint32(0), uint32(0), uint32(16), uint32(0), uint32(0))
				tc.Send(params, 2, int32(4), int32(4), dmabuf.FormatARGB8888, uint32(0))
				tc.Send(params, 2, int32(4), int32(4), dmabuf.FormatARGB8888, uint32(0))
			},
			code: dmabuf.ErrorAlreadyUsed,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, _, tc := setup(t, nil)

			obj := tc.Bind(dmabuf.Interface, 3)
			params := tc.NewObject(dmabuf.ParamsInterface)
			tc.Send(obj, 1, params)
			test.send(tc, params, func() *os.File { return memfd(t, 64) })
			require.False(t, tc.Roundtrip())

			perr, ok := tc.Error()
			require.True(t, ok)
			assert.Equal(t, params.ID(), perr.Object)
			assert.Equal(t, test.code, perr.Code)
		})
	}
}

func TestTeardown(t *testing.T) {
	m, _, tc := setup(t, nil)

	reg, globals := tc.Registry()
	require.Len(t, globals, 1)

	m.Teardown()
	require.True(t, tc.Roundtrip())
	assert.Len(t, tc.Take(reg, 1), 1)
}
