package wire

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type testObject uint32

func (obj testObject) ID() uint32                        { return uint32(obj) }
func (obj testObject) Interface() string                 { return "test_object" }
func (obj testObject) Dispatch(msg *MessageBuffer) error { return nil }

func newPair(t *testing.T) (*Conn, *Conn) {
	t.Helper()

	sfd, cfd, err := Pair()
	require.NoError(t, err)

	server, err := NewConn(sfd)
	require.NoError(t, err)
	client, err := NewConn(cfd)
	require.NoError(t, err)

	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}

func TestRoundTrip(t *testing.T) {
	server, client := newPair(t)

	file, err := os.CreateTemp(t.TempDir(), "fd")
	require.NoError(t, err)
	defer file.Close()
	_, err = file.WriteString("payload")
	require.NoError(t, err)

	msg := NewMessage(testObject(7), 3)
	msg.WriteUint(42)
	msg.WriteInt(-5)
	msg.WriteString("wl_surface")
	msg.WriteArray([]byte{1, 2, 3})
	msg.WriteFile(file)
	msg.WriteNewID(NewID{Interface: "wl_compositor", Version: 4, ID: 9})
	require.NoError(t, msg.Build(client))
	require.True(t, client.Pending())
	require.NoError(t, client.Flush())
	require.False(t, client.Pending())

	require.NoError(t, server.Fill())
	buf, err := server.Next()
	require.NoError(t, err)
	require.NotNil(t, buf)

	assert.Equal(t, uint32(7), buf.Sender())
	assert.Equal(t, uint16(3), buf.Op())
	assert.Equal(t, uint32(42), buf.ReadUint())
	assert.Equal(t, int32(-5), buf.ReadInt())
	assert.Equal(t, "wl_surface", buf.ReadString())
	assert.Equal(t, []byte{1, 2, 3}, buf.ReadArray())

	received := buf.ReadFile()
	require.NotNil(t, received)
	defer received.Close()
	data := make([]byte, 7)
	_, err = unix.Pread(int(received.Fd()), data, 0)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	assert.Equal(t, NewID{Interface: "wl_compositor", Version: 4, ID: 9}, buf.ReadNewID())
	require.NoError(t, buf.Err())

	next, err := server.Next()
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestPartialMessage(t *testing.T) {
	server, client := newPair(t)

	msg := NewMessage(testObject(1), 0)
	msg.WriteUint(1)
	msg.WriteUint(2)
	require.NoError(t, msg.Build(client))

	whole := client.out
	client.out = whole[:10]
	require.NoError(t, client.Flush())

	require.NoError(t, server.Fill())
	buf, err := server.Next()
	require.NoError(t, err)
	assert.Nil(t, buf)

	client.out = whole[10:]
	require.NoError(t, client.Flush())
	require.NoError(t, server.Fill())
	buf, err = server.Next()
	require.NoError(t, err)
	require.NotNil(t, buf)
	assert.Equal(t, uint32(1), buf.ReadUint())
	assert.Equal(t, uint32(2), buf.ReadUint())
}

func TestShortArguments(t *testing.T) {
	server, client := newPair(t)

	msg := NewMessage(testObject(1), 0)
	msg.WriteUint(1)
	require.NoError(t, msg.Build(client))
	require.NoError(t, client.Flush())

	require.NoError(t, server.Fill())
	buf, err := server.Next()
	require.NoError(t, err)
	buf.ReadUint()
	buf.ReadUint()
	assert.ErrorIs(t, buf.Err(), io.ErrUnexpectedEOF)
}

func TestEOF(t *testing.T) {
	server, client := newPair(t)
	require.NoError(t, unix.Close(client.fd))
	client.fd = -1

	assert.ErrorIs(t, server.Fill(), io.EOF)
}

func TestInvalidSize(t *testing.T) {
	server, client := newPair(t)

	client.out = []byte{1, 0, 0, 0, 0, 0, 4, 0}
	require.NoError(t, client.Flush())
	require.NoError(t, server.Fill())

	_, err := server.Next()
	assert.ErrorAs(t, err, &InvalidSizeError{})
}

func TestOversizedLength(t *testing.T) {
	tests := []struct {
		name   string
		length []byte
		read   func(*MessageBuffer)
	}{
		{"StringMax", []byte{0xff, 0xff, 0xff, 0xff}, func(buf *MessageBuffer) { buf.ReadString() }},
		{"StringWrap", []byte{0xfd, 0xff, 0xff, 0xff}, func(buf *MessageBuffer) { buf.ReadString() }},
		{"StringLarge", []byte{0xfc, 0xff, 0xff, 0x7f}, func(buf *MessageBuffer) { buf.ReadString() }},
		{"ArrayMax", []byte{0xff, 0xff, 0xff, 0xff}, func(buf *MessageBuffer) { buf.ReadArray() }},
		{"ArrayWrap", []byte{0xfd, 0xff, 0xff, 0xff}, func(buf *MessageBuffer) { buf.ReadArray() }},
		{"ArrayLarge", []byte{0xfc, 0xff, 0xff, 0x7f}, func(buf *MessageBuffer) { buf.ReadArray() }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server, client := newPair(t)

			header := NewMessage(testObject(2), 0)
			header.WriteUint(0)
			require.NoError(t, header.Build(client))
			copy(client.out[len(client.out)-4:], test.length)
			require.NoError(t, client.Flush())

			require.NoError(t, server.Fill())
			buf, err := server.Next()
			require.NoError(t, err)
			assert.NotPanics(t, func() { test.read(buf) })
			assert.ErrorIs(t, buf.Err(), io.ErrUnexpectedEOF)
		})
	}
}
