// Package wltest provides a bare-bones protocol client for driving a
// server from tests. It runs in the test's goroutine: a pump function
// supplied by the test is called to let the server make progress.
package wltest

import (
	"errors"
	"io"
	"os"
	"testing"

	"deedles.dev/wlexport/wire"
)

const maxPumps = 64

// Object is a client-side object handle.
type Object struct {
	id    uint32
	iface string
}

func (obj Object) ID() uint32 {
	return obj.id
}

func (obj Object) Interface() string {
	return obj.iface
}

// Client is a test client connected to a server.
type Client struct {
	t      testing.TB
	conn   *wire.Conn
	pump   func()
	nextID uint32
	events []*wire.MessageBuffer
	eof    bool
	closed bool
}

// New creates a client on fd, which it takes ownership of. pump is
// called whenever the client waits for the server.
func New(t testing.TB, fd int, pump func()) *Client {
	t.Helper()

	conn, err := wire.NewConn(fd)
	if err != nil {
		t.Fatalf("wltest: %v", err)
	}
	c := Client{
		t:      t,
		conn:   conn,
		pump:   pump,
		nextID: 2,
	}
	t.Cleanup(c.Close)
	return &c
}

// Close closes the client's end of the connection.
func (c *Client) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.conn.Close()
}

// Pump flushes queued requests and lets the server run once.
func (c *Client) Pump() {
	c.t.Helper()

	if !c.closed {
		err := c.conn.Flush()
		if err != nil {
			c.t.Fatalf("wltest: flush: %v", err)
		}
	}
	c.pump()
}

// Display returns the client's wl_display.
func (c *Client) Display() Object {
	return Object{id: 1, iface: "wl_display"}
}

// NewObject allocates the next client ID.
func (c *Client) NewObject(iface string) Object {
	obj := Object{id: c.nextID, iface: iface}
	c.nextID++
	return obj
}

// Send queues a request. Arguments are encoded according to their
// types: int32, uint32, string, []byte, *os.File, wire.NewID and
// Object, with nil encoding a null object.
func (c *Client) Send(obj Object, op uint16, args ...any) {
	c.t.Helper()

	msg := wire.NewMessage(obj, op)
	for _, arg := range args {
		switch arg := arg.(type) {
		case nil:
			msg.WriteUint(0)
		case int32:
			msg.WriteInt(arg)
		case uint32:
			msg.WriteUint(arg)
		case string:
			msg.WriteString(arg)
		case []byte:
			msg.WriteArray(arg)
		case *os.File:
			msg.WriteFile(arg)
		case wire.NewID:
			msg.WriteNewID(arg)
		case Object:
			msg.WriteObject(arg)
		default:
			c.t.Fatalf("wltest: unsupported argument type %T", arg)
		}
	}

	err := msg.Build(c.conn)
	if err != nil {
		c.t.Fatalf("wltest: build %v: %v", obj.iface, err)
	}
}

func (c *Client) read() {
	c.t.Helper()

	err := c.conn.Fill()
	if errors.Is(err, io.EOF) {
		c.eof = true
	} else if err != nil {
		c.t.Fatalf("wltest: read: %v", err)
	}

	for {
		msg, err := c.conn.Next()
		if err != nil {
			c.t.Fatalf("wltest: %v", err)
		}
		if msg == nil {
			return
		}
		c.events = append(c.events, msg)
	}
}

// Roundtrip flushes queued requests and pumps the server until it has
// answered a wl_display.sync, or until the connection is closed. It
// reports whether the sync was answered.
func (c *Client) Roundtrip() bool {
	c.t.Helper()

	cb := c.NewObject("wl_callback")
	c.Send(c.Display(), 0, cb)
	err := c.conn.Flush()
	if err != nil {
		c.t.Fatalf("wltest: flush: %v", err)
	}

	for range maxPumps {
		c.pump()
		c.read()
		for _, ev := range c.events {
			if ev.Sender() == cb.id {
				return true
			}
		}
		if c.eof {
			return false
		}
	}

	c.t.Fatalf("wltest: server did not answer sync")
	return false
}

// Closed reports whether the server has closed the connection.
func (c *Client) Closed() bool {
	return c.eof
}

// Take removes and returns the received events that were sent by obj
// with the given opcode.
func (c *Client) Take(obj Object, op uint16) []*wire.MessageBuffer {
	var found []*wire.MessageBuffer
	rest := c.events[:0]
	for _, ev := range c.events {
		if (ev.Sender() == obj.id) && (ev.Op() == op) {
			found = append(found, ev)
			continue
		}
		rest = append(rest, ev)
	}
	c.events = rest
	return found
}

// Has reports whether an event from obj with the given opcode has
// been received, without removing it.
func (c *Client) Has(obj Object, op uint16) bool {
	for _, ev := range c.events {
		if (ev.Sender() == obj.id) && (ev.Op() == op) {
			return true
		}
	}
	return false
}

// Registry creates a registry and waits for the initial globals.
func (c *Client) Registry() (Object, []Global) {
	c.t.Helper()

	reg := c.NewObject("wl_registry")
	c.Send(c.Display(), 1, reg)
	c.Roundtrip()

	var globals []Global
	for _, ev := range c.Take(reg, 0) {
		g := Global{Name: ev.ReadUint(), Interface: ev.ReadString(), Version: ev.ReadUint()}
		if err := ev.Err(); err != nil {
			c.t.Fatalf("wltest: decode global: %v", err)
		}
		globals = append(globals, g)
	}
	return reg, globals
}

// Global is an advertised global.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// Bind binds the global implementing iface at the given version. It
// fails the test if no such global is advertised.
func (c *Client) Bind(iface string, version uint32) Object {
	c.t.Helper()

	reg, globals := c.Registry()
	for _, g := range globals {
		if g.Interface == iface {
			obj := c.NewObject(iface)
			c.Send(reg, 0, g.Name, wire.NewID{Interface: iface, Version: version, ID: obj.id})
			return obj
		}
	}

	c.t.Fatalf("wltest: no global %v", iface)
	return Object{}
}

// ProtocolError is a decoded wl_display.error event.
type ProtocolError struct {
	Object  uint32
	Code    uint32
	Message string
}

// Error returns the protocol error sent to the client, if any.
func (c *Client) Error() (ProtocolError, bool) {
	evs := c.Take(c.Display(), 0)
	if len(evs) == 0 {
		return ProtocolError{}, false
	}

	ev := evs[0]
	perr := ProtocolError{Object: ev.ReadUint(), Code: ev.ReadUint(), Message: ev.ReadString()}
	return perr, ev.Err() == nil
}
