package wl

import (
	"errors"
	"fmt"
	"io"

	"deedles.dev/wlexport/internal/debug"
	"deedles.dev/wlexport/internal/eventloop"
	"deedles.dev/wlexport/internal/objstore"
	"deedles.dev/wlexport/internal/set"
	"deedles.dev/wlexport/wire"
)

// Client is a single connection to the server.
type Client struct {
	server     *Server
	conn       *wire.Conn
	store      *objstore.Store[Object]
	source     *eventloop.Source
	display    *Display
	registries set.Set[*Registry]
	writing    bool
	errored    bool
	destroyed  bool
	onDestroy  []func()
}

func newClient(server *Server, fd int) (*Client, error) {
	conn, err := wire.NewConn(fd)
	if err != nil {
		return nil, err
	}

	client := Client{
		server:     server,
		conn:       conn,
		store:      objstore.New[Object](),
		registries: make(set.Set[*Registry]),
	}

	client.display = newDisplay(&client)
	err = client.store.Add(client.display)
	if err != nil {
		conn.Close()
		return nil, err
	}

	source, err := server.loop.AddFD(fd, eventloop.Readable, client.handle)
	if err != nil {
		conn.Close()
		return nil, err
	}
	client.source = source

	return &client, nil
}

func (client *Client) String() string {
	return fmt.Sprintf("client(%v)", client.conn.FD())
}

// Server returns the server that the client is connected to.
func (client *Client) Server() *Server {
	return client.server
}

// Display returns the client's wl_display object.
func (client *Client) Display() *Display {
	return client.display
}

func (client *Client) Destroyed() bool {
	return client.destroyed
}

// OnDestroy registers f to be called when the client disconnects or is
// destroyed, after all of its resources have been destroyed.
func (client *Client) OnDestroy(f func()) {
	client.onDestroy = append(client.onDestroy, f)
}

// Add inserts obj into the client's object map under its own ID.
func (client *Client) Add(obj Object) error {
	err := client.store.Add(obj)
	if err != nil {
		return fmt.Errorf("%w: add %v: %w", ErrNoMemory, obj.Base(), err)
	}
	return nil
}

// Get returns the object with the given ID.
func (client *Client) Get(id uint32) (Object, bool) {
	return client.store.Get(id)
}

// NewServerID allocates an ID for an object that is created by the
// server rather than the client.
func (client *Client) NewServerID() (uint32, error) {
	id, err := client.store.NextID()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNoMemory, err)
	}
	return id, nil
}

func (client *Client) destroyResource(r *Resource, notify bool) {
	if r.destroyed {
		return
	}

	client.store.Delete(r.id)
	if notify && r.clientAllocated() && !client.destroyed {
		client.display.deleteID(r.id)
	}
	r.destroy()
}

func (client *Client) handle(mask eventloop.Mask) {
	if mask&eventloop.Writable != 0 {
		client.Flush()
	}
	if (mask&eventloop.Readable != 0) && !client.destroyed {
		client.read()
	}
	if mask&(eventloop.Hangup|eventloop.Error) != 0 {
		client.Destroy()
	}
}

func (client *Client) read() {
	ferr := client.conn.Fill()
	if (ferr != nil) && !errors.Is(ferr, io.EOF) {
		debug.Printf("%v: %v", client, ferr)
	}

	for !client.destroyed && !client.errored {
		msg, err := client.conn.Next()
		if err != nil {
			client.PostError(client.display, ErrorInvalidMethod, err.Error())
			break
		}
		if msg == nil {
			break
		}

		client.dispatch(msg)
	}

	if ferr != nil {
		client.Destroy()
	}
}

func (client *Client) dispatch(msg *wire.MessageBuffer) {
	obj, ok := client.store.Get(msg.Sender())
	if !ok {
		client.PostError(client.display, ErrorInvalidObject, wire.UnknownSenderIDError{Msg: msg}.Error())
		return
	}

	base := obj.Base()
	if int(msg.Op()) >= len(base.iface.Requests) {
		base.PostError(ErrorInvalidMethod, "invalid method %v", msg.Op())
		return
	}
	if since := base.iface.Since(msg.Op()); uint32(since) > base.version {
		base.PostError(ErrorInvalidMethod, "%v requires version %v, object has version %v", base.iface.RequestName(msg.Op()), since, base.version)
		return
	}

	err := obj.Dispatch(msg)
	if debug.Enabled() {
		debug.Printf("%v", msg.Debug(base.String(), base.iface.RequestName(msg.Op())))
	}
	if err == nil {
		return
	}

	var perr *ProtocolError
	switch {
	case errors.As(err, &perr):
		client.PostError(perr.Object, perr.Code, perr.Message)
	case errors.Is(err, ErrNoMemory):
		client.PostNoMemory()
	default:
		base.PostError(ErrorInvalidMethod, "%v", err)
	}
}

// Enqueue adds an event to the client's outgoing buffer. It is sent
// the next time the client is flushed.
func (client *Client) Enqueue(msg *wire.MessageBuilder) {
	if client.destroyed {
		return
	}

	debug.Printf(" -> %v", msg)
	err := msg.Build(client.conn)
	if err != nil {
		client.PostError(client.display, ErrorImplementation, fmt.Sprintf("encode %v: %v", msg.Method, err))
	}
}

// PostError sends a fatal protocol error. The client is disconnected
// once the error has been flushed and no further requests from it are
// dispatched.
func (client *Client) PostError(obj wire.Sender, code uint32, message string) {
	if client.errored || client.destroyed {
		return
	}

	client.display.sendError(obj, code, message)
	client.errored = true
}

// PostNoMemory sends a no_memory error.
func (client *Client) PostNoMemory() {
	client.PostError(client.display, ErrorNoMemory, "no memory")
}

// Flush writes as much of the client's outgoing buffer as the socket
// will take. Whatever is left is written when the socket becomes
// writable again.
func (client *Client) Flush() error {
	if client.destroyed {
		return nil
	}

	err := client.conn.Flush()
	if err != nil {
		client.Destroy()
		return err
	}

	pending := client.conn.Pending()
	if pending != client.writing {
		mask := eventloop.Readable
		if pending {
			mask |= eventloop.Writable
		}
		err = client.source.Update(mask)
		client.writing = pending
	}
	return err
}

// Destroy disconnects the client, destroying all of its resources.
func (client *Client) Destroy() {
	if client.destroyed {
		return
	}
	client.destroyed = true

	for obj := range client.store.Descending() {
		client.destroyResource(obj.Base(), false)
	}
	for i := len(client.onDestroy) - 1; i >= 0; i-- {
		client.onDestroy[i]()
	}
	client.onDestroy = nil

	client.source.Remove()
	client.conn.Close()
	client.server.clients.Delete(client)
}
