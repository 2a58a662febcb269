// Package wl implements the server side of the core Wayland protocol
// objects on top of an epoll-driven event loop. It is not a
// compositor: request handling for most objects is left to handlers
// supplied by the embedder.
package wl

import (
	"cmp"
	"iter"
	"slices"
	"time"

	"deedles.dev/wlexport/internal/debug"
	"deedles.dev/wlexport/internal/eventloop"
	"deedles.dev/wlexport/internal/set"
	"golang.org/x/exp/maps"
)

// Server is the protocol display. It owns all client connections and
// the objects created on them.
type Server struct {
	loop     *eventloop.Loop
	clients  set.Set[*Client]
	globals  map[uint32]*Global
	nextName uint32
	serial   uint32
	closed   bool
}

func New() (*Server, error) {
	loop, err := eventloop.New()
	if err != nil {
		return nil, err
	}

	return &Server{
		loop:     loop,
		clients:  make(set.Set[*Client]),
		globals:  make(map[uint32]*Global),
		nextName: 1,
	}, nil
}

// Loop returns the server's event loop. Its descriptor is readable
// whenever a client has sent something.
func (server *Server) Loop() *eventloop.Loop {
	return server.loop
}

// CreateClient adds a client on the connected socket fd. The server
// takes ownership of fd, even on failure.
func (server *Server) CreateClient(fd int) (*Client, error) {
	client, err := newClient(server, fd)
	if err != nil {
		return nil, err
	}

	server.clients.Add(client)
	return client, nil
}

// Clients iterates over the connected clients.
func (server *Server) Clients() iter.Seq[*Client] {
	return server.clients.All()
}

// NextSerial returns a new event serial.
func (server *Server) NextSerial() uint32 {
	server.serial++
	return server.serial
}

// Dispatch runs one pass of the event loop, waiting up to timeout for
// client activity.
func (server *Server) Dispatch(timeout time.Duration) error {
	return server.loop.Dispatch(timeout)
}

// FlushClients sends buffered events to every client and disconnects
// clients that have been sent a fatal error.
func (server *Server) FlushClients() {
	for client := range server.clients.All() {
		err := client.Flush()
		if err != nil {
			debug.Printf("flush %v: %v", client, err)
			continue
		}
		if client.errored {
			client.Destroy()
		}
	}
}

// Globals returns the currently advertised globals keyed by name.
func (server *Server) Globals() map[uint32]*Global {
	return maps.Clone(server.globals)
}

func (server *Server) sortedGlobals() []*Global {
	globals := make([]*Global, 0, len(server.globals))
	for _, g := range server.globals {
		globals = append(globals, g)
	}
	slices.SortFunc(globals, func(a, b *Global) int { return cmp.Compare(a.name, b.name) })
	return globals
}

// Close disconnects all clients and closes the event loop.
func (server *Server) Close() error {
	if server.closed {
		return nil
	}
	server.closed = true

	for client := range server.clients.All() {
		client.Destroy()
	}
	return server.loop.Close()
}
