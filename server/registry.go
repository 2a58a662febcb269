package wl

import (
	"deedles.dev/wlexport/wire"
)

const RegistryInterface = "wl_registry"

// BindFunc creates the resource for a client that has bound a global.
type BindFunc func(c *Client, version, id uint32) error

// Global is an object advertised to every client through the
// registry.
type Global struct {
	server  *Server
	name    uint32
	iface   string
	version uint32
	bind    BindFunc
	removed bool
}

// AddGlobal advertises a new global. bind is called whenever a client
// binds it.
func (server *Server) AddGlobal(iface string, version uint32, bind BindFunc) *Global {
	g := Global{
		server:  server,
		name:    server.nextName,
		iface:   iface,
		version: version,
		bind:    bind,
	}
	server.nextName++
	server.globals[g.name] = &g

	for client := range server.clients.All() {
		for r := range client.registries.All() {
			r.sendGlobal(&g)
		}
	}

	return &g
}

func (g *Global) Name() uint32 {
	return g.name
}

func (g *Global) Interface() string {
	return g.iface
}

func (g *Global) Version() uint32 {
	return g.version
}

// Remove withdraws the global. Resources that clients already bound
// are not affected.
func (g *Global) Remove() {
	if g.removed {
		return
	}
	g.removed = true

	delete(g.server.globals, g.name)
	for client := range g.server.clients.All() {
		for r := range client.registries.All() {
			r.sendGlobalRemove(g.name)
		}
	}
}

// Registry is a client's wl_registry object.
type Registry struct {
	Resource
}

func newRegistry(c *Client, id uint32) (*Registry, error) {
	var r Registry
	r.Init(c, RegistryInterface, 1, id)
	err := c.Add(&r)
	if err != nil {
		return nil, err
	}

	c.registries.Add(&r)
	r.OnDestroy(func() { c.registries.Delete(&r) })
	return &r, nil
}

func (r *Registry) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		name := msg.ReadUint()
		nid := msg.ReadNewID()
		if err := msg.Err(); err != nil {
			return err
		}

		g, ok := r.client.server.globals[name]
		if !ok || (g.iface != nid.Interface) {
			return NewProtocolError(r, ErrorInvalidObject, "invalid global %v (%v)", nid.Interface, name)
		}
		if (nid.Version == 0) || (nid.Version > g.version) {
			return NewProtocolError(r, ErrorInvalidObject, "invalid version for global %v (%v): have %v, wanted %v", g.iface, name, g.version, nid.Version)
		}
		return g.bind(r.client, nid.Version, nid.ID)

	default:
		return r.unknownOp(msg.Op())
	}
}

func (r *Registry) sendGlobal(g *Global) {
	msg := r.NewEvent(0)
	msg.WriteUint(g.name)
	msg.WriteString(g.iface)
	msg.WriteUint(g.version)
	r.Send(msg)
}

func (r *Registry) sendGlobalRemove(name uint32) {
	msg := r.NewEvent(1)
	msg.WriteUint(name)
	r.Send(msg)
}
