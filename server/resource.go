package wl

import (
	"fmt"

	"deedles.dev/wlexport/internal/objstore"
	"deedles.dev/wlexport/protocol"
	"deedles.dev/wlexport/wire"
)

// Object is a protocol object that lives in a client's object map.
type Object interface {
	wire.Object
	Base() *Resource
}

// Resource holds the state common to all server-side protocol
// objects. Concrete object types embed it and call Init before adding
// themselves to a client.
type Resource struct {
	id        uint32
	iface     *protocol.Interface
	version   uint32
	client    *Client
	destroyed bool
	onDestroy []func()
}

func (r *Resource) Init(c *Client, iface string, version, id uint32) {
	r.id = id
	r.iface = protocol.MustLookup(iface)
	r.version = version
	r.client = c
}

func (r *Resource) Base() *Resource {
	return r
}

func (r *Resource) ID() uint32 {
	return r.id
}

func (r *Resource) Interface() string {
	return r.iface.Name
}

func (r *Resource) Version() uint32 {
	return r.version
}

func (r *Resource) Client() *Client {
	return r.client
}

func (r *Resource) Destroyed() bool {
	return r.destroyed
}

func (r *Resource) String() string {
	return fmt.Sprintf("%v#%v", r.iface.Name, r.id)
}

// OnDestroy registers f to be called when the resource is destroyed,
// either by request or because the client went away. Functions are
// called in the reverse of the order in which they were registered.
func (r *Resource) OnDestroy(f func()) {
	r.onDestroy = append(r.onDestroy, f)
}

// Destroy removes the resource from its client. If the ID was
// allocated by the client, the client is told that it may reuse it.
func (r *Resource) Destroy() {
	r.client.destroyResource(r, true)
}

func (r *Resource) destroy() {
	r.destroyed = true
	for i := len(r.onDestroy) - 1; i >= 0; i-- {
		r.onDestroy[i]()
	}
	r.onDestroy = nil
}

func (r *Resource) clientAllocated() bool {
	return r.id < objstore.ServerIDStart
}

// NewEvent starts building the event with the given opcode.
func (r *Resource) NewEvent(op uint16) *wire.MessageBuilder {
	msg := wire.NewMessage(r, op)
	msg.Method = r.iface.EventName(op)
	return msg
}

// Send queues an event for delivery to the client. Events sent from a
// destroyed resource are dropped.
func (r *Resource) Send(msg *wire.MessageBuilder) {
	if r.destroyed {
		return
	}
	r.client.Enqueue(msg)
}

// PostError sends a fatal protocol error about this resource.
func (r *Resource) PostError(code uint32, format string, args ...any) {
	r.client.PostError(r, code, fmt.Sprintf(format, args...))
}

// PostNoMemory sends a no_memory error to the resource's client.
func (r *Resource) PostNoMemory() {
	r.client.PostNoMemory()
}

func (r *Resource) unknownOp(op uint16) error {
	return wire.UnknownOpError{Interface: r.iface.Name, Type: "request", Op: op}
}

// LookupObject resolves an object argument. An ID of zero yields the
// zero value if nullable is true. Unknown IDs and IDs of the wrong
// type are reported as invalid_object errors.
func LookupObject[T Object](c *Client, id uint32, nullable bool) (obj T, err error) {
	if id == 0 {
		if nullable {
			return obj, nil
		}
		return obj, NewProtocolError(c.display, ErrorInvalidObject, "null object argument")
	}

	v, ok := c.store.Get(id)
	if !ok {
		return obj, NewProtocolError(c.display, ErrorInvalidObject, "invalid object %v", id)
	}
	obj, ok = v.(T)
	if !ok {
		return obj, NewProtocolError(c.display, ErrorInvalidObject, "object %v has the wrong type (%v)", id, v.Interface())
	}
	return obj, nil
}

func handle[R any](h func(R) error, req R) error {
	if h == nil {
		return nil
	}
	return h(req)
}
