// Package wire implements the Wayland wire format on top of a raw
// Unix domain socket. It is primarily intended for usage by the
// protocol object implementations.
package wire

// Sender is anything that messages can be sent from.
type Sender interface {
	// ID is the object's protocol ID.
	ID() uint32

	// Interface is the protocol interface name, such as "wl_surface".
	Interface() string
}

// Object represents a Wayland protocol object.
type Object interface {
	Sender

	// Dispatch performs the operation requested by the message in the
	// buffer.
	Dispatch(msg *MessageBuffer) error
}

// NewID is an untyped new_id argument, which carries the interface
// and version along with the ID.
type NewID struct {
	Interface string
	Version   uint32
	ID        uint32
}

func padding(l uint32) uint32 {
	return (4 - (l % 4)) % 4
}
