package wire

import (
	"fmt"
)

// UnknownOpError is returned by Object.Dispatch if it is given a
// message with an invalid opcode.
type UnknownOpError struct {
	Interface string
	Type      string
	Op        uint16
}

func (err UnknownOpError) Error() string {
	return fmt.Sprintf("unknown %v opcode for %v: %v", err.Type, err.Interface, err.Op)
}

// UnknownSenderIDError is returned by an attempt to dispatch an
// incoming message that indicates a method call on an object that
// doesn't exist.
type UnknownSenderIDError struct {
	Msg *MessageBuffer
}

func (err UnknownSenderIDError) Error() string {
	return fmt.Sprintf("unknown sender object ID: %v", err.Msg.Sender())
}

// InvalidSizeError is returned when a message header declares a size
// that cannot be valid.
type InvalidSizeError struct {
	Sender uint32
	Size   int
}

func (err InvalidSizeError) Error() string {
	return fmt.Sprintf("invalid size for message from %v: %v", err.Sender, err.Size)
}
