package wl

import (
	"errors"
	"fmt"

	"deedles.dev/wlexport/wire"
)

// wl_display error codes.
const (
	ErrorInvalidObject  uint32 = 0
	ErrorInvalidMethod  uint32 = 1
	ErrorNoMemory       uint32 = 2
	ErrorImplementation uint32 = 3
)

// ErrNoMemory is returned by request handlers when a resource could
// not be allocated. It is reported to the client as a no_memory error.
var ErrNoMemory = errors.New("no memory")

// ProtocolError is returned by request handlers to have a specific
// protocol error posted to the client.
type ProtocolError struct {
	Object  wire.Sender
	Code    uint32
	Message string
}

func NewProtocolError(obj wire.Sender, code uint32, format string, args ...any) *ProtocolError {
	return &ProtocolError{
		Object:  obj,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func (err *ProtocolError) Error() string {
	return fmt.Sprintf("%v#%v: error %v: %v", err.Object.Interface(), err.Object.ID(), err.Code, err.Message)
}
