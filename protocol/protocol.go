// Package protocol defines the types necessary for unmarshalling a
// protocol-specification XML file, along with the protocol files that
// this module implements.
package protocol

import (
	"strconv"
)

type Protocol struct {
	Name      string `xml:"name,attr"`
	Copyright string `xml:"copyright"`

	Interfaces []Interface `xml:"interface"`
}

type Interface struct {
	Name        string      `xml:"name,attr"`
	Version     int         `xml:"version,attr"`
	Description Description `xml:"description"`

	Requests []Op   `xml:"request"`
	Events   []Op   `xml:"event"`
	Enums    []Enum `xml:"enum"`
}

// RequestName returns the name of the request with the given opcode.
func (i *Interface) RequestName(op uint16) string {
	return opName(i.Requests, op)
}

// EventName returns the name of the event with the given opcode.
func (i *Interface) EventName(op uint16) string {
	return opName(i.Events, op)
}

// Since returns the interface version that introduced the request with
// the given opcode.
func (i *Interface) Since(op uint16) int {
	if int(op) >= len(i.Requests) {
		return i.Version + 1
	}
	return i.Requests[op].Since()
}

func opName(ops []Op, op uint16) string {
	if int(op) >= len(ops) {
		return "op" + strconv.FormatUint(uint64(op), 10)
	}
	return ops[op].Name
}

// Enum returns the enum with the given name.
func (i *Interface) Enum(name string) (Enum, bool) {
	for _, e := range i.Enums {
		if e.Name == name {
			return e, true
		}
	}
	return Enum{}, false
}

type Description struct {
	Summary string `xml:"summary,attr"`
	Full    string `xml:",chardata"`
}

type Op struct {
	Name        string      `xml:"name,attr"`
	Type        string      `xml:"type,attr"`
	SinceAttr   string      `xml:"since,attr"`
	Description Description `xml:"description"`

	Args []Arg `xml:"arg"`
}

// IsDestructor reports whether the op destroys the object it is sent
// to.
func (op Op) IsDestructor() bool {
	return op.Type == "destructor"
}

func (op Op) Since() int {
	v, err := strconv.ParseInt(op.SinceAttr, 10, 0)
	if err != nil {
		return 1
	}
	return int(v)
}

type Arg struct {
	Name      string `xml:"name,attr"`
	Summary   string `xml:"summary,attr"`
	AllowNull bool   `xml:"allow-null,attr"`

	Type      string `xml:"type,attr"`
	Interface string `xml:"interface,attr"`
	Version   int    `xml:"version,attr"`
}

type Enum struct {
	Name        string      `xml:"name,attr"`
	Description Description `xml:"description"`

	Entries []Entry `xml:"entry"`
}

// Value returns the value of the named entry.
func (e Enum) Value(name string) (uint32, bool) {
	for _, entry := range e.Entries {
		if entry.Name != name {
			continue
		}
		v, err := entry.Int()
		if err != nil {
			return 0, false
		}
		return uint32(v), true
	}
	return 0, false
}

type Entry struct {
	Name    string `xml:"name,attr"`
	Summary string `xml:"summary,attr"`
	Value   string `xml:"value,attr"`
}

func (e Entry) Int() (int, error) {
	v, err := strconv.ParseInt(e.Value, 0, 0)
	return int(v), err
}
