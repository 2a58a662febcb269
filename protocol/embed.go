package protocol

import (
	"embed"
	"encoding/xml"
	"fmt"
	"io/fs"
	"sync"
)

//go:embed xml/*.xml
var files embed.FS

var loadInterfaces = sync.OnceValues(func() (map[string]*Interface, error) {
	paths, err := fs.Glob(files, "xml/*.xml")
	if err != nil {
		return nil, err
	}

	interfaces := make(map[string]*Interface)
	for _, path := range paths {
		proto, err := loadXML(path)
		if err != nil {
			return nil, fmt.Errorf("load %v: %w", path, err)
		}
		for i := range proto.Interfaces {
			iface := &proto.Interfaces[i]
			interfaces[iface.Name] = iface
		}
	}
	return interfaces, nil
})

func loadXML(path string) (proto Protocol, err error) {
	file, err := files.Open(path)
	if err != nil {
		return proto, err
	}
	defer file.Close()

	d := xml.NewDecoder(file)
	err = d.Decode(&proto)
	return proto, err
}

// Lookup returns the description of the named interface from the
// embedded protocol files.
func Lookup(name string) (*Interface, bool) {
	interfaces, err := loadInterfaces()
	if err != nil {
		panic(fmt.Errorf("embedded protocol files: %w", err))
	}

	iface, ok := interfaces[name]
	return iface, ok
}

// MustLookup is like Lookup but panics if the interface is unknown.
func MustLookup(name string) *Interface {
	iface, ok := Lookup(name)
	if !ok {
		panic(fmt.Errorf("unknown interface %q", name))
	}
	return iface
}

// Version returns the highest version of the named interface that is
// implemented.
func Version(name string) uint32 {
	return uint32(MustLookup(name).Version)
}
