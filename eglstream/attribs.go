package eglstream

import (
	"bytes"
	"errors"

	"deedles.dev/wlexport/internal/bin"
)

var errOddAttribs = errors.New("attribute list has an odd number of entries")

func decodeAttribs(data []byte) (map[int32]int32, error) {
	if len(data)%8 != 0 {
		return nil, errOddAttribs
	}

	attribs := make(map[int32]int32, len(data)/8)
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		k, err := bin.Read[int32](r)
		if err != nil {
			return nil, err
		}
		v, err := bin.Read[int32](r)
		if err != nil {
			return nil, err
		}
		attribs[k] = v
	}
	return attribs, nil
}
