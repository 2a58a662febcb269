// Package objstore maps protocol object IDs to objects for a single
// connection.
package objstore

import (
	"cmp"
	"errors"
	"iter"
	"slices"
)

// ServerIDStart is the first ID in the range that is allocated by the
// server rather than by the client.
const ServerIDStart uint32 = 0xFF000000

var (
	ErrIDInUse   = errors.New("object ID already in use")
	ErrInvalidID = errors.New("invalid object ID")
	ErrExhausted = errors.New("no object IDs left")
)

// Object is anything that can be stored.
type Object interface {
	ID() uint32
}

type Store[T Object] struct {
	objects map[uint32]T
	nextID  uint32
}

func New[T Object]() *Store[T] {
	return &Store[T]{
		objects: make(map[uint32]T),
		nextID:  ServerIDStart,
	}
}

// Add inserts obj under its own ID.
func (s *Store[T]) Add(obj T) error {
	id := obj.ID()
	if id == 0 {
		return ErrInvalidID
	}
	if _, ok := s.objects[id]; ok {
		return ErrIDInUse
	}

	s.objects[id] = obj
	return nil
}

// Has reports whether id is currently in use.
func (s *Store[T]) Has(id uint32) bool {
	_, ok := s.objects[id]
	return ok
}

// NextID returns an unused ID from the server-side range.
func (s *Store[T]) NextID() (uint32, error) {
	start := s.nextID
	for s.Has(s.nextID) {
		s.nextID++
		if s.nextID == 0 {
			s.nextID = ServerIDStart
		}
		if s.nextID == start {
			return 0, ErrExhausted
		}
	}

	id := s.nextID
	s.nextID++
	if s.nextID == 0 {
		s.nextID = ServerIDStart
	}
	return id, nil
}

func (s *Store[T]) Get(id uint32) (obj T, ok bool) {
	obj, ok = s.objects[id]
	return obj, ok
}

// Delete removes the object with the given ID, returning it if it was
// present.
func (s *Store[T]) Delete(id uint32) (obj T, ok bool) {
	obj, ok = s.objects[id]
	delete(s.objects, id)
	return obj, ok
}

func (s *Store[T]) Len() int {
	return len(s.objects)
}

// Descending iterates over a snapshot of the stored objects from the
// highest ID to the lowest.
func (s *Store[T]) Descending() iter.Seq[T] {
	objs := make([]T, 0, len(s.objects))
	for _, obj := range s.objects {
		objs = append(objs, obj)
	}
	slices.SortFunc(objs, func(a, b T) int { return cmp.Compare(b.ID(), a.ID()) })
	return slices.Values(objs)
}
