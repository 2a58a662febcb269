// Package set provides a minimal generic set.
package set

import (
	"iter"
	"maps"
)

type Set[T comparable] map[T]struct{}

func New[T comparable](vals ...T) Set[T] {
	s := make(Set[T], len(vals))
	for _, v := range vals {
		s.Add(v)
	}
	return s
}

func (s Set[T]) Add(v T) {
	s[v] = struct{}{}
}

func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

func (s Set[T]) Delete(v T) {
	delete(s, v)
}

// All iterates over the set in no particular order. It is safe to
// delete elements while iterating.
func (s Set[T]) All() iter.Seq[T] {
	return maps.Keys(s)
}
