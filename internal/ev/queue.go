// Package ev provides the queue used to hand work from arbitrary
// goroutines to the goroutine that owns the protocol state.
package ev

import (
	"deedles.dev/xsync/cq"
)

type Queue = cq.BulkQueue[func(), *Events]

func NewQueue() *Queue {
	return cq.New(func(v []func()) *Events {
		return &Events{
			events: v,
		}
	})
}

// Events represents a series of functions pulled from a Queue in one
// go.
type Events struct {
	events []func()
}

// Len returns the number of pending functions.
func (q *Events) Len() int {
	return len(q.events)
}

// Flush runs all of the functions represented by q in the order in
// which they were added.
func (q *Events) Flush() {
	events := q.events
	q.events = nil
	for _, ev := range events {
		ev()
	}
}
