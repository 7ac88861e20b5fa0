package sequence

import "sync/atomic"

// Sequencer allocates order ids: strictly monotonic, never reused, and safe
// under concurrent allocation. Allocation is independent of the book lock;
// ids address orders, they never decide priority.
type Sequencer struct {
	next atomic.Uint64
}

func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next id.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued id.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}
