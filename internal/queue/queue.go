// Package queue holds batches of pending transient modifications keyed by
// (ability, group) until an ability-processing pass claims them.
package queue

import (
	"sync"

	"github.com/vantir/abilitymod/internal/mod"
)

// Batch is the ordered set of modifications submitted together for one
// (ability, group) pair. A pass consumes a batch atomically: it is dequeued
// once when a fresh ability-group instance begins processing and never
// consulted again for that instance.
type Batch struct {
	AbilityID int32
	GroupID   int32
	Entries   []mod.Modification
}

type key struct {
	abilityID int32
	groupID   int32
}

// Store maps (abilityID, groupID) to a FIFO queue of batches.
//
// The host model is single-threaded per ability instance, but enqueuing
// happens on the caller's side of the boundary, so the store carries its own
// mutex rather than assuming anything about who calls it.
//
// A drained queue keeps its map entry until Clear: emptiness is checked
// before dequeue, so the stale key is harmless.
type Store struct {
	mu     sync.Mutex
	queues map[key][]Batch
}

// NewStore creates an empty queue store.
func NewStore() *Store {
	return &Store{queues: make(map[key][]Batch)}
}

// Enqueue groups the modifications by group id and appends one batch per
// distinct group to that (abilityID, groupID) queue. Entry order within a
// group and first-seen group order are preserved.
func (s *Store) Enqueue(abilityID int32, mods []mod.Modification) {
	if len(mods) == 0 {
		return
	}

	groupOrder := make([]int32, 0, 4)
	grouped := make(map[int32][]mod.Modification, 4)
	for _, m := range mods {
		if _, seen := grouped[m.GroupID]; !seen {
			groupOrder = append(groupOrder, m.GroupID)
		}
		grouped[m.GroupID] = append(grouped[m.GroupID], m)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, groupID := range groupOrder {
		k := key{abilityID: abilityID, groupID: groupID}
		s.queues[k] = append(s.queues[k], Batch{
			AbilityID: abilityID,
			GroupID:   groupID,
			Entries:   grouped[groupID],
		})
	}
}

// DequeueIfAny pops and returns the oldest batch for the key, or false when
// none is queued.
func (s *Store) DequeueIfAny(abilityID, groupID int32) (Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{abilityID: abilityID, groupID: groupID}
	q := s.queues[k]
	if len(q) == 0 {
		return Batch{}, false
	}

	b := q[0]
	q[0] = Batch{} // release the entry slice to GC
	s.queues[k] = q[1:]
	return b, true
}

// Pending returns the number of batches queued for the key.
func (s *Store) Pending(abilityID, groupID int32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[key{abilityID: abilityID, groupID: groupID}])
}

// Clear empties all queues and forgets all keys.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues = make(map[key][]Batch)
}
