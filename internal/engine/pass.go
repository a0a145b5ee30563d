package engine

import "github.com/vantir/abilitymod/internal/mod"

type propKey struct {
	operationID int32
	propertyID  int32
}

// pass is the per-pass engine state: it exists only for the duration of one
// ability being processed and is discarded at pass end. Nothing in it is
// shared across passes; a nested ability entry gets its own pass and the
// outer one is restored afterwards.
type pass struct {
	token     string
	abilityID int32

	// activeBatch is the batch dequeued for this ability/group instance,
	// nil until (and unless) activation happens. scheduled runs parallel to
	// it and marks Add* entries whose injection has already been queued, so
	// a second transition away from the same operation tag cannot schedule
	// the same entry twice.
	activeBatch []mod.Modification
	scheduled   []bool
	groupID     int32

	// activationTried is set by the first property-apply call of the pass:
	// that call alone determines which queued batch, if any, governs it.
	activationTried bool

	// Occurrence counters, 1-based after their increment. Operation
	// counters advance on operation-type transitions, property counters on
	// every property-apply call.
	opCount   map[int32]int32
	propCount map[propKey]int32

	// lastOp detects operation-type transitions. hasLastOp distinguishes
	// the first operation of a pass from operation tag zero.
	lastOp    int32
	hasLastOp bool

	// pending holds injections scheduled but not yet issued; injecting is
	// the reentrancy guard that keeps a transition observed mid-flush from
	// re-triggering the flush.
	pending   []mod.Modification
	injecting bool
	injected  int
}

func newPass(token string, abilityID int32) *pass {
	return &pass{
		token:     token,
		abilityID: abilityID,
		opCount:   make(map[int32]int32),
		propCount: make(map[propKey]int32),
	}
}
