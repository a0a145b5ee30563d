package mod

import (
	"context"
	"fmt"
)

// Caster is the facade surface the builder casts through. The orchestration
// layer implements it; tests supply fakes.
type Caster interface {
	// Enqueue submits a batch of modifications for the ability.
	Enqueue(abilityID int32, mods []Modification) error
	// Cast requests that the host cast the ability.
	Cast(ctx context.Context, abilityID int32) error
}

// Option adjusts an entry before it is inserted into the builder.
type Option func(*Modification)

// WithOccurrence restricts the entry to the Nth (1-based) occurrence of its
// operation/property combination. Zero means every occurrence.
func WithOccurrence(n int32) Option {
	return func(m *Modification) { m.Occurrence = n }
}

// WithInjectAfter schedules an injected Add* entry after the given operation
// type tag instead of at the current position.
func WithInjectAfter(operationID int32) Option {
	return func(m *Modification) { m.InjectAfter = operationID }
}

// AtGroupEnd schedules an injected Add* entry once the group finishes.
func AtGroupEnd() Option {
	return func(m *Modification) { m.InjectAfter = InjectAtGroupEnd }
}

// Builder accumulates a deduplicated, conflict-resolved set of modifications
// for one ability. At most one entry exists per (kind, group, operation,
// property) key; adding a conflicting kind for the same target supersedes
// the prior entry.
//
// Entries keep insertion order so export and enqueue are deterministic:
// superseding an entry in place keeps its slot, re-inserting after a removal
// appends at the end.
//
// Builder is not safe for concurrent use.
type Builder struct {
	abilityID int32
	entries   []Modification
	index     map[Key]int
}

// NewBuilder creates an empty builder for the given ability.
func NewBuilder(abilityID int32) *Builder {
	return &Builder{
		abilityID: abilityID,
		index:     make(map[Key]int),
	}
}

// AbilityID returns the ability this builder edits.
func (b *Builder) AbilityID() int32 { return b.abilityID }

// Len returns the number of accumulated entries.
func (b *Builder) Len() int { return len(b.entries) }

// Modifications returns a copy of the accumulated entries in order.
func (b *Builder) Modifications() []Modification {
	out := make([]Modification, len(b.entries))
	copy(out, b.entries)
	return out
}

// SetProperty records a property overwrite. A pending RemoveProperty for the
// same target is dropped. If an AddProperty for the same target exists, its
// value is overwritten in place instead of adding a second entry: a property
// the caller asked to add and then set is still emitted as one AddProperty
// carrying the final value, since on the persistent path AddProperty creates
// the property when it is absent.
func (b *Builder) SetProperty(groupID, operationID, propertyID int32, value Value, opts ...Option) {
	b.drop(Key{KindRemoveProperty, groupID, operationID, propertyID})

	if i, ok := b.index[Key{KindAddProperty, groupID, operationID, propertyID}]; ok {
		b.entries[i].Value = value
		return
	}

	m := Modification{
		Kind:        KindSetProperty,
		GroupID:     groupID,
		OperationID: operationID,
		PropertyID:  propertyID,
		Value:       value,
	}
	for _, opt := range opts {
		opt(&m)
	}
	b.put(m)
}

// RemoveProperty records a property removal, superseding any pending
// SetProperty or AddProperty for the same target.
func (b *Builder) RemoveProperty(groupID, operationID, propertyID int32, opts ...Option) {
	b.drop(Key{KindSetProperty, groupID, operationID, propertyID})
	b.drop(Key{KindAddProperty, groupID, operationID, propertyID})

	m := Modification{
		Kind:        KindRemoveProperty,
		GroupID:     groupID,
		OperationID: operationID,
		PropertyID:  propertyID,
	}
	for _, opt := range opts {
		opt(&m)
	}
	b.put(m)
}

// AddProperty records a property addition. A set on an existing property
// takes precedence over an add: if a SetProperty for the same target exists
// the call delegates to SetProperty. Otherwise a pending RemoveProperty is
// dropped and an AddProperty entry is inserted or overwritten.
func (b *Builder) AddProperty(groupID, operationID, propertyID int32, value Value, opts ...Option) {
	if _, ok := b.index[Key{KindSetProperty, groupID, operationID, propertyID}]; ok {
		b.SetProperty(groupID, operationID, propertyID, value, opts...)
		return
	}
	b.drop(Key{KindRemoveProperty, groupID, operationID, propertyID})

	m := Modification{
		Kind:        KindAddProperty,
		GroupID:     groupID,
		OperationID: operationID,
		PropertyID:  propertyID,
		Value:       value,
	}
	for _, opt := range opts {
		opt(&m)
	}
	b.put(m)
}

// AddOperation records an operation addition. A pending RemoveOperation for
// the same target is dropped.
func (b *Builder) AddOperation(groupID, operationID int32, opts ...Option) {
	b.drop(Key{KindRemoveOperation, groupID, operationID, NoProperty})

	m := Modification{
		Kind:        KindAddOperation,
		GroupID:     groupID,
		OperationID: operationID,
		PropertyID:  NoProperty,
	}
	for _, opt := range opts {
		opt(&m)
	}
	b.put(m)
}

// AddOperationProps records an operation addition together with its initial
// properties, one AddProperty per id/value pair. The two lists must have the
// same length; a mismatch fails before any entry is recorded.
func (b *Builder) AddOperationProps(groupID, operationID int32, propertyIDs []int32, values []Value, opts ...Option) error {
	if len(propertyIDs) != len(values) {
		return fmt.Errorf("add operation %d: %d property ids but %d values", operationID, len(propertyIDs), len(values))
	}
	b.AddOperation(groupID, operationID, opts...)
	for i, propID := range propertyIDs {
		b.AddProperty(groupID, operationID, propID, values[i], opts...)
	}
	return nil
}

// RemoveOperation records an operation removal. Every pending entry that
// targets the same (group, operation), property edits and additions alike,
// becomes moot and is discarded first.
func (b *Builder) RemoveOperation(groupID, operationID int32, opts ...Option) {
	kept := b.entries[:0]
	for _, e := range b.entries {
		if e.TargetsOperation(groupID, operationID) {
			continue
		}
		kept = append(kept, e)
	}
	b.entries = kept
	b.reindex()

	m := Modification{
		Kind:        KindRemoveOperation,
		GroupID:     groupID,
		OperationID: operationID,
		PropertyID:  NoProperty,
	}
	for _, opt := range opts {
		opt(&m)
	}
	b.put(m)
}

// Clear discards all accumulated entries.
func (b *Builder) Clear() {
	b.entries = nil
	b.index = make(map[Key]int)
}

// Cast submits the accumulated entries as one batch through the caster and
// requests a cast. The entries are not cleared: casting again resubmits the
// same batch. An empty builder casts without enqueuing anything.
func (b *Builder) Cast(ctx context.Context, caster Caster) error {
	if caster == nil {
		return fmt.Errorf("cast ability %d: no caster", b.abilityID)
	}
	if len(b.entries) > 0 {
		if err := caster.Enqueue(b.abilityID, b.Modifications()); err != nil {
			return fmt.Errorf("cast ability %d: %w", b.abilityID, err)
		}
	}
	return caster.Cast(ctx, b.abilityID)
}

// put inserts the entry, overwriting in place when the key already exists.
func (b *Builder) put(m Modification) {
	if i, ok := b.index[m.Key()]; ok {
		b.entries[i] = m
		return
	}
	b.index[m.Key()] = len(b.entries)
	b.entries = append(b.entries, m)
}

// drop removes the entry with the given key, if present.
func (b *Builder) drop(k Key) {
	i, ok := b.index[k]
	if !ok {
		return
	}
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	b.reindex()
}

func (b *Builder) reindex() {
	b.index = make(map[Key]int, len(b.entries))
	for i, e := range b.entries {
		b.index[e.Key()] = i
	}
}
