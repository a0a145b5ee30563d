// Package resource models decoded ability definitions and the binary codec
// that moves them in and out of the host's resource buffers.
package resource

import "github.com/vantir/abilitymod/internal/mod"

// Ability is the decoded form of one ability definition: an ordered list of
// operation groups.
type Ability struct {
	ID     int32
	Groups []*OperationGroup
}

// OperationGroup is an ordered block of operations executed together.
type OperationGroup struct {
	ID         int32
	Operations []*Operation
}

// Operation is one behavior instance within a group. TypeTag identifies the
// operation type, not the instance: a group may hold several operations with
// the same tag.
type Operation struct {
	TypeTag    int32
	Properties []*Property
}

// Property is a typed configuration value attached to an operation.
type Property struct {
	TypeTag int32
	Value   mod.Value
}

// Group returns the group with the given id, or nil.
func (a *Ability) Group(id int32) *OperationGroup {
	for _, g := range a.Groups {
		if g.ID == id {
			return g
		}
	}
	return nil
}

// FirstOperation returns the first operation with the given type tag, or nil.
// With duplicate tags in a group only the first occurrence is addressable
// this way; occurrence targeting exists only on the transient path.
func (g *OperationGroup) FirstOperation(typeTag int32) *Operation {
	for _, op := range g.Operations {
		if op.TypeTag == typeTag {
			return op
		}
	}
	return nil
}

// RemoveFirstOperation removes the first operation with the given type tag.
// Returns true when an operation was removed.
func (g *OperationGroup) RemoveFirstOperation(typeTag int32) bool {
	for i, op := range g.Operations {
		if op.TypeTag == typeTag {
			g.Operations = append(g.Operations[:i], g.Operations[i+1:]...)
			return true
		}
	}
	return false
}

// Property returns the property with the given type tag, or nil.
func (o *Operation) Property(typeTag int32) *Property {
	for _, p := range o.Properties {
		if p.TypeTag == typeTag {
			return p
		}
	}
	return nil
}

// RemoveProperty removes the property with the given type tag.
// Returns true when a property was removed.
func (o *Operation) RemoveProperty(typeTag int32) bool {
	for i, p := range o.Properties {
		if p.TypeTag == typeTag {
			o.Properties = append(o.Properties[:i], o.Properties[i+1:]...)
			return true
		}
	}
	return false
}
