package mod

import "fmt"

// Kind identifies the edit a Modification describes.
type Kind int

const (
	// KindSetProperty overwrites an existing property value.
	KindSetProperty Kind = iota + 1
	// KindRemoveProperty removes a property from an operation.
	KindRemoveProperty
	// KindAddProperty adds a property, or sets it if it already exists.
	KindAddProperty
	// KindAddOperation appends a new operation to a group.
	KindAddOperation
	// KindRemoveOperation removes an operation from a group.
	KindRemoveOperation
)

// kindNames is the symbolic wire enum for Kind. Serialized documents key
// modifications by these names, so they are part of the exchange format.
var kindNames = map[Kind]string{
	KindSetProperty:     "SetProperty",
	KindRemoveProperty:  "RemoveProperty",
	KindAddProperty:     "AddProperty",
	KindAddOperation:    "AddOperation",
	KindRemoveOperation: "RemoveOperation",
}

// String returns the symbolic name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a symbolic kind name from a serialized document.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown modification kind %q", name)
}

// Sentinel identifiers used across the modification model.
const (
	// NoProperty marks an operation-level modification with no property
	// target (AddOperation / RemoveOperation).
	NoProperty int32 = -1

	// InjectImmediately issues an injected call at the current position.
	// This is the zero value, so it is the default for Add* entries.
	InjectImmediately int32 = 0

	// InjectAtGroupEnd issues an injected call once the group finishes.
	InjectAtGroupEnd int32 = -1

	// AllOccurrences matches every occurrence of the targeted
	// operation/property combination. Positive values select the Nth
	// occurrence, 1-based.
	AllOccurrences int32 = 0
)

// Modification is one immutable edit against an ability definition.
//
// OperationID is a type tag, not an instance id: the same OperationID may
// occur several times within one group's call sequence. Occurrence selects
// which of those occurrences the edit applies to on the transient path; the
// persistent path ignores it and always addresses the first match.
type Modification struct {
	Kind        Kind
	GroupID     int32
	OperationID int32
	PropertyID  int32

	// Value carries the payload for SetProperty/AddProperty and for
	// AddOperation entries created through the property-list convenience
	// call. It is nil for Remove* and bare AddOperation.
	Value Value

	// InjectAfter applies to AddOperation/AddProperty only: the operation
	// type tag after which the injected call is issued, InjectAtGroupEnd,
	// or InjectImmediately (default).
	InjectAfter int32

	// Occurrence is AllOccurrences or the 1-based occurrence index the
	// edit applies to.
	Occurrence int32
}

// Key identifies a modification inside a Builder: at most one entry exists
// per key, and conflicting kinds for the same target supersede each other.
type Key struct {
	Kind        Kind
	GroupID     int32
	OperationID int32
	PropertyID  int32
}

// Key returns the builder identity of the modification.
func (m Modification) Key() Key {
	return Key{Kind: m.Kind, GroupID: m.GroupID, OperationID: m.OperationID, PropertyID: m.PropertyID}
}

// TargetsOperation reports whether the modification addresses the given
// operation type tag (any property).
func (m Modification) TargetsOperation(groupID, operationID int32) bool {
	return m.GroupID == groupID && m.OperationID == operationID
}

// MatchesOccurrence reports whether the entry's occurrence selector accepts
// the given 1-based occurrence counter value.
func (m Modification) MatchesOccurrence(count int32) bool {
	return m.Occurrence == AllOccurrences || m.Occurrence == count
}

// IsInjection reports whether the entry is issued as a synthetic call on the
// transient path rather than matched against host calls.
func (m Modification) IsInjection() bool {
	return m.Kind == KindAddProperty || m.Kind == KindAddOperation
}

// String renders the modification for logs and error messages.
func (m Modification) String() string {
	if m.PropertyID == NoProperty {
		return fmt.Sprintf("%s(group=%d op=%d occ=%d)", m.Kind, m.GroupID, m.OperationID, m.Occurrence)
	}
	return fmt.Sprintf("%s(group=%d op=%d prop=%d occ=%d value=%s)",
		m.Kind, m.GroupID, m.OperationID, m.PropertyID, m.Occurrence, ValueString(m.Value))
}
