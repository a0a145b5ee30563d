// Package testutil provides shared helpers for building modification
// entries in tests without repeating the full struct literal each time.
package testutil

import "github.com/vantir/abilitymod/internal/mod"

// SetProp builds a SetProperty entry matching every occurrence.
func SetProp(groupID, opID, propID int32, v mod.Value) mod.Modification {
	return mod.Modification{
		Kind:        mod.KindSetProperty,
		GroupID:     groupID,
		OperationID: opID,
		PropertyID:  propID,
		Value:       v,
	}
}

// SetPropOcc builds a SetProperty entry for the Nth occurrence.
func SetPropOcc(groupID, opID, propID, occ int32, v mod.Value) mod.Modification {
	m := SetProp(groupID, opID, propID, v)
	m.Occurrence = occ
	return m
}

// RemoveProp builds a RemoveProperty entry.
func RemoveProp(groupID, opID, propID int32) mod.Modification {
	return mod.Modification{
		Kind:        mod.KindRemoveProperty,
		GroupID:     groupID,
		OperationID: opID,
		PropertyID:  propID,
	}
}

// AddProp builds an AddProperty entry injected immediately on activation.
func AddProp(groupID, opID, propID int32, v mod.Value) mod.Modification {
	return mod.Modification{
		Kind:        mod.KindAddProperty,
		GroupID:     groupID,
		OperationID: opID,
		PropertyID:  propID,
		Value:       v,
	}
}

// AddPropAfter builds an AddProperty entry injected after the given
// operation type tag (or at group end for mod.InjectAtGroupEnd).
func AddPropAfter(groupID, opID, propID, after int32, v mod.Value) mod.Modification {
	m := AddProp(groupID, opID, propID, v)
	m.InjectAfter = after
	return m
}

// AddOp builds a bare AddOperation entry.
func AddOp(groupID, opID int32) mod.Modification {
	return mod.Modification{
		Kind:        mod.KindAddOperation,
		GroupID:     groupID,
		OperationID: opID,
		PropertyID:  mod.NoProperty,
	}
}

// RemoveOp builds a RemoveOperation entry matching every occurrence.
func RemoveOp(groupID, opID int32) mod.Modification {
	return mod.Modification{
		Kind:        mod.KindRemoveOperation,
		GroupID:     groupID,
		OperationID: opID,
		PropertyID:  mod.NoProperty,
	}
}

// RemoveOpOcc builds a RemoveOperation entry for the Nth occurrence.
func RemoveOpOcc(groupID, opID, occ int32) mod.Modification {
	m := RemoveOp(groupID, opID)
	m.Occurrence = occ
	return m
}
