package engine

import "github.com/vantir/abilitymod/internal/mod"

// PropertyCall is one per-property apply call observed at the host's
// interception point. Arg points at the argument storage the host routine
// reads from; the engine may rewrite it for the duration of a single call
// but always restores it before returning, so later unrelated reads of the
// same storage are unaffected.
type PropertyCall struct {
	AbilityID   int32
	GroupID     int32
	OperationID int32
	PropertyID  int32
	Arg         *mod.Value
}

// ApplyFunc is the capability to invoke the original, un-intercepted
// per-property routine. The hook installer supplies it once at startup.
type ApplyFunc func(call *PropertyCall)

// Hooks bundles the three callbacks the engine registers with the hook
// installer: ability entry, operation (sub-entry) dispatch, and per-property
// apply.
type Hooks struct {
	AbilityEntry      func(abilityID int32, invokeReal func())
	OperationDispatch func(operationID int32)
	PropertyApply     func(call *PropertyCall)
}

// Installer resolves the host's interception points once at process start,
// registers the callbacks, and returns the original-routine capability.
// It is an external collaborator; tests use scripted fakes.
type Installer interface {
	Install(h Hooks) (ApplyFunc, error)
}
