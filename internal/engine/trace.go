package engine

// Decision records what the engine did with one call or injection.
type Decision string

const (
	// DecisionActivated marks the moment a queued batch was bound to the pass.
	DecisionActivated Decision = "activated"
	// DecisionPassed means the call reached the real routine unmodified.
	DecisionPassed Decision = "passed"
	// DecisionSuppressedOperation means a RemoveOperation entry swallowed the call.
	DecisionSuppressedOperation Decision = "suppressed_operation"
	// DecisionSuppressedProperty means a RemoveProperty entry swallowed the call.
	DecisionSuppressedProperty Decision = "suppressed_property"
	// DecisionReplaced means a SetProperty entry rewrote the argument for the
	// duration of the call.
	DecisionReplaced Decision = "replaced"
	// DecisionInjected means the engine issued a synthetic call.
	DecisionInjected Decision = "injected"
	// DecisionDropped means an injection was discarded by the per-pass cap.
	DecisionDropped Decision = "dropped"
)

// TraceEvent is one engine decision in pass order.
type TraceEvent struct {
	Seq         int64    `json:"seq"`
	PassToken   string   `json:"pass_token"`
	Decision    Decision `json:"decision"`
	AbilityID   int32    `json:"ability_id"`
	GroupID     int32    `json:"group_id,omitempty"`
	OperationID int32    `json:"op_id,omitempty"`
	PropertyID  int32    `json:"prop_id,omitempty"`
	Occurrence  int32    `json:"occurrence,omitempty"`
	Value       string   `json:"value,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
}

// TraceSink receives engine decisions as they happen. The harness installs a
// collector; production installs nothing and the engine only logs.
type TraceSink interface {
	Record(ev TraceEvent)
}

// TraceCollector is a simple in-memory sink.
type TraceCollector struct {
	Events []TraceEvent
}

// Record appends the event.
func (c *TraceCollector) Record(ev TraceEvent) {
	c.Events = append(c.Events, ev)
}

// Reset discards collected events.
func (c *TraceCollector) Reset() {
	c.Events = nil
}
