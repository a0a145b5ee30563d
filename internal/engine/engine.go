package engine

import (
	"log/slog"

	"github.com/vantir/abilitymod/internal/mod"
	"github.com/vantir/abilitymod/internal/queue"
)

// DefaultMaxInjections caps synthetic calls per pass. A batch cannot contain
// anywhere near this many Add* entries in practice; the cap exists so a
// pathological document cannot flood the host's property routine.
const DefaultMaxInjections = 256

// Engine is the transient interception engine: a reactive state machine
// driven by the three interception points the host calls while processing an
// ability. The engine does not control iteration order or repetition: it
// reacts to whichever calls the host issues, in whatever order it issues
// them, and decides per property-apply call whether to suppress it, rewrite
// its argument for the duration of the call, let it pass, or synthesize
// extra calls at caller-specified points in the sequence.
//
// The engine runs synchronously on the host's own calling thread, inline
// with the host's call stack. There is no engine-owned goroutine and no
// suspension point. The only reentry is the engine's own injection issuance,
// which calls the real routine directly and is bounded to depth one by the
// pass's injecting flag.
type Engine struct {
	store  *queue.Store
	real   ApplyFunc
	tokens TokenGenerator
	clock  *Clock
	logger *slog.Logger
	sink   TraceSink

	maxInjections int

	// pass is the state of the ability currently being processed. The host
	// model is single-threaded per ability instance; nested entries save
	// and restore the outer pass.
	pass *pass
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. Default: discard.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithTokenGenerator sets the pass token source. Default: UUIDv7.
func WithTokenGenerator(g TokenGenerator) EngineOption {
	return func(e *Engine) { e.tokens = g }
}

// WithTraceSink installs a trace sink receiving every engine decision.
func WithTraceSink(sink TraceSink) EngineOption {
	return func(e *Engine) { e.sink = sink }
}

// WithMaxInjections overrides the per-pass injection cap.
func WithMaxInjections(n int) EngineOption {
	return func(e *Engine) { e.maxInjections = n }
}

// New creates an engine over the given queue store. The engine is not ready
// until Bind supplies the original-routine capability.
func New(store *queue.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:         store,
		tokens:        UUIDv7Generator{},
		clock:         NewClock(),
		logger:        slog.New(slog.DiscardHandler),
		maxInjections: DefaultMaxInjections,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bind supplies the capability to invoke the original per-property routine,
// normally obtained from the hook installer at startup.
func (e *Engine) Bind(real ApplyFunc) {
	e.real = real
}

// Ready reports whether the engine can intercept: the hook points are
// resolved and the original routine is callable.
func (e *Engine) Ready() bool {
	return e != nil && e.real != nil && e.store != nil
}

// Hooks returns the callbacks to register with the hook installer.
func (e *Engine) Hooks() Hooks {
	return Hooks{
		AbilityEntry:      e.HandleAbility,
		OperationDispatch: e.HandleOperation,
		PropertyApply:     e.HandleProperty,
	}
}

// HandleAbility is the pass entry point. It resets per-pass state, invokes
// the host's real processing routine, and on the way out (regardless of how
// the routine returns) flushes still-pending injections and issues group-end
// property additions before discarding the pass.
func (e *Engine) HandleAbility(abilityID int32, invokeReal func()) {
	p := newPass(e.tokens.Generate(), abilityID)
	prev := e.pass
	e.pass = p

	e.logger.Debug("pass start", "pass", p.token, "ability", abilityID)

	defer func() {
		e.finishPass(p)
		e.pass = prev
	}()

	if invokeReal != nil {
		invokeReal()
	}
}

// HandleOperation is the sub-entry dispatch point: it observes the requested
// operation type tag and runs the transition logic.
func (e *Engine) HandleOperation(operationID int32) {
	if e.pass == nil {
		return
	}
	e.transition(e.pass, operationID)
}

// HandleProperty is the per-property apply point.
//
// Order of business, fixed by the state machine: activation (first call of
// the pass only), transition check (a property-apply carries an implicit
// sub-entry), property occurrence increment, then the batch scan. First
// matching entry wins; no match means the call passes through unchanged.
func (e *Engine) HandleProperty(call *PropertyCall) {
	p := e.pass
	if p == nil || e.real == nil {
		if e.real != nil {
			e.real(call)
		}
		return
	}

	if !p.activationTried {
		p.activationTried = true
		e.activate(p, call)
	}

	e.transition(p, call.OperationID)

	pk := propKey{operationID: call.OperationID, propertyID: call.PropertyID}
	p.propCount[pk]++
	propOcc := p.propCount[pk]
	opOcc := p.opCount[call.OperationID]

	for _, m := range p.activeBatch {
		if m.GroupID != call.GroupID {
			continue
		}
		switch m.Kind {
		case mod.KindRemoveOperation:
			if m.OperationID == call.OperationID && m.MatchesOccurrence(opOcc) {
				e.record(p, TraceEvent{
					Decision: DecisionSuppressedOperation, AbilityID: call.AbilityID,
					GroupID: call.GroupID, OperationID: call.OperationID,
					PropertyID: call.PropertyID, Occurrence: opOcc,
				})
				return
			}

		case mod.KindRemoveProperty:
			if m.OperationID == call.OperationID && m.PropertyID == call.PropertyID && m.MatchesOccurrence(propOcc) {
				e.record(p, TraceEvent{
					Decision: DecisionSuppressedProperty, AbilityID: call.AbilityID,
					GroupID: call.GroupID, OperationID: call.OperationID,
					PropertyID: call.PropertyID, Occurrence: propOcc,
				})
				return
			}

		case mod.KindSetProperty:
			if m.OperationID == call.OperationID && m.PropertyID == call.PropertyID && m.MatchesOccurrence(propOcc) {
				e.applyReplaced(p, call, m, propOcc)
				return
			}
		}
	}

	e.real(call)
	e.record(p, TraceEvent{
		Decision: DecisionPassed, AbilityID: call.AbilityID,
		GroupID: call.GroupID, OperationID: call.OperationID,
		PropertyID: call.PropertyID, Occurrence: propOcc,
	})
}

// activate binds the oldest queued batch for the call's (ability, group) to
// this pass, then issues Add* entries marked for immediate injection at the
// current position. A pass whose first call finds no queued batch runs
// unmodified; a batch that never activates is silently lost, not re-queued.
func (e *Engine) activate(p *pass, call *PropertyCall) {
	batch, ok := e.store.DequeueIfAny(call.AbilityID, call.GroupID)
	if !ok {
		return
	}
	p.activeBatch = batch.Entries
	p.scheduled = make([]bool, len(batch.Entries))
	p.groupID = batch.GroupID

	fingerprint, err := mod.Fingerprint(batch.AbilityID, batch.Entries)
	if err != nil {
		fingerprint = ""
	}
	e.logger.Debug("batch activated",
		"pass", p.token, "ability", batch.AbilityID, "group", batch.GroupID,
		"entries", len(batch.Entries), "fingerprint", fingerprint)
	e.record(p, TraceEvent{
		Decision: DecisionActivated, AbilityID: batch.AbilityID,
		GroupID: batch.GroupID, Fingerprint: fingerprint,
	})

	for i, m := range p.activeBatch {
		if m.IsInjection() && m.InjectAfter == mod.InjectImmediately {
			p.scheduled[i] = true
			e.issue(p, m)
		}
	}
}

// transition handles an operation-type change: it advances the operation
// occurrence counter, schedules Add* entries whose injection point is the
// operation just left, and flushes pending injections (unless a flush is
// already underway). Injections for "after op X" are issued only once the
// engine observes the operation following X, never eagerly, so they land
// between X's calls and the next operation's calls.
func (e *Engine) transition(p *pass, operationID int32) {
	if p.hasLastOp && p.lastOp == operationID {
		return
	}
	prevOp, hadPrev := p.lastOp, p.hasLastOp

	p.opCount[operationID]++

	if hadPrev {
		for i, m := range p.activeBatch {
			if !m.IsInjection() || p.scheduled[i] {
				continue
			}
			if m.InjectAfter == mod.InjectImmediately || m.InjectAfter == mod.InjectAtGroupEnd {
				continue
			}
			if m.InjectAfter == prevOp {
				p.scheduled[i] = true
				p.pending = append(p.pending, m)
			}
		}
	}

	if len(p.pending) > 0 && !p.injecting {
		e.flushPending(p)
	}

	p.lastOp = operationID
	p.hasLastOp = true
}

// finishPass is the pass-end half of the try/finally around the host's real
// routine: schedule injections whose point is the final operation (no
// transition away from it was ever observed), flush whatever is pending,
// then issue AddProperty entries explicitly marked for end of group.
func (e *Engine) finishPass(p *pass) {
	if p.hasLastOp {
		for i, m := range p.activeBatch {
			if !m.IsInjection() || p.scheduled[i] {
				continue
			}
			if m.InjectAfter == p.lastOp && m.InjectAfter != mod.InjectImmediately && m.InjectAfter != mod.InjectAtGroupEnd {
				p.scheduled[i] = true
				p.pending = append(p.pending, m)
			}
		}
	}
	if len(p.pending) > 0 && !p.injecting {
		e.flushPending(p)
	}
	for _, m := range p.activeBatch {
		if m.Kind == mod.KindAddProperty && m.InjectAfter == mod.InjectAtGroupEnd {
			e.issue(p, m)
		}
	}
	e.logger.Debug("pass end", "pass", p.token, "ability", p.abilityID, "injected", p.injected)
}

// flushPending issues the scheduled injections in list order. The injecting
// flag guards against a transition observed during the flush re-triggering
// it.
func (e *Engine) flushPending(p *pass) {
	p.injecting = true
	defer func() { p.injecting = false }()

	batch := p.pending
	p.pending = nil
	for _, m := range batch {
		e.issue(p, m)
	}
}

// issue fabricates a minimal call for an Add* entry and invokes the real
// routine directly, not through HandleProperty, so injected calls are never
// themselves subject to Set/Remove matching and cannot recurse into the
// engine's own dispatch.
func (e *Engine) issue(p *pass, m mod.Modification) {
	if e.real == nil {
		return
	}
	if p.injected >= e.maxInjections {
		e.logger.Warn("injection cap reached, dropping",
			"pass", p.token, "cap", e.maxInjections, "entry", m.String())
		e.record(p, TraceEvent{
			Decision: DecisionDropped, AbilityID: p.abilityID,
			GroupID: m.GroupID, OperationID: m.OperationID, PropertyID: m.PropertyID,
		})
		return
	}
	p.injected++

	scratch := m.Value
	call := &PropertyCall{
		AbilityID:   p.abilityID,
		GroupID:     m.GroupID,
		OperationID: m.OperationID,
		PropertyID:  m.PropertyID,
		Arg:         &scratch,
	}
	e.real(call)
	e.record(p, TraceEvent{
		Decision: DecisionInjected, AbilityID: p.abilityID,
		GroupID: m.GroupID, OperationID: m.OperationID, PropertyID: m.PropertyID,
		Value: mod.ValueString(m.Value),
	})
}

// applyReplaced performs the rewrite-invoke-restore protocol for a matching
// SetProperty entry: the original argument is read, the replacement written,
// the real routine invoked, and the original restored, so the host's
// in-memory representation is unaffected once the call returns.
func (e *Engine) applyReplaced(p *pass, call *PropertyCall, m mod.Modification, occurrence int32) {
	if call.Arg == nil {
		// No argument storage to rewrite; the call passes unmodified.
		e.real(call)
		e.record(p, TraceEvent{
			Decision: DecisionPassed, AbilityID: call.AbilityID,
			GroupID: call.GroupID, OperationID: call.OperationID,
			PropertyID: call.PropertyID, Occurrence: occurrence,
		})
		return
	}

	original := *call.Arg
	*call.Arg = m.Value
	defer func() { *call.Arg = original }()

	e.real(call)
	e.record(p, TraceEvent{
		Decision: DecisionReplaced, AbilityID: call.AbilityID,
		GroupID: call.GroupID, OperationID: call.OperationID,
		PropertyID: call.PropertyID, Occurrence: occurrence,
		Value: mod.ValueString(m.Value),
	})
}

func (e *Engine) record(p *pass, ev TraceEvent) {
	ev.Seq = e.clock.Next()
	ev.PassToken = p.token
	if e.sink != nil {
		e.sink.Record(ev)
	}
}
