package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantir/abilitymod/internal/mod"
	"github.com/vantir/abilitymod/internal/queue"
	"github.com/vantir/abilitymod/internal/testutil"
)

// recorder stands in for the original per-property routine and records what
// reaches it, with the argument value at invocation time.
type recorder struct {
	calls []appliedCall
}

type appliedCall struct {
	op    int32
	prop  int32
	value mod.Value
}

func (r *recorder) apply(call *PropertyCall) {
	var v mod.Value
	if call.Arg != nil {
		v = *call.Arg
	}
	r.calls = append(r.calls, appliedCall{op: call.OperationID, prop: call.PropertyID, value: v})
}

type hostCall struct {
	op    int32
	prop  int32
	value mod.Value
}

// playPass runs one scripted ability-processing pass. Each call owns its
// argument slot; the returned slice is the slots after the pass, so argument
// restoration is observable.
func playPass(eng *Engine, abilityID, groupID int32, calls []hostCall) []mod.Value {
	slots := make([]mod.Value, len(calls))
	for i := range calls {
		slots[i] = calls[i].value
	}
	h := eng.Hooks()
	h.AbilityEntry(abilityID, func() {
		for i, c := range calls {
			h.PropertyApply(&PropertyCall{
				AbilityID:   abilityID,
				GroupID:     groupID,
				OperationID: c.op,
				PropertyID:  c.prop,
				Arg:         &slots[i],
			})
		}
	})
	return slots
}

func newTestEngine(t *testing.T, store *queue.Store, opts ...EngineOption) (*Engine, *recorder, *TraceCollector) {
	t.Helper()
	rec := &recorder{}
	collector := &TraceCollector{}
	opts = append(opts,
		WithTraceSink(collector),
		WithTokenGenerator(NewFixedGenerator("p1", "p2", "p3", "p4")),
	)
	eng := New(store, opts...)
	eng.Bind(rec.apply)
	return eng, rec, collector
}

func TestEngine_Ready(t *testing.T) {
	var nilEngine *Engine
	assert.False(t, nilEngine.Ready())

	eng := New(queue.NewStore())
	assert.False(t, eng.Ready(), "not ready before Bind")

	eng.Bind(func(*PropertyCall) {})
	assert.True(t, eng.Ready())
}

func TestEngine_PassthroughWithoutBatch(t *testing.T) {
	eng, rec, collector := newTestEngine(t, queue.NewStore())

	playPass(eng, 100, 1, []hostCall{
		{op: 10, prop: 2, value: mod.Int(5)},
		{op: 20, prop: 3, value: mod.Float(1.5)},
	})

	require.Len(t, rec.calls, 2)
	assert.Equal(t, appliedCall{op: 10, prop: 2, value: mod.Int(5)}, rec.calls[0])
	assert.Equal(t, appliedCall{op: 20, prop: 3, value: mod.Float(1.5)}, rec.calls[1])

	for _, ev := range collector.Events {
		assert.Equal(t, DecisionPassed, ev.Decision)
	}
}

func TestEngine_PropertyOutsidePassForwards(t *testing.T) {
	eng, rec, _ := newTestEngine(t, queue.NewStore())

	// No HandleAbility in flight: the call forwards untouched.
	v := mod.Value(mod.Int(7))
	eng.HandleProperty(&PropertyCall{AbilityID: 100, GroupID: 1, OperationID: 10, PropertyID: 2, Arg: &v})

	require.Len(t, rec.calls, 1)
	assert.Equal(t, mod.Int(7), rec.calls[0].value)
}

func TestEngine_SetProperty_SecondOccurrenceOnly(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{
		testutil.SetPropOcc(1, 10, 2, 2, mod.Int(99)),
	})
	eng, rec, _ := newTestEngine(t, store)

	slots := playPass(eng, 100, 1, []hostCall{
		{op: 10, prop: 2, value: mod.Int(10)},
		{op: 10, prop: 2, value: mod.Int(10)},
		{op: 10, prop: 2, value: mod.Int(10)},
		{op: 10, prop: 3, value: mod.Int(20)},
	})

	require.Len(t, rec.calls, 4)
	assert.Equal(t, mod.Int(10), rec.calls[0].value)
	assert.Equal(t, mod.Int(99), rec.calls[1].value, "second occurrence rewritten")
	assert.Equal(t, mod.Int(10), rec.calls[2].value)
	assert.Equal(t, mod.Int(20), rec.calls[3].value, "different property untouched")

	// Argument storage restored after the rewritten call.
	assert.Equal(t, mod.Int(10), slots[1])
}

func TestEngine_SetProperty_AllOccurrences(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{
		testutil.SetProp(1, 10, 2, mod.Float(0.5)),
	})
	eng, rec, _ := newTestEngine(t, store)

	playPass(eng, 100, 1, []hostCall{
		{op: 10, prop: 2, value: mod.Int(1)},
		{op: 10, prop: 2, value: mod.Int(2)},
	})

	require.Len(t, rec.calls, 2)
	assert.Equal(t, mod.Float(0.5), rec.calls[0].value)
	assert.Equal(t, mod.Float(0.5), rec.calls[1].value)
}

func TestEngine_SetProperty_NilArgPassesThrough(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{
		testutil.SetProp(1, 10, 2, mod.Int(99)),
	})
	eng, rec, collector := newTestEngine(t, store)

	h := eng.Hooks()
	h.AbilityEntry(100, func() {
		h.PropertyApply(&PropertyCall{AbilityID: 100, GroupID: 1, OperationID: 10, PropertyID: 2})
	})

	require.Len(t, rec.calls, 1)
	assert.Nil(t, rec.calls[0].value)

	var decisions []Decision
	for _, ev := range collector.Events {
		decisions = append(decisions, ev.Decision)
	}
	assert.Equal(t, []Decision{DecisionActivated, DecisionPassed}, decisions)
}

func TestEngine_RemoveProperty_Suppresses(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{
		testutil.RemoveProp(1, 10, 2),
	})
	eng, rec, collector := newTestEngine(t, store)

	playPass(eng, 100, 1, []hostCall{
		{op: 10, prop: 2, value: mod.Int(1)},
		{op: 10, prop: 3, value: mod.Int(2)},
	})

	require.Len(t, rec.calls, 1)
	assert.Equal(t, int32(3), rec.calls[0].prop)

	assert.Equal(t, DecisionSuppressedProperty, collector.Events[1].Decision)
}

func TestEngine_RemoveOperation_AllOccurrences(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{
		testutil.RemoveOp(1, 10),
	})
	eng, rec, collector := newTestEngine(t, store)

	playPass(eng, 100, 1, []hostCall{
		{op: 10, prop: 2, value: mod.Int(1)},
		{op: 10, prop: 3, value: mod.Int(2)},
		{op: 20, prop: 2, value: mod.Int(3)},
		{op: 10, prop: 2, value: mod.Int(4)},
	})

	// Every call under op 10 is swallowed, including its second occurrence.
	require.Len(t, rec.calls, 1)
	assert.Equal(t, int32(20), rec.calls[0].op)

	suppressed := 0
	for _, ev := range collector.Events {
		if ev.Decision == DecisionSuppressedOperation {
			suppressed++
		}
	}
	assert.Equal(t, 3, suppressed)
}

func TestEngine_RemoveOperation_SecondOccurrenceOnly(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{
		testutil.RemoveOpOcc(1, 10, 2),
	})
	eng, rec, _ := newTestEngine(t, store)

	playPass(eng, 100, 1, []hostCall{
		{op: 10, prop: 2, value: mod.Int(1)},
		{op: 20, prop: 2, value: mod.Int(2)},
		{op: 10, prop: 2, value: mod.Int(3)},
		{op: 10, prop: 3, value: mod.Int(4)},
	})

	// Only the second visit to op 10 is suppressed.
	require.Len(t, rec.calls, 2)
	assert.Equal(t, mod.Int(1), rec.calls[0].value)
	assert.Equal(t, mod.Int(2), rec.calls[1].value)
}

func TestEngine_AddProperty_Immediate(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{
		testutil.AddProp(1, 40, 7, mod.Int(42)),
	})
	eng, rec, collector := newTestEngine(t, store)

	playPass(eng, 100, 1, []hostCall{
		{op: 10, prop: 2, value: mod.Int(1)},
	})

	// The injected call is issued at activation, before the first host call
	// reaches the real routine.
	require.Len(t, rec.calls, 2)
	assert.Equal(t, appliedCall{op: 40, prop: 7, value: mod.Int(42)}, rec.calls[0])
	assert.Equal(t, appliedCall{op: 10, prop: 2, value: mod.Int(1)}, rec.calls[1])

	assert.Equal(t, DecisionActivated, collector.Events[0].Decision)
	assert.Equal(t, DecisionInjected, collector.Events[1].Decision)
}

func TestEngine_AddProperty_InjectAfterOperation(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{
		testutil.AddPropAfter(1, 40, 7, 10, mod.Int(42)),
	})
	eng, rec, _ := newTestEngine(t, store)

	playPass(eng, 100, 1, []hostCall{
		{op: 10, prop: 2, value: mod.Int(1)},
		{op: 10, prop: 3, value: mod.Int(2)},
		{op: 20, prop: 2, value: mod.Int(3)},
	})

	// The synthetic call lands between op 10's calls and op 20's calls.
	require.Len(t, rec.calls, 4)
	assert.Equal(t, int32(10), rec.calls[0].op)
	assert.Equal(t, int32(10), rec.calls[1].op)
	assert.Equal(t, appliedCall{op: 40, prop: 7, value: mod.Int(42)}, rec.calls[2])
	assert.Equal(t, int32(20), rec.calls[3].op)
}

func TestEngine_AddProperty_InjectAfterIssuedOnce(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{
		testutil.AddPropAfter(1, 40, 7, 10, mod.Int(42)),
	})
	eng, rec, _ := newTestEngine(t, store)

	// Op 10 is left twice; the injection is issued only the first time.
	playPass(eng, 100, 1, []hostCall{
		{op: 10, prop: 2, value: mod.Int(1)},
		{op: 20, prop: 2, value: mod.Int(2)},
		{op: 10, prop: 2, value: mod.Int(3)},
		{op: 20, prop: 2, value: mod.Int(4)},
	})

	injected := 0
	for _, c := range rec.calls {
		if c.op == 40 {
			injected++
		}
	}
	assert.Equal(t, 1, injected)
	require.Len(t, rec.calls, 5)
	assert.Equal(t, int32(40), rec.calls[1].op)
}

func TestEngine_AddProperty_InjectAfterFinalOperation(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{
		testutil.AddPropAfter(1, 40, 7, 20, mod.Int(42)),
	})
	eng, rec, _ := newTestEngine(t, store)

	// Op 20 is the last operation of the pass; no transition away from it
	// is ever observed, so the injection is issued at pass end.
	playPass(eng, 100, 1, []hostCall{
		{op: 10, prop: 2, value: mod.Int(1)},
		{op: 20, prop: 2, value: mod.Int(2)},
	})

	require.Len(t, rec.calls, 3)
	assert.Equal(t, int32(40), rec.calls[2].op)
}

func TestEngine_AddProperty_GroupEnd(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{
		testutil.AddPropAfter(1, 40, 7, mod.InjectAtGroupEnd, mod.Int(42)),
	})
	eng, rec, _ := newTestEngine(t, store)

	playPass(eng, 100, 1, []hostCall{
		{op: 10, prop: 2, value: mod.Int(1)},
		{op: 20, prop: 2, value: mod.Int(2)},
	})

	require.Len(t, rec.calls, 3)
	assert.Equal(t, appliedCall{op: 40, prop: 7, value: mod.Int(42)}, rec.calls[2])
}

func TestEngine_AddProperty_NeverMatchedInjectAfterNotIssued(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{
		testutil.AddPropAfter(1, 40, 7, 99, mod.Int(42)),
	})
	eng, rec, _ := newTestEngine(t, store)

	playPass(eng, 100, 1, []hostCall{
		{op: 10, prop: 2, value: mod.Int(1)},
	})

	// Op 99 never ran, so the injection point never arrived.
	require.Len(t, rec.calls, 1)
	assert.Equal(t, int32(10), rec.calls[0].op)
}

func TestEngine_AddOperation_InjectedWithoutValue(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{
		testutil.AddOp(1, 50),
	})
	eng, rec, _ := newTestEngine(t, store)

	playPass(eng, 100, 1, []hostCall{
		{op: 10, prop: 2, value: mod.Int(1)},
	})

	require.Len(t, rec.calls, 2)
	assert.Equal(t, int32(50), rec.calls[0].op)
	assert.Equal(t, mod.NoProperty, rec.calls[0].prop)
	assert.Nil(t, rec.calls[0].value)
}

func TestEngine_BatchFIFOAcrossPasses(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{testutil.SetProp(1, 10, 2, mod.Int(11))})
	store.Enqueue(100, []mod.Modification{testutil.SetProp(1, 10, 2, mod.Int(22))})
	eng, rec, _ := newTestEngine(t, store)

	calls := []hostCall{{op: 10, prop: 2, value: mod.Int(0)}}
	playPass(eng, 100, 1, calls)
	playPass(eng, 100, 1, calls)
	playPass(eng, 100, 1, calls)

	require.Len(t, rec.calls, 3)
	assert.Equal(t, mod.Int(11), rec.calls[0].value)
	assert.Equal(t, mod.Int(22), rec.calls[1].value)
	assert.Equal(t, mod.Int(0), rec.calls[2].value, "queue drained, third pass unmodified")
}

func TestEngine_ActivationOnlyOnFirstCall(t *testing.T) {
	store := queue.NewStore()
	eng, rec, _ := newTestEngine(t, store)

	h := eng.Hooks()
	slot1 := mod.Value(mod.Int(1))
	slot2 := mod.Value(mod.Int(2))
	h.AbilityEntry(100, func() {
		h.PropertyApply(&PropertyCall{AbilityID: 100, GroupID: 1, OperationID: 10, PropertyID: 2, Arg: &slot1})
		// A batch arriving mid-pass must not take effect this pass.
		store.Enqueue(100, []mod.Modification{testutil.SetProp(1, 10, 2, mod.Int(99))})
		h.PropertyApply(&PropertyCall{AbilityID: 100, GroupID: 1, OperationID: 10, PropertyID: 2, Arg: &slot2})
	})

	require.Len(t, rec.calls, 2)
	assert.Equal(t, mod.Int(1), rec.calls[0].value)
	assert.Equal(t, mod.Int(2), rec.calls[1].value)

	// The late batch governs the next pass.
	playPass(eng, 100, 1, []hostCall{{op: 10, prop: 2, value: mod.Int(3)}})
	require.Len(t, rec.calls, 3)
	assert.Equal(t, mod.Int(99), rec.calls[2].value)
}

func TestEngine_DifferentGroupKeepsBatchQueued(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{testutil.SetProp(2, 10, 2, mod.Int(99))})
	eng, rec, _ := newTestEngine(t, store)

	// Pass runs group 1; the batch is keyed to group 2 and stays queued.
	playPass(eng, 100, 1, []hostCall{{op: 10, prop: 2, value: mod.Int(1)}})
	require.Len(t, rec.calls, 1)
	assert.Equal(t, mod.Int(1), rec.calls[0].value)
	assert.Equal(t, 1, store.Pending(100, 2))

	playPass(eng, 100, 2, []hostCall{{op: 10, prop: 2, value: mod.Int(1)}})
	require.Len(t, rec.calls, 2)
	assert.Equal(t, mod.Int(99), rec.calls[1].value)
}

func TestEngine_InjectionCap(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{
		testutil.AddProp(1, 40, 1, mod.Int(1)),
		testutil.AddProp(1, 40, 2, mod.Int(2)),
		testutil.AddProp(1, 40, 3, mod.Int(3)),
	})
	eng, rec, collector := newTestEngine(t, store, WithMaxInjections(2))

	playPass(eng, 100, 1, []hostCall{{op: 10, prop: 2, value: mod.Int(0)}})

	// Two injected calls plus the host call; the third injection dropped.
	require.Len(t, rec.calls, 3)

	dropped := 0
	for _, ev := range collector.Events {
		if ev.Decision == DecisionDropped {
			dropped++
		}
	}
	assert.Equal(t, 1, dropped)
}

func TestEngine_NestedPassRestoresOuter(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{testutil.SetProp(1, 10, 2, mod.Int(99))})
	store.Enqueue(200, []mod.Modification{testutil.SetProp(1, 10, 2, mod.Int(55))})
	eng, rec, _ := newTestEngine(t, store)

	h := eng.Hooks()
	outer1 := mod.Value(mod.Int(1))
	outer2 := mod.Value(mod.Int(2))
	inner := mod.Value(mod.Int(3))
	h.AbilityEntry(100, func() {
		h.PropertyApply(&PropertyCall{AbilityID: 100, GroupID: 1, OperationID: 10, PropertyID: 2, Arg: &outer1})

		// Reentrant ability entry gets its own pass and batch.
		h.AbilityEntry(200, func() {
			h.PropertyApply(&PropertyCall{AbilityID: 200, GroupID: 1, OperationID: 10, PropertyID: 2, Arg: &inner})
		})

		// Back in the outer pass: its batch still governs.
		h.PropertyApply(&PropertyCall{AbilityID: 100, GroupID: 1, OperationID: 10, PropertyID: 2, Arg: &outer2})
	})

	require.Len(t, rec.calls, 3)
	assert.Equal(t, mod.Int(99), rec.calls[0].value)
	assert.Equal(t, mod.Int(55), rec.calls[1].value)
	assert.Equal(t, mod.Int(99), rec.calls[2].value)
}

func TestEngine_TraceSequencing(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{testutil.SetProp(1, 10, 2, mod.Int(99))})
	eng, _, collector := newTestEngine(t, store)

	playPass(eng, 100, 1, []hostCall{
		{op: 10, prop: 2, value: mod.Int(1)},
		{op: 20, prop: 3, value: mod.Int(2)},
	})
	playPass(eng, 100, 1, []hostCall{{op: 10, prop: 2, value: mod.Int(3)}})

	require.NotEmpty(t, collector.Events)
	var last int64
	for _, ev := range collector.Events {
		assert.Greater(t, ev.Seq, last, "seq strictly increasing")
		last = ev.Seq
	}

	assert.Equal(t, "p1", collector.Events[0].PassToken)
	final := collector.Events[len(collector.Events)-1]
	assert.Equal(t, "p2", final.PassToken)

	// The activation event carries the batch fingerprint.
	want, err := mod.Fingerprint(100, []mod.Modification{testutil.SetProp(1, 10, 2, mod.Int(99))})
	require.NoError(t, err)
	assert.Equal(t, DecisionActivated, collector.Events[0].Decision)
	assert.Equal(t, want, collector.Events[0].Fingerprint)
}

func TestEngine_OperationDispatchAdvancesOccurrence(t *testing.T) {
	store := queue.NewStore()
	store.Enqueue(100, []mod.Modification{testutil.RemoveOpOcc(1, 10, 2)})
	eng, rec, _ := newTestEngine(t, store)

	// The host announces each sub-entry via the dispatch hook before its
	// property calls; occurrence counting must not double-advance.
	h := eng.Hooks()
	slots := []mod.Value{mod.Int(1), mod.Int(2), mod.Int(3)}
	h.AbilityEntry(100, func() {
		h.OperationDispatch(10)
		h.PropertyApply(&PropertyCall{AbilityID: 100, GroupID: 1, OperationID: 10, PropertyID: 2, Arg: &slots[0]})
		h.OperationDispatch(20)
		h.PropertyApply(&PropertyCall{AbilityID: 100, GroupID: 1, OperationID: 20, PropertyID: 2, Arg: &slots[1]})
		h.OperationDispatch(10)
		h.PropertyApply(&PropertyCall{AbilityID: 100, GroupID: 1, OperationID: 10, PropertyID: 2, Arg: &slots[2]})
	})

	require.Len(t, rec.calls, 2)
	assert.Equal(t, mod.Int(1), rec.calls[0].value)
	assert.Equal(t, mod.Int(2), rec.calls[1].value)
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	g := UUIDv7Generator{}
	a := g.Generate()
	b := g.Generate()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}
