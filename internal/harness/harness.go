// Package harness drives the interception engine with scripted host call
// sequences. The host decides call order and repetition in production; here
// a scenario plays the host, so the engine's per-pass state machine can be
// pinned down call by call and compared against golden traces.
package harness

import (
	"fmt"

	"github.com/vantir/abilitymod/internal/engine"
	"github.com/vantir/abilitymod/internal/mod"
	"github.com/vantir/abilitymod/internal/queue"
)

// Call is one scripted property-apply call: the host applies property Prop
// of operation Op with the given argument value.
type Call struct {
	Op    int32
	Prop  int32
	Value mod.Value
}

// Pass is one scripted ability-processing pass.
type Pass struct {
	Calls []Call
}

// Scenario is a scripted interaction: batches enqueued up front, then one or
// more passes the fake host runs through the engine.
type Scenario struct {
	Name      string
	AbilityID int32
	GroupID   int32

	// Batches are enqueued in order before the first pass. Each slice is
	// one batch; entries without a GroupID set inherit the scenario's.
	Batches [][]mod.Modification

	Passes []Pass

	// PassTokens override the generated tokens, for deterministic golden
	// traces. Must cover every pass when set.
	PassTokens []string
}

// AppliedCall is one invocation of the real per-property routine as the fake
// host observed it, with the argument value at invocation time.
type AppliedCall struct {
	Op    int32  `json:"op"`
	Prop  int32  `json:"prop"`
	Value string `json:"value"`
}

// PassResult captures one pass: what reached the real routine and what the
// call-argument storage held after the pass finished.
type PassResult struct {
	Applied []AppliedCall `json:"applied"`
	Storage []string      `json:"storage"`
}

// Result is the outcome of running a scenario.
type Result struct {
	ScenarioName string              `json:"scenario_name"`
	Passes       []PassResult        `json:"passes"`
	Trace        []engine.TraceEvent `json:"trace"`
}

// Run executes the scenario against a fresh engine and queue store.
func Run(s *Scenario) (*Result, error) {
	if len(s.PassTokens) > 0 && len(s.PassTokens) != len(s.Passes) {
		return nil, fmt.Errorf("scenario %s: %d pass tokens for %d passes", s.Name, len(s.PassTokens), len(s.Passes))
	}

	store := queue.NewStore()
	collector := &engine.TraceCollector{}

	opts := []engine.EngineOption{engine.WithTraceSink(collector)}
	if len(s.PassTokens) > 0 {
		opts = append(opts, engine.WithTokenGenerator(engine.NewFixedGenerator(s.PassTokens...)))
	} else {
		tokens := make([]string, len(s.Passes))
		for i := range tokens {
			tokens[i] = fmt.Sprintf("pass-%d", i+1)
		}
		opts = append(opts, engine.WithTokenGenerator(engine.NewFixedGenerator(tokens...)))
	}
	eng := engine.New(store, opts...)

	var applied *[]AppliedCall
	eng.Bind(func(call *engine.PropertyCall) {
		value := "<none>"
		if call.Arg != nil {
			value = mod.ValueString(*call.Arg)
		}
		*applied = append(*applied, AppliedCall{Op: call.OperationID, Prop: call.PropertyID, Value: value})
	})
	hooks := eng.Hooks()

	for _, batch := range s.Batches {
		entries := make([]mod.Modification, len(batch))
		copy(entries, batch)
		for i := range entries {
			if entries[i].GroupID == 0 {
				entries[i].GroupID = s.GroupID
			}
		}
		store.Enqueue(s.AbilityID, entries)
	}

	result := &Result{ScenarioName: s.Name}
	for _, p := range s.Passes {
		passApplied := []AppliedCall{}
		applied = &passApplied

		// Each scripted call owns its argument storage, so restoration
		// after a rewritten call is observable per slot.
		slots := make([]mod.Value, len(p.Calls))
		for i, c := range p.Calls {
			slots[i] = c.Value
		}

		hooks.AbilityEntry(s.AbilityID, func() {
			for i, c := range p.Calls {
				hooks.PropertyApply(&engine.PropertyCall{
					AbilityID:   s.AbilityID,
					GroupID:     s.GroupID,
					OperationID: c.Op,
					PropertyID:  c.Prop,
					Arg:         &slots[i],
				})
			}
		})

		storage := make([]string, len(slots))
		for i, v := range slots {
			storage[i] = mod.ValueString(v)
		}
		result.Passes = append(result.Passes, PassResult{Applied: passApplied, Storage: storage})
	}

	result.Trace = collector.Events
	return result, nil
}
