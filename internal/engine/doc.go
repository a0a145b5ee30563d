// Package engine implements the transient interception path: it hooks the
// host's ability-processing call chain at three points (ability entry,
// operation dispatch, per-property apply) and, using batches of queued
// modifications plus per-pass occurrence counters, decides per call whether
// to suppress it, rewrite its argument in place for the duration of the
// call, let it pass, or synthesize extra calls at specific points in the
// observed sequence.
//
// The engine never controls the host's iteration: call order and repetition
// are the host's alone. All engine state is per-pass and is reset when a new
// ability-processing pass begins.
package engine
