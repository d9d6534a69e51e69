// Package engine holds the domain types shared by every stage of the
// deterministic state-evaluation pipeline: the wasm host, the
// interaction source, the cache, and the evaluator itself.
package engine

import (
	"encoding/json"
	"time"
)

// SortKey is an opaque, lexicographically comparable identifier assigned
// by the Scheduler Unit. Ordering between two sort keys on the same
// process is always defined: Compare returns <0, 0, or >0.
type SortKey string

// Compare implements the strict total order spec.md §3 requires.
func (k SortKey) Compare(other SortKey) int {
	switch {
	case k < other:
		return -1
	case k > other:
		return 1
	default:
		return 0
	}
}

// Genesis is the sentinel "from" value meaning "the start of the
// process's interaction stream".
const Genesis SortKey = ""

// Latest is the sentinel "to" value meaning "whatever the Interaction
// Source currently knows about".
const Latest SortKey = ""

// Interaction is a single ordered input to a process.
type Interaction struct {
	ProcessID string          `json:"processId"`
	SortKey   SortKey         `json:"sortKey"`
	Action    json.RawMessage `json:"action"`
	Env       json.RawMessage `json:"env"`
	// Cron marks a self-triggered tick rather than an SU-forwarded
	// message; it does not affect fold order or semantics, only
	// audit filtering (cache.Range).
	Cron bool `json:"cron,omitempty"`
}

// Result is the handler's success/failure signal. A truthy Error marks
// the owning HandlerOutput as a failed step.
type Result struct {
	Error json.RawMessage `json:"error,omitempty"`
}

// Failed reports whether this Result carries a truthy error.
func (r *Result) Failed() bool {
	if r == nil {
		return false
	}
	return len(r.Error) > 0 && string(r.Error) != "null"
}

// HandlerOutput is what a WASM handler invocation returns, or what the
// Module Host synthesizes when the guest traps.
type HandlerOutput struct {
	State    json.RawMessage   `json:"state,omitempty"`
	Messages []json.RawMessage `json:"messages,omitempty"`
	Spawns   []json.RawMessage `json:"spawns,omitempty"`
	Output   json.RawMessage   `json:"output,omitempty"`
	Result   *Result           `json:"result,omitempty"`
}

// Failed reports whether the step that produced this output failed.
func (o *HandlerOutput) Failed() bool {
	return o != nil && o.Result.Failed()
}

// EvaluationRecord is the cached artifact of exactly one folded step.
type EvaluationRecord struct {
	ProcessID string          `json:"processId"`
	SortKey   SortKey         `json:"sortKey"`
	Action    json.RawMessage `json:"action"`
	Output    HandlerOutput   `json:"output"`
	CachedAt  time.Time       `json:"cachedAt"`
	// Cron mirrors the originating Interaction's Cron marker so a
	// cache dump can separate self-triggered ticks from SU-forwarded
	// messages without re-fetching the interaction stream.
	Cron bool `json:"cron,omitempty"`
	// Nonce/Epoch are opaque audit annotations carried over from the
	// source system's message-ordinate scheme; they play no role in
	// fold ordering, which is governed exclusively by SortKey.
	Nonce int64 `json:"nonce,omitempty"`
	Epoch int64 `json:"epoch,omitempty"`
}

// EqualIgnoringCachedAt reports whether two records are byte-identical
// once CachedAt is excluded, per spec.md §9's mandated exclusion of the
// one non-deterministic field from the cache's integrity check.
func (r EvaluationRecord) EqualIgnoringCachedAt(other EvaluationRecord) bool {
	r.CachedAt = time.Time{}
	other.CachedAt = time.Time{}
	a, errA := json.Marshal(r)
	b, errB := json.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}

// ModuleOptions travels with src from the Module Binary Store to the
// Module Host, carrying the resource ceilings that govern a single
// evaluation's WASM instance.
type ModuleOptions struct {
	MemoryLimitPages uint32        `json:"memoryLimitPages,omitempty"`
	GasLimit         uint64        `json:"gasLimit,omitempty"`
	CallTimeout      time.Duration `json:"callTimeout,omitempty"`
}

// ReadStateResult is the outward-facing answer to readState.
type ReadStateResult struct {
	State      json.RawMessage `json:"state"`
	Output     HandlerOutput   `json:"output"`
	LastSortKey SortKey        `json:"lastSortKey"`
}
