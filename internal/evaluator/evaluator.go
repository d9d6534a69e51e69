// Package evaluator implements the core reduction described in
// spec.md §4.4: fold interactions over a starting state through a WASM
// handler, containing per-step failures, persisting one record per
// step, and short-circuiting on the first failed step while still
// returning a well-formed result to the caller. Grounded on the
// teacher's coordinator.Coordinator.processTask loop (fetch → run →
// persist → report, one stage at a time, errors logged and the task
// marked failed rather than the whole service crashing) generalized
// from "one external Job per task" to "one in-process fold per read".
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/permaweb/cu-core/internal/engine"
	"github.com/permaweb/cu-core/internal/pipeline"
)

const (
	defaultCacheRetries = 3
	defaultCacheBackoff = 50 * time.Millisecond
)

// maxSortKey is an internal sentinel strictly greater than any real
// sort key, used only to turn "give me the cache's most recent record"
// into a LatestAtOrBefore lookup — the engine.Cache contract exposes no
// separate "latest" operation, per spec.md §4.3's three named ops.
const maxSortKey = engine.SortKey("\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff")

// Evaluator folds a process's interactions through its WASM handler,
// resuming from the cache's closest prior point.
type Evaluator struct {
	host   engine.ModuleHost
	source engine.Source
	store  engine.ModuleBinaryStore
	cache  engine.Cache
	log    engine.Logger

	sf singleflight.Group // keyed per (processId, targetSortKey)
}

// New constructs an Evaluator. log may be nil.
func New(host engine.ModuleHost, source engine.Source, store engine.ModuleBinaryStore, cache engine.Cache, log engine.Logger) *Evaluator {
	if log == nil {
		log = noopLogger{}
	}
	return &Evaluator{host: host, source: source, store: store, cache: cache, log: log.Named("evaluate")}
}

// acc is the fold's accumulator, threaded through one Outcome per step.
type acc struct {
	state   []byte
	output  engine.HandlerOutput
	lastKey engine.SortKey
	handler engine.Handler
}

// ReadState resolves readState(processId, upToSortKey) per spec.md §6:
// folds through upToSortKey (or the latest known interaction if
// upToSortKey is engine.Latest), resuming from the cache's closest
// prior point. Concurrent callers targeting the same (processId,
// upToSortKey) share one fold (spec.md §5's single-flight guarantee).
func (e *Evaluator) ReadState(ctx context.Context, processID string, upToSortKey engine.SortKey) (engine.ReadStateResult, error) {
	sfKey := fmt.Sprintf("%s|%s", processID, upToSortKey)
	v, err, _ := e.sf.Do(sfKey, func() (any, error) {
		return e.readStateOnce(ctx, processID, upToSortKey)
	})
	if err != nil {
		return engine.ReadStateResult{}, err
	}
	return v.(engine.ReadStateResult), nil
}

func (e *Evaluator) readStateOnce(ctx context.Context, processID string, upToSortKey engine.SortKey) (engine.ReadStateResult, error) {
	log := e.log.Named(processID)

	startState, startKey, startOutput, err := e.resumePoint(ctx, processID, upToSortKey)
	if err != nil {
		return engine.ReadStateResult{}, err
	}

	src, opts, err := e.store.LoadSrc(ctx, processID)
	if err != nil {
		return engine.ReadStateResult{}, err
	}

	handler, err := e.host.Instantiate(ctx, src, opts)
	if err != nil {
		return engine.ReadStateResult{}, err
	}
	defer handler.Close(ctx)

	interactions, err := e.fetchInteractions(ctx, processID, startKey, upToSortKey)
	if err != nil {
		return engine.ReadStateResult{}, err
	}

	a := acc{state: startState, lastKey: startKey, output: startOutput, handler: handler}
	for _, in := range interactions {
		if err := ctx.Err(); err != nil {
			return engine.ReadStateResult{}, err
		}

		outcome, err := e.step(ctx, processID, a, in)
		if err != nil {
			return engine.ReadStateResult{}, err
		}
		a = outcome.Value()
		log.Debugf("folded sortKey %s (halt=%v)", in.SortKey, outcome.ShouldHalt())
		if outcome.ShouldHalt() {
			break
		}
	}

	return engine.ReadStateResult{
		State:       a.state,
		Output:      a.output,
		LastSortKey: a.lastKey,
	}, nil
}

// resumePoint answers "start state, start sortKey, start output" from
// the cache's closest record at or before upToSortKey (or the overall
// latest record, if upToSortKey is engine.Latest), or genesis if there
// is none yet. Returning the cached record's own Output lets a pure
// cache hit (upToSortKey already cached, nothing left to fold) report
// that record's outcome rather than a synthesized empty one — required
// for scenario 5's byte-for-byte resume match.
func (e *Evaluator) resumePoint(ctx context.Context, processID string, upToSortKey engine.SortKey) ([]byte, engine.SortKey, engine.HandlerOutput, error) {
	lookup := upToSortKey
	if lookup == engine.Latest {
		lookup = maxSortKey
	}
	rec, ok, err := e.cache.LatestAtOrBefore(ctx, processID, lookup)
	if err != nil {
		return nil, engine.Genesis, engine.HandlerOutput{}, &engine.TransientIOError{Op: "resume point lookup", Err: err}
	}
	if !ok {
		return []byte(`{}`), engine.Genesis, engine.HandlerOutput{}, nil
	}
	state := rec.Output.State
	if state == nil {
		state = []byte(`{}`)
	}
	return state, rec.SortKey, rec.Output, nil
}

func (e *Evaluator) fetchInteractions(ctx context.Context, processID string, from, to engine.SortKey) ([]engine.Interaction, error) {
	interactions, err := e.source.ListInteractions(ctx, processID, from, to)
	if err != nil {
		v, err := promoteTransient(err, func() (any, error) {
			return e.source.ListInteractions(ctx, processID, from, to)
		})
		if err != nil {
			return nil, err
		}
		return v.([]engine.Interaction), nil
	}
	return interactions, nil
}

// step runs exactly one fold step: invoke the handler, decide
// failed/successful, persist the resulting record, and return the
// Continue|Halt tagged outcome the Design Notes call for.
func (e *Evaluator) step(ctx context.Context, processID string, a acc, in engine.Interaction) (pipeline.Outcome[acc], error) {
	r := pipeline.Chain(pipeline.Ok(a), func(a acc) pipeline.Result[acc] {
		out, err := a.handler.Handle(ctx, a.state, in.Action, in.Env)
		if err != nil {
			return pipeline.Err[acc](err)
		}
		return pipeline.Ok(withInvocation(a, out))
	})
	if r.IsErr() {
		_, err := r.Unwrap()
		return pipeline.Outcome[acc]{}, err
	}
	next, _ := r.Unwrap()

	record := buildRecord(processID, in, next)
	if err := e.saveWithRetry(ctx, record); err != nil {
		return pipeline.Outcome[acc]{}, err
	}

	next.lastKey = in.SortKey
	next.output = record.Output
	if record.Output.Failed() {
		return pipeline.Halt(next), nil
	}
	return pipeline.Continue(next), nil
}

// withInvocation applies a handler's output to the accumulator: state
// absent means carry forward unchanged, per spec.md §9's mandated
// "state absent ⇒ carry forward" semantics and no other inference.
func withInvocation(a acc, out engine.HandlerOutput) acc {
	a.output = out
	if out.Failed() {
		// A failed step never updates state (spec.md §3 invariants).
		return a
	}
	if out.State != nil {
		a.state = out.State
	}
	return a
}

// buildRecord produces the EvaluationRecord for one step. For a failed
// step, and for a successful one whose handler omitted state, effective
// carries the accumulator's carry-forward state, so a cached record
// always names the state at that sortKey, per spec.md §8 scenario 4
// ("state is the pre-step state") and the state carry-forward
// invariant resumePoint relies on.
func buildRecord(processID string, in engine.Interaction, a acc) engine.EvaluationRecord {
	effective := a.output
	if effective.State == nil || effective.Failed() {
		effective.State = a.state
	}
	return engine.EvaluationRecord{
		ProcessID: processID,
		SortKey:   in.SortKey,
		Action:    in.Action,
		Output:    effective,
		CachedAt:  time.Now().UTC(),
		Cron:      in.Cron,
	}
}

// saveWithRetry persists record, retrying transient cache failures with
// bounded exponential backoff before promoting to fatal, per spec.md
// §7's TransientIO → Fatal rule. IntegrityError is never retried.
func (e *Evaluator) saveWithRetry(ctx context.Context, record engine.EvaluationRecord) error {
	backoff := defaultCacheBackoff
	var lastErr error
	for attempt := 0; attempt < defaultCacheRetries; attempt++ {
		err := e.cache.Save(ctx, record)
		if err == nil {
			return nil
		}
		var integrity *engine.IntegrityError
		if errors.As(err, &integrity) {
			return err
		}
		lastErr = err
		e.log.Warnf("cache save attempt %d/%d failed for sortKey %s: %v", attempt+1, defaultCacheRetries, record.SortKey, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return &engine.ConfigurationError{Reason: "cache save retries exhausted", Err: lastErr}
}

// promoteTransient retries a transiently failed operation once and
// returns the retry's value; a second failure is promoted to fatal.
// A non-transient first error is returned as is, without a retry.
func promoteTransient(first error, retry func() (any, error)) (any, error) {
	var transient *engine.TransientIOError
	if !errors.As(first, &transient) {
		return nil, first
	}
	v, err := retry()
	if err != nil {
		return nil, &engine.ConfigurationError{Reason: "interaction fetch retry exhausted", Err: err}
	}
	return v, nil
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any)      {}
func (noopLogger) Infof(string, ...any)       {}
func (noopLogger) Warnf(string, ...any)       {}
func (noopLogger) Errorf(string, ...any)      {}
func (noopLogger) Named(string) engine.Logger { return noopLogger{} }
