package engine

import "context"

// Source abstracts the Scheduler Unit and the local interaction cache:
// for a process, it yields interactions strictly after fromExclusive up
// to and including toInclusive, in strictly increasing sort-key order.
// Use Genesis for fromExclusive and Latest for toInclusive to mean
// "from the beginning" / "whatever is currently known".
type Source interface {
	ListInteractions(ctx context.Context, processID string, fromExclusive, toInclusive SortKey) ([]Interaction, error)
}

// Writer forwards a newly authored action to the Scheduler Unit and
// returns the sort key it was assigned. The core never assigns sort
// keys itself; this is the one place the engine hands control back to
// an out-of-scope collaborator.
type Writer interface {
	WriteInteraction(ctx context.Context, processID string, action []byte) (SortKey, error)
}

// ModuleBinaryStore loads the immutable WASM binary (and its resource
// options) associated with a process.
type ModuleBinaryStore interface {
	LoadSrc(ctx context.Context, processID string) ([]byte, ModuleOptions, error)
}

// Cache is the content-addressed evaluation cache described in
// spec.md §4.3.
type Cache interface {
	// LatestAtOrBefore returns the most recent record at or before
	// sortKey, or ok=false if none exists.
	LatestAtOrBefore(ctx context.Context, processID string, sortKey SortKey) (rec EvaluationRecord, ok bool, err error)
	// Save upserts a record. Saving a byte-identical record (modulo
	// CachedAt) is a no-op; saving a conflicting record at an
	// already-written key returns *IntegrityError.
	Save(ctx context.Context, rec EvaluationRecord) error
	// Range enumerates records for audit, inclusive of from, exclusive
	// of to. A zero value for `to` means "through the latest record".
	Range(ctx context.Context, processID string, from, to SortKey) ([]EvaluationRecord, error)
}

// Logger is a named, hierarchical, side-effect-only sink. It never
// returns values used in control flow.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	// Named returns a child logger; hierarchical names compose, e.g.
	// log.Named("evaluate").Named("wasmhost") behaves like a logger
	// named "evaluate.wasmhost".
	Named(name string) Logger
}

// Handler is the Module Host's view of an instantiated WASM module: a
// pure-looking call across the sandbox boundary. A non-nil error from
// Handle is always an engine-level ConfigurationError; traps, gas
// exhaustion, and deadline exhaustion are reported as a value inside
// HandlerOutput, never as a Go error.
type Handler interface {
	Handle(ctx context.Context, state, action, env []byte) (HandlerOutput, error)
	Close(ctx context.Context) error
}

// ModuleHost instantiates a Handler from a WASM binary.
type ModuleHost interface {
	Instantiate(ctx context.Context, src []byte, opts ModuleOptions) (Handler, error)
}
