// Package wasmhost wraps a WASM binary so it exposes the single
// synchronous-in-semantics handler the engine's Evaluator drives: no
// network, no clock, no filesystem — every external fact the guest
// needs travels in through env. Grounded on the teacher's
// cmd/executor/main.go (instantiate-and-call shape) and its
// adapters/contract/precompile_placeholder.go instruction-counting
// listener, adapted from a one-shot precompile check into the per-call
// gas budget spec.md §4.1 requires.
package wasmhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/permaweb/cu-core/internal/engine"
)

const (
	handleFuncName = "handle"
	allocFuncName  = "alloc"

	defaultGasLimit    = 10_000_000
	defaultCallTimeout = 5 * time.Second
)

var errGasExhausted = errors.New("gas exhausted")

// Host is the Module Host: it compiles a WASM binary once per
// evaluation and hands back a Handler bound to a fresh, isolated
// wazero runtime.
type Host struct {
	log engine.Logger
}

// New constructs a Module Host. log may be nil.
func New(log engine.Logger) *Host {
	return &Host{log: log}
}

var _ engine.ModuleHost = (*Host)(nil)

// Instantiate loads src into a brand-new sandboxed runtime and returns
// a Handler bound to it. Each call gets its own runtime: instances are
// cheap and never shared across concurrent evaluations (spec.md §5).
func (h *Host) Instantiate(ctx context.Context, src []byte, opts engine.ModuleOptions) (engine.Handler, error) {
	gasLimit := opts.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	callTimeout := opts.CallTimeout
	if callTimeout == 0 {
		callTimeout = defaultCallTimeout
	}

	meter := &instructionMeter{limit: gasLimit}
	rtCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if opts.MemoryLimitPages > 0 {
		rtCfg = rtCfg.WithMemoryLimitPages(opts.MemoryLimitPages)
	}

	ctx = experimental.WithFunctionListenerFactory(ctx, meter)
	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, &engine.ConfigurationError{Reason: "init wasi imports", Err: err}
	}

	mod, err := rt.InstantiateWithConfig(ctx, src, wazero.NewModuleConfig())
	if err != nil {
		rt.Close(ctx)
		return nil, &engine.ConfigurationError{Reason: "instantiate wasm module", Err: err}
	}

	handleFn := mod.ExportedFunction(handleFuncName)
	if handleFn == nil {
		rt.Close(ctx)
		return nil, &engine.ConfigurationError{Reason: fmt.Sprintf("module does not export %q", handleFuncName)}
	}
	allocFn := mod.ExportedFunction(allocFuncName)
	if allocFn == nil {
		rt.Close(ctx)
		return nil, &engine.ConfigurationError{Reason: fmt.Sprintf("module does not export %q", allocFuncName)}
	}

	return &handler{
		rt:          rt,
		mod:         mod,
		handleFn:    handleFn,
		allocFn:     allocFn,
		meter:       meter,
		callTimeout: callTimeout,
		log:         h.log,
	}, nil
}

// handler is a single instantiated WASM module bound to one evaluation.
type handler struct {
	rt          wazero.Runtime
	mod         api.Module
	handleFn    api.Function
	allocFn     api.Function
	meter       *instructionMeter
	callTimeout time.Duration
	log         engine.Logger
}

var _ engine.Handler = (*handler)(nil)

// Handle invokes the guest's handle export with the three JSON buffers
// marshalled into guest linear memory. Any trap, gas exhaustion, or
// deadline exhaustion is converted into a HandlerOutput-shaped failure;
// handle's error return is reserved for engine-level configuration
// failure (spec.md §4.1's "the host converts throws into a
// HandlerOutput-shaped failure — it does not propagate the throw as a
// signal to the caller").
func (h *handler) Handle(ctx context.Context, state, action, env []byte) (out engine.HandlerOutput, err error) {
	callCtx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()

	h.meter.reset()

	defer func() {
		if r := recover(); r != nil {
			out, err = engine.HandlerOutput{}, nil
			out.Result = &engine.Result{Error: json.RawMessage(quoteJSON(fmt.Sprintf("%v", r)))}
		}
	}()

	outBytes, callErr := h.invoke(callCtx, state, action, env)
	if callErr != nil {
		reason := callErr.Error()
		if errors.Is(callErr, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			reason = "deadline exceeded"
		} else if errors.Is(callErr, errGasExhausted) {
			reason = errGasExhausted.Error()
		}
		return engine.HandlerOutput{Result: &engine.Result{Error: json.RawMessage(quoteJSON(reason))}}, nil
	}

	var parsed engine.HandlerOutput
	if jsonErr := json.Unmarshal(outBytes, &parsed); jsonErr != nil {
		return engine.HandlerOutput{Result: &engine.Result{
			Error: json.RawMessage(quoteJSON(fmt.Sprintf("malformed handler output: %v", jsonErr))),
		}}, nil
	}
	return parsed, nil
}

// invoke performs the actual alloc/write/call/read ABI dance described
// in SPEC_FULL.md §4.1.
func (h *handler) invoke(ctx context.Context, state, action, env []byte) ([]byte, error) {
	statePtr, err := h.writeBuffer(ctx, state)
	if err != nil {
		return nil, err
	}
	actionPtr, err := h.writeBuffer(ctx, action)
	if err != nil {
		return nil, err
	}
	envPtr, err := h.writeBuffer(ctx, env)
	if err != nil {
		return nil, err
	}

	results, err := h.handleFn.Call(ctx,
		statePtr, uint64(len(state)),
		actionPtr, uint64(len(action)),
		envPtr, uint64(len(env)),
	)
	if err != nil {
		return nil, h.translateTrap(err)
	}
	if len(results) != 2 {
		return nil, fmt.Errorf("handle returned %d values, want 2 (ptr, len)", len(results))
	}
	outPtr, outLen := uint32(results[0]), uint32(results[1])

	buf, ok := h.mod.Memory().Read(outPtr, outLen)
	if !ok {
		return nil, fmt.Errorf("read handler output: out of bounds at %d len %d", outPtr, outLen)
	}
	// Memory().Read returns a view; copy before the module is reused
	// or closed.
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

func (h *handler) writeBuffer(ctx context.Context, data []byte) (uint64, error) {
	results, err := h.allocFn.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, h.translateTrap(err)
	}
	ptr := results[0]
	if len(data) == 0 {
		return ptr, nil
	}
	if !h.mod.Memory().Write(uint32(ptr), data) {
		return 0, fmt.Errorf("write %d bytes at %d: out of bounds", len(data), ptr)
	}
	return ptr, nil
}

func (h *handler) translateTrap(err error) error {
	if errors.Is(err, errGasExhausted) {
		return errGasExhausted
	}
	return err
}

// Close releases the runtime owned exclusively by this handler.
func (h *handler) Close(ctx context.Context) error {
	return h.rt.Close(ctx)
}

func quoteJSON(s string) []byte {
	b, err := json.Marshal(s)
	if err != nil {
		return []byte(`"handler error"`)
	}
	return b
}

// instructionMeter counts guest function entries as a proxy for
// instruction weight, the same approximation the teacher's precompile
// placeholder used — real opcode-level metering is a wazero experimental
// feature this host does not depend on.
type instructionMeter struct {
	limit uint64
	count uint64
}

func (m *instructionMeter) reset() { m.count = 0 }

var (
	_ experimental.FunctionListenerFactory = (*instructionMeter)(nil)
	_ experimental.FunctionListener        = (*instructionMeter)(nil)
)

func (m *instructionMeter) NewFunctionListener(api.FunctionDefinition) experimental.FunctionListener {
	return m
}

func (m *instructionMeter) Before(_ context.Context, _ api.Module, _ api.FunctionDefinition, _ []uint64, _ experimental.StackIterator) {
	m.count++
	if m.count > m.limit {
		panic(errGasExhausted)
	}
}

func (*instructionMeter) After(context.Context, api.Module, api.FunctionDefinition, []uint64) {}

// Abort fires instead of After when a guest function traps or a host
// function panics. A gas-limit trip panics from inside Before with
// errGasExhausted; wazero recovers that panic and returns it from the
// exported function's Call as an error wrapping errGasExhausted, so
// Abort must not double-count or re-panic with a different value. That
// error, like any genuine guest trap, is translated by translateTrap
// and Handle into a contained HandlerOutput rather than propagated as
// a Go error (spec.md §4.1/§7).
func (m *instructionMeter) Abort(context.Context, api.Module, api.FunctionDefinition, error) {}
