package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permaweb/cu-core/internal/cache"
	"github.com/permaweb/cu-core/internal/engine"
)

// fakeHandler simulates a WASM handler without a real wazero runtime:
// an "inc" action increments n in the JSON state object, a "boom"
// action reports the trap as a value, matching the Module Host
// contract that traps never surface as a Go error.
type fakeHandler struct {
	calls int
}

func (h *fakeHandler) Handle(ctx context.Context, state, action, env []byte) (engine.HandlerOutput, error) {
	h.calls++

	var act struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(action, &act)

	if act.Type == "boom" {
		return engine.HandlerOutput{Result: &engine.Result{Error: json.RawMessage(`"boom"`)}}, nil
	}

	var s struct {
		N int `json:"n"`
	}
	_ = json.Unmarshal(state, &s)
	s.N++
	next, _ := json.Marshal(s)
	return engine.HandlerOutput{State: next, Result: &engine.Result{}}, nil
}

func (h *fakeHandler) Close(ctx context.Context) error { return nil }

type fakeHost struct {
	mu      sync.Mutex
	handler *fakeHandler
}

func (h *fakeHost) Instantiate(ctx context.Context, src []byte, opts engine.ModuleOptions) (engine.Handler, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = &fakeHandler{}
	return h.handler, nil
}

type fakeStore struct{}

func (fakeStore) LoadSrc(ctx context.Context, processID string) ([]byte, engine.ModuleOptions, error) {
	return []byte("fake-wasm"), engine.ModuleOptions{}, nil
}

// fakeSource holds a fixed, ordered interaction list per process.
type fakeSource struct {
	mu     sync.Mutex
	byProc map[string][]engine.Interaction
}

func newFakeSource() *fakeSource {
	return &fakeSource{byProc: make(map[string][]engine.Interaction)}
}

func (s *fakeSource) set(processID string, ins []engine.Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byProc[processID] = ins
}

func (s *fakeSource) ListInteractions(ctx context.Context, processID string, fromExclusive, toInclusive engine.SortKey) ([]engine.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []engine.Interaction
	for _, in := range s.byProc[processID] {
		if fromExclusive != engine.Genesis && in.SortKey.Compare(fromExclusive) <= 0 {
			continue
		}
		if toInclusive != engine.Latest && in.SortKey.Compare(toInclusive) > 0 {
			continue
		}
		out = append(out, in)
	}
	return out, nil
}

func act(t string) json.RawMessage { return json.RawMessage(fmt.Sprintf(`{"type":%q}`, t)) }

func TestReadStateEmpty(t *testing.T) {
	src := newFakeSource()
	c := cache.NewMemoryCache()
	e := New(&fakeHost{}, src, fakeStore{}, c, nil)

	result, err := e.ReadState(context.Background(), "p1", engine.Latest)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`{}`), result.State)
	assert.Equal(t, engine.Genesis, result.LastSortKey)
	assert.False(t, result.Output.Failed())

	recs, err := c.Range(context.Background(), "p1", engine.Genesis, engine.Latest)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestReadStateSingleSuccess(t *testing.T) {
	src := newFakeSource()
	src.set("p1", []engine.Interaction{
		{ProcessID: "p1", SortKey: "0001", Action: act("inc")},
	})
	c := cache.NewMemoryCache()
	e := New(&fakeHost{}, src, fakeStore{}, c, nil)

	result, err := e.ReadState(context.Background(), "p1", engine.Latest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(result.State))
	assert.Equal(t, engine.SortKey("0001"), result.LastSortKey)

	recs, err := c.Range(context.Background(), "p1", engine.Genesis, engine.Latest)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, engine.SortKey("0001"), recs[0].SortKey)
}

func TestReadStateSuccessThenFailureShortCircuits(t *testing.T) {
	src := newFakeSource()
	src.set("p1", []engine.Interaction{
		{ProcessID: "p1", SortKey: "0001", Action: act("inc")},
		{ProcessID: "p1", SortKey: "0002", Action: act("boom")},
		{ProcessID: "p1", SortKey: "0003", Action: act("inc")},
	})
	c := cache.NewMemoryCache()
	e := New(&fakeHost{}, src, fakeStore{}, c, nil)

	result, err := e.ReadState(context.Background(), "p1", engine.Latest)
	require.NoError(t, err)
	assert.True(t, result.Output.Failed())
	assert.JSONEq(t, `{"n":1}`, string(result.State))
	assert.Equal(t, engine.SortKey("0002"), result.LastSortKey)

	recs, err := c.Range(context.Background(), "p1", engine.Genesis, engine.Latest)
	require.NoError(t, err)
	require.Len(t, recs, 2, "the third queued interaction must not be consumed")
}

func TestReadStateResumeFromCacheMatchesByteForByte(t *testing.T) {
	src := newFakeSource()
	src.set("p1", []engine.Interaction{
		{ProcessID: "p1", SortKey: "0001", Action: act("inc")},
		{ProcessID: "p1", SortKey: "0002", Action: act("boom")},
	})
	c := cache.NewMemoryCache()
	e := New(&fakeHost{}, src, fakeStore{}, c, nil)

	first, err := e.ReadState(context.Background(), "p1", "0002")
	require.NoError(t, err)

	resumed, err := e.ReadState(context.Background(), "p1", "0002")
	require.NoError(t, err)

	assert.Equal(t, first.State, resumed.State)
	assert.Equal(t, first.LastSortKey, resumed.LastSortKey)
	assert.Equal(t, first.Output.Failed(), resumed.Output.Failed())

	recs, err := c.Range(context.Background(), "p1", engine.Genesis, engine.Latest)
	require.NoError(t, err)
	require.Len(t, recs, 2, "resuming must not refetch or re-run already-cached steps")
}

func TestReadStateInterleavedReadersSingleFlight(t *testing.T) {
	src := newFakeSource()
	var ins []engine.Interaction
	for i := 1; i <= 10; i++ {
		ins = append(ins, engine.Interaction{
			ProcessID: "p1",
			SortKey:   engine.SortKey(fmt.Sprintf("%04d", i)),
			Action:    act("inc"),
		})
	}
	src.set("p1", ins)
	c := cache.NewMemoryCache()
	e := New(&fakeHost{}, src, fakeStore{}, c, nil)

	var wg sync.WaitGroup
	results := make([]engine.ReadStateResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.ReadState(context.Background(), "p1", "0010")
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0], results[1])

	recs, err := c.Range(context.Background(), "p1", engine.Genesis, engine.Latest)
	require.NoError(t, err)
	assert.Len(t, recs, 10)
}
