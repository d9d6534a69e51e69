package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func double(x int) Result[int]   { return Ok(x * 2) }
func incr(x int) Result[int]     { return Ok(x + 1) }
func failing(x int) Result[int]  { return Err[int](errors.New("boom")) }

func TestChainLawOkIdentity(t *testing.T) {
	// Ok(x).Chain(f) ≡ f(x)
	left := Chain(Ok(5), double)
	right := double(5)
	assert.Equal(t, right, left)
}

func TestChainLawErrShortCircuits(t *testing.T) {
	// Err(e).Chain(f) ≡ Err(e)
	e := errors.New("boom")
	left := Chain(Err[int](e), double)
	require.True(t, left.IsErr())
	_, err := left.Unwrap()
	assert.Equal(t, e, err)
}

func TestChainLawAssociativity(t *testing.T) {
	// Ok(x).Chain(f).Chain(g) ≡ Ok(x).Chain(v => f(v).Chain(g))
	left := Chain(Chain(Ok(3), double), incr)
	right := Chain(Ok(3), func(v int) Result[int] {
		return Chain(double(v), incr)
	})
	assert.Equal(t, right, left)
}

func TestChainShortCircuitsMidPipeline(t *testing.T) {
	r := Chain(Chain(Ok(3), failing), incr)
	require.True(t, r.IsErr())
}

func TestTapOkRunsOnlyOnOk(t *testing.T) {
	var seen int
	r := TapOk(Ok(7), func(v int) { seen = v })
	assert.Equal(t, 7, seen)
	v, err := r.Unwrap()
	assert.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestTapOkSkipsOnErr(t *testing.T) {
	var called bool
	r := TapOk(Err[int](errors.New("x")), func(int) { called = true })
	assert.False(t, called)
	assert.True(t, r.IsErr())
}

func TestTapErrRunsOnlyOnErr(t *testing.T) {
	var seen error
	e := errors.New("boom")
	TapErr(Err[int](e), func(err error) { seen = err })
	assert.Equal(t, e, seen)
}

func TestOutcomeContinueAndHalt(t *testing.T) {
	c := Continue(1)
	assert.False(t, c.ShouldHalt())
	assert.Equal(t, 1, c.Value())

	h := Halt(2)
	assert.True(t, h.ShouldHalt())
	assert.Equal(t, 2, h.Value())
}
