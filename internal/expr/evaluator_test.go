package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	A int
	B string
}

func TestEvalBool_EmptyIsTrue(t *testing.T) {
	e := New()
	b, err := e.EvalBool("", sample{}, nil)
	require.NoError(t, err)
	assert.True(t, b)
}

func TestEvalBool_PathEquality(t *testing.T) {
	e := New()
	b, err := e.EvalBool("self.A == 1", nil, withSelf(sample{A: 1}))
	require.NoError(t, err)
	assert.True(t, b)

	b, err = e.EvalBool("self.A == 1", nil, withSelf(sample{A: 0}))
	require.NoError(t, err)
	assert.False(t, b)
}

func TestEvalBool_AndOrNot(t *testing.T) {
	e := New()
	ctx := withSelf(sample{A: 2, B: "x"})
	b, err := e.EvalBool(`self.A > 1 && self.B == "x"`, nil, ctx)
	require.NoError(t, err)
	assert.True(t, b)

	b, err = e.EvalBool(`self.A < 1 || self.B == "x"`, nil, ctx)
	require.NoError(t, err)
	assert.True(t, b)

	b, err = e.EvalBool(`!(self.A < 1)`, nil, ctx)
	require.NoError(t, err)
	assert.True(t, b)
}

func TestEvalInt_Arithmetic(t *testing.T) {
	e := New()
	ctx := withSelf(sample{A: 3})
	n, err := e.EvalInt("self.A * 2 + 1", nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestEvalSize_EmptyIsUnbounded(t *testing.T) {
	e := New()
	n, err := e.EvalSize("", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Unbounded, n)
}

func TestEvalSize_DecimalFastPath(t *testing.T) {
	e := New()
	n, err := e.EvalSize("42", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestEvalSize_FromExpression(t *testing.T) {
	e := New()
	ctx := withSelf(sample{A: 5})
	n, err := e.EvalSize("self.A + 1", nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestContextRef_PlainAndCall(t *testing.T) {
	e := New()
	ctx := NewContext()
	ctx.Set("prefix", int64(7))
	ctx.RegisterFunc("double", func(args ...any) (any, error) {
		n, _ := asInt64(args[0])
		return n * 2, nil
	})
	n, err := e.EvalInt("#prefix", nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	n, err = e.EvalInt("#double(#prefix)", nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(14), n)
}

func TestEval_StringConcatenation(t *testing.T) {
	e := New()
	v, err := e.Eval(`"a" + "b"`, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ab", v)
}

func withSelf(v any) *Context {
	ctx := NewContext()
	ctx.Set(ReservedSelf, v)
	return ctx
}
