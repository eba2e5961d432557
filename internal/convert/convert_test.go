package convert

import (
	"fmt"
	"testing"

	"github.com/mtrevisan/boxon/internal/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityConverter(t *testing.T) {
	r := NewConverterRegistry()
	out, err := r.Decode(IdentityTag, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, out)
}

func TestConverterRegistry_UnknownTag(t *testing.T) {
	r := NewConverterRegistry()
	_, err := r.Decode("missing", 1)
	assert.Error(t, err)
}

func TestConverterRegistry_ConversionErrorWraps(t *testing.T) {
	r := NewConverterRegistry()
	r.Register("boom", ConverterFunc{
		DecodeFn: func(in any) (any, error) { return nil, fmt.Errorf("bad value") },
		EncodeFn: func(out any) (any, error) { return out, nil },
	})
	_, err := r.Decode("boom", 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestValidatorRegistry_Rejects(t *testing.T) {
	r := NewValidatorRegistry()
	r.Register("positive", ValidatorFunc(func(v any) bool {
		n, _ := v.(int)
		return n > 0
	}))
	assert.NoError(t, r.Validate("positive", 1))
	assert.Error(t, r.Validate("positive", -1))
	assert.NoError(t, r.Validate("unregistered", -1))
}

func TestChooseConverter(t *testing.T) {
	ev := expr.New()
	ctx := expr.NewContext()
	ctx.Set(expr.ReservedSelf, struct{ Kind int }{Kind: 2})
	alts := []ConverterAlternative{
		{Condition: "self.Kind == 1", Tag: "one"},
		{Condition: "self.Kind == 2", Tag: "two"},
	}
	tag, err := ChooseConverter(alts, "default", nil, ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, "two", tag)

	ctx.Set(expr.ReservedSelf, struct{ Kind int }{Kind: 9})
	tag, err = ChooseConverter(alts, "default", nil, ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, "default", tag)
}
