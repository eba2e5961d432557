package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mtrevisan/boxon/internal/tmplerr"
)

// HostFunc is a function invocable from an expression via #name(args...).
type HostFunc func(args ...any) (any, error)

// Context is the process- or engine-scoped mutable map plus host-function
// table consulted during expression evaluation. The recommended deployment
// is one Context per Engine so concurrent engines never collide.
type Context struct {
	values map[string]any
	funcs  map[string]HostFunc
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{values: map[string]any{}, funcs: map[string]HostFunc{}}
}

// ReservedSelf is the context key the engine binds to the currently
// decoding/encoding record on entry to each template.
const ReservedSelf = "self"

// ReservedPrefix is the context key the engine binds to the integer
// prefix just consumed for an alternative selector.
const ReservedPrefix = "prefix"

// Set stores v under key, overwriting any previous value.
func (c *Context) Set(key string, v any) { c.values[key] = v }

// Get looks up key, reporting whether it was present.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Delete removes key, if present.
func (c *Context) Delete(key string) { delete(c.values, key) }

// RegisterFunc installs a host function invocable as #name(args...).
func (c *Context) RegisterFunc(name string, fn HostFunc) { c.funcs[name] = fn }

// Evaluator evaluates expression strings against a root object and a
// Context. It holds no state of its own and is safe to share.
type Evaluator struct{}

// New returns a ready-to-use Evaluator.
func New() *Evaluator { return &Evaluator{} }

// Unbounded is returned by EvalSize for an empty expression: no
// constraint.
const Unbounded = -1

// EvalBool evaluates expression as a boolean. An empty expression
// evaluates to true, the default for an unconditional binding.
func (e *Evaluator) EvalBool(expression string, root any, ctx *Context) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}
	v, err := e.Eval(expression, root, ctx)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, &tmplerr.ExpressionError{Expr: expression, Err: fmt.Errorf("expected bool, got %T", v)}
	}
	return b, nil
}

// EvalInt evaluates expression as an integer.
func (e *Evaluator) EvalInt(expression string, root any, ctx *Context) (int64, error) {
	v, err := e.Eval(expression, root, ctx)
	if err != nil {
		return 0, err
	}
	n, ok := asInt64(v)
	if !ok {
		return 0, &tmplerr.ExpressionError{Expr: expression, Err: fmt.Errorf("expected integer, got %T", v)}
	}
	return n, nil
}

// EvalSize evaluates a size expression. An empty expression yields
// Unbounded ("no constraint"). A purely decimal-digit expression is parsed
// directly with strconv, bypassing the grammar entirely.
func (e *Evaluator) EvalSize(expression string, root any, ctx *Context) (int, error) {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return Unbounded, nil
	}
	if isAllDigits(trimmed) {
		n, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, &tmplerr.ExpressionError{Expr: expression, Err: err}
		}
		return n, nil
	}
	n, err := e.EvalInt(expression, root, ctx)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Eval evaluates expression against root and ctx, returning whatever
// concrete Go value the expression reduces to (bool, int64, float64,
// string, or a value reflected out of root/ctx).
func (e *Evaluator) Eval(expression string, root any, ctx *Context) (any, error) {
	ast, err := parse(expression)
	if err != nil {
		return nil, &tmplerr.ExpressionError{Expr: expression, Err: err}
	}
	if ctx == nil {
		ctx = NewContext()
	}
	v, err := evalOr(ast.Or, root, ctx)
	if err != nil {
		return nil, &tmplerr.ExpressionError{Expr: expression, Err: err}
	}
	return v, nil
}

func evalOr(n *orExpr, root any, ctx *Context) (any, error) {
	v, err := evalAnd(n.Left, root, ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range n.Rest {
		lb, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("|| operand is not boolean: %v", v)
		}
		if lb {
			v = true
			continue
		}
		rv, err := evalAnd(r.Right, root, ctx)
		if err != nil {
			return nil, err
		}
		rb, ok := rv.(bool)
		if !ok {
			return nil, fmt.Errorf("|| operand is not boolean: %v", rv)
		}
		v = rb
	}
	return v, nil
}

func evalAnd(n *andExpr, root any, ctx *Context) (any, error) {
	v, err := evalEq(n.Left, root, ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range n.Rest {
		lb, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("&& operand is not boolean: %v", v)
		}
		if !lb {
			v = false
			continue
		}
		rv, err := evalEq(r.Right, root, ctx)
		if err != nil {
			return nil, err
		}
		rb, ok := rv.(bool)
		if !ok {
			return nil, fmt.Errorf("&& operand is not boolean: %v", rv)
		}
		v = rb
	}
	return v, nil
}

func evalEq(n *eqExpr, root any, ctx *Context) (any, error) {
	v, err := evalCmp(n.Left, root, ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range n.Rest {
		rv, err := evalCmp(r.Right, root, ctx)
		if err != nil {
			return nil, err
		}
		eq := valuesEqual(v, rv)
		if r.Op == "!=" {
			v = !eq
		} else {
			v = eq
		}
	}
	return v, nil
}

func evalCmp(n *cmpExpr, root any, ctx *Context) (any, error) {
	v, err := evalAdd(n.Left, root, ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range n.Rest {
		rv, err := evalAdd(r.Right, root, ctx)
		if err != nil {
			return nil, err
		}
		lf, lok := asFloat64(v)
		rf, rok := asFloat64(rv)
		if !lok || !rok {
			return nil, fmt.Errorf("comparison operands are not numeric: %v %s %v", v, r.Op, rv)
		}
		switch r.Op {
		case "<":
			v = lf < rf
		case "<=":
			v = lf <= rf
		case ">":
			v = lf > rf
		case ">=":
			v = lf >= rf
		}
	}
	return v, nil
}

func evalAdd(n *addExpr, root any, ctx *Context) (any, error) {
	v, err := evalMul(n.Left, root, ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range n.Rest {
		rv, err := evalMul(r.Right, root, ctx)
		if err != nil {
			return nil, err
		}
		if r.Op == "+" {
			if ls, lok := v.(string); lok {
				rs := fmt.Sprintf("%v", rv)
				v = ls + rs
				continue
			}
		}
		lf, lok := asFloat64(v)
		rf, rok := asFloat64(rv)
		if !lok || !rok {
			return nil, fmt.Errorf("arithmetic operands are not numeric: %v %s %v", v, r.Op, rv)
		}
		if r.Op == "+" {
			v = combineNumeric(v, rv, lf+rf)
		} else {
			v = combineNumeric(v, rv, lf-rf)
		}
	}
	return v, nil
}

func evalMul(n *mulExpr, root any, ctx *Context) (any, error) {
	v, err := evalUnary(n.Left, root, ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range n.Rest {
		rv, err := evalUnary(r.Right, root, ctx)
		if err != nil {
			return nil, err
		}
		lf, lok := asFloat64(v)
		rf, rok := asFloat64(rv)
		if !lok || !rok {
			return nil, fmt.Errorf("arithmetic operands are not numeric: %v %s %v", v, r.Op, rv)
		}
		switch r.Op {
		case "*":
			v = combineNumeric(v, rv, lf*rf)
		case "/":
			if rf == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			v = combineNumeric(v, rv, lf/rf)
		case "%":
			li, lok := asInt64(v)
			ri, rok := asInt64(rv)
			if !lok || !rok || ri == 0 {
				return nil, fmt.Errorf("invalid modulo operands: %v %% %v", v, rv)
			}
			v = li % ri
		}
	}
	return v, nil
}

func evalUnary(n *unaryExpr, root any, ctx *Context) (any, error) {
	if n.Op == "" {
		return evalPrimary(n.Primary, root, ctx)
	}
	v, err := evalUnary(n.Operand, root, ctx)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "!":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("! operand is not boolean: %v", v)
		}
		return !b, nil
	case "-":
		f, ok := asFloat64(v)
		if !ok {
			return nil, fmt.Errorf("- operand is not numeric: %v", v)
		}
		return combineNumeric(v, v, -f), nil
	}
	return nil, fmt.Errorf("unknown unary operator %q", n.Op)
}

func evalPrimary(n *primary, root any, ctx *Context) (any, error) {
	switch {
	case n.Bool != nil:
		return *n.Bool == "true", nil
	case n.Int != nil:
		return parseIntLiteral(*n.Int)
	case n.Str != nil:
		return unquote(*n.Str), nil
	case n.Ctx != nil:
		return evalCtxRef(n.Ctx, root, ctx)
	case n.Path != nil:
		return resolvePath(n.Path.Parts, root, ctx)
	case n.Sub != nil:
		return evalOr(n.Sub.Or, root, ctx)
	}
	return nil, fmt.Errorf("empty expression primary")
}

func evalCtxRef(n *ctxRef, root any, ctx *Context) (any, error) {
	if n.Args != nil {
		fn, ok := ctx.funcs[n.Name]
		if !ok {
			return nil, fmt.Errorf("undefined host function #%s", n.Name)
		}
		args := make([]any, 0, len(n.Args.List))
		for _, a := range n.Args.List {
			v, err := evalOr(a.Or, root, ctx)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		return fn(args...)
	}
	v, ok := ctx.Get(n.Name)
	if !ok {
		return nil, fmt.Errorf("undefined context key #%s", n.Name)
	}
	return v, nil
}

func parseIntLiteral(s string) (int64, error) {
	return strconv.ParseInt(s, 0, 64)
}

func unquote(s string) string {
	if len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}

// resolvePath walks a dotted property path. If the first segment names a
// live Context entry, that entry becomes the base object (this is how
// conditions like "self.a" reach the record the engine bound as "self");
// otherwise the whole path is resolved starting from root. Each segment is
// looked up by name via reflection (FieldByName), not through the cached
// field indexes internal/tmpl uses for Get/Set.
func resolvePath(parts []string, root any, ctx *Context) (any, error) {
	if len(parts) == 0 {
		return root, nil
	}
	base := root
	rest := parts
	if ctx != nil {
		if v, ok := ctx.Get(parts[0]); ok {
			base = v
			rest = parts[1:]
		}
	}
	var err error
	for _, field := range rest {
		base, err = getField(base, field)
		if err != nil {
			return nil, err
		}
	}
	return base, nil
}

func getField(base any, name string) (any, error) {
	v := reflect.ValueOf(base)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, fmt.Errorf("nil pointer while resolving field %q", name)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot access field %q of non-struct %v", name, v.Kind())
	}
	fv := v.FieldByName(name)
	if !fv.IsValid() {
		return nil, fmt.Errorf("no such field %q on %s", name, v.Type())
	}
	return fv.Interface(), nil
}

func valuesEqual(a, b any) bool {
	af, aok := asFloat64(a)
	bf, bok := asFloat64(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// combineNumeric re-derives the result's static type from the original
// left/right operand types when at least one was an integer type, so that
// "x + 1" over an int field keeps yielding an int-flavored value rather
// than silently widening every arithmetic expression to float64.
func combineNumeric(left, right any, result float64) any {
	_, lInt := asInt64(left)
	_, rInt := asInt64(right)
	lIsFloat := isFloatKind(left)
	rIsFloat := isFloatKind(right)
	if (lInt || rInt) && !lIsFloat && !rIsFloat {
		return int64(result)
	}
	return result
}

func isFloatKind(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return false
}
