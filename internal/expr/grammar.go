// Package expr implements a small expression language: dotted property
// access, integer/string literals, arithmetic and comparison operators,
// boolean conjunction/disjunction, named context lookup (#name), and host
// function calls (#fn(args)). The grammar is built with participle,
// evaluated at decode/encode time.
package expr

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// exprAST is the root production: Expression := Or.
type exprAST struct {
	Or *orExpr `@@`
}

type orExpr struct {
	Left *andExpr  `@@`
	Rest []*orRest `@@*`
}

type orRest struct {
	Op    string   `@"||"`
	Right *andExpr `@@`
}

type andExpr struct {
	Left *eqExpr    `@@`
	Rest []*andRest `@@*`
}

type andRest struct {
	Op    string  `@"&&"`
	Right *eqExpr `@@`
}

type eqExpr struct {
	Left *cmpExpr  `@@`
	Rest []*eqRest `@@*`
}

type eqRest struct {
	Op    string   `@("==" | "!=")`
	Right *cmpExpr `@@`
}

type cmpExpr struct {
	Left *addExpr   `@@`
	Rest []*cmpRest `@@*`
}

type cmpRest struct {
	Op    string   `@("<=" | ">=" | "<" | ">")`
	Right *addExpr `@@`
}

type addExpr struct {
	Left *mulExpr   `@@`
	Rest []*addRest `@@*`
}

type addRest struct {
	Op    string   `@("+" | "-")`
	Right *mulExpr `@@`
}

type mulExpr struct {
	Left *unaryExpr `@@`
	Rest []*mulRest `@@*`
}

type mulRest struct {
	Op    string     `@("*" | "/" | "%")`
	Right *unaryExpr `@@`
}

// unaryExpr := ("!" | "-") unaryExpr | primary
type unaryExpr struct {
	Op      string     `(  @("!" | "-")`
	Operand *unaryExpr `   @@ )`
	Primary *primary   `| @@`
}

// primary := bool | int | string | ctxRef | path | "(" expression ")"
type primary struct {
	Bool *string   `  @("true" | "false")`
	Int  *string   `| @Int`
	Str  *string   `| @String`
	Ctx  *ctxRef   `| @@`
	Path *pathExpr `| @@`
	Sub  *exprAST  `| "(" @@ ")"`
}

// ctxRef := "#" Ident [ "(" [ expression ("," expression)* ] ")" ]
type ctxRef struct {
	Name string   `"#" @Ident`
	Args *argList `@@?`
}

type argList struct {
	List []*exprAST `"(" ( @@ ("," @@)* )? ")"`
}

// pathExpr := Ident ("." Ident)*
type pathExpr struct {
	Parts []string `@Ident ("." @Ident)*`
}

var lex = lexer.MustSimple([]lexer.SimpleRule{
	{"String", `"(\\.|[^"\\])*"`},
	{"Int", `0[xX][0-9a-fA-F]+|0[bB][01]+|\d+`},
	{"Ident", `[A-Za-z_][A-Za-z0-9_]*`},
	{"Op", `\|\||&&|==|!=|<=|>=|<|>|[+\-*/%!#().,]`},
	{"Whitespace", `\s+`},
})

var grammar = participle.MustBuild[exprAST](
	participle.Lexer(lex),
	participle.Elide("Whitespace"),
	participle.UseLookahead(4),
)

func parse(expression string) (*exprAST, error) {
	return grammar.ParseString("", expression)
}
