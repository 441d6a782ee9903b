// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package expr

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "Hex", Pattern: `0[xX][0-9a-fA-F]+`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Op", Pattern: `\|\||&&|==|!=|<=|>=|<<|>>|[-+*/%&|^~!<>]`},
	{Name: "Punct", Pattern: `[().,]`},
})

var exprParser = participle.MustBuild[orExpr](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Precedence, lowest first: || && comparison | ^ & shift additive multiplicative unary.

type orExpr struct {
	Left  *andExpr   `@@`
	Right []*andExpr `( "||" @@ )*`
}

type andExpr struct {
	Left  *cmpExpr   `@@`
	Right []*cmpExpr `( "&&" @@ )*`
}

type cmpExpr struct {
	Left  *bitOrExpr `@@`
	Op    string     `( @( "==" | "!=" | "<=" | ">=" | "<" | ">" )`
	Right *bitOrExpr `  @@ )?`
}

type bitOrExpr struct {
	Left  *bitXorExpr   `@@`
	Right []*bitXorExpr `( "|" @@ )*`
}

type bitXorExpr struct {
	Left  *bitAndExpr   `@@`
	Right []*bitAndExpr `( "^" @@ )*`
}

type bitAndExpr struct {
	Left  *shiftExpr   `@@`
	Right []*shiftExpr `( "&" @@ )*`
}

type shiftExpr struct {
	Left  *addExpr   `@@`
	Right []*shiftOp `@@*`
}

type shiftOp struct {
	Op   string   `@( "<<" | ">>" )`
	Term *addExpr `@@`
}

type addExpr struct {
	Left  *mulExpr `@@`
	Right []*addOp `@@*`
}

type addOp struct {
	Op   string   `@( "+" | "-" )`
	Term *mulExpr `@@`
}

type mulExpr struct {
	Left  *unaryExpr `@@`
	Right []*mulOp   `@@*`
}

type mulOp struct {
	Op   string     `@( "*" | "/" | "%" )`
	Term *unaryExpr `@@`
}

type unaryExpr struct {
	Op      string       `(  @( "-" | "!" | "~" )`
	Operand *unaryExpr   `   @@ )`
	Primary *primaryExpr `| @@`
}

type primaryExpr struct {
	Number *string   `  @( Hex | Int )`
	Str    *string   `| @String`
	Call   *callExpr `| @@`
	Path   []string  `| @Ident ( "." @Ident )*`
	Sub    *orExpr   `| "(" @@ ")"`
}

type callExpr struct {
	Func string    `@Ident "("`
	Args []*orExpr `( @@ ( "," @@ )* )? ")"`
}
