// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package expr implements the small expression language used by format definitions:
// relation value transforms (e.g. "size + 4"), element constraints (e.g. "Type == 2 && len(value) > 0"),
// computed lengths and expression fixups.
//
// Values are int64, string or []byte. Comparisons and logical operators produce 0 or 1.
package expr

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnknownName = errors.New("unknown name")

// Env resolves dotted names. The returned value must be int64, string or []byte.
type Env interface {
	Lookup(path []string) (any, bool)
}

// Vars is an Env with single-component names.
type Vars map[string]any

func (v Vars) Lookup(path []string) (any, bool) {
	if len(path) != 1 {
		return nil, false
	}
	val, ok := v[path[0]]
	return val, ok
}

// Chain consults environments in order.
type Chain []Env

func (c Chain) Lookup(path []string) (any, bool) {
	for _, env := range c {
		if env == nil {
			continue
		}
		if v, ok := env.Lookup(path); ok {
			return v, true
		}
	}
	return nil, false
}

type Expr struct {
	src  string
	root *orExpr
}

func Parse(src string) (*Expr, error) {
	root, err := exprParser.ParseString("", src)
	if err != nil {
		return nil, fmt.Errorf("bad expression %q: %w", src, err)
	}
	e := &Expr{src: src, root: root}
	if err := e.check(); err != nil {
		return nil, err
	}
	return e, nil
}

func MustParse(src string) *Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Expr) String() string {
	return e.src
}

// Names returns all dotted names referenced by the expression.
func (e *Expr) Names() [][]string {
	var names [][]string
	e.walk(func(p *primaryExpr) {
		if p.Path != nil {
			names = append(names, p.Path)
		}
	})
	return names
}

func (e *Expr) Eval(env Env) (any, error) {
	return evalOr(e.root, env)
}

func (e *Expr) EvalInt(env Env) (int64, error) {
	v, err := e.Eval(env)
	if err != nil {
		return 0, err
	}
	i, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("%q: expected an integer, got %T", e.src, v)
	}
	return i, nil
}

func (e *Expr) EvalBool(env Env) (bool, error) {
	v, err := e.Eval(env)
	if err != nil {
		return false, err
	}
	return truth(v), nil
}

// check validates literals and function names once at parse time.
func (e *Expr) check() error {
	var err error
	e.walk(func(p *primaryExpr) {
		if err != nil {
			return
		}
		switch {
		case p.Number != nil:
			_, err = parseNumber(*p.Number)
		case p.Str != nil:
			_, err = unquote(*p.Str)
		case p.Call != nil:
			if _, ok := funcs[p.Call.Func]; !ok {
				err = fmt.Errorf("bad expression %q: unknown function %v", e.src, p.Call.Func)
			}
		}
	})
	return err
}

func (e *Expr) walk(cb func(*primaryExpr)) {
	var visitOr func(*orExpr)
	visitUnary := func(u *unaryExpr) {
		for u.Primary == nil {
			u = u.Operand
		}
		p := u.Primary
		cb(p)
		if p.Sub != nil {
			visitOr(p.Sub)
		}
		if p.Call != nil {
			for _, arg := range p.Call.Args {
				visitOr(arg)
			}
		}
	}
	visitMul := func(m *mulExpr) {
		visitUnary(m.Left)
		for _, op := range m.Right {
			visitUnary(op.Term)
		}
	}
	visitAdd := func(a *addExpr) {
		visitMul(a.Left)
		for _, op := range a.Right {
			visitMul(op.Term)
		}
	}
	visitShift := func(s *shiftExpr) {
		visitAdd(s.Left)
		for _, op := range s.Right {
			visitAdd(op.Term)
		}
	}
	visitBitAnd := func(b *bitAndExpr) {
		visitShift(b.Left)
		for _, r := range b.Right {
			visitShift(r)
		}
	}
	visitBitXor := func(b *bitXorExpr) {
		visitBitAnd(b.Left)
		for _, r := range b.Right {
			visitBitAnd(r)
		}
	}
	visitBitOr := func(b *bitOrExpr) {
		visitBitXor(b.Left)
		for _, r := range b.Right {
			visitBitXor(r)
		}
	}
	visitCmp := func(c *cmpExpr) {
		visitBitOr(c.Left)
		if c.Right != nil {
			visitBitOr(c.Right)
		}
	}
	visitOr = func(o *orExpr) {
		for _, a := range append([]*andExpr{o.Left}, o.Right...) {
			visitCmp(a.Left)
			for _, c := range a.Right {
				visitCmp(c)
			}
		}
	}
	visitOr(e.root)
}

func evalOr(o *orExpr, env Env) (any, error) {
	v, err := evalAnd(o.Left, env)
	if err != nil || len(o.Right) == 0 {
		return v, err
	}
	if truth(v) {
		return int64(1), nil
	}
	for _, r := range o.Right {
		v, err := evalAnd(r, env)
		if err != nil {
			return nil, err
		}
		if truth(v) {
			return int64(1), nil
		}
	}
	return int64(0), nil
}

func evalAnd(a *andExpr, env Env) (any, error) {
	v, err := evalCmp(a.Left, env)
	if err != nil || len(a.Right) == 0 {
		return v, err
	}
	if !truth(v) {
		return int64(0), nil
	}
	for _, r := range a.Right {
		v, err := evalCmp(r, env)
		if err != nil {
			return nil, err
		}
		if !truth(v) {
			return int64(0), nil
		}
	}
	return int64(1), nil
}

func evalCmp(c *cmpExpr, env Env) (any, error) {
	left, err := evalBitOr(c.Left, env)
	if err != nil || c.Right == nil {
		return left, err
	}
	right, err := evalBitOr(c.Right, env)
	if err != nil {
		return nil, err
	}
	cmp, err := compare(left, right)
	if err != nil {
		return nil, err
	}
	var res bool
	switch c.Op {
	case "==":
		res = cmp == 0
	case "!=":
		res = cmp != 0
	case "<":
		res = cmp < 0
	case "<=":
		res = cmp <= 0
	case ">":
		res = cmp > 0
	case ">=":
		res = cmp >= 0
	default:
		panic(fmt.Sprintf("unknown operator %q", c.Op))
	}
	return boolVal(res), nil
}

func evalBitOr(b *bitOrExpr, env Env) (any, error) {
	v, err := evalBitXor(b.Left, env)
	for _, r := range b.Right {
		if err != nil {
			break
		}
		var rv any
		if rv, err = evalBitXor(r, env); err == nil {
			v, err = intOp("|", v, rv)
		}
	}
	return v, err
}

func evalBitXor(b *bitXorExpr, env Env) (any, error) {
	v, err := evalBitAnd(b.Left, env)
	for _, r := range b.Right {
		if err != nil {
			break
		}
		var rv any
		if rv, err = evalBitAnd(r, env); err == nil {
			v, err = intOp("^", v, rv)
		}
	}
	return v, err
}

func evalBitAnd(b *bitAndExpr, env Env) (any, error) {
	v, err := evalShift(b.Left, env)
	for _, r := range b.Right {
		if err != nil {
			break
		}
		var rv any
		if rv, err = evalShift(r, env); err == nil {
			v, err = intOp("&", v, rv)
		}
	}
	return v, err
}

func evalShift(s *shiftExpr, env Env) (any, error) {
	v, err := evalAdd(s.Left, env)
	for _, op := range s.Right {
		if err != nil {
			break
		}
		var rv any
		if rv, err = evalAdd(op.Term, env); err == nil {
			v, err = intOp(op.Op, v, rv)
		}
	}
	return v, err
}

func evalAdd(a *addExpr, env Env) (any, error) {
	v, err := evalMul(a.Left, env)
	for _, op := range a.Right {
		if err != nil {
			break
		}
		var rv any
		if rv, err = evalMul(op.Term, env); err != nil {
			break
		}
		if op.Op == "+" {
			if ls, ok := v.(string); ok {
				if rs, ok := rv.(string); ok {
					v = ls + rs
					continue
				}
			}
		}
		v, err = intOp(op.Op, v, rv)
	}
	return v, err
}

func evalMul(m *mulExpr, env Env) (any, error) {
	v, err := evalUnary(m.Left, env)
	for _, op := range m.Right {
		if err != nil {
			break
		}
		var rv any
		if rv, err = evalUnary(op.Term, env); err == nil {
			v, err = intOp(op.Op, v, rv)
		}
	}
	return v, err
}

func evalUnary(u *unaryExpr, env Env) (any, error) {
	if u.Primary != nil {
		return evalPrimary(u.Primary, env)
	}
	v, err := evalUnary(u.Operand, env)
	if err != nil {
		return nil, err
	}
	if u.Op == "!" {
		return boolVal(!truth(v)), nil
	}
	i, ok := v.(int64)
	if !ok {
		return nil, fmt.Errorf("operator %v applied to %T", u.Op, v)
	}
	if u.Op == "-" {
		return -i, nil
	}
	return ^i, nil
}

func evalPrimary(p *primaryExpr, env Env) (any, error) {
	switch {
	case p.Number != nil:
		return parseNumber(*p.Number)
	case p.Str != nil:
		return unquote(*p.Str)
	case p.Sub != nil:
		return evalOr(p.Sub, env)
	case p.Call != nil:
		var args []any
		for _, arg := range p.Call.Args {
			v, err := evalOr(arg, env)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		return funcs[p.Call.Func](args)
	default:
		if env != nil {
			if v, ok := env.Lookup(p.Path); ok {
				return normalize(v)
			}
		}
		return nil, fmt.Errorf("%w %v", ErrUnknownName, strings.Join(p.Path, "."))
	}
}

var funcs = map[string]func(args []any) (any, error){
	"len": func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("len takes 1 argument")
		}
		switch v := args[0].(type) {
		case string:
			return int64(len(v)), nil
		case []byte:
			return int64(len(v)), nil
		}
		return nil, fmt.Errorf("len of %T", args[0])
	},
	"min": func(args []any) (any, error) { return fold("min", args, func(a, b int64) bool { return a < b }) },
	"max": func(args []any) (any, error) { return fold("max", args, func(a, b int64) bool { return a > b }) },
	"abs": func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("abs takes 1 argument")
		}
		i, ok := args[0].(int64)
		if !ok {
			return nil, fmt.Errorf("abs of %T", args[0])
		}
		if i < 0 {
			i = -i
		}
		return i, nil
	},
}

func fold(name string, args []any, better func(a, b int64) bool) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%v takes at least 1 argument", name)
	}
	var res int64
	for i, arg := range args {
		v, ok := arg.(int64)
		if !ok {
			return nil, fmt.Errorf("%v of %T", name, arg)
		}
		if i == 0 || better(v, res) {
			res = v
		}
	}
	return res, nil
}

func intOp(op string, left, right any) (any, error) {
	l, lok := left.(int64)
	r, rok := right.(int64)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %v applied to %T and %T", op, left, right)
	}
	switch op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/", "%":
		if r == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		if op == "/" {
			return l / r, nil
		}
		return l % r, nil
	case "&":
		return l & r, nil
	case "|":
		return l | r, nil
	case "^":
		return l ^ r, nil
	case "<<":
		return l << uint64(r), nil
	case ">>":
		return l >> uint64(r), nil
	}
	panic(fmt.Sprintf("unknown operator %q", op))
}

func compare(left, right any) (int, error) {
	switch l := left.(type) {
	case int64:
		if r, ok := right.(int64); ok {
			switch {
			case l < r:
				return -1, nil
			case l > r:
				return 1, nil
			}
			return 0, nil
		}
	case string:
		switch r := right.(type) {
		case string:
			return strings.Compare(l, r), nil
		case []byte:
			return bytes.Compare([]byte(l), r), nil
		}
	case []byte:
		switch r := right.(type) {
		case string:
			return bytes.Compare(l, []byte(r)), nil
		case []byte:
			return bytes.Compare(l, r), nil
		}
	}
	return 0, fmt.Errorf("can't compare %T and %T", left, right)
}

func truth(v any) bool {
	switch v := v.(type) {
	case int64:
		return v != 0
	case string:
		return v != ""
	case []byte:
		return len(v) != 0
	}
	return false
}

func boolVal(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func normalize(v any) (any, error) {
	switch v := v.(type) {
	case int64, string, []byte:
		return v, nil
	case int:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case bool:
		return boolVal(v), nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func parseNumber(s string) (int64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q: %w", s, err)
	}
	return int64(v), nil
}

func unquote(s string) (string, error) {
	if strings.HasPrefix(s, "'") {
		inner := s[1 : len(s)-1]
		inner = strings.ReplaceAll(inner, `\'`, `'`)
		inner = strings.ReplaceAll(inner, `"`, `\"`)
		s = `"` + inner + `"`
	}
	res, err := strconv.Unquote(s)
	if err != nil {
		return "", fmt.Errorf("bad string literal %v: %w", s, err)
	}
	return res, nil
}
