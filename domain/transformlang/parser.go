package transformlang

import (
	"fmt"
	"strconv"

	pkgerrors "fluxstore/pkg/errors"
)

// Parse turns transform source text into a single expression tree.
//
// A program is one or more statements separated by semicolons. Leading let
// statements fold into nested LetBinding nodes whose body is the rest of
// the program; a trailing let gets the null literal as its body, which the
// evaluator treats as a persistent, value-returning binding.
func Parse(source string) (Expr, error) {
	tokens, err := lex(source)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseProgram()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenEOF {
		return nil, p.errorf("unexpected trailing input %q", p.peek().text)
	}
	return expr, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(kind tokenKind, text string) bool {
	if p.peek().is(kind, text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind, text string) error {
	if !p.accept(kind, text) {
		return p.errorf("expected %q, found %q", text, p.peek().text)
	}
	return nil
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return pkgerrors.NewValidation(fmt.Sprintf(format, args...) + fmt.Sprintf(" at position %d", p.peek().pos))
}

func (p *parser) parseProgram() (Expr, error) {
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}

	// Swallow separators between statements; a trailing one is allowed.
	for p.accept(tokenPunct, ";") {
	}

	binding, isLet := stmt.(*LetBinding)
	if !isLet {
		if p.peek().kind != tokenEOF {
			return nil, p.errorf("only a let statement may be followed by further statements")
		}
		return stmt, nil
	}

	if p.peek().kind == tokenEOF {
		// Statement-style trailing let: null body persists the binding.
		binding.Body = &Literal{Value: Null()}
		return binding, nil
	}

	rest, err := p.parseProgram()
	if err != nil {
		return nil, err
	}
	binding.Body = rest
	return binding, nil
}

func (p *parser) parseStatement() (Expr, error) {
	switch {
	case p.accept(tokenKeyword, "let"):
		name := p.peek()
		if name.kind != tokenIdent {
			return nil, p.errorf("expected identifier after let, found %q", name.text)
		}
		p.next()
		if err := p.expect(tokenOperator, "="); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		// Body is filled in by parseProgram once the rest is known.
		return &LetBinding{Name: name.text, Value: value}, nil

	case p.accept(tokenKeyword, "return"):
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &Return{Value: value}, nil

	default:
		return p.parseExpr()
	}
}

func (p *parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept(tokenKeyword, "or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.accept(tokenKeyword, "and") {
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseEquality() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOpKind
		switch {
		case p.accept(tokenOperator, "="):
			op = OpEq
		case p.accept(tokenOperator, "!="):
			op = OpNeq
		default:
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOpKind
		switch {
		case p.accept(tokenOperator, "<="):
			op = OpLte
		case p.accept(tokenOperator, ">="):
			op = OpGte
		case p.accept(tokenOperator, "<"):
			op = OpLt
		case p.accept(tokenOperator, ">"):
			op = OpGt
		default:
			return left, nil
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseTerm() (Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOpKind
		switch {
		case p.accept(tokenOperator, "+"):
			op = OpAdd
		case p.accept(tokenOperator, "-"):
			op = OpSub
		default:
			return left, nil
		}
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseFactor() (Expr, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOpKind
		switch {
		case p.accept(tokenOperator, "*"):
			op = OpMul
		case p.accept(tokenOperator, "/"):
			op = OpDiv
		default:
			return left, nil
		}
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parsePower() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	// Right associative: 2^3^2 is 2^(3^2).
	if p.accept(tokenOperator, "^") {
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		return &BinaryOp{Op: OpPow, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	switch {
	case p.accept(tokenOperator, "-"):
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: OpNegate, Operand: operand}, nil
	case p.accept(tokenKeyword, "not"):
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: OpNot, Operand: operand}, nil
	default:
		return p.parsePostfix()
	}
}

func (p *parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.accept(tokenPunct, ".") {
		field := p.peek()
		if field.kind != tokenIdent {
			return nil, p.errorf("expected field name after '.', found %q", field.text)
		}
		p.next()
		expr = &FieldAccess{Object: expr, Field: field.text}
	}
	return expr, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()

	switch t.kind {
	case tokenNumber:
		p.next()
		n, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf("malformed number %q", t.text)
		}
		return &Literal{Value: Number(n)}, nil

	case tokenString:
		p.next()
		return &Literal{Value: String(t.text)}, nil

	case tokenKeyword:
		switch t.text {
		case "true":
			p.next()
			return &Literal{Value: Bool(true)}, nil
		case "false":
			p.next()
			return &Literal{Value: Bool(false)}, nil
		case "null":
			p.next()
			return &Literal{Value: Null()}, nil
		case "if":
			return p.parseIf()
		}
		return nil, p.errorf("unexpected keyword %q", t.text)

	case tokenIdent:
		p.next()
		if p.accept(tokenPunct, "(") {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &FunctionCall{Name: t.text, Args: args}, nil
		}
		return &Variable{Name: t.text}, nil

	case tokenPunct:
		if t.text == "(" {
			p.next()
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(tokenPunct, ")"); err != nil {
				return nil, err
			}
			return expr, nil
		}
	}

	return nil, p.errorf("unexpected token %q", t.text)
}

func (p *parser) parseIf() (Expr, error) {
	if err := p.expect(tokenKeyword, "if"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokenKeyword, "then"); err != nil {
		return nil, err
	}
	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	var elseExpr Expr
	if p.accept(tokenKeyword, "else") {
		elseExpr, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return &IfElse{Cond: cond, Then: then, Else: elseExpr}, nil
}

func (p *parser) parseArgs() ([]Expr, error) {
	var args []Expr
	if p.accept(tokenPunct, ")") {
		return args, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.accept(tokenPunct, ",") {
			continue
		}
		if err := p.expect(tokenPunct, ")"); err != nil {
			return nil, err
		}
		return args, nil
	}
}
