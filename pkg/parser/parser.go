// Package parser implements the livecalc expression parser.
package parser

import (
	"fmt"
	"strconv"

	"github.com/thomasrohde/livecalc/pkg/ast"
	"github.com/thomasrohde/livecalc/pkg/diagnostics"
	"github.com/thomasrohde/livecalc/pkg/lexer"
)

// MaxDepth bounds expression nesting so a single line cannot recurse without limit.
const MaxDepth = 64

type parser struct {
	tokens []lexer.Token
	pos    int
	depth  int
	diags  []diagnostics.Diagnostic
}

// ParseExpr tokenizes source and parses exactly one expression from it.
func ParseExpr(source, filename string) (ast.Expr, []diagnostics.Diagnostic) {
	tokens, err := lexer.Tokenize(source, filename)
	if err != nil {
		if le, ok := err.(*lexer.LexError); ok {
			return nil, []diagnostics.Diagnostic{le.Diag}
		}
		return nil, []diagnostics.Diagnostic{diagnostics.MakeDiag(diagnostics.ELex, err.Error(), nil, "")}
	}

	p := &parser{tokens: tokens, pos: 0}
	expr := p.parseExpr()
	if expr != nil && p.peek() != lexer.TokEOF {
		tok := p.current()
		if tok.Type == lexer.TokEquals {
			p.addErrorHint("unexpected '='", &tok.Span, "use '==' to compare; assignment must be 'name = expression'")
		} else {
			p.addError(fmt.Sprintf("unexpected '%s' after expression", tok.Value), &tok.Span)
		}
	}
	if len(p.diags) > 0 {
		return nil, p.diags
	}
	return expr, nil
}

func (p *parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // EOF
	}
	return p.tokens[p.pos]
}

func (p *parser) peek() lexer.TokenType {
	return p.current().Type
}

func (p *parser) advance() lexer.Token {
	tok := p.current()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) expect(typ lexer.TokenType) (lexer.Token, bool) {
	tok := p.current()
	if tok.Type != typ {
		p.addError(fmt.Sprintf("expected %s, got %s", tokenName(typ), describe(tok)), &tok.Span)
		return tok, false
	}
	return p.advance(), true
}

func (p *parser) addError(msg string, span *ast.Span) {
	p.addErrorHint(msg, span, "")
}

func (p *parser) addErrorHint(msg string, span *ast.Span, hint string) {
	// One diagnostic per expression; later ones are usually cascades.
	if len(p.diags) > 0 {
		return
	}
	p.diags = append(p.diags, diagnostics.MakeDiag(diagnostics.EParse, msg, span, hint))
}

func (p *parser) spanFromTo(start, end ast.Span) ast.Span {
	return ast.Span{
		File:      start.File,
		StartLine: start.StartLine,
		StartCol:  start.StartCol,
		EndLine:   end.EndLine,
		EndCol:    end.EndCol,
	}
}

func tokenName(t lexer.TokenType) string {
	switch t {
	case lexer.TokLParen:
		return "'('"
	case lexer.TokRParen:
		return "')'"
	case lexer.TokComma:
		return "','"
	case lexer.TokIdent:
		return "identifier"
	case lexer.TokEOF:
		return "end of input"
	default:
		return fmt.Sprintf("token(%d)", t)
	}
}

func describe(tok lexer.Token) string {
	if tok.Type == lexer.TokEOF {
		return "end of input"
	}
	return fmt.Sprintf("'%s'", tok.Value)
}

func (p *parser) enter() bool {
	p.depth++
	if p.depth > MaxDepth {
		tok := p.current()
		p.addError(fmt.Sprintf("expression nested deeper than %d levels", MaxDepth), &tok.Span)
		return false
	}
	return true
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) parseExpr() ast.Expr {
	if !p.enter() {
		return nil
	}
	defer p.leave()
	return p.parseComparison()
}

func (p *parser) parseComparison() ast.Expr {
	left := p.parseAdditive()
	if left == nil {
		return nil
	}

	for {
		var op ast.BinaryOp
		switch p.peek() {
		case lexer.TokGt:
			op = ast.OpGt
		case lexer.TokLt:
			op = ast.OpLt
		case lexer.TokGtEq:
			op = ast.OpGtEq
		case lexer.TokLtEq:
			op = ast.OpLtEq
		case lexer.TokEqEq:
			op = ast.OpEqEq
		case lexer.TokBangEq:
			op = ast.OpNeq
		default:
			return left
		}
		p.advance()
		right := p.parseAdditive()
		if right == nil {
			return nil
		}
		left = &ast.BinaryExpr{
			Span:  p.spanFromTo(left.NodeSpan(), right.NodeSpan()),
			Op:    op,
			Left:  left,
			Right: right,
		}
	}
}

func (p *parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	if left == nil {
		return nil
	}

	for {
		var op ast.BinaryOp
		switch p.peek() {
		case lexer.TokPlus:
			op = ast.OpAdd
		case lexer.TokMinus:
			op = ast.OpSub
		default:
			return left
		}
		p.advance()
		right := p.parseMultiplicative()
		if right == nil {
			return nil
		}
		left = &ast.BinaryExpr{
			Span:  p.spanFromTo(left.NodeSpan(), right.NodeSpan()),
			Op:    op,
			Left:  left,
			Right: right,
		}
	}
}

func (p *parser) parseMultiplicative() ast.Expr {
	left := p.parseUnary()
	if left == nil {
		return nil
	}

	for {
		var op ast.BinaryOp
		switch p.peek() {
		case lexer.TokStar:
			op = ast.OpMul
		case lexer.TokSlash:
			op = ast.OpDiv
		case lexer.TokPercent:
			op = ast.OpMod
		default:
			return left
		}
		p.advance()
		right := p.parseUnary()
		if right == nil {
			return nil
		}
		left = &ast.BinaryExpr{
			Span:  p.spanFromTo(left.NodeSpan(), right.NodeSpan()),
			Op:    op,
			Left:  left,
			Right: right,
		}
	}
}

// parseUnary binds looser than '^', so -2^2 is -(2^2).
func (p *parser) parseUnary() ast.Expr {
	if p.peek() == lexer.TokMinus {
		if !p.enter() {
			return nil
		}
		defer p.leave()
		start := p.advance()
		operand := p.parseUnary()
		if operand == nil {
			return nil
		}
		return &ast.UnaryExpr{
			Span:    p.spanFromTo(start.Span, operand.NodeSpan()),
			Op:      ast.OpNeg,
			Operand: operand,
		}
	}
	return p.parsePower()
}

// parsePower is right associative: 2^3^2 is 2^(3^2).
func (p *parser) parsePower() ast.Expr {
	base := p.parsePrimary()
	if base == nil {
		return nil
	}
	if p.peek() != lexer.TokCaret {
		return base
	}
	if !p.enter() {
		return nil
	}
	defer p.leave()
	p.advance()
	exp := p.parseUnary()
	if exp == nil {
		return nil
	}
	return &ast.BinaryExpr{
		Span:  p.spanFromTo(base.NodeSpan(), exp.NodeSpan()),
		Op:    ast.OpPow,
		Left:  base,
		Right: exp,
	}
}

func (p *parser) parsePrimary() ast.Expr {
	switch p.peek() {
	case lexer.TokLParen:
		start := p.advance()
		inner := p.parseExpr()
		if inner == nil {
			return nil
		}
		end, ok := p.expect(lexer.TokRParen)
		if !ok {
			return nil
		}
		return &ast.ParenExpr{Span: p.spanFromTo(start.Span, end.Span), Inner: inner}

	case lexer.TokIntLit:
		tok := p.advance()
		val, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			// Too large for int64; keep it as a float if it is finite.
			f, err := strconv.ParseFloat(tok.Value, 64)
			if err != nil {
				p.addError(fmt.Sprintf("number %s out of range", tok.Value), &tok.Span)
				return nil
			}
			return &ast.FloatLiteral{Span: tok.Span, Value: f, Raw: tok.Value}
		}
		return &ast.IntLiteral{Span: tok.Span, Value: val}

	case lexer.TokHexLit:
		tok := p.advance()
		val, err := strconv.ParseUint(tok.Value[2:], 16, 64)
		if err != nil || val > 1<<63-1 {
			p.addError(fmt.Sprintf("hex literal %s out of range", tok.Value), &tok.Span)
			return nil
		}
		return &ast.IntLiteral{Span: tok.Span, Value: int64(val), Hex: true}

	case lexer.TokFloatLit:
		tok := p.advance()
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			p.addError(fmt.Sprintf("number %s out of range", tok.Value), &tok.Span)
			return nil
		}
		return &ast.FloatLiteral{Span: tok.Span, Value: val, Raw: tok.Value}

	case lexer.TokStringLit:
		tok := p.advance()
		return &ast.StrLiteral{Span: tok.Span, Value: tok.Value}

	case lexer.TokTrue:
		tok := p.advance()
		return &ast.BoolLiteral{Span: tok.Span, Value: true}

	case lexer.TokFalse:
		tok := p.advance()
		return &ast.BoolLiteral{Span: tok.Span, Value: false}

	case lexer.TokIdent:
		return p.parseIdentOrCall()

	default:
		tok := p.current()
		if tok.Type == lexer.TokEOF {
			p.addError("expected expression, got end of input", &tok.Span)
		} else {
			p.addError(fmt.Sprintf("unexpected token '%s'", tok.Value), &tok.Span)
		}
		return nil
	}
}

func (p *parser) parseIdentOrCall() ast.Expr {
	ip := p.parseIdentPath()
	if ip == nil {
		return nil
	}

	if p.peek() != lexer.TokLParen {
		return ip
	}

	if !p.enter() {
		return nil
	}
	defer p.leave()
	p.advance() // consume '('

	var args []ast.Expr
	if p.peek() != lexer.TokRParen {
		for {
			arg := p.parseExpr()
			if arg == nil {
				return nil
			}
			args = append(args, arg)
			if p.peek() != lexer.TokComma {
				break
			}
			p.advance()
		}
	}
	end, ok := p.expect(lexer.TokRParen)
	if !ok {
		return nil
	}
	return &ast.CallExpr{
		Span:   p.spanFromTo(ip.Span, end.Span),
		Callee: ip,
		Args:   args,
	}
}

func (p *parser) parseIdentPath() *ast.IdentPath {
	tok, ok := p.expect(lexer.TokIdent)
	if !ok {
		return nil
	}
	parts := []string{tok.Value}
	endSpan := tok.Span

	for p.peek() == lexer.TokDot {
		p.advance() // consume '.'
		next := p.current()
		if next.Type != lexer.TokIdent {
			p.addError(fmt.Sprintf("expected identifier after '.', got %s", describe(next)), &next.Span)
			return nil
		}
		p.advance()
		parts = append(parts, next.Value)
		endSpan = next.Span
	}

	return &ast.IdentPath{
		Span:  p.spanFromTo(tok.Span, endSpan),
		Parts: parts,
	}
}
