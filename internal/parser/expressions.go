package parser

import (
	"strconv"

	"vaultlang/internal/ast"
	"vaultlang/internal/lexer"
)

// parseExpression is the entry point of the precedence chain described in
// the Parser's package doc: ternary is the loosest-binding production.
func (p *Parser) parseExpression() (ast.Node, error) {
	return p.parseTernary()
}

func (p *Parser) parseTernary() (ast.Node, error) {
	test, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	if p.at(lexer.TokQuestion) {
		start := p.advance()
		then, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokColon, "':'"); err != nil {
			return nil, err
		}
		elseBranch, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		t := &ast.Ternary{Test: test, Then: then, Else: elseBranch}
		t.Position = start.Position
		return t, nil
	}
	return test, nil
}

func (p *Parser) parseLogicalOr() (ast.Node, error) {
	left, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.TokPipePipe) {
		tok := p.advance()
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		l := &ast.Logical{Op: ast.LogicalOr, Left: left, Right: right}
		l.Position = tok.Position
		left = l
	}
	return left, nil
}

func (p *Parser) parseLogicalAnd() (ast.Node, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.TokAmpAmp) {
		tok := p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		l := &ast.Logical{Op: ast.LogicalAnd, Left: left, Right: right}
		l.Position = tok.Position
		left = l
	}
	return left, nil
}

func (p *Parser) parseEquality() (ast.Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.TokEqEq) || p.at(lexer.TokNotEq) {
		tok := p.advance()
		op := ast.CompareEq
		if tok.Kind == lexer.TokNotEq {
			op = ast.CompareNotEq
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		c := &ast.Compare{Op: op, Left: left, Right: right}
		c.Position = tok.Position
		left = c
	}
	return left, nil
}

func (p *Parser) parseComparison() (ast.Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.TokLt) || p.at(lexer.TokLte) || p.at(lexer.TokGt) || p.at(lexer.TokGte) {
		tok := p.advance()
		var op ast.CompareOp
		switch tok.Kind {
		case lexer.TokLt:
			op = ast.CompareLt
		case lexer.TokLte:
			op = ast.CompareLte
		case lexer.TokGt:
			op = ast.CompareGt
		case lexer.TokGte:
			op = ast.CompareGte
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		c := &ast.Compare{Op: op, Left: left, Right: right}
		c.Position = tok.Position
		left = c
	}
	return left, nil
}

func (p *Parser) parseAdditive() (ast.Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.TokPlus) || p.at(lexer.TokMinus) {
		tok := p.advance()
		op := ast.BinaryAdd
		if tok.Kind == lexer.TokMinus {
			op = ast.BinarySub
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		b := &ast.Binary{Op: op, Left: left, Right: right}
		b.Position = tok.Position
		left = b
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.TokStar) || p.at(lexer.TokSlash) || p.at(lexer.TokSlashSlash) || p.at(lexer.TokPercent) {
		tok := p.advance()
		var op ast.BinaryOp
		switch tok.Kind {
		case lexer.TokStar:
			op = ast.BinaryMul
		case lexer.TokSlash:
			op = ast.BinaryDiv
		case lexer.TokSlashSlash:
			op = ast.BinaryFloorDiv
		case lexer.TokPercent:
			op = ast.BinaryMod
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		b := &ast.Binary{Op: op, Left: left, Right: right}
		b.Position = tok.Position
		left = b
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Node, error) {
	if p.at(lexer.TokMinus) || p.at(lexer.TokBang) {
		tok := p.advance()
		op := ast.UnaryNeg
		if tok.Kind == lexer.TokBang {
			op = ast.UnaryNot
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		u := &ast.Unary{Op: op, Operand: operand}
		u.Position = tok.Position
		return u, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Node, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.curKind() {
		case lexer.TokDot:
			tok := p.advance()
			nameTok, err := p.expect(lexer.TokIdentifier, "member name")
			if err != nil {
				return nil, err
			}
			m := &ast.Member{Object: expr, Name: nameTok.Lexeme}
			m.Position = tok.Position
			expr = m
		case lexer.TokLBracket:
			tok := p.advance()
			node, err := p.parseIndexOrSlice(expr, tok)
			if err != nil {
				return nil, err
			}
			expr = node
		case lexer.TokLParen:
			tok := p.advance()
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			c := &ast.Call{Callee: expr, Args: args}
			c.Position = tok.Position
			expr = c
		default:
			return expr, nil
		}
	}
}

// parseIndexOrSlice parses the contents of `[...]` following an already
// consumed `[`. Either a single expression (Index) or up to three
// colon-separated components (Slice), any of which may be omitted.
func (p *Parser) parseIndexOrSlice(obj ast.Node, openTok lexer.Token) (ast.Node, error) {
	var start, stop, step ast.Node
	var err error
	isSlice := false

	if !p.at(lexer.TokColon) {
		start, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if p.match(lexer.TokColon) {
		isSlice = true
		if !p.at(lexer.TokColon) && !p.at(lexer.TokRBracket) {
			stop, err = p.parseExpression()
			if err != nil {
				return nil, err
			}
		}
		if p.match(lexer.TokColon) {
			if !p.at(lexer.TokRBracket) {
				step, err = p.parseExpression()
				if err != nil {
					return nil, err
				}
			}
		}
	}
	if _, err := p.expect(lexer.TokRBracket, "']'"); err != nil {
		return nil, err
	}

	if isSlice {
		s := &ast.Slice{Object: obj, Start: start, Stop: stop, Step: step}
		s.Position = openTok.Position
		return s, nil
	}
	idx := &ast.Index{Object: obj, Key: start}
	idx.Position = openTok.Position
	return idx, nil
}

func (p *Parser) parseArgList() ([]ast.Node, error) {
	var args []ast.Node
	for !p.at(lexer.TokRParen) {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.match(lexer.TokComma) {
			break
		}
	}
	if _, err := p.expect(lexer.TokRParen, "')'"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parsePrimary() (ast.Node, error) {
	tok := p.cur()
	switch tok.Kind {
	case lexer.TokNumber:
		p.advance()
		return parseNumberLiteral(tok)
	case lexer.TokString:
		p.advance()
		s := &ast.LiteralString{Value: tok.Lexeme}
		s.Position = tok.Position
		return s, nil
	case lexer.TokTrue, lexer.TokFalse:
		p.advance()
		b := &ast.LiteralBool{Value: tok.Kind == lexer.TokTrue}
		b.Position = tok.Position
		return b, nil
	case lexer.TokNull:
		p.advance()
		n := &ast.LiteralNull{}
		n.Position = tok.Position
		return n, nil
	case lexer.TokIdentifier:
		// Bare single-parameter arrow: `x => expr`.
		if p.peekKind(1) == lexer.TokArrow {
			return p.parseArrowFromBareIdent()
		}
		p.advance()
		id := &ast.Identifier{Name: tok.Lexeme}
		id.Position = tok.Position
		return id, nil
	case lexer.TokLBracket:
		return p.parseArrayLiteral()
	case lexer.TokLBrace:
		return p.parseObjectLiteral()
	case lexer.TokLParen:
		return p.parseParenOrArrow()
	}
	return nil, &ParseError{
		Message:  "unexpected token in expression",
		Position: tok.Position,
		Got:      tok.Lexeme,
	}
}

// peekKind looks ahead n tokens from the current cursor without consuming,
// clamped to the final token (TokEOF) so callers never index out of range.
func (p *Parser) peekKind(n int) lexer.TokenKind {
	idx := p.pos + n
	if idx >= len(p.tokens) {
		idx = len(p.tokens) - 1
	}
	return p.tokens[idx].Kind
}

func parseNumberLiteral(tok lexer.Token) (ast.Node, error) {
	v, err := strconv.ParseFloat(tok.Lexeme, 64)
	if err != nil {
		return nil, &ParseError{Message: "invalid number literal", Position: tok.Position, Got: tok.Lexeme}
	}
	n := &ast.LiteralNumber{Value: v}
	n.Position = tok.Position
	return n, nil
}

func (p *Parser) parseArrowFromBareIdent() (ast.Node, error) {
	nameTok := p.advance()
	arrowTok := p.advance() // '=>'
	_ = arrowTok
	param := &ast.Parameter{Name: nameTok.Lexeme}
	param.Position = nameTok.Position
	return p.finishArrow([]*ast.Parameter{param}, nameTok.Position)
}

// parseParenOrArrow disambiguates `(expr)` from `(params) => body`. The
// token stream is fully materialized up front (see Parser doc comment), so
// this trial-parses a parameter list and backtracks on mismatch rather than
// requiring unbounded streaming lookahead.
func (p *Parser) parseParenOrArrow() (ast.Node, error) {
	save := p.pos
	openTok := p.advance() // '('

	if params, ok := p.tryParseArrowParamList(); ok {
		if p.at(lexer.TokArrow) {
			p.advance()
			return p.finishArrow(params, openTok.Position)
		}
	}
	p.pos = save

	p.advance() // '(' again
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokRParen, "')'"); err != nil {
		return nil, err
	}
	return expr, nil
}

// tryParseArrowParamList attempts to consume `ident (, ident)* )` after an
// already-consumed `(`. Returns ok=false (without erroring) on any
// mismatch; the caller is responsible for restoring the cursor.
func (p *Parser) tryParseArrowParamList() ([]*ast.Parameter, bool) {
	var params []*ast.Parameter
	if p.at(lexer.TokRParen) {
		p.advance()
		return params, true
	}
	for {
		if !p.at(lexer.TokIdentifier) {
			return nil, false
		}
		nameTok := p.advance()
		param := &ast.Parameter{Name: nameTok.Lexeme}
		param.Position = nameTok.Position
		params = append(params, param)
		if p.match(lexer.TokComma) {
			continue
		}
		break
	}
	if !p.at(lexer.TokRParen) {
		return nil, false
	}
	p.advance()
	return params, true
}

func (p *Parser) finishArrow(params []*ast.Parameter, start ast.Position) (ast.Node, error) {
	arrow := &ast.Arrow{Params: params}
	arrow.Position = start
	if p.at(lexer.TokLBrace) {
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		arrow.BlockBody = body
		return arrow, nil
	}
	body, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	arrow.ExprBody = body
	return arrow, nil
}

func (p *Parser) parseArrayLiteral() (ast.Node, error) {
	start := p.advance() // '['
	arr := &ast.Array{}
	arr.Position = start.Position
	for !p.at(lexer.TokRBracket) {
		el, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		arr.Elements = append(arr.Elements, el)
		if !p.match(lexer.TokComma) {
			break
		}
	}
	if _, err := p.expect(lexer.TokRBracket, "']'"); err != nil {
		return nil, err
	}
	return arr, nil
}

func (p *Parser) parseObjectLiteral() (ast.Node, error) {
	start := p.advance() // '{'
	obj := &ast.Object{}
	obj.Position = start.Position
	for !p.at(lexer.TokRBrace) {
		var key string
		switch p.curKind() {
		case lexer.TokIdentifier:
			key = p.advance().Lexeme
		case lexer.TokString:
			key = p.advance().Lexeme
		default:
			return nil, &ParseError{
				Message:  "expected object key",
				Position: p.cur().Position,
				Got:      p.cur().Lexeme,
			}
		}
		if _, err := p.expect(lexer.TokColon, "':'"); err != nil {
			return nil, err
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		obj.Properties = append(obj.Properties, ast.ObjectProperty{Key: key, Value: value})
		if !p.match(lexer.TokComma) {
			break
		}
	}
	if _, err := p.expect(lexer.TokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return obj, nil
}
