package parser

import (
	"vaultlang/internal/ast"
	"vaultlang/internal/lexer"
)

func (p *Parser) parseStatement() (ast.Node, error) {
	switch p.curKind() {
	case lexer.TokFunction:
		return p.parseFunctionDef()
	case lexer.TokIf:
		return p.parseIf()
	case lexer.TokWhile:
		return p.parseWhile()
	case lexer.TokFor:
		return p.parseFor()
	case lexer.TokBreak:
		t := p.advance()
		if _, err := p.expect(lexer.TokSemicolon, "';'"); err != nil {
			return nil, err
		}
		b := &ast.Break{}
		b.Position = t.Position
		return b, nil
	case lexer.TokContinue:
		t := p.advance()
		if _, err := p.expect(lexer.TokSemicolon, "';'"); err != nil {
			return nil, err
		}
		c := &ast.Continue{}
		c.Position = t.Position
		return c, nil
	case lexer.TokReturn:
		return p.parseReturn()
	case lexer.TokTry:
		return p.parseTry()
	case lexer.TokThrow:
		return p.parseThrow()
	case lexer.TokImport:
		return p.parseImport()
	case lexer.TokNonlocal:
		return p.parseNonlocal()
	case lexer.TokCapability:
		return p.parseCapability()
	case lexer.TokLBracket:
		if n, ok, err := p.tryParseArrayDestructure(); err != nil {
			return nil, err
		} else if ok {
			return n, nil
		}
	case lexer.TokLBrace:
		if n, ok, err := p.tryParseObjectDestructure(); err != nil {
			return nil, err
		} else if ok {
			return n, nil
		}
	}
	return p.parseExprOrAssignStatement()
}

func (p *Parser) parseBlock() (*ast.Block, error) {
	open, err := p.expect(lexer.TokLBrace, "'{'")
	if err != nil {
		return nil, err
	}
	block := &ast.Block{}
	block.Position = open.Position
	for !p.at(lexer.TokRBrace) && !p.at(lexer.TokEOF) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.Statements = append(block.Statements, stmt)
	}
	if _, err := p.expect(lexer.TokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return block, nil
}

func (p *Parser) parseFunctionDef() (*ast.FunctionDef, error) {
	start := p.advance() // 'function'
	name, err := p.expect(lexer.TokIdentifier, "function name")
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	fn := &ast.FunctionDef{Name: name.Lexeme, Params: params, Body: body}
	fn.Position = start.Position
	return fn, nil
}

func (p *Parser) parseParamList() ([]*ast.Parameter, error) {
	if _, err := p.expect(lexer.TokLParen, "'('"); err != nil {
		return nil, err
	}
	var params []*ast.Parameter
	for !p.at(lexer.TokRParen) {
		nameTok, err := p.expect(lexer.TokIdentifier, "parameter name")
		if err != nil {
			return nil, err
		}
		param := &ast.Parameter{Name: nameTok.Lexeme}
		param.Position = nameTok.Position
		if p.match(lexer.TokAssign) {
			def, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			param.Default = def
		}
		params = append(params, param)
		if !p.match(lexer.TokComma) {
			break
		}
	}
	if _, err := p.expect(lexer.TokRParen, "')'"); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseIf() (*ast.If, error) {
	start := p.advance() // 'if'
	test, body, err := p.parseCondAndBlock()
	if err != nil {
		return nil, err
	}
	ifNode := &ast.If{Test: test, Body: body}
	ifNode.Position = start.Position

	for p.at(lexer.TokElif) {
		elifTok := p.advance()
		elifTest, elifBody, err := p.parseCondAndBlock()
		if err != nil {
			return nil, err
		}
		elif := &ast.Elif{Test: elifTest, Body: elifBody}
		elif.Position = elifTok.Position
		ifNode.Elifs = append(ifNode.Elifs, elif)
	}

	if p.at(lexer.TokElse) {
		elseTok := p.advance()
		elseBody, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		elseNode := &ast.Else{Body: elseBody}
		elseNode.Position = elseTok.Position
		ifNode.Else = elseNode
	}

	return ifNode, nil
}

func (p *Parser) parseCondAndBlock() (ast.Node, *ast.Block, error) {
	if _, err := p.expect(lexer.TokLParen, "'('"); err != nil {
		return nil, nil, err
	}
	test, err := p.parseExpression()
	if err != nil {
		return nil, nil, err
	}
	if _, err := p.expect(lexer.TokRParen, "')'"); err != nil {
		return nil, nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, nil, err
	}
	return test, body, nil
}

func (p *Parser) parseWhile() (*ast.While, error) {
	start := p.advance()
	test, body, err := p.parseCondAndBlock()
	if err != nil {
		return nil, err
	}
	w := &ast.While{Test: test, Body: body}
	w.Position = start.Position
	return w, nil
}

func (p *Parser) parseFor() (*ast.For, error) {
	start := p.advance() // 'for'
	if _, err := p.expect(lexer.TokLParen, "'('"); err != nil {
		return nil, err
	}
	varTok, err := p.expect(lexer.TokIdentifier, "loop variable")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokIn, "'in'"); err != nil {
		return nil, err
	}
	iterable, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokRParen, "')'"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	f := &ast.For{Var: varTok.Lexeme, Iterable: iterable, Body: body}
	f.Position = start.Position
	return f, nil
}

func (p *Parser) parseReturn() (*ast.Return, error) {
	start := p.advance()
	ret := &ast.Return{}
	ret.Position = start.Position
	if !p.at(lexer.TokSemicolon) {
		val, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		ret.Value = val
	}
	if _, err := p.expect(lexer.TokSemicolon, "';'"); err != nil {
		return nil, err
	}
	return ret, nil
}

// parseTry parses try/except(ident)?/finally. At least one of except or
// finally must be present.
func (p *Parser) parseTry() (*ast.Try, error) {
	start := p.advance() // 'try'
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	tryNode := &ast.Try{Body: body}
	tryNode.Position = start.Position

	if p.at(lexer.TokExcept) {
		exceptTok := p.advance()
		var binding string
		if p.match(lexer.TokLParen) {
			nameTok, err := p.expect(lexer.TokIdentifier, "exception binding name")
			if err != nil {
				return nil, err
			}
			binding = nameTok.Lexeme
			if _, err := p.expect(lexer.TokRParen, "')'"); err != nil {
				return nil, err
			}
		}
		exceptBody, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		except := &ast.Except{Binding: binding, Body: exceptBody}
		except.Position = exceptTok.Position
		tryNode.Except = except
	}

	if p.at(lexer.TokFinally) {
		finallyTok := p.advance()
		finallyBody, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		finally := &ast.Finally{Body: finallyBody}
		finally.Position = finallyTok.Position
		tryNode.Finally = finally
	}

	if tryNode.Except == nil && tryNode.Finally == nil {
		return nil, &ParseError{
			Message:  "try block requires an except or finally clause",
			Position: start.Position,
		}
	}

	return tryNode, nil
}

func (p *Parser) parseThrow() (*ast.Throw, error) {
	start := p.advance()
	val, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokSemicolon, "';'"); err != nil {
		return nil, err
	}
	th := &ast.Throw{Value: val}
	th.Position = start.Position
	return th, nil
}

func (p *Parser) parseImport() (*ast.Import, error) {
	start := p.advance()
	nameTok, err := p.expect(lexer.TokIdentifier, "module name")
	if err != nil {
		return nil, err
	}
	imp := &ast.Import{Name: nameTok.Lexeme}
	imp.Position = start.Position
	if p.match(lexer.TokAs) {
		aliasTok, err := p.expect(lexer.TokIdentifier, "alias name")
		if err != nil {
			return nil, err
		}
		imp.Alias = aliasTok.Lexeme
	}
	if _, err := p.expect(lexer.TokSemicolon, "';'"); err != nil {
		return nil, err
	}
	return imp, nil
}

func (p *Parser) parseNonlocal() (*ast.Nonlocal, error) {
	start := p.advance()
	nameTok, err := p.expect(lexer.TokIdentifier, "name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokSemicolon, "';'"); err != nil {
		return nil, err
	}
	n := &ast.Nonlocal{Name: nameTok.Lexeme}
	n.Position = start.Position
	return n, nil
}

func (p *Parser) parseCapability() (*ast.Capability, error) {
	start := p.advance() // 'capability'
	nameTok, err := p.expect(lexer.TokIdentifier, "capability name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	cap := &ast.Capability{Name: nameTok.Lexeme}
	cap.Position = start.Position
	for !p.at(lexer.TokRBrace) && !p.at(lexer.TokEOF) {
		switch p.curKind() {
		case lexer.TokResource:
			p.advance()
			patTok, err := p.expect(lexer.TokString, "resource pattern string")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokSemicolon, "';'"); err != nil {
				return nil, err
			}
			cap.Rules = append(cap.Rules, ast.CapabilityRule{IsResource: true, Pattern: patTok.Lexeme})
		case lexer.TokAllow:
			p.advance()
			opTok, err := p.expect(lexer.TokIdentifier, "operation name")
			if err != nil {
				return nil, err
			}
			targetTok, err := p.expect(lexer.TokString, "target pattern string")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokSemicolon, "';'"); err != nil {
				return nil, err
			}
			cap.Rules = append(cap.Rules, ast.CapabilityRule{IsResource: false, Operation: opTok.Lexeme, Pattern: targetTok.Lexeme})
		default:
			return nil, &ParseError{
				Message:  "expected 'resource' or 'allow' clause",
				Position: p.cur().Position,
				Got:      p.cur().Lexeme,
			}
		}
	}
	if _, err := p.expect(lexer.TokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return cap, nil
}

// tryParseArrayDestructure attempts `[name, name, ...] = expr;`. On
// mismatch it rewinds the cursor and returns ok=false so the caller falls
// through to ordinary expression-statement parsing (a bare array literal
// statement).
func (p *Parser) tryParseArrayDestructure() (ast.Node, bool, error) {
	save := p.pos
	start := p.advance() // '['
	var names []string
	ok := true
	for !p.at(lexer.TokRBracket) {
		if !p.at(lexer.TokIdentifier) {
			ok = false
			break
		}
		names = append(names, p.advance().Lexeme)
		if !p.match(lexer.TokComma) {
			break
		}
	}
	if ok && p.at(lexer.TokRBracket) {
		p.advance()
		if p.at(lexer.TokAssign) {
			p.advance()
			value, err := p.parseExpression()
			if err != nil {
				return nil, true, err
			}
			if _, err := p.expect(lexer.TokSemicolon, "';'"); err != nil {
				return nil, true, err
			}
			d := &ast.DestructureAssign{IsObject: false, Names: names, Value: value}
			d.Position = start.Position
			return d, true, nil
		}
	}
	p.pos = save
	return nil, false, nil
}

// tryParseObjectDestructure attempts `{name, name, ...} = expr;`.
func (p *Parser) tryParseObjectDestructure() (ast.Node, bool, error) {
	save := p.pos
	start := p.advance() // '{'
	var names []string
	ok := true
	for !p.at(lexer.TokRBrace) {
		if !p.at(lexer.TokIdentifier) {
			ok = false
			break
		}
		names = append(names, p.advance().Lexeme)
		if !p.match(lexer.TokComma) {
			break
		}
	}
	if ok && p.at(lexer.TokRBrace) {
		p.advance()
		if p.at(lexer.TokAssign) {
			p.advance()
			value, err := p.parseExpression()
			if err != nil {
				return nil, true, err
			}
			if _, err := p.expect(lexer.TokSemicolon, "';'"); err != nil {
				return nil, true, err
			}
			d := &ast.DestructureAssign{IsObject: true, Names: names, Value: value}
			d.Position = start.Position
			return d, true, nil
		}
	}
	p.pos = save
	return nil, false, nil
}

// parseExprOrAssignStatement parses an expression; if followed by '=' it is
// a direct assignment to one of the three LHS forms (identifier, member,
// index), otherwise it is an expression statement.
func (p *Parser) parseExprOrAssignStatement() (ast.Node, error) {
	start := p.cur()
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.match(lexer.TokAssign) {
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokSemicolon, "';'"); err != nil {
			return nil, err
		}
		targetKind, err := assignTargetKind(expr)
		if err != nil {
			return nil, err
		}
		a := &ast.Assign{TargetKind: targetKind, Target: expr, Value: value}
		a.Position = start.Position
		return a, nil
	}
	if _, err := p.expect(lexer.TokSemicolon, "';'"); err != nil {
		return nil, err
	}
	stmt := &ast.ExprStmt{Expr: expr}
	stmt.Position = start.Position
	return stmt, nil
}

func assignTargetKind(n ast.Node) (ast.AssignTargetKind, error) {
	switch n.(type) {
	case *ast.Identifier:
		return ast.TargetIdentifier, nil
	case *ast.Member:
		return ast.TargetMember, nil
	case *ast.Index:
		return ast.TargetIndex, nil
	default:
		return 0, &ParseError{
			Message:  "invalid assignment target",
			Position: n.Pos(),
		}
	}
}
