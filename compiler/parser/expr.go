package parser

import (
	"mimic/compiler/ast"
	"mimic/compiler/token"
)

// precedence implements spec §4.F's table, low to high: comma < assignment
// (right-assoc) < ternary (right-assoc) < || < && < | < ^ < & < equality <
// relational < shift < additive < multiplicative < unary.
func binOpPrecedence(k token.Kind) (prec int, rightAssoc bool, ok bool) {
	switch k {
	case token.Comma:
		return 1, false, true
	case token.Assign, token.PlusAssign, token.MinusAssign, token.StarAssign,
		token.SlashAssign, token.PercentAssign, token.AmpAssign, token.PipeAssign,
		token.CaretAssign, token.ShlAssign, token.ShrAssign:
		return 2, true, true
	case token.Question:
		return 3, true, true
	case token.OrOr:
		return 4, false, true
	case token.AndAnd:
		return 5, false, true
	case token.Pipe:
		return 6, false, true
	case token.Caret:
		return 7, false, true
	case token.Amp:
		return 8, false, true
	case token.Eq, token.Ne:
		return 9, false, true
	case token.Lt, token.Gt, token.Le, token.Ge:
		return 10, false, true
	case token.Shl, token.Shr:
		return 11, false, true
	case token.Plus, token.Minus:
		return 12, false, true
	case token.Star, token.Slash, token.Percent:
		return 13, false, true
	default:
		return 0, false, false
	}
}

func isAssignOp(k token.Kind) bool {
	switch k {
	case token.Assign, token.PlusAssign, token.MinusAssign, token.StarAssign,
		token.SlashAssign, token.PercentAssign, token.AmpAssign, token.PipeAssign,
		token.CaretAssign, token.ShlAssign, token.ShrAssign:
		return true
	default:
		return false
	}
}

// ParseExpr parses a full (comma-including) expression.
func (p *Parser) ParseExpr() int32 {
	return p.parseBinary(1)
}

// parseAssignExpr parses starting just above comma, for contexts (call
// arguments, for-loop clauses) where a bare comma must not be swallowed.
func (p *Parser) parseAssignExpr() int32 {
	return p.parseBinary(2)
}

func (p *Parser) parseBinary(minPrec int) int32 {
	left := p.parseUnary()

	for {
		prec, rightAssoc, ok := binOpPrecedence(p.cur.Kind)
		if !ok || prec < minPrec {
			return left
		}
		op := p.advance().Kind

		if op == token.Question {
			then := p.ParseExpr()
			p.expect(token.Colon, "':' in ternary expression")
			els := p.parseBinary(prec)
			left = p.tree.AddExpr(ast.Expr{Kind: ast.ExprCond, A: left, B: then, C: els})
			continue
		}

		nextMin := prec + 1
		if rightAssoc {
			nextMin = prec
		}
		right := p.parseBinary(nextMin)

		if isAssignOp(op) {
			left = p.tree.AddExpr(ast.Expr{Kind: ast.ExprAssign, Op: uint8(op), A: left, B: right})
		} else if op == token.Comma {
			left = p.tree.AddExpr(ast.Expr{Kind: ast.ExprComma, A: left, B: right})
		} else {
			left = p.tree.AddExpr(ast.Expr{Kind: ast.ExprBinary, Op: uint8(op), A: left, B: right})
		}
	}
}

func (p *Parser) parseUnary() int32 {
	switch p.cur.Kind {
	case token.Minus, token.Bang, token.Tilde, token.Amp, token.Star, token.PlusPlus, token.MinusMinus:
		op := p.advance().Kind
		operand := p.parseUnary()
		return p.tree.AddExpr(ast.Expr{Kind: ast.ExprUnary, Op: uint8(op), A: operand, B: -1})
	case token.KwSizeof:
		p.advance()
		// sizeof x and sizeof(x) parse their operand as a primary plus
		// postfix expression; a type name such as sizeof(int) is not an
		// expression and is reported as a syntax error. The codegen
		// resolves the constant.
		operand := p.parsePostfix(p.parsePrimary())
		return p.tree.AddExpr(ast.Expr{Kind: ast.ExprUnary, Op: uint8(token.KwSizeof), A: operand, B: -1})
	default:
		return p.parsePostfix(p.parsePrimary())
	}
}

func (p *Parser) parsePostfix(expr int32) int32 {
	for {
		switch p.cur.Kind {
		case token.LParen:
			p.advance()
			var args []int32
			if !p.at(token.RParen) {
				args = append(args, p.parseAssignExpr())
				for p.accept(token.Comma) {
					args = append(args, p.parseAssignExpr())
				}
			}
			p.expect(token.RParen, "')' after call arguments")
			expr = p.tree.AddExpr(ast.Expr{Kind: ast.ExprCall, A: expr, B: -1, Args: args})
		case token.LBracket:
			p.advance()
			idx := p.ParseExpr()
			p.expect(token.RBracket, "']' after array index")
			expr = p.tree.AddExpr(ast.Expr{Kind: ast.ExprIndex, A: expr, B: idx})
		case token.PlusPlus, token.MinusMinus:
			op := p.advance().Kind
			expr = p.tree.AddExpr(ast.Expr{Kind: ast.ExprUnary, Op: uint8(op), A: expr, B: 1 /* postfix marker */})
		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimary() int32 {
	switch p.cur.Kind {
	case token.IntLit:
		t := p.advance()
		return p.tree.AddExpr(ast.Expr{Kind: ast.ExprIntLit, Value: t.Value})
	case token.CharLit:
		t := p.advance()
		return p.tree.AddExpr(ast.Expr{Kind: ast.ExprCharLit, Value: t.Value})
	case token.StringLit:
		t := p.advance()
		return p.tree.AddExpr(ast.Expr{Kind: ast.ExprStringLit, Value: t.Value})
	case token.Ident:
		t := p.advance()
		return p.tree.AddExpr(ast.Expr{Kind: ast.ExprIdent, Value: t.Value})
	case token.LParen:
		p.advance()
		e := p.ParseExpr()
		p.expect(token.RParen, "')' after parenthesized expression")
		return e
	default:
		p.errorf("expected expression")
		switch p.cur.Kind {
		case token.Semicolon, token.RParen, token.RBrace, token.EOF:
		default:
			p.advance()
		}
		return p.tree.AddExpr(ast.Expr{Kind: ast.ExprIntLit, Value: 0})
	}
}
