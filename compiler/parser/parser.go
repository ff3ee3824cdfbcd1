// Package parser implements the recursive-descent, precedence-climbing
// parser over a compiler/lexer token stream (spec §4.F), building a
// compiler/ast.Tree. Grounded structurally on Stvff-triops' parser.go/
// parse_statements.go/parse_blocks.go cursor style (a Token_Set with
// curr/inc helpers and a running error count) — the only pack repository
// that hand-rolls recursive descent instead of calling go/parser.
package parser

import (
	"mimic/compiler/ast"
	"mimic/compiler/lexer"
	"mimic/compiler/token"
	"mimic/mkerr"
)

// maxErrors bounds error accumulation before the parser gives up, per spec
// §4.F ("record up to N errors, N >= 10").
const maxErrors = 16

// Parser walks a lexer's token stream one token of lookahead at a time.
type Parser struct {
	lex    *lexer.Lexer
	strs   *token.StringTable
	cur    token.Token
	ahead  *token.Token
	tree   *ast.Tree
	errors []*mkerr.Error

	typedefs map[string]typedefEntry
}

// New creates a Parser over src.
func New(src string) *Parser {
	l := lexer.New(src, nil)
	p := &Parser{lex: l, strs: l.Strs, tree: ast.New()}
	p.cur = l.Next()
	return p
}

// Errors returns every recorded parse error, in order, capped at maxErrors.
func (p *Parser) Errors() []*mkerr.Error { return p.errors }

// Strings returns the shared string table literals/identifiers were
// interned into, for the codegen stage to read string literal bytes from.
func (p *Parser) Strings() *token.StringTable { return p.strs }

func (p *Parser) advance() token.Token {
	t := p.cur
	if p.ahead != nil {
		p.cur = *p.ahead
		p.ahead = nil
	} else {
		p.cur = p.lex.Next()
	}
	return t
}

func (p *Parser) peekNext() token.Token {
	if p.ahead == nil {
		t := p.lex.Next()
		p.ahead = &t
	}
	return *p.ahead
}

func (p *Parser) at(k token.Kind) bool { return p.cur.Kind == k }

func (p *Parser) accept(k token.Kind) bool {
	if p.at(k) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(k token.Kind, what string) token.Token {
	if !p.at(k) {
		p.errorf("expected %s", what)
		return p.cur
	}
	return p.advance()
}

func (p *Parser) errorf(format string, args ...any) {
	if len(p.errors) >= maxErrors {
		return
	}
	p.errors = append(p.errors, mkerr.At(mkerr.KindSyntax, p.cur.Line, p.cur.Col, format, args...))
}

// synchronize consumes tokens until the next ';', '}', or EOF, per spec
// §4.F's error-recovery rule.
func (p *Parser) synchronize() {
	for !p.at(token.EOF) {
		if p.at(token.Semicolon) {
			p.advance()
			return
		}
		if p.at(token.RBrace) {
			return
		}
		p.advance()
	}
}

// Parse parses a whole translation unit and returns the resulting tree,
// alongside any errors accumulated along the way (a non-empty Errors()
// does not necessarily mean Parse returned early — recoverable errors let
// parsing continue).
func (p *Parser) Parse() *ast.Tree {
	for !p.at(token.EOF) && len(p.errors) < maxErrors {
		p.parseTopLevel()
	}
	return p.tree
}
