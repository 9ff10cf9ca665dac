package parser

import (
	"strconv"

	"github.com/xplshn/zabi/pkg/ast"
	"github.com/xplshn/zabi/pkg/token"
	"github.com/xplshn/zabi/pkg/util"
)

// paramAttrs are the identifiers that may follow a parameter type.
var paramAttrs = map[string]bool{
	"sext": true, "uext": true, "vmctx": true, "sret": true, "stack_limit": true, "struct": true,
}

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
}

// bailout unwinds the parser to Parse on the first syntax error
type bailout struct{ err *util.SourceError }

// NewParser creates and initializes a new Parser from a token stream
func NewParser(tokens []token.Token) *Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != token.EOF {
		tokens = append(tokens, token.Token{Type: token.EOF, FileIndex: -1})
	}
	return &Parser{tokens: tokens, current: tokens[0]}
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.previous = p.current
		p.pos++
		p.current = p.tokens[p.pos]
	}
}

func (p *Parser) check(tokType token.Type) bool {
	return p.current.Type == tokType
}

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, message string) token.Token {
	if p.check(tokType) {
		p.advance()
		return p.previous
	}
	p.fail(p.current, "%s", message)
	return token.Token{}
}

func (p *Parser) fail(tok token.Token, format string, args ...any) {
	panic(bailout{util.Errorf(tok, format, args...)})
}

func (p *Parser) expectNumber(what string) uint32 {
	tok := p.expect(token.Number, "Expected a number after "+what+".")
	val, err := strconv.ParseUint(tok.Value, 10, 32)
	if err != nil {
		p.fail(tok, "Invalid %s size: %s", what, tok.Value)
	}
	return uint32(val)
}

// Parse builds the File node. Parsing stops at the first error, which is returned as
// a *util.SourceError.
func (p *Parser) Parse() (root *ast.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			root, err = nil, b.err
		}
	}()

	var decls []*ast.Node
	rootTok := p.current
	for !p.check(token.EOF) {
		switch {
		case p.match(token.Directive):
			decls = append(decls, ast.NewDirective(p.previous, p.previous.Value))
		case p.check(token.Func):
			decls = append(decls, p.parseFuncDecl())
		default:
			p.fail(p.current, "Expected 'func' or a directive, got %s.", p.current.Type)
		}
	}
	return ast.NewFile(rootTok, decls), nil
}

func (p *Parser) parseFuncDecl() *ast.Node {
	funcTok := p.expect(token.Func, "Expected 'func'.")
	nameTok := p.expect(token.Ident, "Expected a function name after 'func'.")

	p.expect(token.LParen, "Expected '(' after function name.")
	params := p.parseParamList()

	var returns []*ast.Node
	if p.match(token.Arrow) {
		if p.match(token.LParen) {
			returns = p.parseParamList()
		} else {
			returns = []*ast.Node{p.parseParam()}
		}
	}

	var conv *ast.Node
	if p.match(token.Ident) {
		conv = ast.NewIdent(p.previous, p.previous.Value)
	}

	var body []*ast.Node
	hasBody := false
	if p.match(token.LBrace) {
		hasBody = true
		for !p.check(token.RBrace) && !p.check(token.EOF) {
			body = append(body, p.parseBodyDirective())
		}
		p.expect(token.RBrace, "Expected '}' to close the body of '"+nameTok.Value+"'.")
	}

	return ast.NewFuncDecl(funcTok, nameTok.Value, params, returns, conv, body, hasBody)
}

// parseParamList parses parameters up to and including the closing ')'.
func (p *Parser) parseParamList() []*ast.Node {
	var params []*ast.Node
	if p.match(token.RParen) {
		return params
	}
	for {
		params = append(params, p.parseParam())
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RParen, "Expected ')' after parameter list.")
	return params
}

func (p *Parser) parseParam() *ast.Node {
	typeTok := p.expect(token.Ident, "Expected a parameter type.")
	var attrs []string
	var structSize uint32
	for p.check(token.Ident) && paramAttrs[p.current.Value] {
		attr := p.current.Value
		p.advance()
		if attr == "struct" {
			p.expect(token.LParen, "Expected '(' after 'struct'.")
			structSize = p.expectNumber("'struct('")
			p.expect(token.RParen, "Expected ')' after struct size.")
		}
		attrs = append(attrs, attr)
	}
	return ast.NewParam(typeTok, typeTok.Value, attrs, structSize)
}

func (p *Parser) parseBodyDirective() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Clobbers):
		var regs []*ast.Node
		for {
			r := p.expect(token.Ident, "Expected a register name.")
			regs = append(regs, ast.NewIdent(r, r.Value))
			if !p.match(token.Comma) {
				break
			}
		}
		return ast.NewClobbers(tok, regs)

	case p.match(token.StackSlots): return ast.NewSize(tok, ast.StackSlots, p.expectNumber("'stackslots'"))
	case p.match(token.SpillSlots): return ast.NewSize(tok, ast.SpillSlots, p.expectNumber("'spillslots'"))
	case p.match(token.Outgoing): return ast.NewSize(tok, ast.Outgoing, p.expectNumber("'outgoing'"))

	case p.match(token.TailCall):
		target := p.expect(token.Ident, "Expected a callee after 'tailcall'.")
		var pop uint32
		hasPop := p.match(token.Pop)
		if hasPop {
			pop = p.expectNumber("'pop'")
		}
		return ast.NewTailCall(tok, target.Value, pop, hasPop)

	case p.match(token.Call):
		callee := p.expect(token.Ident, "Expected a callee after 'call'.")
		var dests []*ast.Node
		if p.match(token.Arrow) {
			for {
				dests = append(dests, p.parseDest())
				if !p.match(token.Comma) {
					break
				}
			}
		}
		return ast.NewCall(tok, callee.Value, dests)
	}

	p.fail(tok, "Unexpected %s in function body.", tok.Type)
	return nil
}

func (p *Parser) parseDest() *ast.Node {
	tok := p.current
	if p.match(token.Spill) {
		return ast.NewSpill(tok, p.expectNumber("'spill'"))
	}
	if p.match(token.Ident) {
		return ast.NewIdent(tok, tok.Value)
	}
	p.fail(tok, "Expected a register or 'spill N' as call destination, got %s.", tok.Type)
	return nil
}
