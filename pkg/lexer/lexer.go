package lexer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/xplshn/zabi/pkg/token"
	"github.com/xplshn/zabi/pkg/util"
)

// DirectivePrefix marks a line comment that carries -W/-F flags for the file.
const DirectivePrefix = "[zabi]:"

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
	err       *util.SourceError
}

func NewLexer(source []rune, fileIndex int) *Lexer {
	return &Lexer{
		source: source, fileIndex: fileIndex, line: 1, column: 1,
	}
}

// Tokenize lexes the whole source. The returned slice always ends with an EOF token.
func Tokenize(source []rune, fileIndex int) ([]token.Token, error) {
	l := NewLexer(source, fileIndex)
	var tokens []token.Token
	for {
		tok := l.Next()
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			break
		}
	}
	if l.err != nil {
		return tokens, l.err
	}
	return tokens, nil
}

// Err returns the first lexical error. Next returns EOF once one has been seen.
func (l *Lexer) Err() error {
	if l.err == nil {
		return nil
	}
	return l.err
}

func (l *Lexer) Next() token.Token {
	if l.err != nil {
		return l.makeToken(token.EOF, "", l.pos, l.column, l.line)
	}
	for {
		l.skipWhitespaceAndComments()
		startPos, startCol, startLine := l.pos, l.column, l.line

		if l.err != nil || l.isAtEnd() {
			return l.makeToken(token.EOF, "", startPos, startCol, startLine)
		}

		if l.peek() == '/' && l.peekNext() == '/' {
			if tok, isDirective := l.lineCommentOrDirective(startPos, startCol, startLine); isDirective {
				return tok
			}
			continue
		}

		ch := l.peek()
		if unicode.IsLetter(ch) || ch == '_' {
			l.advance()
			return l.identifierOrKeyword(startPos, startCol, startLine)
		}
		if unicode.IsDigit(ch) {
			return l.numberLiteral(startPos, startCol, startLine)
		}

		l.advance()
		switch ch {
		case '(': return l.makeToken(token.LParen, "", startPos, startCol, startLine)
		case ')': return l.makeToken(token.RParen, "", startPos, startCol, startLine)
		case '{': return l.makeToken(token.LBrace, "", startPos, startCol, startLine)
		case '}': return l.makeToken(token.RBrace, "", startPos, startCol, startLine)
		case ',': return l.makeToken(token.Comma, "", startPos, startCol, startLine)
		case '-':
			if l.match('>') {
				return l.makeToken(token.Arrow, "", startPos, startCol, startLine)
			}
		}

		return l.fail(l.makeToken(token.EOF, "", startPos, startCol, startLine), "Unexpected character: '%c'", ch)
	}
}

func (l *Lexer) fail(tok token.Token, format string, args ...any) token.Token {
	if l.err == nil {
		l.err = util.Errorf(tok, format, args...)
	}
	tok.Type = token.EOF
	return tok
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for l.err == nil {
		switch l.peek() {
		case ' ', '\t', '\n', '\r':
			l.advance()
		case '#':
			l.lineComment()
		case '/':
			if l.peekNext() != '*' {
				return
			}
			l.blockComment()
		default:
			return
		}
	}
}

func (l *Lexer) blockComment() {
	startTok := l.makeToken(token.Comment, "", l.pos, l.column, l.line)
	startTok.Len = 2
	l.advance()
	l.advance()
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
	l.fail(startTok, "Unterminated block comment")
}

func (l *Lexer) lineComment() {
	for !l.isAtEnd() && l.peek() != '\n' {
		l.advance()
	}
}

// lineCommentOrDirective consumes a `//` comment. It reports a Directive token when the
// comment body starts with DirectivePrefix.
func (l *Lexer) lineCommentOrDirective(startPos, startCol, startLine int) (token.Token, bool) {
	l.advance()
	l.advance()
	commentStartPos := l.pos
	l.lineComment()
	trimmed := strings.TrimSpace(string(l.source[commentStartPos:l.pos]))

	if rest, ok := strings.CutPrefix(trimmed, DirectivePrefix); ok {
		return l.makeToken(token.Directive, strings.TrimSpace(rest), startPos, startCol, startLine), true
	}
	return token.Token{}, false
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	tok := l.makeToken(token.Ident, value, startPos, startCol, startLine)

	if tokType, isKeyword := token.KeywordMap[value]; isKeyword {
		tok.Type = tokType
		tok.Value = ""
	}
	return tok
}

// numberLiteral lexes an unsigned decimal or 0x-prefixed hex literal. Values are
// normalised to decimal.
func (l *Lexer) numberLiteral(startPos, startCol, startLine int) token.Token {
	if l.peek() == '0' && (l.peekNext() == 'x' || l.peekNext() == 'X') {
		l.advance()
		l.advance()
	}
	for unicode.IsDigit(l.peek()) || unicode.IsLetter(l.peek()) || l.peek() == '_' {
		l.advance()
	}

	valueStr := string(l.source[startPos:l.pos])
	tok := l.makeToken(token.Number, "", startPos, startCol, startLine)
	val, err := strconv.ParseUint(valueStr, 0, 32)
	if err != nil {
		if e, ok := err.(*strconv.NumError); ok && e.Err == strconv.ErrRange {
			return l.fail(tok, "Number out of range: %s", valueStr)
		}
		return l.fail(tok, "Invalid number literal: %s", valueStr)
	}
	tok.Value = strconv.FormatUint(val, 10)
	return tok
}
