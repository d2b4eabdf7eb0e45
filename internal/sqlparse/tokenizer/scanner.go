// Package tokenizer scans SQL query text into tokens.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const eofRune = -1

// Scan tokenizes the provided SQL and returns the token stream terminated by KindEOF.
func Scan(src string) ([]Token, error) {
	if !utf8.ValidString(src) {
		return nil, &Error{Line: 1, Column: 1, Message: "input is not valid UTF-8"}
	}
	scanner := &Scanner{
		src:    src,
		tokens: make([]Token, 0, len(src)/4+1),
		line:   1,
		column: 1,
	}
	if err := scanner.scan(); err != nil {
		return nil, err
	}
	return scanner.tokens, nil
}

// Scanner maintains scanning state over a SQL source.
type Scanner struct {
	src    string
	tokens []Token
	index  int
	line   int
	column int
}

func (s *Scanner) scan() error {
	for s.index < len(s.src) {
		r := s.peek()
		switch {
		case unicode.IsSpace(r):
			s.consumeWhitespace()
		case r == '-' && s.peekNext() == '-':
			s.consumeLineComment()
		case r == '/' && s.peekNext() == '*':
			if err := s.consumeBlockComment(); err != nil {
				return err
			}
		case r == '\'':
			if err := s.consumeStringLiteral(); err != nil {
				return err
			}
		case (r == 'x' || r == 'X') && s.peekNext() == '\'':
			if err := s.consumeBlobLiteral(); err != nil {
				return err
			}
		case r == '"' || r == '[' || r == '`':
			if err := s.consumeQuotedIdentifier(); err != nil {
				return err
			}
		case r == '$' && isDigit(s.peekNext()):
			s.consumeNumberedParam()
		case r == '?':
			s.consumeNumberedParam()
		case r == ':' && isIdentifierStart(s.peekNext()):
			s.consumeNamedParam()
		case isIdentifierStart(r):
			s.consumeIdentifier()
		case isDigit(r) || (r == '.' && isDigit(s.peekNext())):
			s.consumeNumber()
		case isSymbolRune(r):
			s.consumeSymbol()
		default:
			return s.errorf(s.line, s.column, "unexpected character %q", r)
		}
	}
	s.emitToken(KindEOF, "", s.line, s.column)
	return nil
}

func (s *Scanner) consumeWhitespace() {
	for {
		r := s.peek()
		if r == eofRune || !unicode.IsSpace(r) {
			return
		}
		s.advance()
	}
}

func (s *Scanner) consumeLineComment() {
	for {
		r := s.peek()
		if r == eofRune || r == '\n' || r == '\r' {
			return
		}
		s.advance()
	}
}

func (s *Scanner) consumeBlockComment() error {
	startLine, startCol := s.line, s.column
	s.advance() // '/'
	s.advance() // '*'
	for {
		if s.index >= len(s.src) {
			return s.errorf(startLine, startCol, "unterminated block comment")
		}
		if s.peek() == '*' && s.peekNext() == '/' {
			s.advance()
			s.advance()
			return nil
		}
		s.advance()
	}
}

func (s *Scanner) consumeStringLiteral() error {
	startIdx := s.index
	startLine, startCol := s.line, s.column
	s.advance() // opening quote
	for {
		if s.index >= len(s.src) {
			return s.errorf(startLine, startCol, "unterminated string literal")
		}
		r := s.advance()
		if r == '\'' {
			if s.peek() == '\'' {
				s.advance()
				continue
			}
			break
		}
	}
	s.emitToken(KindString, s.src[startIdx:s.index], startLine, startCol)
	return nil
}

func (s *Scanner) consumeBlobLiteral() error {
	startIdx := s.index
	startLine, startCol := s.line, s.column
	s.advance() // X or x
	s.advance() // opening quote
	for {
		if s.index >= len(s.src) {
			return s.errorf(startLine, startCol, "unterminated blob literal")
		}
		if s.advance() == '\'' {
			break
		}
	}
	text := s.src[startIdx:s.index]
	payload := text[2 : len(text)-1]
	if len(payload)%2 != 0 {
		return s.errorf(startLine, startCol, "blob literal must contain even number of hex digits")
	}
	for i := 0; i < len(payload); i++ {
		if !isHexDigit(rune(payload[i])) {
			return s.errorf(startLine, startCol, "blob literal contains non-hex digit")
		}
	}
	s.emitToken(KindBlob, "X'"+strings.ToUpper(payload)+"'", startLine, startCol)
	return nil
}

func (s *Scanner) consumeNumber() {
	startIdx := s.index
	startLine, startCol := s.line, s.column
	s.advanceDigits()
	if s.peek() == '.' {
		s.advance()
		s.advanceDigits()
	}
	next := s.peek()
	if next == 'e' || next == 'E' {
		s.advance()
		sign := s.peek()
		if sign == '+' || sign == '-' {
			s.advance()
		}
		s.advanceDigits()
	}
	s.emitToken(KindNumber, s.src[startIdx:s.index], startLine, startCol)
}

func (s *Scanner) consumeNumberedParam() {
	startIdx := s.index
	startLine, startCol := s.line, s.column
	s.advance() // '$' or '?'
	s.advanceDigits()
	s.emitToken(KindParam, s.src[startIdx:s.index], startLine, startCol)
}

func (s *Scanner) consumeNamedParam() {
	startIdx := s.index
	startLine, startCol := s.line, s.column
	s.advance() // ':'
	for isIdentifierPart(s.peek()) {
		s.advance()
	}
	s.emitToken(KindParam, s.src[startIdx:s.index], startLine, startCol)
}

func (s *Scanner) consumeIdentifier() {
	startIdx := s.index
	startLine, startCol := s.line, s.column
	s.advance()
	for isIdentifierPart(s.peek()) {
		s.advance()
	}
	text := s.src[startIdx:s.index]
	upper := strings.ToUpper(text)
	if IsKeyword(upper) {
		s.emitToken(KindKeyword, upper, startLine, startCol)
		return
	}
	s.emitToken(KindIdentifier, text, startLine, startCol)
}

func (s *Scanner) consumeQuotedIdentifier() error {
	startIdx := s.index
	startLine, startCol := s.line, s.column
	quote := s.peek()
	closing := quote
	if quote == '[' {
		closing = ']'
	}
	s.advance() // opening quote
	for {
		if s.index >= len(s.src) {
			return s.errorf(startLine, startCol, "unterminated quoted identifier")
		}
		r := s.advance()
		if r == closing {
			if s.peek() == closing {
				s.advance()
				continue
			}
			break
		}
	}
	text := s.src[startIdx:s.index]
	if len(text) == 2 {
		return s.errorf(startLine, startCol, "empty quoted identifier")
	}
	s.emitToken(KindIdentifier, text, startLine, startCol)
	return nil
}

func (s *Scanner) consumeSymbol() {
	startIdx := s.index
	startLine, startCol := s.line, s.column
	first := s.advance()
	next := s.peek()
	switch first {
	case '<':
		if next == '=' || next == '>' {
			s.advance()
		}
	case '>', '!':
		if next == '=' {
			s.advance()
		}
	case ':':
		if next == ':' {
			s.advance()
		}
	case '|':
		if next == '|' {
			s.advance()
		}
	}
	s.emitToken(KindSymbol, s.src[startIdx:s.index], startLine, startCol)
}

func (s *Scanner) advanceDigits() {
	for isDigit(s.peek()) {
		s.advance()
	}
}

func (s *Scanner) emitToken(kind Kind, text string, line, column int) {
	s.tokens = append(s.tokens, Token{
		Kind:   kind,
		Text:   text,
		Line:   line,
		Column: column,
	})
}

func (s *Scanner) peek() rune {
	if s.index >= len(s.src) {
		return eofRune
	}
	r, _ := utf8.DecodeRuneInString(s.src[s.index:])
	return r
}

func (s *Scanner) peekNext() rune {
	idx := s.index
	if idx >= len(s.src) {
		return eofRune
	}
	_, size := utf8.DecodeRuneInString(s.src[idx:])
	idx += size
	if idx >= len(s.src) {
		return eofRune
	}
	r, _ := utf8.DecodeRuneInString(s.src[idx:])
	return r
}

func (s *Scanner) advance() rune {
	if s.index >= len(s.src) {
		return eofRune
	}
	r, size := utf8.DecodeRuneInString(s.src[s.index:])
	s.index += size
	switch r {
	case '\r':
		if s.index < len(s.src) && s.src[s.index] == '\n' {
			s.index++
		}
		s.line++
		s.column = 1
		return '\n'
	case '\n':
		s.line++
		s.column = 1
	default:
		s.column++
	}
	return r
}

func (s *Scanner) errorf(line, column int, format string, args ...any) error {
	return &Error{
		Line:    line,
		Column:  column,
		Message: fmt.Sprintf(format, args...),
	}
}

func isIdentifierStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentifierPart(r rune) bool {
	return isIdentifierStart(r) || unicode.IsDigit(r) || r == '$'
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isSymbolRune(r rune) bool {
	switch r {
	case '(', ')', ',', ';', '.', '*', '=', '+', '-', '/', '%', '<', '>', '!', ':', '|', '&', '^', '~':
		return true
	}
	return false
}
