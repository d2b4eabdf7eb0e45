package tokenizer

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind represents the classification of a scanned token.
type Kind int

const (
	// KindInvalid represents an unrecognized or placeholder token.
	KindInvalid Kind = iota
	// KindIdentifier represents bare or quoted identifiers.
	KindIdentifier
	// KindKeyword represents reserved SQL keywords normalized to uppercase.
	KindKeyword
	// KindNumber represents numeric literals.
	KindNumber
	// KindString represents string literals using single quotes.
	KindString
	// KindBlob represents blob literals of the form X'...'.
	KindBlob
	// KindSymbol represents punctuation or operator symbols.
	KindSymbol
	// KindParam represents bind placeholders: ?, ?N, $N and :name.
	KindParam
	// KindEOF marks the logical end of the input.
	KindEOF
)

// Token is a unit emitted by the scanner with positional metadata.
type Token struct {
	Kind   Kind
	Text   string
	Line   int
	Column int
}

// Is reports whether the token is the given keyword or symbol.
func (t Token) Is(text string) bool {
	switch t.Kind {
	case KindKeyword, KindSymbol:
		return t.Text == text
	}
	return false
}

// IsWord reports whether the token is an unquoted identifier or keyword spelled word,
// ignoring case. Non-reserved words such as ROWS or PARTITION are matched this way.
func (t Token) IsWord(word string) bool {
	switch t.Kind {
	case KindKeyword:
		return t.Text == word
	case KindIdentifier:
		return !t.Quoted() && strings.EqualFold(t.Text, word)
	}
	return false
}

// Quoted reports whether an identifier token was written with delimiters.
func (t Token) Quoted() bool {
	if t.Kind != KindIdentifier || t.Text == "" {
		return false
	}
	switch t.Text[0] {
	case '"', '`', '[':
		return true
	}
	return false
}

// Error describes a positional scanning error.
type Error struct {
	Line    int
	Column  int
	Message string
}

// Error returns the printable representation of the tokenizer error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// IsKeyword reports whether the provided string is a reserved keyword.
func IsKeyword(s string) bool {
	if s == "" {
		return false
	}
	_, ok := keywords[strings.ToUpper(s)]
	return ok
}

// NormalizeIdentifier removes optional quoting from identifiers while unescaping content.
func NormalizeIdentifier(text string) string {
	if len(text) < 2 {
		return text
	}
	switch text[0] {
	case '"':
		if text[len(text)-1] != '"' {
			return text
		}
		return strings.ReplaceAll(text[1:len(text)-1], `""`, `"`)
	case '[':
		if text[len(text)-1] != ']' {
			return text
		}
		return strings.ReplaceAll(text[1:len(text)-1], "]]", "]")
	case '`':
		if text[len(text)-1] != '`' {
			return text
		}
		return strings.ReplaceAll(text[1:len(text)-1], "``", "`")
	default:
		return text
	}
}

// CanonicalIdentifier folds an identifier the way an unquoted name resolves:
// unquoted names are upper-cased, quoted names keep their spelling.
func CanonicalIdentifier(text string) string {
	if text == "" {
		return ""
	}
	switch text[0] {
	case '"', '`', '[':
		return NormalizeIdentifier(text)
	}
	return strings.ToUpper(text)
}

// keywords are reserved: they never scan as identifiers.
var keywords = map[string]struct{}{
	"ALL":       {},
	"ALTER":     {},
	"AND":       {},
	"AS":        {},
	"ASC":       {},
	"BETWEEN":   {},
	"BY":        {},
	"CASE":      {},
	"CAST":      {},
	"CREATE":    {},
	"CROSS":     {},
	"DELETE":    {},
	"DESC":      {},
	"DISTINCT":  {},
	"DROP":      {},
	"ELSE":      {},
	"END":       {},
	"ESCAPE":    {},
	"EXCEPT":    {},
	"EXISTS":    {},
	"FALSE":     {},
	"FETCH":     {},
	"FROM":      {},
	"FULL":      {},
	"GROUP":     {},
	"HAVING":    {},
	"IN":        {},
	"INNER":     {},
	"INSERT":    {},
	"INTERSECT": {},
	"INTO":      {},
	"IS":        {},
	"JOIN":      {},
	"LATERAL":   {},
	"LEFT":      {},
	"LIKE":      {},
	"LIMIT":     {},
	"MERGE":     {},
	"MINUS":     {},
	"NATURAL":   {},
	"NOT":       {},
	"NULL":      {},
	"OFFSET":    {},
	"ON":        {},
	"OR":        {},
	"ORDER":     {},
	"OUTER":     {},
	"OVER":      {},
	"RIGHT":     {},
	"SELECT":    {},
	"SET":       {},
	"TABLE":     {},
	"THEN":      {},
	"TRUE":      {},
	"UNION":     {},
	"UPDATE":    {},
	"USING":     {},
	"VALUES":    {},
	"WHEN":      {},
	"WHERE":     {},
	"WINDOW":    {},
	"WITH":      {},
}

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "Invalid"
	case KindIdentifier:
		return "Identifier"
	case KindKeyword:
		return "Keyword"
	case KindNumber:
		return "Number"
	case KindString:
		return "String"
	case KindBlob:
		return "Blob"
	case KindSymbol:
		return "Symbol"
	case KindParam:
		return "Param"
	case KindEOF:
		return "EOF"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}
