package classifier

import (
	"strings"

	"github.com/electwix/querycache/internal/sqlparse/ast"
)

// volatileFunctions return a different value on each call or depend on
// session state rather than table contents.
var volatileFunctions = map[string]struct{}{
	"CHANGES":               {},
	"CLOCK_TIMESTAMP":       {},
	"CURDATE":               {},
	"CURRENT_DATE":          {},
	"CURRENT_TIME":          {},
	"CURRENT_TIMESTAMP":     {},
	"CURRENT_USER":          {},
	"CURRVAL":               {},
	"CURTIME":               {},
	"GEN_RANDOM_UUID":       {},
	"GETDATE":               {},
	"GETUTCDATE":            {},
	"LASTVAL":               {},
	"LAST_INSERT_ID":        {},
	"LAST_INSERT_ROWID":     {},
	"LOCALTIME":             {},
	"LOCALTIMESTAMP":        {},
	"NEWID":                 {},
	"NEXTVAL":               {},
	"NOW":                   {},
	"RAND":                  {},
	"RANDOM":                {},
	"RANDOMBLOB":            {},
	"SETVAL":                {},
	"STATEMENT_TIMESTAMP":   {},
	"SYSDATE":               {},
	"SYSDATETIME":           {},
	"TIMEOFDAY":             {},
	"TOTAL_CHANGES":         {},
	"TRANSACTION_TIMESTAMP": {},
	"UNIX_TIMESTAMP":        {},
	"UTC_DATE":              {},
	"UTC_TIME":              {},
	"UTC_TIMESTAMP":         {},
	"UUID":                  {},
	"UUID_GENERATE_V4":      {},
}

// niladicFunctions are called without parentheses and parse as columns.
var niladicFunctions = map[string]struct{}{
	"CURRENT_DATE":      {},
	"CURRENT_ROLE":      {},
	"CURRENT_TIME":      {},
	"CURRENT_TIMESTAMP": {},
	"CURRENT_USER":      {},
	"LOCALTIME":         {},
	"LOCALTIMESTAMP":    {},
	"SESSION_USER":      {},
	"SYSDATE":           {},
	"SYSTIMESTAMP":      {},
}

// dateFunctions default to the current moment when the time value is omitted
// or given as 'now'. The value is the index of the time value argument.
var dateFunctions = map[string]int{
	"DATE":      0,
	"DATETIME":  0,
	"JULIANDAY": 0,
	"STRFTIME":  1,
	"TIME":      0,
	"UNIXEPOCH": 0,
}

func isNondeterministicCall(call *ast.FuncCall) bool {
	name := strings.ToUpper(call.FuncName())
	if _, ok := volatileFunctions[name]; ok {
		return true
	}
	idx, ok := dateFunctions[name]
	if !ok || call.Star {
		return false
	}
	if len(call.Args) <= idx {
		return true
	}
	for _, arg := range call.Args {
		if lit, ok := arg.(*ast.Literal); ok && lit.Kind == ast.LiteralString && isRelativeTimeLiteral(lit.Text) {
			return true
		}
	}
	return false
}

// isRelativeTimeLiteral reports whether a quoted literal names a moment
// relative to the current time.
func isRelativeTimeLiteral(text string) bool {
	switch strings.ToLower(strings.Trim(text, "'")) {
	case "now", "today", "tomorrow", "yesterday":
		return true
	}
	return false
}

func isTemporalType(typ string) bool {
	upper := strings.ToUpper(typ)
	return strings.Contains(upper, "DATE") || strings.Contains(upper, "TIME")
}
