package writes

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// sqlLexer splits statements into the tokens the grammar needs. Anything that
// is not whitespace, a comment, a literal, a name or a parenthesis becomes a
// one-rune Punct token, so lexing never fails.
var sqlLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "Comment", Pattern: `--[^\n]*`},
		{Name: "BlockComment", Pattern: `/\*[\s\S]*?\*/`},
		{Name: "String", Pattern: `[EeNnXx]?'(?:[^']|'')*'`},
		{Name: "QuotedIdent", Pattern: "\"(?:[^\"]|\"\")*\"|`[^`]*`|\\[[^\\]]*\\]"},
		{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]+)?(?:[eE][-+]?[0-9]+)?`},
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_$]*`},
		{Name: "Param", Pattern: `[:@$][a-zA-Z0-9_]+|\?`},
		{Name: "Open", Pattern: `\(`},
		{Name: "Close", Pattern: `\)`},
		{Name: "Punct", Pattern: `[^\s]`},
	},
})

var scriptParser = participle.MustBuild[script](
	participle.Lexer(sqlLexer),
	participle.Elide("Whitespace", "Comment", "BlockComment"),
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(4),
)

// script is a sequence of statements separated by semicolons.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type script struct {
	Statements []*statement `@@? ( ";" @@? )*`
}

// statement captures the relation a write modifies. Everything after the
// target is collected into Tail and ignored.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type statement struct {
	With        *with      `@@?`
	Insert      *name      `( ( "INSERT" | "REPLACE" | "UPSERT" ) ( "OR" Ident | "IGNORE" )? "INTO"? @@`
	Update      *name      `| "UPDATE" ( "OR" Ident )? "ONLY"? @@`
	Delete      *name      `| "DELETE" "FROM"? "ONLY"? @@`
	Merge       *name      `| "MERGE" "INTO"? @@`
	Truncate    []*name    `| "TRUNCATE" "TABLE"? "ONLY"? @@ ( "," "ONLY"? @@ )*`
	CreateTable *name      `| "CREATE" ( "OR" "REPLACE" )? ( "GLOBAL" | "LOCAL" )? ( "TEMPORARY" | "TEMP" | "UNLOGGED" )? "TABLE" ( "IF" "NOT" "EXISTS" )? @@`
	CreateIndex *name      `| "CREATE" "UNIQUE"? "INDEX" ( ~"ON" )* "ON" "ONLY"? @@`
	DropIndex   *dropIndex `| "DROP" "INDEX" @@`
	DropTable   []*name    `| "DROP" "TABLE" ( "IF" "EXISTS" )? @@ ( "," @@ )*`
	AlterTable  *name      `| "ALTER" "TABLE" ( "IF" "EXISTS" )? "ONLY"? @@`
	Read        string     `| @( "SELECT" | "VALUES" | "TABLE" | "SHOW" | "EXPLAIN" | "DESCRIBE" | "PRAGMA" | "BEGIN" | "START" | "COMMIT" | "END" | "ROLLBACK" | "SAVEPOINT" | "RELEASE" | "SET" | "ANALYZE" | "VACUUM" ) )`
	Tail        []string   `@( ~";" )*`
}

//nolint:govet // Participle struct tags are DSL, not reflect tags
type with struct {
	Recursive bool   `"WITH" @"RECURSIVE"?`
	CTEs      []*cte `@@ ( "," @@ )*`
}

//nolint:govet // Participle struct tags are DSL, not reflect tags
type cte struct {
	Name    string `@( Ident | QuotedIdent )`
	Columns *group `@@?`
	Body    *group `"AS" ( "NOT"? "MATERIALIZED" )? @@`
}

// group is a balanced parenthesized token run.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type group struct {
	Items []*groupItem `Open @@* Close`
}

//nolint:govet // Participle struct tags are DSL, not reflect tags
type groupItem struct {
	Group *group `  @@`
	Token string `| @( Ident | QuotedIdent | String | Number | Param | Punct )`
}

//nolint:govet // Participle struct tags are DSL, not reflect tags
type dropIndex struct {
	Exists bool  `( "IF" @"EXISTS" )?`
	Index  *name `@@`
	Table  *name `( "ON" @@ )?`
}

// name is a possibly qualified relation name.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type name struct {
	Parts []string `@( Ident | QuotedIdent ) ( "." @( Ident | QuotedIdent ) )*`
}

// relation returns the unqualified, unquoted, upper-cased name.
func (n *name) relation() string {
	last := n.Parts[len(n.Parts)-1]
	if len(last) >= 2 {
		switch last[0] {
		case '"':
			last = strings.ReplaceAll(last[1:len(last)-1], `""`, `"`)
		case '`', '[':
			last = last[1 : len(last)-1]
		}
	}
	return strings.ToUpper(last)
}

// text reassembles the tokens inside g, without its own parentheses.
func (g *group) text() string {
	var sb strings.Builder
	g.write(&sb)
	return sb.String()
}

func (g *group) write(sb *strings.Builder) {
	for i, item := range g.Items {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if item.Group != nil {
			sb.WriteByte('(')
			item.Group.write(sb)
			sb.WriteByte(')')
			continue
		}
		sb.WriteString(item.Token)
	}
}

// leading returns the first token of g upper-cased, or "".
func (g *group) leading() string {
	if len(g.Items) == 0 || g.Items[0].Group != nil {
		return ""
	}
	return strings.ToUpper(g.Items[0].Token)
}
