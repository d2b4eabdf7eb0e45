// Package chaos corrupts SQL text for robustness tests.
//
// Corrupted statements are fed to the classifier, normalizer and write-target
// extraction, which must never panic and must treat anything they cannot
// understand as not cacheable.
package chaos

import (
	"math/rand/v2"
	"strings"
	"unicode/utf8"
)

// Mutation is one kind of corruption.
type Mutation int

const (
	ByteFlip Mutation = iota
	ByteDelete
	ByteInsert
	Truncation
	Utf8Corrupt
	TokenDrop
	TokenDuplicate
	TokenSwap
	KeywordReplace
	ParenUnbalance
	QuoteUnterminate
	CommentInject
	numMutations
)

var mutationNames = [...]string{
	ByteFlip:         "byte-flip",
	ByteDelete:       "byte-delete",
	ByteInsert:       "byte-insert",
	Truncation:       "truncation",
	Utf8Corrupt:      "utf8-corrupt",
	TokenDrop:        "token-drop",
	TokenDuplicate:   "token-duplicate",
	TokenSwap:        "token-swap",
	KeywordReplace:   "keyword-replace",
	ParenUnbalance:   "paren-unbalance",
	QuoteUnterminate: "quote-unterminate",
	CommentInject:    "comment-inject",
}

func (m Mutation) String() string {
	if m >= 0 && m < numMutations {
		return mutationNames[m]
	}
	return "unknown"
}

// Mutations lists every mutation.
func Mutations() []Mutation {
	out := make([]Mutation, numMutations)
	for i := range out {
		out[i] = Mutation(i)
	}
	return out
}

// keywords are swapped into statements by KeywordReplace.
var keywords = []string{
	"SELECT", "FROM", "WHERE", "JOIN", "ON", "GROUP", "BY", "ORDER", "LIMIT",
	"UNION", "WITH", "AS", "DISTINCT", "INSERT", "UPDATE", "DELETE", "SET",
	"VALUES", "INTO", "AND", "OR", "NOT", "NULL", "CASE", "END", "OVER", "(",
	")", ",", "*", "?", ":", "'",
}

// Corruptor applies random mutations. It is deterministic for a given seed
// and not safe for concurrent use.
type Corruptor struct {
	rng *rand.Rand
}

// NewCorruptor creates a Corruptor seeded with seed.
func NewCorruptor(seed uint64) *Corruptor {
	return &Corruptor{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Corrupt applies one random mutation to sql.
func (c *Corruptor) Corrupt(sql string) string {
	return c.Apply(Mutation(c.rng.IntN(int(numMutations))), sql)
}

// CorruptN applies n random mutations in sequence.
func (c *Corruptor) CorruptN(sql string, n int) string {
	for range n {
		sql = c.Corrupt(sql)
	}
	return sql
}

// Corpus returns count corrupted variants of sql with one to five mutations
// each.
func (c *Corruptor) Corpus(sql string, count int) []string {
	corpus := make([]string, count)
	for i := range corpus {
		corpus[i] = c.CorruptN(sql, c.rng.IntN(5)+1)
	}
	return corpus
}

// Apply applies m to sql.
func (c *Corruptor) Apply(m Mutation, sql string) string {
	if sql == "" {
		return c.randomBytes()
	}
	switch m {
	case ByteFlip:
		b := []byte(sql)
		for range c.rng.IntN(3) + 1 {
			b[c.rng.IntN(len(b))] ^= byte(1 << c.rng.IntN(8))
		}
		return string(b)
	case ByteDelete:
		i := c.rng.IntN(len(sql))
		return sql[:i] + sql[i+1:]
	case ByteInsert:
		i := c.rng.IntN(len(sql) + 1)
		return sql[:i] + string([]byte{byte(c.rng.IntN(256))}) + sql[i:]
	case Truncation:
		if len(sql) <= 1 {
			return ""
		}
		return sql[:c.rng.IntN(len(sql)-1)+1]
	case Utf8Corrupt:
		b := []byte(sql)
		i := c.rng.IntN(len(b))
		b[i] = 0xC0 | byte(c.rng.IntN(0x20))
		if utf8.Valid(b) {
			b = append(b, 0xFF)
		}
		return string(b)
	case TokenDrop, TokenDuplicate, TokenSwap, KeywordReplace:
		return c.tokens(m, sql)
	case ParenUnbalance:
		if c.rng.IntN(2) == 0 {
			if i := strings.LastIndexByte(sql, ')'); i >= 0 {
				return sql[:i] + sql[i+1:]
			}
		}
		i := c.rng.IntN(len(sql) + 1)
		return sql[:i] + "(" + sql[i:]
	case QuoteUnterminate:
		if i := strings.IndexByte(sql, '\''); i >= 0 {
			return sql[:i] + sql[i+1:]
		}
		i := c.rng.IntN(len(sql) + 1)
		return sql[:i] + "'" + sql[i:]
	case CommentInject:
		i := c.rng.IntN(len(sql) + 1)
		opener := []string{"/*", "--", "*/"}[c.rng.IntN(3)]
		return sql[:i] + opener + sql[i:]
	}
	return sql
}

// tokens applies a whitespace-token mutation.
func (c *Corruptor) tokens(m Mutation, sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return sql
	}
	i := c.rng.IntN(len(fields))
	switch m {
	case TokenDrop:
		fields = append(fields[:i], fields[i+1:]...)
	case TokenDuplicate:
		fields = append(fields[:i+1], fields[i:]...)
	case TokenSwap:
		j := c.rng.IntN(len(fields))
		fields[i], fields[j] = fields[j], fields[i]
	case KeywordReplace:
		fields[i] = keywords[c.rng.IntN(len(keywords))]
	}
	return strings.Join(fields, " ")
}

func (c *Corruptor) randomBytes() string {
	b := make([]byte, c.rng.IntN(10)+1)
	for i := range b {
		b[i] = byte(c.rng.IntN(256))
	}
	return string(b)
}
