package parser //nolint:revive // intentional: does not conflict with go/parser in internal package

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Span is the byte range [Start, End) of one lexical token.
type Span struct {
	Start int
	End   int
}

// Tokens lexes sql with the PostgreSQL scanner and returns the byte span of
// every token, comments included.
func Tokens(sql string) ([]Span, error) {
	result, err := pg_query.Scan(sql)
	if err != nil {
		return nil, fmt.Errorf("scanning SQL: %w", err)
	}

	spans := make([]Span, 0, len(result.GetTokens()))
	for _, tok := range result.GetTokens() {
		spans = append(spans, Span{Start: int(tok.GetStart()), End: int(tok.GetEnd())})
	}

	return spans, nil
}

// Segment is a run of SQL text. Quoted segments are string literals,
// quoted identifiers, dollar-quoted bodies or comments, and are copied
// verbatim by callers that rewrite the plain parts.
type Segment struct {
	Text   string
	Quoted bool
}

// Segments splits sql into plain and quoted runs. It understands '' and
// E'\'' escapes, double-quoted and backtick identifiers, $tag$ bodies and
// both comment forms. An unterminated quote extends to the end of the text.
// Unlike Tokens it never fails and accepts MySQL and SQLite lexical forms.
func Segments(sql string) []Segment {
	var segs []Segment

	plainStart := 0

	flush := func(end int) {
		if end > plainStart {
			segs = append(segs, Segment{Text: sql[plainStart:end]})
		}
	}

	for i := 0; i < len(sql); {
		end := quotedEnd(sql, i)
		if end == i {
			i++

			continue
		}

		flush(i)
		segs = append(segs, Segment{Text: sql[i:end], Quoted: true})
		i = end
		plainStart = i
	}

	flush(len(sql))

	return segs
}

// quotedEnd returns the end of the quoted run starting at i, or i when no
// quoted run starts there.
func quotedEnd(sql string, i int) int {
	switch c := sql[i]; {
	case c == '\'':
		escapes := i > 0 && (sql[i-1] == 'E' || sql[i-1] == 'e') && (i < 2 || !isIdentChar(sql[i-2]))
		return closeQuote(sql, i+1, '\'', escapes)
	case c == '"' || c == '`':
		return closeQuote(sql, i+1, c, false)
	case strings.HasPrefix(sql[i:], "--"):
		if nl := strings.IndexByte(sql[i:], '\n'); nl >= 0 {
			return i + nl + 1
		}

		return len(sql)
	case strings.HasPrefix(sql[i:], "/*"):
		return closeBlockComment(sql, i)
	case c == '$':
		return closeDollar(sql, i)
	default:
		return i
	}
}

func closeQuote(sql string, i int, quote byte, escapes bool) int {
	for i < len(sql) {
		switch {
		case escapes && sql[i] == '\\':
			i += 2
		case sql[i] == quote && i+1 < len(sql) && sql[i+1] == quote:
			i += 2
		case sql[i] == quote:
			return i + 1
		default:
			i++
		}
	}

	return len(sql)
}

func closeBlockComment(sql string, i int) int {
	depth := 0

	for i < len(sql) {
		switch {
		case strings.HasPrefix(sql[i:], "/*"):
			depth++
			i += 2
		case strings.HasPrefix(sql[i:], "*/"):
			depth--
			i += 2

			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}

	return len(sql)
}

// closeDollar handles $$...$$ and $tag$...$tag$. Positional parameters
// such as $1 are not quotes.
func closeDollar(sql string, i int) int {
	if i > 0 && isIdentChar(sql[i-1]) {
		return i
	}

	j := i + 1
	for j < len(sql) && isIdentChar(sql[j]) {
		if j == i+1 && sql[j] >= '0' && sql[j] <= '9' {
			return i
		}

		j++
	}

	if j >= len(sql) || sql[j] != '$' {
		return i
	}

	tag := sql[i : j+1]

	if k := strings.Index(sql[j+1:], tag); k >= 0 {
		return j + 1 + k + len(tag)
	}

	return len(sql)
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
