package planner

import "strings"

// SQLQuery is one rendered statement with its positional arguments.
type SQLQuery struct {
	SQL  string
	Args []any
}

// quoteIdent backtick-quotes an identifier, doubling embedded backticks.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// escapeLike escapes LIKE metacharacters in a literal substring so user
// input cannot smuggle wildcards into a pattern.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
