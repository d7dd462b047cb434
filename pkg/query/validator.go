package query

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultMaxRows caps the result size when the config does not.
	DefaultMaxRows = 50000
	// DefaultMaxQueryLen caps the query text length when the config does not.
	DefaultMaxQueryLen = 100000
)

// forbiddenTokens are statement keywords that make a query non-read.
var forbiddenTokens = map[string]bool{
	"insert": true, "update": true, "delete": true, "merge": true,
	"replace": true, "truncate": true, "drop": true, "create": true,
	"alter": true, "grant": true, "revoke": true, "attach": true,
	"detach": true, "pragma": true, "set": true, "copy": true,
	"vacuum": true, "call": true, "install": true, "load": true,
	"export": true, "import": true,
}

var tokenRe = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)

// Validator enforces the admission rules of the query plane: a single
// read-only statement, bounded length, bounded row limit.
type Validator struct {
	MaxQueryLen int
	MaxRows     int
}

// NewValidator creates a validator; non-positive caps fall back to defaults.
func NewValidator(maxQueryLen, maxRows int) *Validator {
	if maxQueryLen <= 0 {
		maxQueryLen = DefaultMaxQueryLen
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Validator{MaxQueryLen: maxQueryLen, MaxRows: maxRows}
}

// ValidateTarget checks the rules that apply to every target regardless of
// shape: length and row limit. Returns nil when admissible.
func (v *Validator) ValidateTarget(target string, rowLimit int) *Error {
	if len(target) > v.MaxQueryLen {
		return NewError(KindInvalidQuery,
			fmt.Sprintf("query length %d exceeds the configured cap of %d", len(target), v.MaxQueryLen),
			"shorten the query or raise the configured cap")
	}
	if rowLimit < 0 || rowLimit > v.MaxRows {
		return NewError(KindInvalidQuery,
			fmt.Sprintf("row limit must be within [1, %d]", v.MaxRows),
			fmt.Sprintf("request at most %d rows", v.MaxRows))
	}
	return nil
}

// ValidateSQL checks the statement-shape rules on resolved SQL text: exactly
// one top-level statement and a read-only shape. Returns nil when admissible.
func (v *Validator) ValidateSQL(sqlText string) *Error {
	stripped := stripLiteralsAndComments(sqlText)

	trimmed := strings.TrimSpace(stripped)
	if trimmed == "" {
		return NewError(KindInvalidQuery, "query is empty",
			"provide a single SELECT or WITH statement")
	}

	if n := statementCount(trimmed); n != 1 {
		return NewError(KindInvalidQuery,
			fmt.Sprintf("expected exactly one statement, found %d", n),
			"submit one SELECT or WITH statement at a time")
	}

	first := strings.ToLower(firstToken(trimmed))
	if first != "select" && first != "with" {
		return NewError(KindInvalidQuery,
			fmt.Sprintf("statement starts with %q, only read statements are admitted", first),
			"only read statements are admitted",
			"start the query with SELECT or WITH")
	}

	for _, tok := range tokenRe.FindAllString(strings.ToLower(trimmed), -1) {
		if forbiddenTokens[tok] {
			return NewError(KindInvalidQuery,
				fmt.Sprintf("statement contains forbidden token %q", strings.ToUpper(tok)),
				"only read statements are admitted")
		}
	}
	return nil
}

// EffectiveRowLimit resolves a requested limit against the configured cap.
// Zero means "use the cap".
func (v *Validator) EffectiveRowLimit(requested int) int {
	if requested <= 0 || requested > v.MaxRows {
		return v.MaxRows
	}
	return requested
}

// stripLiteralsAndComments blanks out string literals, quoted identifiers,
// line comments and block comments so token scanning cannot be fooled by
// quoted content.
func stripLiteralsAndComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		switch {
		case s[i] == '\'' || s[i] == '"':
			quote := s[i]
			j := i + 1
			for j < len(s) {
				if s[j] == quote {
					if j+1 < len(s) && s[j+1] == quote {
						j += 2
						continue
					}
					break
				}
				j++
			}
			b.WriteByte(' ')
			if j < len(s) {
				j++
			}
			i = j
		case strings.HasPrefix(s[i:], "--"):
			j := strings.IndexByte(s[i:], '\n')
			if j < 0 {
				i = len(s)
			} else {
				i += j
			}
		case strings.HasPrefix(s[i:], "/*"):
			j := strings.Index(s[i:], "*/")
			b.WriteByte(' ')
			if j < 0 {
				i = len(s)
			} else {
				i += j + 2
			}
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

// statementCount counts top-level statements separated by semicolons. A
// trailing semicolon does not count as a second statement.
func statementCount(stripped string) int {
	n := 0
	for _, part := range strings.Split(stripped, ";") {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return tokenRe.FindString(fields[0])
}
