package query

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/curlens/curlens/pkg/localcache"
)

// Classifier maps raw engine and transport errors onto the closed taxonomy.
// Classification is a pure function of the error text, with typed sentinel
// checks (cancellation, lock conflict) applied first.
type Classifier struct {
	// KnownTables is suggested on UnknownTable.
	KnownTables []string
	// Diagnostics keeps the raw error text on the Original field.
	Diagnostics bool
}

// pattern is one row of the classification table. The first matching row
// wins; build turns the regex captures into the classified error.
type pattern struct {
	re    *regexp.Regexp
	build func(c *Classifier, m []string, raw string) *Error
}

var (
	reUnknownColumn = regexp.MustCompile(`(?i)(?:no such column:?\s*|column\s+)"?([A-Za-z0-9_.]+)"?(?:\s+not found|\s+does not exist)?`)
	reCandidates    = regexp.MustCompile(`(?i)candidates?:\s*([A-Za-z0-9_.,\s]+)`)
	reUnknownTable  = regexp.MustCompile(`(?i)(?:no such table:?\s*|table\s+)"?([A-Za-z0-9_.]+)"?(?:\s+not found|\s+does not exist)?`)
	reSyntaxNear    = regexp.MustCompile(`(?i)near\s+"([^"]+)"`)
)

var patterns = []pattern{
	{
		re: regexp.MustCompile(`(?i)no such column|column .* not found|column .* does not exist`),
		build: func(c *Classifier, _ []string, raw string) *Error {
			e := NewError(KindUnknownColumn, "the query references a column the table does not have")
			if m := reUnknownColumn.FindStringSubmatch(raw); m != nil {
				e.Message = fmt.Sprintf("unknown column %q", m[1])
			}
			if m := reCandidates.FindStringSubmatch(raw); m != nil {
				for _, cand := range strings.Split(m[1], ",") {
					if cand = strings.TrimSpace(cand); cand != "" {
						e.Suggestions = append(e.Suggestions, cand)
					}
				}
			}
			e.Suggestions = append(e.Suggestions, "list the table's columns to check the spelling")
			return e
		},
	},
	{
		re: regexp.MustCompile(`(?i)no such table|table .* not found|table .* does not exist`),
		build: func(c *Classifier, _ []string, raw string) *Error {
			e := NewError(KindUnknownTable, "the query references an unregistered table")
			if m := reUnknownTable.FindStringSubmatch(raw); m != nil {
				e.Message = fmt.Sprintf("unknown table %q", m[1])
			}
			if len(c.KnownTables) > 0 {
				e.Suggestions = append(e.Suggestions, "known tables: "+strings.Join(c.KnownTables, ", "))
			}
			return e
		},
	},
	{
		re: regexp.MustCompile(`(?i)syntax error|parse error|unexpected token`),
		build: func(_ *Classifier, _ []string, raw string) *Error {
			e := NewError(KindSyntaxError, "the SQL failed to parse")
			if m := reSyntaxNear.FindStringSubmatch(raw); m != nil {
				e.Suggestions = append(e.Suggestions, fmt.Sprintf("check the statement near %q", m[1]))
			}
			return e
		},
	},
	{
		re: regexp.MustCompile(`(?i)access denied|accessdenied|expired token|expiredtoken|invalidaccesskeyid|signaturedoesnotmatch|forbidden|status code: 403|not authorized`),
		build: func(_ *Classifier, _ []string, _ string) *Error {
			return NewError(KindAccessDenied, "the object store rejected the credentials",
				"check the credential bundle: static keys, then profile, then role, then ambient",
				"a local cache with prefer_local set avoids remote access entirely")
		},
	},
	{
		re: regexp.MustCompile(`(?i)nosuchbucket|nosuchkey|no such file|not found|status code: 404|does not exist`),
		build: func(_ *Classifier, _ []string, _ string) *Error {
			return NewError(KindNotFound, "a requested partition or file does not exist",
				"list the available partitions and compare with the requested window")
		},
	},
	{
		re: regexp.MustCompile(`(?i)slowdown|slow down|throttl|timeout|timed out|temporarily|connection reset|connection refused|broken pipe|status code: 5\d\d|internalerror|service unavailable`),
		build: func(_ *Classifier, _ []string, raw string) *Error {
			e := NewError(KindTransient, "a transient transport failure occurred", "retry the operation")
			if m := regexp.MustCompile(`(?i)retry.{0,10}after[:\s]+(\d+)`).FindStringSubmatch(raw); m != nil {
				e.Suggestions = append(e.Suggestions, fmt.Sprintf("retry after %s seconds", m[1]))
			}
			return e
		},
	},
}

// Classify maps err onto the taxonomy. A nil error yields nil. Already
// classified errors pass through unchanged.
func (c *Classifier) Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return c.finish(classified, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return c.finish(NewError(KindCancelled, "the query was cancelled before completion"), err)
	}
	if errors.Is(err, localcache.ErrLocked) {
		return c.finish(NewError(KindConflict, "another sync holds the local cache lock",
			"wait for the running sync to finish"), err)
	}

	raw := err.Error()
	for _, p := range patterns {
		if m := p.re.FindStringSubmatch(raw); m != nil {
			return c.finish(p.build(c, m, raw), err)
		}
	}

	e := NewError(KindInternal, "an internal error occurred")
	e.CorrelationID = uuid.NewString()
	e.Suggestions = []string{"report correlation id " + e.CorrelationID}
	return c.finish(e, err)
}

// finish attaches the raw diagnostic when diagnostics are on.
func (c *Classifier) finish(e *Error, raw error) *Error {
	if c.Diagnostics && e.Original == "" {
		e.Original = raw.Error()
	}
	return e
}
