package query

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/curlens/curlens/pkg/export"
	"github.com/curlens/curlens/pkg/localcache"
)

// SourceKind is the shape of a query target.
type SourceKind string

const (
	SourceDirectFile SourceKind = "direct-file"
	SourceStoredSQL  SourceKind = "stored-sql"
	SourceSQLString  SourceKind = "sql-string"
)

// Backing is the physical data set a query runs against.
type Backing string

const (
	BackingLocal      Backing = "local"
	BackingRemote     Backing = "remote"
	BackingDirectFile Backing = "direct-file"
)

// Resolution is a classified query target.
type Resolution struct {
	Kind SourceKind
	// SQL is the text to execute (empty for direct files).
	SQL string
	// FilePath is the direct file or the stored-SQL file that was loaded.
	FilePath string
	// Backing records where the logical table's data comes from.
	Backing Backing
}

var sqlLikeRe = regexp.MustCompile(`(?i)\b(select|with|from)\b`)

// Resolver classifies query targets and decides the physical backing of the
// logical table.
type Resolver struct {
	library     *Library          // nil when no query library is configured
	cache       *localcache.Cache // nil when no local root is configured
	preferLocal bool
	windowStart string
	windowEnd   string
}

// NewResolver creates a resolver. library and cache may be nil.
func NewResolver(library *Library, cache *localcache.Cache, preferLocal bool, windowStart, windowEnd string) *Resolver {
	return &Resolver{
		library:     library,
		cache:       cache,
		preferLocal: preferLocal,
		windowStart: windowStart,
		windowEnd:   windowEnd,
	}
}

// Resolve classifies a target. Classification order: direct columnar file,
// stored SQL under the library root, SQL string, otherwise InvalidQuery.
func (r *Resolver) Resolve(target string, forceRemote bool) (*Resolution, *Error) {
	trimmed := strings.TrimSpace(target)
	if trimmed == "" {
		return nil, NewError(KindInvalidQuery, "query target is empty",
			"provide SQL text, a stored-query path, or a columnar file path")
	}

	if strings.HasSuffix(trimmed, export.ParquetExt) {
		if info, err := os.Stat(trimmed); err == nil && !info.IsDir() {
			return &Resolution{Kind: SourceDirectFile, FilePath: trimmed, Backing: BackingDirectFile}, nil
		}
		// fall through: the path may still be SQL mentioning a file name
	}

	if r.library != nil {
		if path, ok := r.library.Resolve(trimmed); ok {
			text, err := r.library.Load(path)
			if err != nil {
				return nil, NewError(KindNotFound, fmt.Sprintf("stored query %s could not be read", path))
			}
			return &Resolution{
				Kind:     SourceStoredSQL,
				SQL:      text,
				FilePath: path,
				Backing:  r.backing(forceRemote),
			}, nil
		}
	}

	if sqlLikeRe.MatchString(trimmed) {
		return &Resolution{Kind: SourceSQLString, SQL: trimmed, Backing: r.backing(forceRemote)}, nil
	}

	return nil, NewError(KindInvalidQuery,
		fmt.Sprintf("target %q is neither SQL, a stored query, nor a columnar file", truncate(trimmed, 80)),
		"SQL must contain SELECT, WITH or FROM",
		"stored queries end in .sql and live under the query library root",
		"direct files end in .parquet and must exist")
}

// backing applies the physical-backing decision for SQL-based sources.
func (r *Resolver) backing(forceRemote bool) Backing {
	if forceRemote {
		return BackingRemote
	}
	if r.preferLocal && r.cache != nil && r.cache.IsUsable(r.windowStart, r.windowEnd) {
		return BackingLocal
	}
	return BackingRemote
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
