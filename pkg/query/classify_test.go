package query

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curlens/curlens/pkg/localcache"
)

func TestClassifyColumnTypo(t *testing.T) {
	c := &Classifier{Diagnostics: true}
	raw := errors.New("column colx not found, candidates: col_x, col_y")

	e := c.Classify(raw)
	require.NotNil(t, e)
	assert.Equal(t, KindUnknownColumn, e.Kind)
	assert.Contains(t, e.Message, "colx")
	assert.Contains(t, e.Suggestions, "col_x")
	assert.Contains(t, e.Suggestions, "col_y")
	assert.Equal(t, raw.Error(), e.Original)
}

func TestClassifySQLiteUnknownColumn(t *testing.T) {
	c := &Classifier{}
	e := c.Classify(errors.New("query execution failed: no such column: cots"))
	require.NotNil(t, e)
	assert.Equal(t, KindUnknownColumn, e.Kind)
	assert.Contains(t, e.Message, "cots")
	assert.Empty(t, e.Original, "raw text withheld without diagnostics")
}

func TestClassifyUnknownTable(t *testing.T) {
	c := &Classifier{KnownTables: []string{"CUR"}}
	e := c.Classify(errors.New("no such table: CURR"))
	require.NotNil(t, e)
	assert.Equal(t, KindUnknownTable, e.Kind)
	assert.Contains(t, e.Message, "CURR")
	require.NotEmpty(t, e.Suggestions)
	assert.Contains(t, e.Suggestions[0], "CUR")
}

func TestClassifySyntaxError(t *testing.T) {
	c := &Classifier{}
	e := c.Classify(errors.New(`syntax error near "FORM"`))
	require.NotNil(t, e)
	assert.Equal(t, KindSyntaxError, e.Kind)
	require.NotEmpty(t, e.Suggestions)
	assert.Contains(t, e.Suggestions[0], "FORM")
}

func TestClassifyAccessDenied(t *testing.T) {
	c := &Classifier{}
	e := c.Classify(errors.New("api error AccessDenied: Access Denied, status code: 403"))
	require.NotNil(t, e)
	assert.Equal(t, KindAccessDenied, e.Kind)
	assert.NotEmpty(t, e.Suggestions)
}

func TestClassifyNotFound(t *testing.T) {
	c := &Classifier{}
	e := c.Classify(errors.New("api error NoSuchBucket: the specified bucket does not exist"))
	require.NotNil(t, e)
	assert.Equal(t, KindNotFound, e.Kind)
}

func TestClassifyTransient(t *testing.T) {
	c := &Classifier{}
	for _, raw := range []string{
		"api error SlowDown: reduce request rate",
		"dial tcp: connection reset by peer",
		"request timed out",
	} {
		e := c.Classify(errors.New(raw))
		require.NotNil(t, e, raw)
		assert.Equal(t, KindTransient, e.Kind, raw)
	}
}

func TestClassifyCancellation(t *testing.T) {
	c := &Classifier{}
	assert.Equal(t, KindCancelled, c.Classify(context.Canceled).Kind)
	assert.Equal(t, KindCancelled, c.Classify(fmt.Errorf("query: %w", context.DeadlineExceeded)).Kind)
}

func TestClassifyLockConflict(t *testing.T) {
	c := &Classifier{}
	e := c.Classify(fmt.Errorf("%w (remove lock)", localcache.ErrLocked))
	require.NotNil(t, e)
	assert.Equal(t, KindConflict, e.Kind)
}

func TestClassifyInternalFallback(t *testing.T) {
	c := &Classifier{}
	e := c.Classify(errors.New("something entirely unexpected happened"))
	require.NotNil(t, e)
	assert.Equal(t, KindInternal, e.Kind)
	assert.NotEmpty(t, e.CorrelationID)
}

func TestClassifyPassThrough(t *testing.T) {
	c := &Classifier{}
	orig := NewError(KindInvalidQuery, "bad query")
	assert.Same(t, orig, c.Classify(fmt.Errorf("wrapped: %w", orig)))
	assert.Nil(t, c.Classify(nil))
}

func TestClassifyDeterminism(t *testing.T) {
	c := &Classifier{}
	raw := errors.New("no such column: cots")
	first := c.Classify(raw)
	second := c.Classify(raw)
	assert.Equal(t, first.Kind, second.Kind)
	assert.Equal(t, first.Message, second.Message)
	assert.Equal(t, first.Suggestions, second.Suggestions)
}
