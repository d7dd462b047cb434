package engine

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFrame() *Frame {
	return &Frame{
		Columns: []string{"service", "cost", "usage", "tagged"},
		Rows: [][]any{
			{"ec2", 12.5, int64(100), true},
			{"s3", 0.75, int64(3), false},
			{"rds", nil, int64(0), nil},
		},
	}
}

func TestEncodeJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleFrame().EncodeJSON(&buf))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "ec2", rows[0]["service"])
	assert.Equal(t, 12.5, rows[0]["cost"])
	assert.Equal(t, true, rows[0]["tagged"])
	assert.Nil(t, rows[2]["cost"])
}

func TestEncodeCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleFrame().EncodeCSV(&buf))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Equal(t, "service,cost,usage,tagged", string(lines[0]))
	assert.Equal(t, "ec2,12.5,100,true", string(lines[1]))
	assert.Equal(t, "rds,,0,", string(lines[3]), "nil cells are empty")
}

func TestEncodeEmptyFrame(t *testing.T) {
	f := &Frame{Columns: []string{"a"}}

	var jsonBuf bytes.Buffer
	require.NoError(t, f.EncodeJSON(&jsonBuf))
	assert.JSONEq(t, "[]", jsonBuf.String())

	var csvBuf bytes.Buffer
	require.NoError(t, f.EncodeCSV(&csvBuf))
	assert.Equal(t, "a\n", csvBuf.String())

	assert.Zero(t, f.RowCount())
}
