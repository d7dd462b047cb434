package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Type
		wantErr bool
	}{
		{name: "cur 2.0", input: "CUR2.0", want: CUR20},
		{name: "focus 1.0", input: "FOCUS1.0", want: Focus10},
		{name: "coh", input: "COH", want: COH},
		{name: "carbon", input: "CARBON_EMISSION", want: CarbonEmission},
		{name: "unknown", input: "CUR3.0", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLayoutTokens(t *testing.T) {
	tests := []struct {
		exportType  Type
		token       string
		granularity Granularity
	}{
		{Focus10, "billing_period", Monthly},
		{CUR20, "BILLING_PERIOD", Monthly},
		{COH, "date", Daily},
		{CarbonEmission, "BILLING_PERIOD", Monthly},
	}

	for _, tt := range tests {
		t.Run(string(tt.exportType), func(t *testing.T) {
			l, err := LayoutFor(tt.exportType)
			require.NoError(t, err)
			assert.Equal(t, tt.token, l.Token)
			assert.Equal(t, tt.granularity, l.Granularity)
		})
	}
}

func TestParseValueGranularity(t *testing.T) {
	monthly, err := LayoutFor(CUR20)
	require.NoError(t, err)
	daily, err := LayoutFor(COH)
	require.NoError(t, err)

	// Monthly layout rejects daily values and vice versa.
	_, err = monthly.ParseValue("2025-07-15")
	assert.Error(t, err)
	_, err = daily.ParseValue("2025-07")
	assert.Error(t, err)

	p, err := monthly.ParseValue("2025-07")
	require.NoError(t, err)
	assert.Equal(t, "2025-07", p.Value)
	assert.Equal(t, "BILLING_PERIOD=2025-07", p.DirName())

	p, err = daily.ParseValue("2025-07-15")
	require.NoError(t, err)
	assert.Equal(t, "date=2025-07-15", p.DirName())
}

// Round-trip law: format(parse(v)) == v for every valid value.
func TestParseFormatRoundTrip(t *testing.T) {
	monthly, _ := LayoutFor(CUR20)
	daily, _ := LayoutFor(COH)

	for _, v := range []string{"2024-01", "2024-12", "2025-06"} {
		p, err := monthly.ParseValue(v)
		require.NoError(t, err)
		assert.Equal(t, v, monthly.FormatValue(p))
	}
	for _, v := range []string{"2024-01-01", "2024-02-29", "2025-12-31"} {
		p, err := daily.ParseValue(v)
		require.NoError(t, err)
		assert.Equal(t, v, daily.FormatValue(p))
	}
}

func TestParseDirName(t *testing.T) {
	l, _ := LayoutFor(CUR20)

	p, err := l.ParseDirName("BILLING_PERIOD=2025-05")
	require.NoError(t, err)
	assert.Equal(t, "2025-05", p.Value)

	// Token is case-sensitive.
	_, err = l.ParseDirName("billing_period=2025-05")
	assert.Error(t, err)

	_, err = l.ParseDirName("BILLING_PERIOD=not-a-date")
	assert.Error(t, err)
}

func TestWindow(t *testing.T) {
	monthly, _ := LayoutFor(CUR20)
	daily, _ := LayoutFor(COH)

	t.Run("monthly span", func(t *testing.T) {
		parts, err := monthly.Window("2025-05", "2025-07")
		require.NoError(t, err)
		values := partitionValues(parts)
		assert.Equal(t, []string{"2025-05", "2025-06", "2025-07"}, values)
	})

	t.Run("monthly across year boundary", func(t *testing.T) {
		parts, err := monthly.Window("2024-11", "2025-02")
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-11", "2024-12", "2025-01", "2025-02"}, partitionValues(parts))
	})

	t.Run("daily inclusive both ends", func(t *testing.T) {
		parts, err := daily.Window("2025-02-27", "2025-03-02")
		require.NoError(t, err)
		assert.Equal(t, []string{"2025-02-27", "2025-02-28", "2025-03-01", "2025-03-02"}, partitionValues(parts))
	})

	t.Run("start after end is empty, not an error", func(t *testing.T) {
		parts, err := monthly.Window("2025-08", "2025-05")
		require.NoError(t, err)
		assert.Empty(t, parts)
		assert.NotNil(t, parts)
	})

	t.Run("open window returns nil", func(t *testing.T) {
		parts, err := monthly.Window("", "2025-05")
		require.NoError(t, err)
		assert.Nil(t, parts)
	})

	t.Run("granularity mismatch is an error", func(t *testing.T) {
		_, err := monthly.Window("2025-05-01", "2025-07-01")
		assert.Error(t, err)
	})
}

func TestInWindow(t *testing.T) {
	l, _ := LayoutFor(CUR20)

	tests := []struct {
		name       string
		value      string
		start, end string
		want       bool
	}{
		{"inside", "2025-06", "2025-05", "2025-07", true},
		{"at start", "2025-05", "2025-05", "2025-07", true},
		{"at end", "2025-07", "2025-05", "2025-07", true},
		{"before", "2025-04", "2025-05", "2025-07", false},
		{"after", "2025-08", "2025-05", "2025-07", false},
		{"open start", "2020-01", "", "2025-07", true},
		{"open end", "2030-01", "2025-05", "", true},
		{"fully open", "2025-06", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.InWindow(tt.value, tt.start, tt.end))
		})
	}
}

func TestAcceptsExtension(t *testing.T) {
	l, _ := LayoutFor(CUR20)

	assert.True(t, l.AcceptsExtension("part-00000.parquet"))
	assert.True(t, l.AcceptsExtension("data.csv.gz"))
	assert.False(t, l.AcceptsExtension("manifest.json"))
	assert.False(t, l.AcceptsExtension("readme.txt"))
}

func TestFormatOf(t *testing.T) {
	f, err := FormatOf("x.parquet")
	require.NoError(t, err)
	assert.Equal(t, FormatParquet, f)

	f, err = FormatOf("x.csv.gz")
	require.NoError(t, err)
	assert.Equal(t, FormatGzipCSV, f)

	_, err = FormatOf("x.json")
	assert.Error(t, err)
}

func partitionValues(parts []Partition) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, p.Value)
	}
	return out
}
