package export

import (
	"fmt"
	"strings"
)

// Type identifies an AWS Data Export schema family.
type Type string

const (
	// Focus10 is the FOCUS 1.0 export (monthly, lowercase partition token).
	Focus10 Type = "FOCUS1.0"
	// CUR20 is the Cost and Usage Report 2.0 export (monthly).
	CUR20 Type = "CUR2.0"
	// COH is the Cost Optimization Hub export (daily).
	COH Type = "COH"
	// CarbonEmission is the carbon emissions export (monthly).
	CarbonEmission Type = "CARBON_EMISSION"
)

// Granularity is the partition period of an export type.
type Granularity string

const (
	Monthly Granularity = "monthly"
	Daily   Granularity = "daily"
)

// ContentFormat identifies the physical encoding of a data file.
type ContentFormat string

const (
	// FormatParquet is a columnar parquet file.
	FormatParquet ContentFormat = "parquet"
	// FormatGzipCSV is a gzip-compressed CSV file.
	FormatGzipCSV ContentFormat = "gzip-csv"
)

// ParquetExt is the columnar file extension accepted in partitions and used
// for materialized view outputs.
const ParquetExt = ".parquet"

// GzipExt is the compressed-text file extension accepted in partitions.
const GzipExt = ".gz"

// SQLExt is the stored-query file extension recognized by the source resolver.
const SQLExt = ".sql"

// DefaultTableName is the logical table name bound to the export's file set
// when the data-source config does not override it.
const DefaultTableName = "CUR"

// Layout describes the partition scheme of an export type.
type Layout struct {
	ExportType  Type
	Token       string // partition key token as it appears in object keys, case-sensitive
	Granularity Granularity
	Extensions  []string // accepted content file extensions
}

var layouts = map[Type]Layout{
	Focus10:        {ExportType: Focus10, Token: "billing_period", Granularity: Monthly, Extensions: []string{ParquetExt, GzipExt}},
	CUR20:          {ExportType: CUR20, Token: "BILLING_PERIOD", Granularity: Monthly, Extensions: []string{ParquetExt, GzipExt}},
	COH:            {ExportType: COH, Token: "date", Granularity: Daily, Extensions: []string{ParquetExt, GzipExt}},
	CarbonEmission: {ExportType: CarbonEmission, Token: "BILLING_PERIOD", Granularity: Monthly, Extensions: []string{ParquetExt, GzipExt}},
}

// ParseType parses an export type identifier.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if _, ok := layouts[t]; !ok {
		return "", fmt.Errorf("invalid export type %q (must be one of: %s)", s, strings.Join(TypeNames(), ", "))
	}
	return t, nil
}

// TypeNames returns the valid export type identifiers in a stable order.
func TypeNames() []string {
	return []string{string(Focus10), string(CUR20), string(COH), string(CarbonEmission)}
}

// LayoutFor returns the partition layout for an export type.
func LayoutFor(t Type) (Layout, error) {
	l, ok := layouts[t]
	if !ok {
		return Layout{}, fmt.Errorf("invalid export type %q", t)
	}
	return l, nil
}

// AcceptsExtension reports whether a file name carries one of the layout's
// accepted content extensions.
func (l Layout) AcceptsExtension(name string) bool {
	for _, ext := range l.Extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// FormatOf returns the content format implied by a file name.
func FormatOf(name string) (ContentFormat, error) {
	switch {
	case strings.HasSuffix(name, ParquetExt):
		return FormatParquet, nil
	case strings.HasSuffix(name, GzipExt):
		return FormatGzipCSV, nil
	default:
		return "", fmt.Errorf("unrecognized content extension in %q", name)
	}
}
