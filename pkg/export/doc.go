// Package export defines the closed set of AWS Data Export types and the
// partition layout each one implies: the partition key token used in object
// keys, the partition granularity, the value format, and window generation
// over a date range.
//
// Partition values are canonical strings: YYYY-MM for monthly exports and
// YYYY-MM-DD for daily exports. Lexicographic order of these strings
// coincides with chronological order, which the discovery and cache layers
// rely on.
package export
