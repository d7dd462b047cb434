// Package config loads curlens configuration from CURLENS_* environment
// variables. The resulting Config, in particular the data-source descriptor,
// is immutable after LoadConfig returns.
package config
