// Package discovery enumerates export partitions and data files in the
// remote object store.
//
// Partitions are the immediate child directories of the export prefix whose
// names parse as "<token>=<value>" for the configured layout. Directories
// that do not parse are skipped and counted, never fatal. Listings are
// returned in ascending (partition, file name) order so downstream
// registration is deterministic.
package discovery
