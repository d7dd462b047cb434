// Package views materializes dependency-ordered SQL views over the base
// export table.
//
// A manifest is either a YAML document listing views with explicit
// dependency sets, or a directory tree whose level-numbered subdirectories
// contain view SQL files. Views form a DAG; cycles fail the run before any
// execution. Views inside one level are independent and run in parallel;
// each produces a parquet file under the output root and is registered in
// the run's engine session so higher levels can reference it as a table.
package views
