// Package query is the unified query plane: target resolution, safety
// validation, dispatch over an engine adapter, and classification of raw
// engine errors into a closed taxonomy.
//
// A query target is one of a SQL string, a stored-SQL path under the query
// library root, or a direct columnar file path. The dispatcher serializes
// access to its shared adapter; materializer runs obtain a dedicated
// session whose registrations are discarded on close.
package query
