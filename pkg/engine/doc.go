// Package engine abstracts the SQL engine behind the query dispatcher.
//
// An Adapter binds logical table names to data files and executes read
// queries into a Frame. Adapters are not assumed safe for concurrent use;
// the dispatcher serializes access to a shared adapter and hands dedicated
// instances to materializer runs. All engine-specific behavior (file
// loading, dialect, capabilities) lives behind the Adapter interface.
package engine
