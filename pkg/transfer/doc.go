// Package transfer syncs remote export files into the local cache mirror.
//
// A sync run takes the cache's advisory lock, reclaims staged leftovers from
// interrupted runs, then downloads the discovered file set with a bounded
// worker pool. Files matching the remote size are skipped; size mismatches
// are overwritten. Every file is staged under a temporary name and renamed
// into place, so readers never observe partial content under a final name.
// A failed file is recorded in the report and does not abort the run.
package transfer
