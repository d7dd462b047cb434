// Package localcache manages the on-disk mirror of a remote export.
//
// The layout under the local root mirrors the remote key suffix exactly:
// <root>/<bucket>/<prefix>/<token>=<value>/<file>. Partition directory names
// keep the remote token case. Two hidden files live at the root: the
// advisory lock taken by sync runs and the manifest recording the file set
// the last completed sync observed. Completeness of a partition is judged
// against that manifest.
package localcache
