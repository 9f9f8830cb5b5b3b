// Package workspace manages the per-run working directories of pagerefresh.
//
// Every job run gets its own directory (e.g. pagerefresh-20251214-122336-1a2b3c4d)
// holding the fresh working copy and any scratch space the publishers need.
// Overlapping runs therefore never share a working copy. Directories are
// removed on Cleanup unless the manager was asked to retain them.
package workspace
