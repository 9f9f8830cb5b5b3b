// Package pipeline implements the refresh-and-publish job.
//
// A run executes six steps in order, each a precondition for the next:
//
//	checkout -> toolchain -> dependencies -> generate -> commit -> publish
//
// Any step failing aborts the rest and the run ends as failed with one of the
// typed errors in errors.go. An unchanged target is not a failure: the
// commit step is recorded as skipped and the run still publishes.
//
// Runs do not coordinate with each other. Each gets its own workspace, and
// the remote's refusal of non-fast-forward pushes is what keeps overlapping
// runs from clobbering history.
package pipeline
