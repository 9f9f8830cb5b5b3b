// Package runstore keeps the history of job runs in SQLite.
//
// The store is append-mostly: a run is written once when it finishes and
// read back by the CLI history command and the daemon's /runs endpoints.
package runstore
