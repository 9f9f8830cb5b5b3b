// Package daemon hosts the long-running triggers of the refresh-and-publish job.
//
// A Daemon owns a cron scheduler (one entry per configured expression), the
// push webhook endpoint, the admin HTTP endpoints and an optional watcher
// that reloads the configuration file. Every trigger starts one independent
// run in its own goroutine; overlapping runs are neither deduplicated nor
// serialised.
package daemon
