// Package logfields holds the canonical slog attribute names used across pagerefresh.
package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyTrigger    = "trigger"
	KeyRevision   = "revision"
	KeyStep       = "step"
	KeyStatus     = "status"
	KeyDurationMS = "duration_ms"
	KeySchedule   = "schedule"
	KeyBranch     = "branch"
	KeyCommit     = "commit"
	KeyURL        = "url"
	KeyPath       = "path"
	KeyFile       = "file"
	KeyCommand    = "command"
	KeyExitCode   = "exit_code"
	KeyPublisher  = "publisher"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr        { return slog.String(KeyRunID, id) }
func Trigger(kind string) slog.Attr    { return slog.String(KeyTrigger, kind) }
func Revision(rev string) slog.Attr    { return slog.String(KeyRevision, rev) }
func Step(name string) slog.Attr       { return slog.String(KeyStep, name) }
func Status(s string) slog.Attr        { return slog.String(KeyStatus, s) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Schedule(expr string) slog.Attr   { return slog.String(KeySchedule, expr) }
func Branch(name string) slog.Attr     { return slog.String(KeyBranch, name) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func File(f string) slog.Attr          { return slog.String(KeyFile, f) }
func Command(c string) slog.Attr       { return slog.String(KeyCommand, c) }
func ExitCode(code int) slog.Attr      { return slog.Int(KeyExitCode, code) }
func Publisher(kind string) slog.Attr  { return slog.String(KeyPublisher, kind) }

// Commit shortens full hashes to eight characters.
func Commit(hash string) slog.Attr {
	if len(hash) > 8 {
		hash = hash[:8]
	}
	return slog.String(KeyCommit, hash)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
