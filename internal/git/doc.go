// Package git performs the repository side of a job run with go-git:
// cloning a fresh working copy, detecting whether the generated target
// differs from HEAD, committing exactly that file and pushing fast-forward
// only. The pages branch publisher reuses the same working copy type.
//
// Push rejections caused by diverged history surface as *RemoteDivergedError
// so callers can tell them apart from transport or auth failures.
package git
