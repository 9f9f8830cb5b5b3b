package pipeline

import (
	"fmt"

	ferrors "git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
)

// Every typed error wraps a ClassifiedError so the CLI and HTTP adapters can
// map it to an exit or status code.

// CheckoutError reports that a working copy could not be obtained.
type CheckoutError struct {
	URL string
	Err error
}

func (e *CheckoutError) Error() string { return fmt.Sprintf("checkout of %s failed: %v", e.URL, e.Err) }
func (e *CheckoutError) Unwrap() error { return e.Err }

// ToolchainError reports that the pinned runtime is unavailable or mismatched.
type ToolchainError struct {
	Pinned string
	Err    error
}

func (e *ToolchainError) Error() string {
	return fmt.Sprintf("toolchain %s unavailable: %v", e.Pinned, e.Err)
}
func (e *ToolchainError) Unwrap() error { return e.Err }

// DependencyResolutionError reports a missing manifest or an install failure.
type DependencyResolutionError struct {
	Manifest string
	Err      error
}

func (e *DependencyResolutionError) Error() string {
	return fmt.Sprintf("dependency resolution for %s failed: %v", e.Manifest, e.Err)
}
func (e *DependencyResolutionError) Unwrap() error { return e.Err }

// GeneratorError reports a generator that exited non-zero or produced no target.
// The working copy is discarded and nothing is committed or published.
type GeneratorError struct {
	Target string
	Err    error
}

func (e *GeneratorError) Error() string {
	return fmt.Sprintf("generator failed for %s: %v", e.Target, e.Err)
}
func (e *GeneratorError) Unwrap() error { return e.Err }

// PushConflictError reports a push the remote refused because its branch
// moved on since checkout. The local commit is discarded.
type PushConflictError struct {
	Branch string
	Err    error
}

func (e *PushConflictError) Error() string {
	return fmt.Sprintf("push to %s rejected, remote diverged: %v", e.Branch, e.Err)
}
func (e *PushConflictError) Unwrap() error { return e.Err }

// PushError reports any other failure to record the commit on the remote.
type PushError struct {
	Branch string
	Err    error
}

func (e *PushError) Error() string { return fmt.Sprintf("push to %s failed: %v", e.Branch, e.Err) }
func (e *PushError) Unwrap() error { return e.Err }

// PublishError reports a failed publication. The commit, if any, stays pushed.
type PublishError struct {
	Publisher string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish via %s failed: %v", e.Publisher, e.Err)
}
func (e *PublishError) Unwrap() error { return e.Err }

// CommitNoOpCondition records that the generated target matched HEAD. It is
// an outcome, not an error: the commit step is skipped and the run proceeds.
type CommitNoOpCondition struct {
	Target string
}

func (c CommitNoOpCondition) String() string {
	return c.Target + " unchanged, nothing to commit"
}

// classified returns err unchanged when it already carries a category, and
// otherwise wraps it under category.
func classified(err error, category ferrors.ErrorCategory, message string) error {
	if ferrors.IsClassified(err) {
		return err
	}
	return ferrors.WrapError(err, category, message).Build()
}
