package git

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// AuthError reports credentials the remote refused.
type AuthError struct {
	Op, URL string
	Err     error
}

func (e *AuthError) Error() string { return fmt.Sprintf("%s auth error for %s: %v", e.Op, e.URL, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// NotFoundError reports a missing repository, branch or revision.
type NotFoundError struct {
	Op, URL string
	Err     error
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found %s: %v", e.Op, e.URL, e.Err) }
func (e *NotFoundError) Unwrap() error { return e.Err }

// RemoteDivergedError reports a push rejected because the remote branch has
// commits the local branch does not contain.
type RemoteDivergedError struct {
	Op, URL, Branch string
	Err             error
}

func (e *RemoteDivergedError) Error() string {
	return fmt.Sprintf("%s remote diverged %s@%s: %v", e.Op, e.URL, e.Branch, e.Err)
}
func (e *RemoteDivergedError) Unwrap() error { return e.Err }

// classifyRemoteError wraps clone and fetch failures into typed variants when possible.
func classifyRemoteError(op, url string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, transport.ErrAuthenticationRequired) || errors.Is(err, transport.ErrAuthorizationFailed) {
		return &AuthError{Op: op, URL: url, Err: err}
	}
	if errors.Is(err, transport.ErrRepositoryNotFound) || errors.Is(err, transport.ErrEmptyRemoteRepository) || isNoMatchingRef(err) {
		return &NotFoundError{Op: op, URL: url, Err: err}
	}
	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "authentication") || strings.Contains(l, "invalid username or password"):
		return &AuthError{Op: op, URL: url, Err: err}
	case strings.Contains(l, "reference not found") || strings.Contains(l, "repository does not exist"):
		return &NotFoundError{Op: op, URL: url, Err: err}
	}
	return fmt.Errorf("%s %s: %w", op, url, err)
}

func classifyPushError(url, branch string, err error) error {
	if errors.Is(err, git.ErrNonFastForwardUpdate) {
		return &RemoteDivergedError{Op: "push", URL: url, Branch: branch, Err: err}
	}
	l := strings.ToLower(err.Error())
	if strings.Contains(l, "non-fast-forward") || strings.Contains(l, "fetch first") {
		return &RemoteDivergedError{Op: "push", URL: url, Branch: branch, Err: err}
	}
	return classifyRemoteError("push", url, err)
}

func isNoMatchingRef(err error) bool {
	var noMatch git.NoMatchingRefSpecError
	if errors.As(err, &noMatch) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "couldn't find remote ref")
}
