// Package errors provides the classified error primitives used across pagerefresh.
//
// A ClassifiedError carries a category (which part of a job run failed), a
// severity and structured context. Errors are built with the fluent
// ErrorBuilder:
//
//	err := errors.GeneratorError("generator exited non-zero").
//		WithContext("exit_code", 2).
//		WithCause(runErr).
//		Build()
//
// The CLI and HTTP adapters translate classified errors into exit codes and
// JSON responses.
package errors
