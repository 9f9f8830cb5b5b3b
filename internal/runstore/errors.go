package runstore

import (
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
)

var (
	// ErrRunNotFound indicates no run with the requested ID exists.
	ErrRunNotFound = errors.NotFoundError("run not found").Build()

	// ErrDatabaseOpenFailed indicates the SQLite database could not be opened.
	ErrDatabaseOpenFailed = errors.StoreError("could not open run store database").Build()

	// ErrInitializeSchemaFailed indicates the database schema could not be initialized.
	ErrInitializeSchemaFailed = errors.StoreError("failed to initialize run store schema").Build()
)
