package market

import "git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"

var (
	// ErrLinkNotFound indicates the report page had no attachment link.
	ErrLinkNotFound = errors.GeneratorError("report attachment link not found").Build()

	// ErrEmptyWorkbook indicates the downloaded spreadsheet had no usable rows.
	ErrEmptyWorkbook = errors.GeneratorError("downloaded spreadsheet is empty").Build()

	// ErrNoTimeBlock indicates no time block has started yet today.
	ErrNoTimeBlock = errors.GeneratorError("no time block has started yet").Build()
)
