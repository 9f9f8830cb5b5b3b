package market

import (
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
)

type block struct {
	interval string
	start    int // minutes after midnight
	row      int
}

// parseStart reads the start of an "HH:MM-HH:MM" interval as minutes after midnight.
func parseStart(interval string) (int, bool) {
	start, _, ok := strings.Cut(strings.TrimSpace(interval), "-")
	if !ok {
		return 0, false
	}
	t, err := time.Parse("15:04", strings.TrimSpace(start))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// LatestBlock returns the row of the latest time block whose start is not
// after now's wall-clock time. Rows with malformed intervals are skipped.
func LatestBlock(t *Table, now time.Time) (Row, error) {
	col := t.Column(ColInterval)
	if col < 0 {
		return nil, errors.GeneratorError("interval column missing").
			WithContext("column", ColInterval).
			Build()
	}

	var blocks []block
	for i, r := range t.Rows {
		if col >= len(r) {
			continue
		}
		if start, ok := parseStart(r[col]); ok {
			blocks = append(blocks, block{interval: strings.TrimSpace(r[col]), start: start, row: i})
		}
	}
	sort.SliceStable(blocks, func(a, b int) bool { return blocks[a].start < blocks[b].start })

	current := now.Hour()*60 + now.Minute()
	var latest *block
	for i := range blocks {
		if blocks[i].start > current {
			break
		}
		// Equal starts resolve to the later block in sorted order.
		latest = &blocks[i]
	}
	if latest == nil {
		return nil, ErrNoTimeBlock.WithContext("now", now.Format("15:04"))
	}
	// A repeated interval resolves to the first row carrying it.
	for i, r := range t.Rows {
		if col < len(r) && strings.TrimSpace(r[col]) == latest.interval {
			return t.Row(i), nil
		}
	}
	return t.Row(latest.row), nil
}
