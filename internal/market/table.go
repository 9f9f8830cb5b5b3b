package market

import (
	"io"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
)

// HeaderRow is the zero-based spreadsheet row holding column names.
const HeaderRow = 5

// Column names used by the page.
const (
	ColInterval    = "Časový interval"
	ColVolume      = "Zobchodované množství(MWh)"
	ColVolumeBuy   = "Zobchodované množství - nákup(MWh)"
	ColVolumeSell  = "Zobchodované množství - prodej(MWh)"
	ColWeightedAvg = "Vážený průměr cen (EUR/MWh)"
	ColMinPrice    = "Minimální cena(EUR/MWh)"
	ColMaxPrice    = "Maximální cena(EUR/MWh)"
	ColLastPrice   = "Poslední cena(EUR/MWh)"
)

// Table is the data block of the report below the header row.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Row is one data row keyed by cleaned header.
type Row map[string]string

var spaces = regexp.MustCompile(` +`)

// CleanHeader trims, drops newlines, collapses runs of spaces and
// normalises to NFC so headers compare equal regardless of how the
// spreadsheet encoded diacritics.
func CleanHeader(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	s = spaces.ReplaceAllString(s, " ")
	return norm.NFC.String(s)
}

// ParseWorkbook reads the first sheet of an xlsx workbook.
func ParseWorkbook(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryGenerator, "failed to open spreadsheet").Build()
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryGenerator, "failed to read spreadsheet rows").
			WithContext("sheet", sheets[0]).
			Build()
	}
	return NewTable(rows)
}

// NewTable splits raw rows into cleaned headers and non-empty data rows.
func NewTable(rows [][]string) (*Table, error) {
	if len(rows) <= HeaderRow {
		return nil, ErrEmptyWorkbook.WithContext("rows", len(rows))
	}
	t := &Table{}
	for _, h := range rows[HeaderRow] {
		t.Headers = append(t.Headers, CleanHeader(h))
	}
	for _, row := range rows[HeaderRow+1:] {
		if isBlank(row) {
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	if len(t.Rows) == 0 {
		return nil, ErrEmptyWorkbook.WithContext("rows", len(rows))
	}
	return t, nil
}

// Column returns the index of a header, or -1.
func (t *Table) Column(name string) int {
	name = CleanHeader(name)
	for i, h := range t.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

// Row returns data row i keyed by header. Short rows yield empty values.
func (t *Table) Row(i int) Row {
	out := make(Row, len(t.Headers))
	for c, h := range t.Headers {
		if h == "" {
			continue
		}
		if c < len(t.Rows[i]) {
			out[h] = strings.TrimSpace(t.Rows[i][c])
		} else {
			out[h] = ""
		}
	}
	return out
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
