package market

import (
	"bytes"
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	helpers "git.home.luguber.info/inful/pagerefresh/internal/testutil/testutils"
)

var headers = []string{
	" Časový \ninterval ",
	"Zobchodované  množství(MWh)",
	"Zobchodované množství - nákup(MWh)",
	"Zobchodované množství - prodej(MWh)",
	"Vážený průměr cen (EUR/MWh)",
	"Minimální cena(EUR/MWh)",
	"Maximální cena(EUR/MWh)",
	"Poslední cena(EUR/MWh)",
}

func rawRows(data ...[]string) [][]string {
	rows := [][]string{{"Report"}, {}, {"Datum: 01.03.2026"}, {}, {}}
	rows = append(rows, headers)
	return append(rows, data...)
}

func workbook(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func sampleData() [][]string {
	return [][]string{
		{"08:00-08:15", "120.5", "60", "60.5", "101.2", "95", "110", "104"},
		{"08:15-08:30", "98.1", "40", "58.1", "99.9", "90", "108", "100"},
		{},
		{"08:30-08:45", "77", "30", "47", "97.3", "88", "105", "96"},
		{"total", "295.6"},
	}
}

func TestCleanHeader(t *testing.T) {
	assert.Equal(t, "Časový interval", CleanHeader(" Časový \ninterval "))
	// Line breaks are dropped, not turned into spaces.
	assert.Equal(t, "Časovýinterval", CleanHeader("Časový\r\ninterval"))
	assert.Equal(t, "Zobchodované množství(MWh)", CleanHeader("Zobchodované   množství(MWh)"))
	// Decomposed "C" + combining caron normalises to the precomposed form.
	assert.Equal(t, "Časový interval", CleanHeader("C\u030casový interval"))
}

func TestFindAttachmentLink(t *testing.T) {
	page := `<html><body>
<p class="intro"><a href="/wrong.xlsx">no</a></p>
<p class="report_attachment_links wide"><span><a href="/file-download/report.xlsx">XLSX</a></span><a href="/second.xlsx">2</a></p>
</body></html>`

	link, err := FindAttachmentLink(strings.NewReader(page), "https://www.ote-cr.cz")
	require.NoError(t, err)
	assert.Equal(t, "https://www.ote-cr.cz/file-download/report.xlsx", link)

	abs := `<p class="report_attachment_links"><a href="https://cdn.example.com/r.xlsx">x</a></p>`
	link, err = FindAttachmentLink(strings.NewReader(abs), "https://www.ote-cr.cz")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/r.xlsx", link)
}

func TestFindAttachmentLink_Missing(t *testing.T) {
	for name, page := range map[string]string{
		"no container": `<p class="other"><a href="/x.xlsx">x</a></p>`,
		"no link":      `<p class="report_attachment_links">nothing yet</p>`,
		"empty href":   `<p class="report_attachment_links"><a>x</a></p>`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := FindAttachmentLink(strings.NewReader(page), "https://www.ote-cr.cz")
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, ErrLinkNotFound))
		})
	}
}

func TestParseWorkbook(t *testing.T) {
	table, err := ParseWorkbook(bytes.NewReader(workbook(t, rawRows(sampleData()...))))
	require.NoError(t, err)

	assert.Equal(t, 0, table.Column(ColInterval))
	assert.Equal(t, 1, table.Column(ColVolume))
	assert.Equal(t, -1, table.Column("missing"))
	assert.Len(t, table.Rows, 4, "blank rows are dropped")

	row := table.Row(0)
	assert.Equal(t, "08:00-08:15", row[ColInterval])
	assert.Equal(t, "104", row[ColLastPrice])

	short := table.Row(3)
	assert.Equal(t, "total", short[ColInterval])
	assert.Equal(t, "", short[ColLastPrice])
}

func TestParseWorkbook_Invalid(t *testing.T) {
	_, err := ParseWorkbook(strings.NewReader("not a zip"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryGenerator))

	_, err = ParseWorkbook(bytes.NewReader(workbook(t, [][]string{{"only"}, {"a"}, {"few"}})))
	assert.True(t, stderrors.Is(err, ErrEmptyWorkbook))

	_, err = ParseWorkbook(bytes.NewReader(workbook(t, rawRows())))
	assert.True(t, stderrors.Is(err, ErrEmptyWorkbook))
}

func prague(t *testing.T, hhmm string) time.Time {
	t.Helper()
	loc, err := config.LoadLocation("Europe/Prague")
	require.NoError(t, err)
	ts, err := time.ParseInLocation("2006-01-02 15:04", "2026-03-01 "+hhmm, loc)
	require.NoError(t, err)
	return ts
}

func TestLatestBlock(t *testing.T) {
	table, err := NewTable(rawRows(sampleData()...))
	require.NoError(t, err)

	tests := []struct {
		now  string
		want string
	}{
		{"08:00", "08:00-08:15"},
		{"08:29", "08:15-08:30"},
		{"08:30", "08:30-08:45"},
		{"23:59", "08:30-08:45"},
	}
	for _, tt := range tests {
		row, err := LatestBlock(table, prague(t, tt.now))
		require.NoError(t, err, tt.now)
		assert.Equal(t, tt.want, row[ColInterval], tt.now)
	}

	_, err = LatestBlock(table, prague(t, "07:59"))
	assert.True(t, stderrors.Is(err, ErrNoTimeBlock))
}

func TestLatestBlock_UnsortedAndDuplicates(t *testing.T) {
	table, err := NewTable(rawRows(
		[]string{"09:00-09:15", "1"},
		[]string{"08:45-09:00", "2"},
		[]string{"08:45-09:00", "3"},
		[]string{"bad", "4"},
	))
	require.NoError(t, err)

	row, err := LatestBlock(table, prague(t, "08:50"))
	require.NoError(t, err)
	assert.Equal(t, "2", row[ColVolume])
}

func TestLatestBlock_EqualStartsPickLaterBlock(t *testing.T) {
	table, err := NewTable(rawRows(
		[]string{"10:00-11:00", "1"},
		[]string{"10:00-10:15", "2"},
		[]string{"10:00-10:15", "3"},
	))
	require.NoError(t, err)

	row, err := LatestBlock(table, prague(t, "10:05"))
	require.NoError(t, err)
	assert.Equal(t, "10:00-10:15", row[ColInterval])
	assert.Equal(t, "2", row[ColVolume])
}

func TestLatestBlock_MissingColumn(t *testing.T) {
	table := &Table{Headers: []string{"a"}, Rows: [][]string{{"1"}}}
	_, err := LatestBlock(table, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval column missing")
}

func TestRender(t *testing.T) {
	note, err := RenderNote("Data from **OTE**. <script>alert(1)</script>")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Page{
		Title:     "Electricity <Market>",
		UpdatedAt: prague(t, "08:31"),
		Row:       Row{ColInterval: "08:30-08:45", ColLastPrice: "96"},
		Note:      note,
	}))
	out := buf.String()
	assert.Contains(t, out, "<title>Electricity &lt;Market&gt;</title>")
	assert.Contains(t, out, "2026-03-01 08:31:00")
	assert.Contains(t, out, "<td>08:30-08:45</td>")
	assert.Contains(t, out, "<td>96</td>")
	assert.Contains(t, out, "<strong>OTE</strong>")
	assert.NotContains(t, out, "<script>")
}

func TestRender_NoNote(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Page{Title: "x", UpdatedAt: time.Now(), Row: Row{}}))
	assert.NotContains(t, buf.String(), `class="note"`)
}

func marketServer(t *testing.T, xlsx []byte, sheetStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/cs/intraday", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p class="report_attachment_links"><a href="/files/report.xlsx">XLSX</a></p></body></html>`))
	})
	mux.HandleFunc("/files/report.xlsx", func(w http.ResponseWriter, _ *http.Request) {
		if sheetStatus != http.StatusOK {
			w.WriteHeader(sheetStatus)
			return
		}
		_, _ = w.Write(xlsx)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newGenerator(t *testing.T, srv *httptest.Server, now string) *Generator {
	t.Helper()
	g, err := New(config.MarketConfig{
		PageURL:  srv.URL + "/cs/intraday",
		BaseURL:  srv.URL,
		Timezone: "Europe/Prague",
		Output:   "site/index.html",
		Title:    "Electricity Market Data",
		Note:     "Prices in *EUR*.",
	}, WithClock(func() time.Time { return prague(t, now).UTC() }))
	require.NoError(t, err)
	return g
}

func TestGenerator_Generate(t *testing.T) {
	srv := marketServer(t, workbook(t, rawRows(sampleData()...)), http.StatusOK)
	g := newGenerator(t, srv, "08:20")

	dir := t.TempDir()
	out, err := g.Generate(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "site", "index.html"), out)

	// The timestamp is rendered in the market timezone.
	helpers.NewFileAssertions(t, filepath.Join(dir, "site")).
		AssertFileContains("index.html", "<td>08:15-08:30</td>", "<td>99.9</td>", "2026-03-01 08:20:00", "<em>EUR</em>").
		AssertTree("index.html")
}

func TestGenerator_DownloadFailureLeavesPreviousPage(t *testing.T) {
	srv := marketServer(t, nil, http.StatusNotFound)
	g := newGenerator(t, srv, "08:20")

	dir := t.TempDir()
	previous := filepath.Join(dir, "site", "index.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(previous), 0o755))
	require.NoError(t, os.WriteFile(previous, []byte("old"), 0o644))

	_, err := g.Generate(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNetwork))

	data, err := os.ReadFile(previous)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestGenerator_NoBlockYet(t *testing.T) {
	srv := marketServer(t, workbook(t, rawRows(sampleData()...)), http.StatusOK)
	g := newGenerator(t, srv, "00:05")

	_, err := g.Build(context.Background())
	assert.True(t, stderrors.Is(err, ErrNoTimeBlock))
}

func TestNew_UnknownTimezone(t *testing.T) {
	_, err := New(config.MarketConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}
