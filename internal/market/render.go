package market

import (
	"bytes"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
)

// Page is the data rendered into the generated HTML file.
type Page struct {
	Title     string
	UpdatedAt time.Time
	Row       Row
	Note      template.HTML
}

// Field is one labelled value of the selected row.
type Field struct {
	Label string
	Value string
}

var fieldLabels = []struct{ col, label string }{
	{ColInterval, "Interval"},
	{ColVolume, "Traded volume (MWh)"},
	{ColVolumeBuy, "Traded volume, buy (MWh)"},
	{ColVolumeSell, "Traded volume, sell (MWh)"},
	{ColWeightedAvg, "Weighted average price (EUR/MWh)"},
	{ColMinPrice, "Minimum price (EUR/MWh)"},
	{ColMaxPrice, "Maximum price (EUR/MWh)"},
	{ColLastPrice, "Last price (EUR/MWh)"},
}

// Fields lists the rendered values in page order.
func (p Page) Fields() []Field {
	out := make([]Field, 0, len(fieldLabels))
	for _, f := range fieldLabels {
		out = append(out, Field{Label: f.label, Value: p.Row[CleanHeader(f.col)]})
	}
	return out
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="cs">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; background-color: #f9f9f9; }
        h1 { color: #333; }
        p, td, th { font-size: 16px; color: #555; }
        th { text-align: left; padding-right: 1em; }
    </style>
</head>
<body>
    <h1>{{.Title}}</h1>
    <p><strong>Last Updated (CET):</strong> {{.UpdatedAt.Format "2006-01-02 15:04:05"}}</p>
    <table>
{{- range .Fields}}
        <tr><th>{{.Label}}</th><td>{{.Value}}</td></tr>
{{- end}}
    </table>
{{- with .Note}}
    <div class="note">
{{.}}    </div>
{{- end}}
</body>
</html>
`))

// RenderNote converts a markdown note to HTML. Raw HTML in the note is
// dropped by goldmark's default renderer.
func RenderNote(markdown string) (template.HTML, error) {
	if markdown == "" {
		return "", nil
	}
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", errors.WrapError(err, errors.CategoryGenerator, "failed to render note").Build()
	}
	return template.HTML(buf.String()), nil //nolint:gosec // goldmark output with unsafe HTML disabled
}

// Render writes the page HTML.
func Render(w io.Writer, p Page) error {
	if err := pageTemplate.Execute(w, p); err != nil {
		return errors.WrapError(err, errors.CategoryGenerator, "failed to render page").Build()
	}
	return nil
}
