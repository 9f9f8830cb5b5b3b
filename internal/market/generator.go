package market

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
)

// DefaultTimeout bounds each HTTP request.
const DefaultTimeout = 10 * time.Second

// maxDownload caps page and spreadsheet bodies.
const maxDownload = 32 << 20

// Generator produces the market page.
type Generator struct {
	cfg    config.MarketConfig
	client *http.Client
	loc    *time.Location
	now    func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Generator) { g.client = c }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New builds a generator from the market configuration.
func New(cfg config.MarketConfig, opts ...Option) (*Generator, error) {
	loc, err := config.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "unknown market timezone").
			WithContext("timezone", cfg.Timezone).
			Build()
	}
	g := &Generator{
		cfg:    cfg,
		client: &http.Client{Timeout: config.MustDuration(cfg.Timeout, DefaultTimeout)},
		loc:    loc,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Build fetches the report and renders the page into memory.
func (g *Generator) Build(ctx context.Context) ([]byte, error) {
	slog.Info("Fetching market report", logfields.URL(g.cfg.PageURL))
	page, err := g.get(ctx, g.cfg.PageURL)
	if err != nil {
		return nil, err
	}
	link, err := FindAttachmentLink(bytes.NewReader(page), g.cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	slog.Info("Downloading spreadsheet", logfields.URL(link))
	sheet, err := g.get(ctx, link)
	if err != nil {
		return nil, err
	}
	table, err := ParseWorkbook(bytes.NewReader(sheet))
	if err != nil {
		return nil, err
	}

	now := g.now().In(g.loc)
	row, err := LatestBlock(table, now)
	if err != nil {
		return nil, err
	}
	note, err := RenderNote(g.cfg.Note)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := Render(&buf, Page{Title: g.cfg.Title, UpdatedAt: now, Row: row, Note: note}); err != nil {
		return nil, err
	}
	slog.Info("Selected time block", slog.String("interval", row[CleanHeader(ColInterval)]), slog.Int("rows", len(table.Rows)))
	return buf.Bytes(), nil
}

// Generate builds the page and writes it to the configured output below dir.
// The file is replaced atomically so a failed run never leaves a partial page.
func (g *Generator) Generate(ctx context.Context, dir string) (string, error) {
	content, err := g.Build(ctx)
	if err != nil {
		return "", err
	}
	out := filepath.Join(dir, filepath.FromSlash(g.cfg.Output))
	if err := writeAtomic(out, content); err != nil {
		return "", errors.WrapError(err, errors.CategoryFileSystem, "failed to write page").
			WithContext("path", out).
			Build()
	}
	slog.Info("Page written", logfields.File(out), slog.Int("bytes", len(content)))
	return out, nil
}

func (g *Generator) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "invalid request url").WithContext("url", url).Build()
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNetwork, "request failed").WithContext("url", url).Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NetworkError(fmt.Sprintf("unexpected status %d", resp.StatusCode)).
			WithContext("url", url).
			Build()
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNetwork, "failed to read response").WithContext("url", url).Build()
	}
	return body, nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
