// Package pages implements the load_pages stage: parse the page inventory,
// validate each entry, and optionally probe the live page for its title.
package pages

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"golang.org/x/net/html"

	"uxpipe/internal/artifact"
	"uxpipe/internal/config"
	"uxpipe/internal/textutil"
)

// Page is the work item payload this stage emits.
type Page struct {
	URL        string `json:"url"`
	Path       string `json:"path"`
	Name       string `json:"name,omitempty"`
	Title      string `json:"title,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
}

// Source bootstraps and validates the page inventory.
type Source struct {
	cfg     config.PagesConfig
	baseURL string
	client  *http.Client
	dryRun  bool
}

// NewSource builds the stage adapter.
func NewSource(cfg config.PagesConfig, baseURL string, dryRun bool) *Source {
	return &Source{
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: cfg.ProbeTimeout.Std()},
		dryRun:  dryRun,
	}
}

// Bootstrap reads the CSV inventory into pending work items. Each row is
// "path[,name]"; a header row starting with "path" is skipped. Validation is
// deferred to ProcessItem so a bad row becomes a failed item, not a dead run.
func (s *Source) Bootstrap(ctx context.Context) ([]artifact.Item, error) {
	f, err := os.Open(s.cfg.Inventory)
	if err != nil {
		return nil, fmt.Errorf("open page inventory: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var items []artifact.Item
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse page inventory: %w", err)
		}
		if len(rec) == 0 || rec[0] == "" {
			continue
		}
		path := strings.TrimSpace(rec[0])
		if len(items) == 0 && strings.EqualFold(path, "path") {
			continue
		}
		name := ""
		if len(rec) > 1 {
			name = strings.TrimSpace(rec[1])
		}

		data, err := json.Marshal(Page{URL: s.baseURL + path, Path: path, Name: name})
		if err != nil {
			return nil, fmt.Errorf("marshal page row: %w", err)
		}
		id := textutil.Slug(path)
		if id == "" {
			id = fmt.Sprintf("page_%d", len(items)+1)
		}
		items = append(items, artifact.Item{
			ID:     id,
			Status: artifact.StatusPending,
			Data:   data,
		})
	}
	return items, nil
}

// ProcessItem validates one inventory row and, when probing is enabled,
// fetches the page to confirm it exists and capture its title.
func (s *Source) ProcessItem(ctx context.Context, item artifact.Item) (json.RawMessage, error) {
	var p Page
	if err := json.Unmarshal(item.Data, &p); err != nil {
		return nil, fmt.Errorf("decode page row: %w", err)
	}

	if !strings.HasPrefix(p.Path, "/") {
		return nil, fmt.Errorf("page path %q must start with /", p.Path)
	}
	if _, err := url.Parse(p.URL); err != nil {
		return nil, fmt.Errorf("page url %q: %w", p.URL, err)
	}

	if s.cfg.Probe && !s.dryRun {
		if err := s.probe(ctx, &p); err != nil {
			return nil, err
		}
	} else if s.cfg.Probe {
		p.Skipped = true
	}

	return json.Marshal(p)
}

func (s *Source) probe(ctx context.Context, p *Page) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.URL, err)
	}
	defer resp.Body.Close()

	p.StatusCode = resp.StatusCode
	if resp.StatusCode >= 400 {
		return fmt.Errorf("probe %s: HTTP %d", p.URL, resp.StatusCode)
	}

	title, err := extractTitle(resp.Body)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", p.URL, err)
	}
	p.Title = title
	return nil
}

// extractTitle walks the HTML token stream and returns the first <title>
// text, if any.
func extractTitle(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", z.Err()
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) == "title" {
				inTitle = true
			}
		case html.EndTagToken:
			if inTitle {
				return "", nil
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(z.Text())), nil
			}
		}
	}
}
