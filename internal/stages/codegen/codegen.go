// Package codegen implements the generate_code stage: feed each page's UX
// analysis plus the design-system context to the code generation endpoint
// and write the returned component and stylesheet to disk.
package codegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"uxpipe/internal/artifact"
	"uxpipe/internal/config"
	"uxpipe/internal/pool"
	"uxpipe/internal/textutil"
)

// Generated is the work item payload this stage emits.
type Generated struct {
	URL           string `json:"url"`
	Path          string `json:"path"`
	Name          string `json:"name,omitempty"`
	ComponentFile string `json:"component_file,omitempty"`
	StylesFile    string `json:"styles_file,omitempty"`
	Skipped       bool   `json:"skipped,omitempty"`
}

type analysisInfo struct {
	URL          string   `json:"url"`
	Path         string   `json:"path"`
	Name         string   `json:"name"`
	Score        float64  `json:"score"`
	Issues       []string `json:"issues"`
	Improvements []string `json:"improvements"`
}

type apiRequest struct {
	Model         string   `json:"model,omitempty"`
	Page          string   `json:"page"`
	Score         float64  `json:"score"`
	Issues        []string `json:"issues,omitempty"`
	Improvements  []string `json:"improvements,omitempty"`
	DesignContext string   `json:"design_context,omitempty"`
}

type apiResponse struct {
	Component string `json:"component"`
	Styles    string `json:"styles"`
}

// Generator calls the code generation endpoint.
type Generator struct {
	cfg    config.CodegenConfig
	apiKey string
	client *http.Client
	dryRun bool
}

// NewGenerator builds the stage adapter.
func NewGenerator(cfg config.CodegenConfig, dryRun bool) (*Generator, error) {
	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" && !dryRun {
			return nil, fmt.Errorf("environment variable %s is not set", cfg.APIKeyEnv)
		}
	}
	return &Generator{
		cfg:    cfg,
		apiKey: apiKey,
		client: &http.Client{Timeout: 3 * time.Minute},
		dryRun: dryRun,
	}, nil
}

// ProcessItem generates improved code for one analyzed page.
func (g *Generator) ProcessItem(ctx context.Context, item artifact.Item) (json.RawMessage, error) {
	var an analysisInfo
	if err := json.Unmarshal(item.Data, &an); err != nil {
		return nil, fmt.Errorf("decode analysis payload: %w", err)
	}

	out := Generated{URL: an.URL, Path: an.Path, Name: an.Name}
	if g.dryRun {
		out.Skipped = true
		return json.Marshal(out)
	}

	resp, err := g.call(ctx, apiRequest{
		Model:         g.cfg.Model,
		Page:          an.Path,
		Score:         an.Score,
		Issues:        an.Issues,
		Improvements:  an.Improvements,
		DesignContext: DesignContext(g.cfg.DesignSystem),
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Component) == "" {
		return nil, fmt.Errorf("code generation returned no component for %s", an.Path)
	}

	dir := filepath.Join(g.cfg.OutputDir, textutil.Slug(item.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	out.ComponentFile = filepath.Join(dir, "component.tsx")
	if err := os.WriteFile(out.ComponentFile, []byte(resp.Component), 0o644); err != nil {
		return nil, fmt.Errorf("write component: %w", err)
	}
	if strings.TrimSpace(resp.Styles) != "" {
		out.StylesFile = filepath.Join(dir, "styles.css")
		if err := os.WriteFile(out.StylesFile, []byte(resp.Styles), 0o644); err != nil {
			return nil, fmt.Errorf("write styles: %w", err)
		}
	}

	return json.Marshal(out)
}

func (g *Generator) call(ctx context.Context, reqBody apiRequest) (*apiResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, pool.Fatal(fmt.Errorf("generation endpoint rejected credentials: HTTP %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("generation endpoint: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode generation response: %w", err)
	}
	return &parsed, nil
}

// DesignContext renders the design-system constraints as the prompt context
// block sent alongside each generation request.
func DesignContext(ds config.DesignSystem) string {
	var b strings.Builder
	if len(ds.Colors) > 0 {
		fmt.Fprintf(&b, "Brand colors: %s.\n", strings.Join(ds.Colors, ", "))
	}
	if ds.Font != "" {
		fmt.Fprintf(&b, "Typography: %s.\n", ds.Font)
	}
	if ds.Style != "" {
		fmt.Fprintf(&b, "Visual style: %s.\n", ds.Style)
	}
	if ds.Industry != "" {
		fmt.Fprintf(&b, "Industry: %s.\n", ds.Industry)
	}
	return strings.TrimRight(b.String(), "\n")
}
