// Package analyze implements the analyze_ux stage: submit each recorded
// session to the vision analysis endpoint and persist a per-page report.
package analyze

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

// Analysis is the work item payload this stage emits.
type Analysis struct {
	URL          string   `json:"url"`
	Path         string   `json:"path"`
	Name         string   `json:"name,omitempty"`
	Video        string   `json:"video"`
	Report       string   `json:"report,omitempty"`
	Score        float64  `json:"score"`
	Issues       []string `json:"issues,omitempty"`
	Improvements []string `json:"improvements,omitempty"`
	Skipped      bool     `json:"skipped,omitempty"`
}

type sessionInfo struct {
	URL   string `json:"url"`
	Path  string `json:"path"`
	Name  string `json:"name"`
	Video string `json:"video"`
}

type apiRequest struct {
	Model  string `json:"model,omitempty"`
	URL    string `json:"url"`
	Video  string `json:"video"`
	Frames int    `json:"frames"`
}

type apiResponse struct {
	Score        float64  `json:"score"`
	Issues       []string `json:"issues"`
	Improvements []string `json:"improvements"`
}

// Analyzer calls the vision analysis endpoint.
type Analyzer struct {
	cfg    config.AnalyzeConfig
	apiKey string
	client *http.Client
	dryRun bool
}

// NewAnalyzer builds the stage adapter. When the config names an API key
// environment variable it must be set.
func NewAnalyzer(cfg config.AnalyzeConfig, dryRun bool) (*Analyzer, error) {
	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" && !dryRun {
			return nil, fmt.Errorf("environment variable %s is not set", cfg.APIKeyEnv)
		}
	}
	return &Analyzer{
		cfg:    cfg,
		apiKey: apiKey,
		client: &http.Client{Timeout: 2 * time.Minute},
		dryRun: dryRun,
	}, nil
}

// ProcessItem analyzes one recorded session. Credential rejections are fatal
// for the batch; transient HTTP failures stay item-level so the retry policy
// can take another shot.
func (a *Analyzer) ProcessItem(ctx context.Context, item artifact.Item) (json.RawMessage, error) {
	var s sessionInfo
	if err := json.Unmarshal(item.Data, &s); err != nil {
		return nil, fmt.Errorf("decode session payload: %w", err)
	}

	out := Analysis{URL: s.URL, Path: s.Path, Name: s.Name, Video: s.Video}
	if a.dryRun {
		out.Skipped = true
		return json.Marshal(out)
	}

	resp, err := a.call(ctx, apiRequest{
		Model:  a.cfg.Model,
		URL:    s.URL,
		Video:  s.Video,
		Frames: a.cfg.FramesPerVideo,
	})
	if err != nil {
		return nil, err
	}
	out.Score = resp.Score
	out.Issues = resp.Issues
	out.Improvements = resp.Improvements

	report, err := a.writeReport(item.ID, &out)
	if err != nil {
		return nil, err
	}
	out.Report = report

	return json.Marshal(out)
}

func (a *Analyzer) call(ctx context.Context, reqBody apiRequest) (*apiResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, pool.Fatal(fmt.Errorf("analysis endpoint rejected credentials: HTTP %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("analysis endpoint: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode analysis response: %w", err)
	}
	return &parsed, nil
}

// writeReport renders the per-page markdown report.
func (a *Analyzer) writeReport(itemID string, an *Analysis) (string, error) {
	if a.cfg.ReportsDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(a.cfg.ReportsDir, 0o755); err != nil {
		return "", fmt.Errorf("create reports directory: %w", err)
	}

	var b strings.Builder
	title := an.Name
	if title == "" {
		title = an.Path
	}
	fmt.Fprintf(&b, "# UX analysis: %s\n\n", title)
	fmt.Fprintf(&b, "- URL: %s\n- Score: %.1f\n\n", an.URL, an.Score)
	if len(an.Issues) > 0 {
		b.WriteString("## Issues\n\n")
		for _, is := range an.Issues {
			fmt.Fprintf(&b, "- %s\n", is)
		}
		b.WriteString("\n")
	}
	if len(an.Improvements) > 0 {
		b.WriteString("## Improvements\n\n")
		for _, im := range an.Improvements {
			fmt.Fprintf(&b, "- %s\n", im)
		}
	}

	path := filepath.Join(a.cfg.ReportsDir, textutil.Slug(itemID)+".md")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
