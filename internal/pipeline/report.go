package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"uxpipe/internal/state"
)

// StageReport is the per-stage slice of a run report.
type StageReport struct {
	Index           int         `json:"index"`
	Name            string      `json:"name"`
	Result          StageResult `json:"result"`
	TotalItems      int         `json:"total_items"`
	SuccessfulItems int         `json:"successful_items"`
	FailedItems     int         `json:"failed_items"`
	DurationMS      int64       `json:"duration_ms"`
	Error           string      `json:"error,omitempty"`
}

// RunReport summarizes one pipeline run for humans and machines.
type RunReport struct {
	RunID      string          `json:"run_id"`
	Status     state.RunStatus `json:"status"`
	FromStep   int             `json:"from_step"`
	ToStep     int             `json:"to_step"`
	SampleSize int             `json:"sample_size,omitempty"`
	DryRun     bool            `json:"dry_run,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
	Stages     []StageReport   `json:"stages"`
	Error      string          `json:"error,omitempty"`
}

// Markdown renders the report as a markdown summary.
func (r *RunReport) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# uxpipe run %s\n\n", r.RunID)
	fmt.Fprintf(&b, "- Status: **%s**\n", r.Status)
	fmt.Fprintf(&b, "- Steps: %d to %d\n", r.FromStep, r.ToStep)
	if r.SampleSize > 0 {
		fmt.Fprintf(&b, "- Sample size: %d\n", r.SampleSize)
	}
	if r.DryRun {
		b.WriteString("- Dry run: side effects skipped\n")
	}
	fmt.Fprintf(&b, "- Started: %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n", (time.Duration(r.DurationMS) * time.Millisecond).String())
	if r.Error != "" {
		fmt.Fprintf(&b, "- Error: %s\n", r.Error)
	}

	b.WriteString("\n| # | Stage | Result | Items | OK | Failed | Duration |\n")
	b.WriteString("|---|-------|--------|-------|----|--------|----------|\n")
	for _, s := range r.Stages {
		fmt.Fprintf(&b, "| %d | %s | %s | %d | %d | %d | %s |\n",
			s.Index, s.Name, s.Result, s.TotalItems, s.SuccessfulItems, s.FailedItems,
			(time.Duration(s.DurationMS) * time.Millisecond).String(),
		)
	}

	for _, s := range r.Stages {
		if s.Error != "" {
			fmt.Fprintf(&b, "\n**%s**: %s\n", s.Name, s.Error)
		}
	}
	return b.String()
}

// Persist writes the JSON, markdown, and HTML renditions of the report into
// dir/<run-id>/.
func (r *RunReport) Persist(dir string) error {
	runDir := filepath.Join(dir, r.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "report.json"), data, 0o644); err != nil {
		return fmt.Errorf("write report.json: %w", err)
	}

	md := r.Markdown()
	if err := os.WriteFile(filepath.Join(runDir, "report.md"), []byte(md), 0o644); err != nil {
		return fmt.Errorf("write report.md: %w", err)
	}

	var html bytes.Buffer
	renderer := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := renderer.Convert([]byte(md), &html); err != nil {
		return fmt.Errorf("render report html: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "report.html"), html.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write report.html: %w", err)
	}
	return nil
}

// Summary is the compact run digest handed to the notify stage as its work
// item payload.
type Summary struct {
	RunID      string          `json:"run_id"`
	Status     state.RunStatus `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
	Stages     []StageReport   `json:"stages"`
	Error      string          `json:"error,omitempty"`
}

// Summary builds the digest of the stages executed so far.
func (r *RunReport) Summary() Summary {
	return Summary{
		RunID:      r.RunID,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		DurationMS: r.DurationMS,
		Stages:     r.Stages,
		Error:      r.Error,
	}
}
