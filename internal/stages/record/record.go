// Package record implements the record_sessions stage: drive the external
// browser recorder binary once per page and collect the video it produces.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"uxpipe/internal/artifact"
	"uxpipe/internal/config"
	"uxpipe/internal/pool"
	"uxpipe/internal/textutil"
)

// Session is the work item payload this stage emits.
type Session struct {
	URL     string `json:"url"`
	Path    string `json:"path"`
	Name    string `json:"name,omitempty"`
	Video   string `json:"video"`
	Skipped bool   `json:"skipped,omitempty"`
}

type pageInfo struct {
	URL  string `json:"url"`
	Path string `json:"path"`
	Name string `json:"name"`
}

// Recorder shells out to the configured recorder command.
type Recorder struct {
	cfg    config.RecordConfig
	dryRun bool
}

// NewRecorder builds the stage adapter.
func NewRecorder(cfg config.RecordConfig, dryRun bool) *Recorder {
	return &Recorder{cfg: cfg, dryRun: dryRun}
}

// ProcessItem records one page. A missing recorder binary is fatal for the
// whole batch: no sibling item can succeed without it.
func (r *Recorder) ProcessItem(ctx context.Context, item artifact.Item) (json.RawMessage, error) {
	var p pageInfo
	if err := json.Unmarshal(item.Data, &p); err != nil {
		return nil, fmt.Errorf("decode page payload: %w", err)
	}

	video := filepath.Join(r.cfg.VideoDir, textutil.Slug(item.ID)+".webm")
	out := Session{URL: p.URL, Path: p.Path, Name: p.Name, Video: video}

	if r.dryRun {
		out.Skipped = true
		return json.Marshal(out)
	}

	if err := os.MkdirAll(r.cfg.VideoDir, 0o755); err != nil {
		return nil, fmt.Errorf("create video directory: %w", err)
	}

	args := append([]string{}, r.cfg.Args...)
	args = append(args,
		"--url", p.URL,
		"--output", video,
		"--viewport", fmt.Sprintf("%dx%d", r.cfg.ViewportWidth, r.cfg.ViewportHeight),
	)

	cmd := exec.CommandContext(ctx, r.cfg.Command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, pool.Fatal(fmt.Errorf("recorder command %q not found", r.cfg.Command))
		}
		return nil, fmt.Errorf("record %s: %w: %s", p.URL, err, tail(output))
	}

	return json.Marshal(out)
}

// tail returns the last few lines of recorder output for error messages.
func tail(output []byte) string {
	s := strings.TrimSpace(string(output))
	lines := strings.Split(s, "\n")
	if len(lines) > 4 {
		lines = lines[len(lines)-4:]
	}
	return strings.Join(lines, " | ")
}
