// Package publish implements the publish_branch stage: collect the generated
// files for each page into a dedicated branch of the target repository.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"uxpipe/internal/artifact"
	"uxpipe/internal/config"
	"uxpipe/internal/observability"
	"uxpipe/internal/pool"
	"uxpipe/internal/textutil"
)

// Result is the work item payload this stage emits.
type Result struct {
	Path    string   `json:"path"`
	Name    string   `json:"name,omitempty"`
	Branch  string   `json:"branch"`
	Commit  string   `json:"commit,omitempty"`
	Files   []string `json:"files,omitempty"`
	Skipped bool     `json:"skipped,omitempty"`
}

type generatedInfo struct {
	Path          string `json:"path"`
	Name          string `json:"name"`
	ComponentFile string `json:"component_file"`
	StylesFile    string `json:"styles_file"`
}

// Publisher commits generated files onto a run branch. The git worktree is
// not safe for concurrent use, so item processing serializes on a mutex.
type Publisher struct {
	cfg    config.PublishConfig
	dryRun bool

	mu     sync.Mutex
	repo   *gogit.Repository
	wt     *gogit.Worktree
	branch string
}

// NewPublisher builds the stage adapter.
func NewPublisher(cfg config.PublishConfig, dryRun bool) *Publisher {
	return &Publisher{cfg: cfg, dryRun: dryRun}
}

// ProcessItem copies one page's generated files into the repository and
// commits them on the run branch. A repository that cannot be opened is fatal
// for the batch.
func (p *Publisher) ProcessItem(ctx context.Context, item artifact.Item) (json.RawMessage, error) {
	var gen generatedInfo
	if err := json.Unmarshal(item.Data, &gen); err != nil {
		return nil, fmt.Errorf("decode generated payload: %w", err)
	}

	branch := p.branchName(observability.GetContext(ctx).RunID)
	out := Result{Path: gen.Path, Name: gen.Name, Branch: branch}

	if p.dryRun {
		out.Skipped = true
		return json.Marshal(out)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureBranch(branch); err != nil {
		return nil, pool.Fatal(err)
	}

	destDir := filepath.Join("generated", textutil.Slug(item.ID))
	for _, src := range []string{gen.ComponentFile, gen.StylesFile} {
		if src == "" {
			continue
		}
		rel := filepath.Join(destDir, filepath.Base(src))
		if err := p.copyIntoRepo(src, rel); err != nil {
			return nil, err
		}
		if _, err := p.wt.Add(rel); err != nil {
			return nil, fmt.Errorf("stage %s: %w", rel, err)
		}
		out.Files = append(out.Files, rel)
	}
	if len(out.Files) == 0 {
		return nil, fmt.Errorf("no generated files to publish for %s", gen.Path)
	}

	hash, err := p.wt.Commit(fmt.Sprintf("uxpipe: regenerate %s", gen.Path), &gogit.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  p.author(),
			Email: p.email(),
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", gen.Path, err)
	}
	out.Commit = hash.String()

	return json.Marshal(out)
}

// ensureBranch opens the repository and checks out the run branch once.
func (p *Publisher) ensureBranch(branch string) error {
	if p.branch == branch && p.wt != nil {
		return nil
	}

	repo, err := gogit.PlainOpen(p.cfg.RepoPath)
	if err != nil {
		return fmt.Errorf("open repository %s: %w", p.cfg.RepoPath, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("repository worktree: %w", err)
	}

	if err := wt.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
		Keep:   true,
	}); err != nil {
		return fmt.Errorf("create branch %s: %w", branch, err)
	}

	p.repo, p.wt, p.branch = repo, wt, branch
	return nil
}

func (p *Publisher) copyIntoRepo(src, rel string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read generated file: %w", err)
	}
	dest := filepath.Join(p.cfg.RepoPath, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dest), err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}

func (p *Publisher) branchName(runID string) string {
	prefix := p.cfg.BranchPrefix
	if prefix == "" {
		prefix = "uxpipe"
	}
	if runID == "" {
		runID = "manual"
	}
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return prefix + "/" + runID
}

func (p *Publisher) author() string {
	if p.cfg.AuthorName != "" {
		return p.cfg.AuthorName
	}
	return "uxpipe"
}

func (p *Publisher) email() string {
	if p.cfg.AuthorEmail != "" {
		return p.cfg.AuthorEmail
	}
	return "uxpipe@localhost"
}
