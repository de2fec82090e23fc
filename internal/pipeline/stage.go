// Package pipeline contains the orchestration core: the ordered stage list,
// the adapter contract stages plug into, the stage executor, and the run
// controller. Stage adapters do the domain work; everything here is about
// sequencing, bounding, and recording that work.
package pipeline

import (
	"context"
	"encoding/json"

	"uxpipe/internal/artifact"
)

// Canonical stage names, in pipeline order.
const (
	StageLoadPages      = "load_pages"
	StageRecordSessions = "record_sessions"
	StageAnalyzeUX      = "analyze_ux"
	StageGenerateCode   = "generate_code"
	StagePublishBranch  = "publish_branch"
	StageNotify         = "notify"
)

// Adapter is the contract a stage implements: transform one work item into
// its output payload. Returning an error marks the item failed; wrapping the
// error with pool.Fatal aborts the whole batch.
type Adapter interface {
	ProcessItem(ctx context.Context, item artifact.Item) (json.RawMessage, error)
}

// Bootstrapper is implemented by the adapter of the first stage, which has no
// prior artifact to draw work items from.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) ([]artifact.Item, error)
}

// SummarySink marks an adapter whose single work item is the run summary
// rather than a split of the prior stage's artifact.
type SummarySink interface {
	ConsumesRunSummary()
}

// Stage binds a position in the pipeline to its adapter. Index is 1-based and
// doubles as the artifact file prefix.
type Stage struct {
	Index    int
	Name     string
	NextStep string
	Adapter  Adapter
}

// NewStages assembles the fixed six-stage pipeline in order.
func NewStages(pages, record, analyze, codegen, publish, notify Adapter) []Stage {
	return []Stage{
		{Index: 1, Name: StageLoadPages, NextStep: StageRecordSessions, Adapter: pages},
		{Index: 2, Name: StageRecordSessions, NextStep: StageAnalyzeUX, Adapter: record},
		{Index: 3, Name: StageAnalyzeUX, NextStep: StageGenerateCode, Adapter: analyze},
		{Index: 4, Name: StageGenerateCode, NextStep: StagePublishBranch, Adapter: codegen},
		{Index: 5, Name: StagePublishBranch, NextStep: StageNotify, Adapter: publish},
		{Index: 6, Name: StageNotify, NextStep: "", Adapter: notify},
	}
}
