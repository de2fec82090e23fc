package artifact

import "fmt"

// Split derives the ordered work item inputs for the next stage from an
// incoming artifact. Items the previous stage marked failed are filtered out;
// the rest are reset to pending. When sampleSize > 0 the first sampleSize
// surviving items are selected. The prefix is stable, never a random subset,
// so sampled test runs stay reproducible.
//
// A resulting empty sequence is reported as ErrEmptyBatch rather than
// silently skipped: a zero-item stage almost always means an upstream
// contract violation.
func Split(a *Artifact, sampleSize int) ([]Item, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil input artifact", ErrEmptyBatch)
	}

	items := make([]Item, 0, len(a.Items))
	for _, it := range a.Items {
		if it.Status == StatusFailed {
			continue
		}
		it.Status = StatusPending
		it.Error = ""
		items = append(items, it)
	}

	if sampleSize > 0 && sampleSize < len(items) {
		items = items[:sampleSize]
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no processable items after filtering", ErrEmptyBatch)
	}
	return items, nil
}
