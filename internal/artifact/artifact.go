package artifact

import (
	"encoding/json"
	"fmt"
	"time"
)

// ItemStatus is the processing state of a single work item.
type ItemStatus string

const (
	StatusPending ItemStatus = "pending"
	StatusSuccess ItemStatus = "success"
	StatusFailed  ItemStatus = "failed"
)

// Item is one unit of work inside an artifact. The Data payload is opaque to
// the orchestrator; adapters agree on its shape between adjacent stages.
type Item struct {
	ID     string          `json:"id"`
	Status ItemStatus      `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Artifact is the persisted hand-off document between two stages.
type Artifact struct {
	Timestamp       time.Time `json:"timestamp"`
	TotalItems      int       `json:"total_items"`
	SuccessfulItems int       `json:"successful_items"`
	FailedItems     int       `json:"failed_items"`
	Items           []Item    `json:"items"`
	NextStep        string    `json:"next_step,omitempty"`
	// Partial marks a document persisted after a cancelled stage. Only the
	// items that finished before cancellation are recorded, so the count
	// invariant is relaxed to successful+failed <= total.
	Partial bool `json:"partial,omitempty"`
}

// New builds an artifact from the given items, deriving all counters.
func New(items []Item, nextStep string) *Artifact {
	a := &Artifact{
		Timestamp: time.Now().UTC(),
		Items:     items,
		NextStep:  nextStep,
	}
	a.TotalItems = len(items)
	for _, it := range items {
		switch it.Status {
		case StatusSuccess:
			a.SuccessfulItems++
		case StatusFailed:
			a.FailedItems++
		}
	}
	return a
}

// NewPartial builds a partial artifact from a cancelled stage. completed holds
// only the items that finished; total is the size of the original batch.
func NewPartial(completed []Item, total int, nextStep string) *Artifact {
	a := New(completed, nextStep)
	a.TotalItems = total
	a.Partial = true
	return a
}

// Validate enforces the schema invariant:
// total_items == successful_items + failed_items == len(items).
// Partial artifacts relax the first equality to successful+failed <= total.
func (a *Artifact) Validate() error {
	counted := a.SuccessfulItems + a.FailedItems
	if a.Partial {
		if counted > a.TotalItems {
			return fmt.Errorf("%w: partial artifact records %d outcomes for %d items", ErrSchemaInvalid, counted, a.TotalItems)
		}
		if counted != len(a.Items) {
			return fmt.Errorf("%w: partial artifact counts %d but carries %d items", ErrSchemaInvalid, counted, len(a.Items))
		}
		return nil
	}
	if a.TotalItems != counted {
		return fmt.Errorf("%w: total_items=%d but successful+failed=%d", ErrSchemaInvalid, a.TotalItems, counted)
	}
	if a.TotalItems != len(a.Items) {
		return fmt.Errorf("%w: total_items=%d but items length=%d", ErrSchemaInvalid, a.TotalItems, len(a.Items))
	}
	for i, it := range a.Items {
		switch it.Status {
		case StatusPending, StatusSuccess, StatusFailed:
		default:
			return fmt.Errorf("%w: item %d has unknown status %q", ErrSchemaInvalid, i, it.Status)
		}
	}
	return nil
}
