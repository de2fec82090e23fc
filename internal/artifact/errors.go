package artifact

import "errors"

// Standard sentinels for the inter-stage artifact contract.
var (
	ErrNotFound      = errors.New("uxpipe: artifact not found")      // ErrNotFound indicates the expected hand-off document is absent.
	ErrSchemaInvalid = errors.New("uxpipe: artifact schema invalid") // ErrSchemaInvalid indicates a document violating the count invariant.
	ErrEmptyBatch    = errors.New("uxpipe: empty work item batch")   // ErrEmptyBatch indicates zero items entering a stage.
)
