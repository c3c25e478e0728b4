package leads

import "errors"

var (
	// ErrInvalidName is returned when the name is invalid
	ErrInvalidName = errors.New("leads: name is required")

	// ErrMissingContact is returned when both email and phone are missing
	ErrMissingContact = errors.New("leads: either email or phone is required")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("leads: lead not found")

	ErrPipelineNotFound = errors.New("leads: pipeline not found")

	// ErrNoDefaultPipeline aborts a backfill before any lead is written.
	ErrNoDefaultPipeline = errors.New("leads: no default pipeline configured")

	ErrNoStages = errors.New("leads: default pipeline has no stages")

	// ErrInvalidStageOrder is returned when a reorder does not name every stage exactly once.
	ErrInvalidStageOrder = errors.New("leads: stage order must list every stage of the pipeline exactly once")

	ErrForbidden = errors.New("leads: caller may not access this lead")
)
