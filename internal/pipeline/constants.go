package pipeline

// Default values for export runs.
// These are overridden by configuration and CLI flags.
const (
	// DefaultConcurrency is the number of accounts fetched in parallel.
	DefaultConcurrency = 4

	// Skip reasons recorded in PipelineState.Skipped.
	SkipMissingAmount    = "missing_amount"
	SkipInvalidTimestamp = "invalid_timestamp"
	SkipOther            = "other"
)
