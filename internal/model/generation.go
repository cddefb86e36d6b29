package model

import "time"

// GenerationOutcome classifies how one report generation attempt ended.
type GenerationOutcome string

const (
	OutcomeSuccess      GenerationOutcome = "success"
	OutcomeNoData       GenerationOutcome = "no_data"
	OutcomeScoringError GenerationOutcome = "scoring_error"
	OutcomePersistError GenerationOutcome = "persist_error"
)

// IsFailure reports whether the outcome counts against pipeline health.
// Missing data is a user precondition, not a pipeline failure.
func (o GenerationOutcome) IsFailure() bool {
	return o == OutcomeScoringError || o == OutcomePersistError
}

// GenerationAttempt is one logged run of the report orchestrator.
type GenerationAttempt struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	HospitalID string            `json:"hospital_id"`
	Trigger    string            `json:"trigger"` // api, sweep, workflow, cli
	Outcome    GenerationOutcome `json:"outcome"`
	Error      string            `json:"error,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	CreatedAt  time.Time         `json:"created_at"`
}

// GenerationStats summarizes attempts over a window.
type GenerationStats struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// FailureRate returns Failed/Total, 0 when there were no attempts.
func (s GenerationStats) FailureRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Total)
}
