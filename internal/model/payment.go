package model

import (
	"strings"
	"time"
)

// PaymentStatus is the settlement state of a payment attempt.
type PaymentStatus string

const (
	PaymentStatusReady     PaymentStatus = "READY"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// PipelineStep marks how far the data-collection / report flow tied to a
// payment has advanced. Values are written by several actors (partner
// webhook, re-authentication flow, report generator), so anything read back
// from storage goes through ParsePipelineStep.
type PipelineStep string

const (
	StepNone          PipelineStep = ""
	StepTilkoReady    PipelineStep = "TILKO_READY"
	StepDataCollected PipelineStep = "DATA_COLLECTED"
	StepTilkoSyncing  PipelineStep = "TILKO_SYNCING"
	StepReportWaiting PipelineStep = "REPORT_WAITING"
	StepCompleted     PipelineStep = "COMPLETED"
	// StepUnknown is a legacy or corrupt value that none of the writers
	// produce today.
	StepUnknown PipelineStep = "UNKNOWN"
)

// ParsePipelineStep maps a stored value onto the closed set of steps.
// Unrecognised values become StepUnknown; callers keep the raw string when
// they need to log it.
func ParsePipelineStep(raw string) PipelineStep {
	switch s := PipelineStep(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StepNone, StepTilkoReady, StepDataCollected, StepTilkoSyncing, StepReportWaiting, StepCompleted:
		return s
	default:
		return StepUnknown
	}
}

// IsPreData reports whether the step means the data-collection leg has not
// finished yet.
func (s PipelineStep) IsPreData() bool {
	switch s {
	case StepTilkoReady, StepDataCollected, StepTilkoSyncing:
		return true
	case StepNone, StepReportWaiting, StepCompleted, StepUnknown:
		return false
	default:
		return false
	}
}

// IsSet reports whether any writer has recorded progress on the payment.
func (s PipelineStep) IsSet() bool {
	return s != StepNone
}

// PaymentRecord is one payment attempt in the partner payment ledger.
type PaymentRecord struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	PartnerID    string        `json:"partner_id"`
	Status       PaymentStatus `json:"status"`
	Amount       int64         `json:"amount"`
	PipelineStep PipelineStep  `json:"pipeline_step"`
	RawStep      string        `json:"-"`
	ReportURL    string        `json:"report_url,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Ephemeral    bool          `json:"ephemeral"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// IsCompleted reports whether the payment settled.
func (p *PaymentRecord) IsCompleted() bool {
	return p != nil && p.Status == PaymentStatusCompleted
}

// TrackingIDPrefix prefixes the synthetic id of ephemeral tracking records.
const TrackingIDPrefix = "trk_"
