package model

import (
	"encoding/json"
	"time"
)

// GeneratedReport is the current scoring result for a (user, hospital) pair.
// Regeneration overwrites the row in place.
type GeneratedReport struct {
	UserID      string          `json:"user_id"`
	HospitalID  string          `json:"hospital_id"`
	ReportURL   string          `json:"report_url"`
	RiskScore   float64         `json:"risk_score"`
	Rank        int             `json:"rank"`
	DiseaseData json.RawMessage `json:"disease_data,omitempty"`
	CancerData  json.RawMessage `json:"cancer_data,omitempty"`
	AnalyzedAt  time.Time       `json:"analyzed_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// HasURL reports whether the report is backed by a rendered document, which
// makes it authoritative over any cached flag.
func (r *GeneratedReport) HasURL() bool {
	return r != nil && r.ReportURL != ""
}

// ExpiredAt reports whether the report is older than validity at now.
// A zero validity never expires.
func (r *GeneratedReport) ExpiredAt(now time.Time, validity time.Duration) bool {
	if r == nil || validity <= 0 || r.AnalyzedAt.IsZero() {
		return false
	}
	return now.Sub(r.AnalyzedAt) > validity
}

// ReportRef points at a freshly generated report.
type ReportRef struct {
	UserID     string    `json:"user_id"`
	HospitalID string    `json:"hospital_id"`
	ReportURL  string    `json:"report_url"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}
