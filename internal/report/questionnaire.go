package report

import (
	"sort"
	"strings"

	"github.com/partnerhealth/report-core/internal/model"
	"github.com/partnerhealth/report-core/pkg/scoring"
)

// Questionnaire is the optional lifestyle survey submitted with a
// generation request.
type Questionnaire struct {
	Smoking             string   `json:"smoking,omitempty" validate:"omitempty,oneof=never former current"`
	Drinking            string   `json:"drinking,omitempty" validate:"omitempty,oneof=none light moderate heavy"`
	ExerciseDaysPerWeek *int     `json:"exercise_days_per_week,omitempty" validate:"omitempty,min=0,max=7"`
	FamilyHistory       []string `json:"family_history,omitempty" validate:"omitempty,dive,required"`
	Medications         []string `json:"medications,omitempty" validate:"omitempty,dive,required"`
}

// Defaults used when the survey is absent or a field is left blank. Smoking
// and drinking fall back to their lowest-risk answer. Exercise has no default
// and an unanswered question is sent as zero days.
const (
	defaultSmoking  = "never"
	defaultDrinking = "none"
)

// Normalize trims and lower-cases the enumerated answers so they validate
// regardless of how the client capitalised them. A nil survey is a no-op.
func (q *Questionnaire) Normalize() {
	if q == nil {
		return
	}
	q.Smoking = strings.ToLower(strings.TrimSpace(q.Smoking))
	q.Drinking = strings.ToLower(strings.TrimSpace(q.Drinking))
}

// toScoring maps the survey onto the scoring API shape. A nil survey yields
// the defaults rather than blocking generation.
func (q *Questionnaire) toScoring() scoring.Questionnaire {
	out := scoring.Questionnaire{
		Smoking:       defaultSmoking,
		Drinking:      defaultDrinking,
		FamilyHistory: []string{},
		Medications:   []string{},
	}
	if q == nil {
		return out
	}
	if s := strings.ToLower(strings.TrimSpace(q.Smoking)); s != "" {
		out.Smoking = s
	}
	if d := strings.ToLower(strings.TrimSpace(q.Drinking)); d != "" {
		out.Drinking = d
	}
	if q.ExerciseDaysPerWeek != nil {
		out.ExerciseDaysPerWeek = min(max(*q.ExerciseDaysPerWeek, 0), 7)
	}
	out.FamilyHistory = cleanList(q.FamilyHistory)
	out.Medications = cleanList(q.Medications)
	return out
}

// cleanList lower-cases, trims, dedupes and sorts.
func cleanList(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// BuildScoringRequest assembles the canonical scoring payload. consent may be
// nil; identity fields are then left blank.
func BuildScoringRequest(ds *model.CheckupDataset, consent *model.ConsentRecord, q *Questionnaire) scoring.Request {
	req := scoring.Request{
		Subject: scoring.Subject{UserID: ds.UserID},
		Checkup: scoring.Checkup{
			Date:              ds.CheckupDate,
			Metrics:           make(map[string]float64, len(ds.Metrics)),
			CheckupCount:      ds.CheckupCount,
			PrescriptionCount: ds.PrescriptionCount,
		},
		Questionnaire: q.toScoring(),
	}
	for _, m := range model.CanonicalMetrics {
		if v, ok := ds.Metrics[m]; ok && v > 0 {
			req.Checkup.Metrics[string(m)] = v
		}
	}
	if consent != nil {
		req.Subject.Name = consent.Identity.Name
		req.Subject.BirthDate = consent.Identity.BirthDate
		req.Subject.Gender = consent.Identity.Gender
	}
	return req
}
