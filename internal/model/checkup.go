package model

import "time"

// Metric is a canonical checkup measurement understood by the scoring API.
type Metric string

const (
	MetricHeight           Metric = "height"
	MetricWeight           Metric = "weight"
	MetricBMI              Metric = "bmi"
	MetricWaist            Metric = "waist"
	MetricSystolicBP       Metric = "systolic_bp"
	MetricDiastolicBP      Metric = "diastolic_bp"
	MetricFastingGlucose   Metric = "fasting_glucose"
	MetricTotalCholesterol Metric = "total_cholesterol"
	MetricHDL              Metric = "hdl_cholesterol"
	MetricLDL              Metric = "ldl_cholesterol"
	MetricTriglycerides    Metric = "triglycerides"
	MetricHemoglobin       Metric = "hemoglobin"
	MetricAST              Metric = "ast"
	MetricALT              Metric = "alt"
	MetricGGT              Metric = "gamma_gtp"
	MetricCreatinine       Metric = "serum_creatinine"
	MetricEGFR             Metric = "egfr"
)

// CanonicalMetrics lists every metric in a stable order.
var CanonicalMetrics = []Metric{
	MetricHeight, MetricWeight, MetricBMI, MetricWaist,
	MetricSystolicBP, MetricDiastolicBP, MetricFastingGlucose,
	MetricTotalCholesterol, MetricHDL, MetricLDL, MetricTriglycerides,
	MetricHemoglobin, MetricAST, MetricALT, MetricGGT,
	MetricCreatinine, MetricEGFR,
}

// SufficientMetricCount is the number of populated canonical metrics needed
// before a report can be generated.
const SufficientMetricCount = 5

// CheckupDataset is the aggregated view over a user's raw checkup rows.
type CheckupDataset struct {
	UserID            string             `json:"user_id"`
	Source            string             `json:"source"`
	Metrics           map[Metric]float64 `json:"metrics"`
	CheckupCount      int                `json:"checkup_count"`
	PrescriptionCount int                `json:"prescription_count"`
	CheckupDate       string             `json:"checkup_date,omitempty"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// MetricCount returns how many canonical metrics carry a positive value.
func (d *CheckupDataset) MetricCount() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, m := range CanonicalMetrics {
		if v, ok := d.Metrics[m]; ok && v > 0 {
			n++
		}
	}
	return n
}

// IsSufficient reports whether the dataset has enough populated metrics to
// score. A row existing is not enough on its own.
func (d *CheckupDataset) IsSufficient() bool {
	return d.MetricCount() >= SufficientMetricCount
}

// Rows returns the raw checkup row count, tolerating a nil dataset.
func (d *CheckupDataset) Rows() int {
	if d == nil {
		return 0
	}
	return d.CheckupCount
}

// Prescriptions returns the prescription row count, tolerating a nil dataset.
func (d *CheckupDataset) Prescriptions() int {
	if d == nil {
		return 0
	}
	return d.PrescriptionCount
}
