// Package checkup maps provider checkup rows onto canonical metrics.
package checkup

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/partnerhealth/report-core/internal/model"
)

// Source identifies where a checkup row came from.
const (
	SourceTilko   = "tilko"
	SourcePartner = "partner"
)

// labels maps provider labels (NFC-normalized, lower-cased and stripped of
// spaces) onto canonical metrics. The public health screening feed uses
// Korean labels; partners post English keys.
var labels = invert(map[model.Metric][]string{
	model.MetricHeight:           {"신장", "키", "height"},
	model.MetricWeight:           {"체중", "몸무게", "weight"},
	model.MetricBMI:              {"체질량지수", "bmi"},
	model.MetricWaist:            {"허리둘레", "waist"},
	model.MetricSystolicBP:       {"수축기혈압", "최고혈압", "systolic", "systolicbp"},
	model.MetricDiastolicBP:      {"이완기혈압", "최저혈압", "diastolic", "diastolicbp"},
	model.MetricFastingGlucose:   {"공복혈당", "식전혈당", "glucose", "fastingglucose"},
	model.MetricTotalCholesterol: {"총콜레스테롤", "totalcholesterol"},
	model.MetricHDL:              {"hdl콜레스테롤", "hdl"},
	model.MetricLDL:              {"ldl콜레스테롤", "ldl"},
	model.MetricTriglycerides:    {"중성지방", "triglycerides"},
	model.MetricHemoglobin:       {"혈색소", "hemoglobin"},
	model.MetricAST:              {"ast", "sgot"},
	model.MetricALT:              {"alt", "sgpt"},
	model.MetricGGT:              {"감마지티피", "γ-gtp", "ggt", "gammagtp"},
	model.MetricCreatinine:       {"혈청크레아티닌", "creatinine"},
	model.MetricEGFR:             {"신사구체여과율", "egfr"},
})

func invert(m map[model.Metric][]string) map[string]model.Metric {
	out := make(map[string]model.Metric)
	for metric, keys := range m {
		for _, k := range keys {
			out[k] = metric
		}
	}
	return out
}

// bloodPressureLabels carry a "systolic/diastolic" pair in one cell.
var bloodPressureLabels = map[string]bool{"혈압": true, "bloodpressure": true, "bp": true}

// Normalize converts raw provider rows to canonical metrics. Unknown labels
// and unparseable values are skipped; the caller decides sufficiency.
func Normalize(raw map[string]string) map[model.Metric]float64 {
	out := make(map[model.Metric]float64, len(raw))
	for label, value := range raw {
		key := normalizeLabel(label)

		if bloodPressureLabels[key] {
			sys, dia, ok := parseBloodPressure(value)
			if ok {
				out[model.MetricSystolicBP] = sys
				out[model.MetricDiastolicBP] = dia
			}
			continue
		}

		metric, ok := labels[key]
		if !ok {
			continue
		}
		v, ok := parseValue(value)
		if !ok {
			continue
		}
		out[metric] = v
	}

	if _, ok := out[model.MetricBMI]; !ok {
		if bmi, ok := deriveBMI(out[model.MetricHeight], out[model.MetricWeight]); ok {
			out[model.MetricBMI] = bmi
		}
	}
	return out
}

func normalizeLabel(label string) string {
	s := norm.NFC.String(label)
	s = strings.ToLower(s)
	if i := strings.IndexAny(s, "(["); i > 0 {
		s = s[:i]
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '_', '.':
			return -1
		}
		return r
	}, s)
}

// parseValue reads the leading number of a cell such as "172.4cm" or
// "1,024". Values that are not positive are treated as missing.
func parseValue(raw string) (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(norm.NFC.String(raw)), ",", "")
	end := 0
	for end < len(s) && (s[end] == '.' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func parseBloodPressure(raw string) (float64, float64, bool) {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	sys, ok := parseValue(parts[0])
	if !ok {
		return 0, 0, false
	}
	dia, ok := parseValue(parts[1])
	if !ok {
		return 0, 0, false
	}
	return sys, dia, true
}

// deriveBMI computes BMI from height in cm and weight in kg.
func deriveBMI(heightCM, weightKG float64) (float64, bool) {
	if heightCM <= 0 || weightKG <= 0 {
		return 0, false
	}
	m := heightCM / 100
	bmi := weightKG / (m * m)
	return float64(int(bmi*10+0.5)) / 10, true
}
