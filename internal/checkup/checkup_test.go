package checkup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partnerhealth/report-core/internal/model"
)

func TestNormalize_TilkoLabels(t *testing.T) {
	got := Normalize(map[string]string{
		"신장":       "172.4",
		"체중(kg)":   "68.1kg",
		"혈압":       "128/84",
		"공복혈당":     "97",
		"총콜레스테롤":   "1,024",
		"HDL콜레스테롤": "52",
		"감마지티피":    "31",
		"요단백":      "음성",
		"혈청크레아티닌":  "0.9",
	})

	assert.InDelta(t, 172.4, got[model.MetricHeight], 0.001)
	assert.InDelta(t, 68.1, got[model.MetricWeight], 0.001)
	assert.InDelta(t, 128, got[model.MetricSystolicBP], 0.001)
	assert.InDelta(t, 84, got[model.MetricDiastolicBP], 0.001)
	assert.InDelta(t, 97, got[model.MetricFastingGlucose], 0.001)
	assert.InDelta(t, 1024, got[model.MetricTotalCholesterol], 0.001)
	assert.InDelta(t, 52, got[model.MetricHDL], 0.001)
	assert.InDelta(t, 31, got[model.MetricGGT], 0.001)
	assert.InDelta(t, 0.9, got[model.MetricCreatinine], 0.001)
	// BMI derived from height and weight.
	assert.InDelta(t, 22.9, got[model.MetricBMI], 0.001)
	assert.Len(t, got, 10)
}

func TestNormalize_DecomposedHangulMatches(t *testing.T) {
	// "신장" in NFD form: conjoining jamo instead of precomposed syllables.
	nfd := "\u1109\u1175\u11ab\u110c\u1161\u11bc"
	got := Normalize(map[string]string{nfd: "180"})
	assert.InDelta(t, 180, got[model.MetricHeight], 0.001)
}

func TestNormalize_PartnerKeys(t *testing.T) {
	got := Normalize(map[string]string{
		"Fasting_Glucose": "101",
		"blood pressure":  "120/80",
		"BMI":             "24.5",
		"height":          "170",
		"weight":          "90",
	})
	assert.InDelta(t, 101, got[model.MetricFastingGlucose], 0.001)
	assert.InDelta(t, 120, got[model.MetricSystolicBP], 0.001)
	assert.InDelta(t, 80, got[model.MetricDiastolicBP], 0.001)
	// Reported BMI is kept rather than derived.
	assert.InDelta(t, 24.5, got[model.MetricBMI], 0.001)
}

func TestNormalize_SkipsBadValues(t *testing.T) {
	got := Normalize(map[string]string{
		"신장": "",
		"체중": "0",
		"혈압": "120",
		"ast": "-",
	})
	assert.Empty(t, got)
}

func TestAggregate_LatestWins(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ds := Aggregate("u1", SourceTilko, []Row{
		{Date: "20250310", Values: map[string]string{"체중": "70", "허리둘레": "82"}},
		{Date: "20230301", Values: map[string]string{"체중": "75", "혈색소": "14.2"}},
	}, 3, now)

	require.NotNil(t, ds)
	assert.Equal(t, "u1", ds.UserID)
	assert.Equal(t, SourceTilko, ds.Source)
	assert.Equal(t, 2, ds.CheckupCount)
	assert.Equal(t, 3, ds.PrescriptionCount)
	assert.Equal(t, "2025-03-10", ds.CheckupDate)
	assert.InDelta(t, 70, ds.Metrics[model.MetricWeight], 0.001)
	assert.InDelta(t, 82, ds.Metrics[model.MetricWaist], 0.001)
	assert.InDelta(t, 14.2, ds.Metrics[model.MetricHemoglobin], 0.001)
	assert.Equal(t, now, ds.UpdatedAt)
}

func TestAggregate_Sufficiency(t *testing.T) {
	thin := Aggregate("u1", SourcePartner, []Row{{Values: map[string]string{"height": "170", "weight": "70"}}}, 0, time.Now())
	// height, weight and derived bmi
	assert.Equal(t, 3, thin.MetricCount())
	assert.False(t, thin.IsSufficient())

	full := Aggregate("u1", SourcePartner, []Row{{Values: map[string]string{
		"height": "170", "weight": "70", "bp": "118/76", "glucose": "90",
	}}}, 0, time.Now())
	assert.Equal(t, 6, full.MetricCount())
	assert.True(t, full.IsSufficient())
}
