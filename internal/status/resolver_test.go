package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/partnerhealth/report-core/internal/model"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

const testValidity = 365 * 24 * time.Hour

func sufficientCheckup() *model.CheckupDataset {
	return &model.CheckupDataset{
		UserID: "u1",
		Metrics: map[model.Metric]float64{
			model.MetricHeight:         170,
			model.MetricWeight:         68,
			model.MetricSystolicBP:     118,
			model.MetricDiastolicBP:    76,
			model.MetricFastingGlucose: 92,
		},
		CheckupCount:      3,
		PrescriptionCount: 2,
	}
}

func thinCheckup() *model.CheckupDataset {
	return &model.CheckupDataset{
		UserID:       "u1",
		Metrics:      map[model.Metric]float64{model.MetricHeight: 170},
		CheckupCount: 1,
	}
}

func agreed() *model.ConsentRecord {
	at := testNow.Add(-24 * time.Hour)
	return &model.ConsentRecord{UserID: "u1", PartnerID: "clinic-a", TermsAgreed: true, TermsAgreedAt: &at}
}

func completed(step model.PipelineStep) *model.PaymentRecord {
	return &model.PaymentRecord{ID: "pay-1", UserID: "u1", PartnerID: "clinic-a", Status: model.PaymentStatusCompleted, PipelineStep: step}
}

func report(age time.Duration) *model.GeneratedReport {
	return &model.GeneratedReport{UserID: "u1", HospitalID: "h1", ReportURL: "https://r/u1", AnalyzedAt: testNow.Add(-age)}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	paid := Policy{RequiresPayment: true, Validity: testValidity}
	free := Policy{Validity: testValidity}

	tests := []struct {
		name   string
		views  Views
		policy Policy
		want   model.UnifiedStatus
		auto   bool
	}{
		{
			name:   "identity only with report",
			views:  Views{Report: report(time.Hour)},
			policy: paid,
			want:   model.StatusReportReady,
		},
		{
			name:   "first touch lands on terms",
			views:  Views{FirstTouch: true},
			policy: paid,
			want:   model.StatusTermsRequired,
		},
		{
			name:   "tracking record only lands on terms",
			views:  Views{Payment: &model.PaymentRecord{Status: model.PaymentStatusReady, Ephemeral: true}},
			policy: paid,
			want:   model.StatusTermsRequired,
		},
		{
			name:   "terms not agreed with data",
			views:  Views{Consent: &model.ConsentRecord{UserID: "u1"}, Checkup: thinCheckup()},
			policy: paid,
			want:   model.StatusTermsRequiredWithData,
		},
		{
			name:   "terms not agreed with report",
			views:  Views{Consent: &model.ConsentRecord{UserID: "u1"}, Payment: completed(model.StepCompleted), Report: report(time.Hour)},
			policy: paid,
			want:   model.StatusTermsRequiredWithReport,
		},
		{
			name:   "report ready",
			views:  Views{Consent: agreed(), Payment: completed(model.StepCompleted), Checkup: sufficientCheckup(), Report: report(24 * time.Hour)},
			policy: paid,
			want:   model.StatusReportReady,
		},
		{
			name:   "report expired",
			views:  Views{Consent: agreed(), Payment: completed(model.StepCompleted), Checkup: sufficientCheckup(), Report: report(400 * 24 * time.Hour)},
			policy: paid,
			want:   model.StatusReportExpired,
		},
		{
			name:   "report without url does not count",
			views:  Views{Consent: agreed(), Payment: completed(model.StepNone), Checkup: sufficientCheckup(), Report: &model.GeneratedReport{UserID: "u1"}},
			policy: paid,
			want:   model.StatusReportPending,
		},
		{
			name:   "payment required and missing",
			views:  Views{Consent: agreed(), Checkup: sufficientCheckup()},
			policy: paid,
			want:   model.StatusPaymentRequired,
		},
		{
			name:   "payment required and still ready",
			views:  Views{Consent: agreed(), Payment: &model.PaymentRecord{Status: model.PaymentStatusReady}, Checkup: sufficientCheckup()},
			policy: paid,
			want:   model.StatusPaymentRequired,
		},
		{
			name:   "free path insufficient data",
			views:  Views{Consent: agreed(), Checkup: thinCheckup()},
			policy: free,
			want:   model.StatusActionRequired,
		},
		{
			name:   "paid insufficient data auto retries",
			views:  Views{Consent: agreed(), Payment: completed(model.StepNone), Checkup: thinCheckup()},
			policy: paid,
			want:   model.StatusActionRequiredPaid,
			auto:   true,
		},
		{
			name:   "paid no checkup at all",
			views:  Views{Consent: agreed(), Payment: completed(model.StepNone)},
			policy: paid,
			want:   model.StatusActionRequiredPaid,
			auto:   true,
		},
		{
			name:   "free path sufficient data pending",
			views:  Views{Consent: agreed(), Checkup: sufficientCheckup()},
			policy: free,
			want:   model.StatusReportPending,
		},
		{
			name:   "paid sufficient data pending",
			views:  Views{Consent: agreed(), Payment: completed(model.StepReportWaiting), Checkup: sufficientCheckup()},
			policy: paid,
			want:   model.StatusReportPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Resolve(tt.views, tt.policy, testNow)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.auto, got.AutoRetry)
			assert.Equal(t, tt.policy.RequiresPayment, got.RequiresPayment)
		})
	}
}

func TestResolve_IsDeterministic(t *testing.T) {
	t.Parallel()

	v := Views{Consent: agreed(), Payment: completed(model.StepTilkoSyncing), Checkup: sufficientCheckup(), Report: report(10 * time.Hour)}
	p := Policy{RequiresPayment: true, Validity: testValidity}

	first := Resolve(v, p, testNow)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Resolve(v, p, testNow))
	}
}

func TestResolve_DoesNotMutateViews(t *testing.T) {
	t.Parallel()

	c := agreed()
	c.HasPriorReport = true
	pay := completed(model.StepReportWaiting)
	v := Views{Consent: c, Payment: pay, Checkup: sufficientCheckup()}

	_ = Resolve(v, Policy{RequiresPayment: true}, testNow)

	assert.True(t, c.HasPriorReport)
	assert.Equal(t, model.StepReportWaiting, pay.PipelineStep)
	assert.Empty(t, pay.ReportURL)
}

func TestResolve_ReportURLBeatsStaleFlag(t *testing.T) {
	t.Parallel()

	c := agreed()
	c.HasPriorReport = false
	v := Views{Consent: c, Payment: completed(model.StepReportWaiting), Checkup: sufficientCheckup(), Report: report(time.Hour)}

	got := Resolve(v, Policy{RequiresPayment: true, Validity: testValidity}, testNow)
	assert.Equal(t, model.StatusReportReady, got.Status)
	assert.Equal(t, "https://r/u1", got.ReportURL)
	assert.True(t, got.HasReport)
	assert.False(t, got.StalePriorReport)
}

func TestResolve_StalePriorReportFlagIsIgnored(t *testing.T) {
	t.Parallel()

	c := agreed()
	c.HasPriorReport = true
	v := Views{Consent: c, Payment: completed(model.StepNone), Checkup: sufficientCheckup()}

	got := Resolve(v, Policy{RequiresPayment: true, Validity: testValidity}, testNow)
	assert.Equal(t, model.StatusReportPending, got.Status)
	assert.False(t, got.HasReport)
	assert.True(t, got.StalePriorReport)
}

func TestResolve_ZeroValidityNeverExpires(t *testing.T) {
	t.Parallel()

	v := Views{Consent: agreed(), Report: report(10 * 365 * 24 * time.Hour)}
	assert.Equal(t, model.StatusReportReady, Resolve(v, Policy{}, testNow).Status)
}

// Scenario C: unagreed terms gate regardless of payment or report state.
func TestResolve_TermsGateIndependentOfPayment(t *testing.T) {
	t.Parallel()

	consent := &model.ConsentRecord{UserID: "u1", TermsAgreed: false}
	payments := []*model.PaymentRecord{
		nil,
		{Status: model.PaymentStatusReady},
		completed(model.StepCompleted),
		{Status: model.PaymentStatusFailed, ErrorMessage: "card declined"},
	}
	for _, pay := range payments {
		for _, rep := range []*model.GeneratedReport{nil, report(time.Hour)} {
			v := Views{Consent: consent, Payment: pay, Checkup: sufficientCheckup(), Report: rep}
			got := Reclassify(Resolve(v, Policy{RequiresPayment: true, Validity: testValidity}, testNow), FactsFrom(v))
			assert.True(t, got.Status.IsTermsGate(), "payment=%+v report=%v got %s", pay, rep != nil, got.Status)
		}
	}
}

// Scenario E: a report past its validity window expires even with everything
// else in place.
func TestResolve_ScenarioE_Expired(t *testing.T) {
	t.Parallel()

	v := Views{
		Consent: agreed(),
		Payment: completed(model.StepCompleted),
		Checkup: sufficientCheckup(),
		Report:  report(testValidity + time.Hour),
	}
	got := Reclassify(Resolve(v, Policy{RequiresPayment: true, Validity: testValidity}, testNow), FactsFrom(v))
	assert.Equal(t, model.StatusReportExpired, got.Status)
}

func TestResolve_ExpiredWithRenewalPayment(t *testing.T) {
	t.Parallel()

	old := report(400 * 24 * time.Hour)
	fresh := completed(model.StepNone)
	fresh.UpdatedAt = testNow.Add(-time.Hour)

	v := Views{Consent: agreed(), Payment: fresh, Checkup: sufficientCheckup(), Report: old}
	p := Policy{RequiresPayment: true, Validity: testValidity}

	got := Reclassify(Resolve(v, p, testNow), FactsFrom(v))
	assert.Equal(t, model.StatusReportExpired, got.Status)
	assert.True(t, got.RenewalPaid)
	action, path := NextAction(got)
	assert.Equal(t, model.ActionConfirmGenerate, action)
	assert.Equal(t, PathReportConfirm, path)

	// The payment that bought the old report does not count as a renewal.
	stale := completed(model.StepCompleted)
	stale.UpdatedAt = old.AnalyzedAt.Add(-time.Minute)
	v.Payment = stale
	assert.False(t, Resolve(v, p, testNow).RenewalPaid)

	// Nor does one that already carries its own report.
	linked := completed(model.StepCompleted)
	linked.UpdatedAt = testNow.Add(-time.Hour)
	linked.ReportURL = "https://r/u1-new"
	v.Payment = linked
	assert.False(t, Resolve(v, p, testNow).RenewalPaid)
}

func TestResolve_FreePathPendingCanConfirm(t *testing.T) {
	t.Parallel()

	v := Views{Consent: agreed(), Checkup: sufficientCheckup()}
	got := Reclassify(Resolve(v, Policy{Validity: testValidity}, testNow), FactsFrom(v))
	assert.Equal(t, model.StatusReportPending, got.Status)

	action, _ := NextAction(got)
	assert.Equal(t, model.ActionConfirmGenerate, action)
}
