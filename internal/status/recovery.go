package status

import "github.com/partnerhealth/report-core/internal/model"

// Facts are the signals the recovery classifier looks at.
type Facts struct {
	Payment           *model.PaymentRecord
	CheckupCount      int
	PrescriptionCount int
	HasReport         bool
}

// FactsFrom extracts classifier facts from loaded views.
func FactsFrom(v Views) Facts {
	return Facts{
		Payment:           v.realPayment(),
		CheckupCount:      v.Checkup.Rows(),
		PrescriptionCount: v.Checkup.Prescriptions(),
		HasReport:         v.Report.HasURL(),
	}
}

// rule inspects the current status and returns a replacement when it fires.
type rule struct {
	name  string
	apply func(model.UnifiedStatus, Facts) (model.UnifiedStatus, bool)
}

// recoveryRules run left to right; a later rule sees and may override the
// output of an earlier one.
var recoveryRules = []rule{
	{name: "ready_to_generate", apply: readyToGenerate},
	{name: "data_leg_unfinished", apply: dataLegUnfinished},
}

// Reclassify remaps a base resolution when the facts show a pipeline that was
// interrupted after payment.
//
// A failed payment short-circuits everything except the terms gate. The
// remaining rules only run for a completed payment and never touch a status
// backed by a report or a terms gate.
func Reclassify(base Resolution, f Facts) Resolution {
	out := base

	if f.Payment != nil && f.Payment.Status == model.PaymentStatusFailed && !base.Status.IsTermsGate() {
		out.Status = model.StatusPaymentFailed
		out.ErrorMessage = f.Payment.ErrorMessage
		out.AutoRetry = false
		out.Rule = "payment_failed"
		return out
	}

	if !f.Payment.IsCompleted() || base.Status.HasReport() || base.Status.IsTermsGate() {
		return out
	}

	status := base.Status
	for _, r := range recoveryRules {
		if next, ok := r.apply(status, f); ok {
			status = next
			out.Rule = r.name
		}
	}
	if status == base.Status {
		out.Rule = base.Rule
		return out
	}

	out.Status = status
	out.AutoRetry = status == model.StatusActionRequiredPaid
	return out
}

// readyToGenerate turns a blind pending spinner into a confirm prompt when the
// data is there but nothing was generated.
func readyToGenerate(s model.UnifiedStatus, f Facts) (model.UnifiedStatus, bool) {
	if s == model.StatusReportPending && !f.HasReport && f.CheckupCount > 0 {
		return model.StatusReadyToGenerate, true
	}
	return s, false
}

// dataLegUnfinished catches payments whose data-collection leg never
// completed.
func dataLegUnfinished(s model.UnifiedStatus, f Facts) (model.UnifiedStatus, bool) {
	step := f.Payment.PipelineStep
	switch {
	case step.IsPreData():
		return model.StatusActionRequiredPaid, true
	case step.IsSet() && f.PrescriptionCount == 0:
		return model.StatusActionRequiredPaid, true
	}
	return s, false
}
