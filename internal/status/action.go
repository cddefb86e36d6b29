package status

import (
	"net/url"

	"github.com/partnerhealth/report-core/internal/model"
)

// Redirect paths, relative to the partner's redirect base.
const (
	PathReport        = "/report"
	PathTerms         = "/terms"
	PathPayment       = "/payment"
	PathReauth        = "/auth/tilko"
	PathReportPending = "/report/pending"
	PathReportConfirm = "/report/confirm"
)

// NextAction maps a final resolution onto the client's next step and the
// path it should be sent to.
func NextAction(r Resolution) (model.Action, string) {
	switch r.Status {
	case model.StatusReportReady:
		return model.ActionShowReport, PathReport
	case model.StatusReportExpired:
		if r.RenewalPaid {
			return model.ActionConfirmGenerate, PathReportConfirm
		}
		if r.RequiresPayment {
			return model.ActionPay, PathPayment
		}
		return model.ActionReauthenticate, PathReauth
	case model.StatusTermsRequired, model.StatusTermsRequiredWithData, model.StatusTermsRequiredWithReport:
		return model.ActionAgreeTerms, PathTerms
	case model.StatusPaymentRequired:
		return model.ActionPay, PathPayment
	case model.StatusPaymentFailed:
		return model.ActionRetryPayment, PathPayment
	case model.StatusActionRequired, model.StatusActionRequiredPaid:
		return model.ActionReauthenticate, PathReauth
	case model.StatusReportPending:
		// Without a payment gate nothing else starts generation.
		if !r.RequiresPayment {
			return model.ActionConfirmGenerate, PathReportConfirm
		}
		return model.ActionWait, PathReportPending
	case model.StatusReadyToGenerate:
		return model.ActionConfirmGenerate, PathReportConfirm
	default:
		return model.ActionWait, PathReportPending
	}
}

// RedirectTarget joins base, path and the request context into a URL.
// Empty query values are omitted.
func RedirectTarget(base, path string, q Query) string {
	vals := url.Values{}
	vals.Set("user_id", q.UserID)
	if q.PartnerID != "" {
		vals.Set("partner_id", q.PartnerID)
	}
	if q.HospitalID != "" {
		vals.Set("hospital_id", q.HospitalID)
	}
	return base + path + "?" + vals.Encode()
}
