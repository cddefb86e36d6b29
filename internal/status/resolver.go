// Package status reconciles the payment ledger, consent record, checkup
// dataset and generated report of one user into a single UnifiedStatus.
package status

import (
	"time"

	"github.com/partnerhealth/report-core/internal/model"
)

// Views is everything the resolver reads for one user. Any field may be nil.
type Views struct {
	Payment *model.PaymentRecord
	Consent *model.ConsentRecord
	Checkup *model.CheckupDataset
	Report  *model.GeneratedReport

	// FirstTouch is set when the caller arrived through a partner and no
	// durable record exists yet. Resolution then proceeds as if consent
	// existed with zero data.
	FirstTouch bool
}

// Policy carries the per-request settings the resolver depends on.
type Policy struct {
	RequiresPayment bool
	// Validity is how long a report stays current. Zero never expires.
	Validity time.Duration
}

// Resolution is the outcome of one status resolution.
type Resolution struct {
	Status          model.UnifiedStatus `json:"status"`
	ReportURL       string              `json:"report_url,omitempty"`
	ErrorMessage    string              `json:"error_message,omitempty"`
	AutoRetry       bool                `json:"auto_retry"`
	HasReport       bool                `json:"has_report"`
	HasPayment      bool                `json:"has_payment"`
	RequiresPayment bool                `json:"requires_payment"`
	// RenewalPaid is set on an expired report when a completed payment newer
	// than the report has not produced a replacement yet.
	RenewalPaid bool `json:"renewal_paid,omitempty"`
	// StalePriorReport is set when the consent record claims a prior report
	// that no longer backs onto a GeneratedReport. The flag is ignored.
	StalePriorReport bool `json:"-"`
	// Rule names the classifier rule that changed the base status, if any.
	Rule string `json:"-"`
}

// realPayment hides tracking records, which never count as a payment.
func (v Views) realPayment() *model.PaymentRecord {
	if v.Payment == nil || v.Payment.Ephemeral {
		return nil
	}
	return v.Payment
}

// HasIdentity reports whether any record ties the user to a partner or to
// the platform's membership. A tracking record counts: the user was seen.
func (v Views) HasIdentity() bool {
	return v.Payment != nil || v.Consent != nil
}

// Resolve computes the base status. It is pure: the same views, policy and
// clock always give the same result, and nothing is written.
//
// Rules are evaluated in order and the first match wins. Callers must have
// rejected users with no identity, no report and no first touch beforehand.
func Resolve(v Views, p Policy, now time.Time) Resolution {
	payment := v.realPayment()
	hasReport := v.Report.HasURL()

	res := Resolution{
		HasReport:       hasReport,
		HasPayment:      payment != nil,
		RequiresPayment: p.RequiresPayment,
	}
	if hasReport {
		res.ReportURL = v.Report.ReportURL
	}
	if v.Consent != nil && v.Consent.HasPriorReport && !hasReport {
		res.StalePriorReport = true
	}

	// Identity-only fast path.
	if payment == nil && v.Consent == nil && hasReport {
		res.Status = model.StatusReportReady
		return res
	}

	if v.Consent == nil || !v.Consent.TermsAgreed {
		switch {
		case hasReport:
			res.Status = model.StatusTermsRequiredWithReport
		case v.Checkup.Rows() > 0 || v.Checkup.MetricCount() > 0:
			res.Status = model.StatusTermsRequiredWithData
		default:
			res.Status = model.StatusTermsRequired
		}
		return res
	}

	if hasReport {
		if v.Report.ExpiredAt(now, p.Validity) {
			res.Status = model.StatusReportExpired
			res.RenewalPaid = renewalPaid(payment, v.Report)
		} else {
			res.Status = model.StatusReportReady
		}
		return res
	}

	paid := payment.IsCompleted()
	if p.RequiresPayment && !paid {
		res.Status = model.StatusPaymentRequired
		return res
	}

	if !v.Checkup.IsSufficient() {
		if paid {
			res.Status = model.StatusActionRequiredPaid
			res.AutoRetry = true
		} else {
			res.Status = model.StatusActionRequired
		}
		return res
	}

	res.Status = model.StatusReportPending
	return res
}

// renewalPaid reports whether payment settled after report was analyzed and
// is still waiting for its own report.
func renewalPaid(payment *model.PaymentRecord, report *model.GeneratedReport) bool {
	if !payment.IsCompleted() || payment.ReportURL != "" {
		return false
	}
	return payment.UpdatedAt.After(report.AnalyzedAt)
}
