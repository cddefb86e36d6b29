package model

// UnifiedStatus is the single authoritative state computed for a user from
// the payment, consent, checkup and report stores.
type UnifiedStatus string

const (
	StatusTermsRequired           UnifiedStatus = "TERMS_REQUIRED"
	StatusTermsRequiredWithData   UnifiedStatus = "TERMS_REQUIRED_WITH_DATA"
	StatusTermsRequiredWithReport UnifiedStatus = "TERMS_REQUIRED_WITH_REPORT"
	StatusReportReady             UnifiedStatus = "REPORT_READY"
	StatusReportExpired           UnifiedStatus = "REPORT_EXPIRED"
	StatusPaymentRequired         UnifiedStatus = "PAYMENT_REQUIRED"
	StatusPaymentFailed           UnifiedStatus = "PAYMENT_FAILED"
	StatusActionRequired          UnifiedStatus = "ACTION_REQUIRED"
	StatusActionRequiredPaid      UnifiedStatus = "ACTION_REQUIRED_PAID"
	StatusReportPending           UnifiedStatus = "REPORT_PENDING"
	StatusReadyToGenerate         UnifiedStatus = "READY_TO_GENERATE"
)

// IsTermsGate reports whether the status is one of the terms agreement
// variants. The variants differ only in UI copy.
func (s UnifiedStatus) IsTermsGate() bool {
	switch s {
	case StatusTermsRequired, StatusTermsRequiredWithData, StatusTermsRequiredWithReport:
		return true
	}
	return false
}

// HasReport reports whether the status is backed by a generated report.
func (s UnifiedStatus) HasReport() bool {
	return s == StatusReportReady || s == StatusReportExpired
}

// Action is the next step the client should take.
type Action string

const (
	ActionShowReport      Action = "show_report"
	ActionAgreeTerms      Action = "agree_terms"
	ActionPay             Action = "pay"
	ActionRetryPayment    Action = "retry_payment"
	ActionReauthenticate  Action = "reauthenticate"
	ActionWait            Action = "wait"
	ActionConfirmGenerate Action = "confirm_generate"
)
