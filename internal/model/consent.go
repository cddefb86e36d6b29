package model

import "time"

// Identity holds the personal fields captured at registration.
type Identity struct {
	Name      string `json:"name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	BirthDate string `json:"birth_date,omitempty"` // YYYYMMDD
	Gender    string `json:"gender,omitempty"`     // M or F
}

// ConsentRecord is a durably registered user, either arriving through a
// partner or through the platform's own membership.
type ConsentRecord struct {
	UserID    string `json:"user_id"`
	PartnerID string `json:"partner_id,omitempty"`
	// HasPriorReport is a cached flag and may be stale. GeneratedReport is
	// the source of truth.
	HasPriorReport bool       `json:"has_prior_report"`
	TermsAgreed    bool       `json:"terms_agreed"`
	TermsAgreedAt  *time.Time `json:"terms_agreed_at,omitempty"`
	Identity       Identity   `json:"identity"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
