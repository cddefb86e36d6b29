// Package partner loads per-partner commercial policy: whether a report must
// be paid for and where the partner's widget expects users to be sent.
package partner

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Partner is the policy for one partner integration.
type Partner struct {
	Name            string `yaml:"name"`
	RequiresPayment *bool  `yaml:"requires_payment"`
	Amount          int64  `yaml:"amount"`
	RedirectBase    string `yaml:"redirect_base"`
}

// Policy holds every known partner plus the fallback used for unknown ids
// and for users arriving without a partner.
type Policy struct {
	DefaultRequiresPayment bool               `yaml:"default_requires_payment"`
	DefaultRedirectBase    string             `yaml:"default_redirect_base"`
	Partners               map[string]Partner `yaml:"partners"`
}

// Load reads a YAML policy file. An empty path returns an empty policy with
// the given default.
func Load(path string, defaultRequiresPayment bool) (*Policy, error) {
	if path == "" {
		return &Policy{DefaultRequiresPayment: defaultRequiresPayment}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "partner: read %s", path)
	}
	p := &Policy{DefaultRequiresPayment: defaultRequiresPayment}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, eris.Wrapf(err, "partner: parse %s", path)
	}
	for id, pt := range p.Partners {
		if pt.Amount < 0 {
			return nil, eris.Errorf("partner: %s: amount must be >= 0", id)
		}
	}
	return p, nil
}

// RequiresPayment reports whether users of partnerID must pay before a
// report is generated.
func (p *Policy) RequiresPayment(partnerID string) bool {
	if p == nil {
		return false
	}
	if pt, ok := p.Partners[partnerID]; ok && pt.RequiresPayment != nil {
		return *pt.RequiresPayment
	}
	return p.DefaultRequiresPayment
}

// Amount returns the report price for partnerID, 0 when free or unknown.
func (p *Policy) Amount(partnerID string) int64 {
	if p == nil || !p.RequiresPayment(partnerID) {
		return 0
	}
	return p.Partners[partnerID].Amount
}

// RedirectBase returns the URL prefix redirect targets are resolved against.
func (p *Policy) RedirectBase(partnerID string) string {
	if p == nil {
		return ""
	}
	if pt, ok := p.Partners[partnerID]; ok && pt.RedirectBase != "" {
		return strings.TrimRight(pt.RedirectBase, "/")
	}
	return strings.TrimRight(p.DefaultRedirectBase, "/")
}
