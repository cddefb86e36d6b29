package status

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/partnerhealth/report-core/internal/model"
	"github.com/partnerhealth/report-core/internal/monitoring"
	"github.com/partnerhealth/report-core/internal/partner"
	"github.com/partnerhealth/report-core/internal/store"
)

// Query identifies whose status to resolve. PartnerID and HospitalID only
// select rows when a user is reachable through several partners.
type Query struct {
	UserID     string `json:"user_id"`
	PartnerID  string `json:"partner_id,omitempty"`
	HospitalID string `json:"hospital_id,omitempty"`
}

// Result is a resolution plus what the client should do next.
type Result struct {
	Resolution
	Action         model.Action `json:"action"`
	RedirectTarget string       `json:"redirect_target"`
}

// Service loads a user's views and resolves them.
type Service struct {
	store    store.Store
	partners *partner.Policy
	validity time.Duration
	now      func() time.Time
}

// NewService creates a status service. validity is the report lifetime.
func NewService(st store.Store, partners *partner.Policy, validity time.Duration) *Service {
	return &Service{
		store:    st,
		partners: partners,
		validity: validity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Status resolves the unified status for q.
//
// A user with no payment, consent or report is a NotFoundError unless a
// partner id is supplied, which marks a first touch: a tracking record is
// created best-effort and resolution continues.
func (s *Service) Status(ctx context.Context, q Query) (*Result, error) {
	q.UserID = strings.TrimSpace(q.UserID)
	if q.UserID == "" {
		return nil, &model.ValidationError{Field: "user_id", Reason: "required"}
	}

	log := zap.L().With(
		zap.String("component", "status"),
		zap.String("user_id", q.UserID),
		zap.String("partner_id", q.PartnerID),
	)

	v, err := s.Load(ctx, q)
	if err != nil {
		return nil, err
	}

	if !v.HasIdentity() && !v.Report.HasURL() {
		if q.PartnerID == "" {
			return nil, eris.Wrap(&model.NotFoundError{UserID: q.UserID}, "status: resolve")
		}
		v.FirstTouch = true
		if rec, err := s.store.CreateTrackingRecord(ctx, q.UserID, q.PartnerID); err != nil {
			log.Warn("status: tracking record not created, continuing", zap.Error(err))
			monitoring.RecordTrackingRecord(err)
		} else {
			v.Payment = rec
			monitoring.RecordTrackingRecord(nil)
		}
	}

	partnerID := s.partnerFor(q, v)
	base := Resolve(v, Policy{
		RequiresPayment: s.partners.RequiresPayment(partnerID),
		Validity:        s.validity,
	}, s.now())

	if base.StalePriorReport {
		log.Info("status: has_prior_report set without a backing report, ignoring flag")
	}
	if p := v.Payment; p != nil && p.PipelineStep == model.StepUnknown {
		log.Warn("status: unrecognised pipeline step",
			zap.String("payment_id", p.ID),
			zap.String("raw_step", p.RawStep),
		)
	}

	res := Reclassify(base, FactsFrom(v))
	if res.Status != base.Status {
		log.Info("status: reclassified",
			zap.String("from", string(base.Status)),
			zap.String("to", string(res.Status)),
			zap.String("rule", res.Rule),
		)
	}
	monitoring.RecordResolution(string(res.Status), res.Status != base.Status)

	action, path := NextAction(res)
	return &Result{
		Resolution:     res,
		Action:         action,
		RedirectTarget: RedirectTarget(s.partners.RedirectBase(partnerID), path, q),
	}, nil
}

// Load reads the four views concurrently. Missing records are nil.
func (s *Service) Load(ctx context.Context, q Query) (Views, error) {
	var v Views
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p, err := s.store.GetPayment(gCtx, q.UserID, q.PartnerID)
		if err != nil {
			return eris.Wrap(err, "status: load payment")
		}
		v.Payment = p
		return nil
	})
	g.Go(func() error {
		c, err := s.store.GetConsent(gCtx, q.UserID, q.PartnerID)
		if err != nil {
			return eris.Wrap(err, "status: load consent")
		}
		v.Consent = c
		return nil
	})
	g.Go(func() error {
		d, err := s.store.GetCheckupSummary(gCtx, q.UserID)
		if err != nil {
			return eris.Wrap(err, "status: load checkup")
		}
		v.Checkup = d
		return nil
	})
	g.Go(func() error {
		r, err := s.store.GetReport(gCtx, q.UserID, q.HospitalID)
		if err != nil {
			return eris.Wrap(err, "status: load report")
		}
		v.Report = r
		return nil
	})

	if err := g.Wait(); err != nil {
		return Views{}, err
	}
	return v, nil
}

// partnerFor picks the partner whose policy applies: the request's, else the
// one recorded on the loaded rows.
func (s *Service) partnerFor(q Query, v Views) string {
	switch {
	case q.PartnerID != "":
		return q.PartnerID
	case v.Payment != nil && v.Payment.PartnerID != "":
		return v.Payment.PartnerID
	case v.Consent != nil:
		return v.Consent.PartnerID
	default:
		return ""
	}
}
