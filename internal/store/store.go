package store

import (
	"context"
	"time"

	"github.com/partnerhealth/report-core/internal/model"
)

// Store is the record store adapter over the payment ledger, consent
// records, checkup datasets and generated reports. Every writer upserts on
// the natural key, so concurrent writers converge without app-level locks.
//
// Getters return (nil, nil) when the record does not exist.
type Store interface {
	// Payment ledger
	GetPayment(ctx context.Context, userID, partnerID string) (*model.PaymentRecord, error)
	UpsertPayment(ctx context.Context, p *model.PaymentRecord) error
	CreateTrackingRecord(ctx context.Context, userID, partnerID string) (*model.PaymentRecord, error)
	AdvancePipeline(ctx context.Context, paymentID string, step model.PipelineStep, reportURL string) error
	ListStuckPayments(ctx context.Context, updatedBefore time.Time, limit int) ([]model.PaymentRecord, error)

	// Consent
	GetConsent(ctx context.Context, userID, partnerID string) (*model.ConsentRecord, error)
	UpsertConsent(ctx context.Context, c *model.ConsentRecord) error

	// Checkup data
	GetCheckupSummary(ctx context.Context, userID string) (*model.CheckupDataset, error)
	UpsertCheckup(ctx context.Context, d *model.CheckupDataset) error

	// Reports
	GetReport(ctx context.Context, userID, hospitalID string) (*model.GeneratedReport, error)
	UpsertReport(ctx context.Context, r *model.GeneratedReport) error

	// Generation log
	RecordGeneration(ctx context.Context, a *model.GenerationAttempt) error
	GenerationStats(ctx context.Context, since time.Time) (*model.GenerationStats, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
