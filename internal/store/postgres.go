package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/partnerhealth/report-core/internal/db"
	"github.com/partnerhealth/report-core/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	if minConns > maxConns {
		minConns = maxConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return eris.Wrap(db.Migrate(ctx, s.pool, migrationFS, "migrations"), "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Payment ledger ---

var paymentUpsert = db.UpsertConfig{
	Table:        "payments",
	Columns:      []string{"id", "user_id", "partner_id", "status", "amount", "pipeline_step", "report_url", "error_message", "ephemeral", "created_at", "updated_at"},
	ConflictKeys: []string{"id"},
	UpdateCols:   []string{"status", "amount", "pipeline_step", "report_url", "error_message", "ephemeral", "updated_at"},
}

const paymentColumns = `id, user_id, partner_id, status, amount, pipeline_step, report_url, error_message, ephemeral, created_at, updated_at`

func (s *PostgresStore) GetPayment(ctx context.Context, userID, partnerID string) (*model.PaymentRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE user_id = $1 AND ($2 = '' OR partner_id = $2)
		 ORDER BY ephemeral ASC, updated_at DESC LIMIT 1`,
		userID, partnerID,
	)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get payment for %s", userID)
	}
	return p, nil
}

func (s *PostgresStore) UpsertPayment(ctx context.Context, p *model.PaymentRecord) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := db.Upsert(ctx, s.pool, paymentUpsert,
		p.ID, p.UserID, p.PartnerID, string(p.Status), p.Amount, string(p.PipelineStep),
		p.ReportURL, p.ErrorMessage, p.Ephemeral, p.CreatedAt, p.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert payment %s", p.ID)
}

// CreateTrackingRecord inserts the READY placeholder for a first-touch user.
// A concurrent first touch loses on the partial unique index and the
// existing placeholder is returned instead.
func (s *PostgresStore) CreateTrackingRecord(ctx context.Context, userID, partnerID string) (*model.PaymentRecord, error) {
	now := time.Now().UTC()
	p := &model.PaymentRecord{
		ID:        model.TrackingIDPrefix + uuid.New().String(),
		UserID:    userID,
		PartnerID: partnerID,
		Status:    model.PaymentStatusReady,
		Ephemeral: true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO payments (id, user_id, partner_id, status, ephemeral, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, true, $5, $6)
		 ON CONFLICT DO NOTHING`,
		p.ID, userID, partnerID, string(p.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: create tracking record for %s", userID)
	}
	if tag.RowsAffected() == 0 {
		return s.GetPayment(ctx, userID, partnerID)
	}
	return p, nil
}

func (s *PostgresStore) AdvancePipeline(ctx context.Context, paymentID string, step model.PipelineStep, reportURL string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payments SET pipeline_step = $1, report_url = $2, updated_at = $3 WHERE id = $4`,
		string(step), reportURL, time.Now().UTC(), paymentID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: advance pipeline %s", paymentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("payment not found: %s", paymentID)
	}
	return nil
}

func (s *PostgresStore) ListStuckPayments(ctx context.Context, updatedBefore time.Time, limit int) ([]model.PaymentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status = $1 AND NOT ephemeral AND report_url = '' AND updated_at < $2
		 ORDER BY updated_at ASC LIMIT $3`,
		string(model.PaymentStatusCompleted), updatedBefore.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stuck payments")
	}
	defer rows.Close()

	var out []model.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan stuck payment")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate stuck payments")
}

// --- Consent ---

var consentUpsert = db.UpsertConfig{
	Table:        "consents",
	Columns:      []string{"user_id", "partner_id", "has_prior_report", "terms_agreed", "terms_agreed_at", "identity", "created_at", "updated_at"},
	ConflictKeys: []string{"user_id", "partner_id"},
	UpdateCols:   []string{"has_prior_report", "terms_agreed", "terms_agreed_at", "identity", "updated_at"},
}

func (s *PostgresStore) GetConsent(ctx context.Context, userID, partnerID string) (*model.ConsentRecord, error) {
	var c model.ConsentRecord
	var identityJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, partner_id, has_prior_report, terms_agreed, terms_agreed_at, identity, created_at, updated_at
		 FROM consents
		 WHERE user_id = $1 AND ($2 = '' OR partner_id = $2)
		 ORDER BY updated_at DESC LIMIT 1`,
		userID, partnerID,
	).Scan(&c.UserID, &c.PartnerID, &c.HasPriorReport, &c.TermsAgreed, &c.TermsAgreedAt, &identityJSON, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get consent for %s", userID)
	}
	if len(identityJSON) > 0 {
		if err := json.Unmarshal(identityJSON, &c.Identity); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal identity")
		}
	}
	return &c, nil
}

func (s *PostgresStore) UpsertConsent(ctx context.Context, c *model.ConsentRecord) error {
	identityJSON, err := json.Marshal(c.Identity)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal identity")
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err = db.Upsert(ctx, s.pool, consentUpsert,
		c.UserID, c.PartnerID, c.HasPriorReport, c.TermsAgreed, c.TermsAgreedAt, identityJSON, c.CreatedAt, c.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert consent %s", c.UserID)
}

// --- Checkup data ---

var checkupUpsert = db.UpsertConfig{
	Table:        "checkup_datasets",
	Columns:      []string{"user_id", "source", "metrics", "checkup_count", "prescription_count", "checkup_date", "updated_at"},
	ConflictKeys: []string{"user_id"},
}

func (s *PostgresStore) GetCheckupSummary(ctx context.Context, userID string) (*model.CheckupDataset, error) {
	var d model.CheckupDataset
	var metricsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, source, metrics, checkup_count, prescription_count, checkup_date, updated_at
		 FROM checkup_datasets WHERE user_id = $1`,
		userID,
	).Scan(&d.UserID, &d.Source, &metricsJSON, &d.CheckupCount, &d.PrescriptionCount, &d.CheckupDate, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get checkup for %s", userID)
	}
	if err := json.Unmarshal(metricsJSON, &d.Metrics); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal metrics")
	}
	return &d, nil
}

func (s *PostgresStore) UpsertCheckup(ctx context.Context, d *model.CheckupDataset) error {
	metricsJSON, err := json.Marshal(d.Metrics)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal metrics")
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	_, err = db.Upsert(ctx, s.pool, checkupUpsert,
		d.UserID, d.Source, metricsJSON, d.CheckupCount, d.PrescriptionCount, d.CheckupDate, d.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert checkup %s", d.UserID)
}

// --- Reports ---

// reportUpsert keeps the row with the latest analyzed_at when two
// generations race on the same (user, hospital).
var reportUpsert = db.UpsertConfig{
	Table:        "generated_reports",
	Columns:      []string{"user_id", "hospital_id", "report_url", "risk_score", "rank", "disease_data", "cancer_data", "analyzed_at", "updated_at"},
	ConflictKeys: []string{"user_id", "hospital_id"},
	Guard:        `"generated_reports"."analyzed_at" <= EXCLUDED."analyzed_at"`,
}

func (s *PostgresStore) GetReport(ctx context.Context, userID, hospitalID string) (*model.GeneratedReport, error) {
	var r model.GeneratedReport
	var disease, cancer []byte
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, hospital_id, report_url, risk_score, rank, disease_data, cancer_data, analyzed_at, updated_at
		 FROM generated_reports
		 WHERE user_id = $1 AND ($2 = '' OR hospital_id = $2)
		 ORDER BY analyzed_at DESC LIMIT 1`,
		userID, hospitalID,
	).Scan(&r.UserID, &r.HospitalID, &r.ReportURL, &r.RiskScore, &r.Rank, &disease, &cancer, &r.AnalyzedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report for %s", userID)
	}
	r.DiseaseData = nullableJSON(disease)
	r.CancerData = nullableJSON(cancer)
	return &r, nil
}

func (s *PostgresStore) UpsertReport(ctx context.Context, r *model.GeneratedReport) error {
	if r.AnalyzedAt.IsZero() {
		r.AnalyzedAt = time.Now().UTC()
	}
	r.UpdatedAt = time.Now().UTC()
	_, err := db.Upsert(ctx, s.pool, reportUpsert,
		r.UserID, r.HospitalID, r.ReportURL, r.RiskScore, r.Rank,
		jsonArg(r.DiseaseData), jsonArg(r.CancerData), r.AnalyzedAt, r.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert report %s/%s", r.UserID, r.HospitalID)
}

// --- Generation log ---

func (s *PostgresStore) RecordGeneration(ctx context.Context, a *model.GenerationAttempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO generation_attempts (id, user_id, hospital_id, triggered_by, outcome, error, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.UserID, a.HospitalID, a.Trigger, string(a.Outcome), a.Error, a.DurationMs, a.CreatedAt,
	)
	return eris.Wrap(err, "postgres: record generation")
}

func (s *PostgresStore) GenerationStats(ctx context.Context, since time.Time) (*model.GenerationStats, error) {
	var st model.GenerationStats
	err := s.pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE outcome IN ($2, $3))
		 FROM generation_attempts WHERE created_at >= $1`,
		since.UTC(), string(model.OutcomeScoringError), string(model.OutcomePersistError),
	).Scan(&st.Total, &st.Failed)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: generation stats")
	}
	return &st, nil
}

func scanPayment(row scannable) (*model.PaymentRecord, error) {
	var p model.PaymentRecord
	var status string
	err := row.Scan(&p.ID, &p.UserID, &p.PartnerID, &status, &p.Amount, &p.RawStep,
		&p.ReportURL, &p.ErrorMessage, &p.Ephemeral, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	p.PipelineStep = model.ParsePipelineStep(p.RawStep)
	return &p, nil
}

func nullableJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}

// jsonArg passes nil for empty JSON so the column stays NULL.
func jsonArg(m json.RawMessage) any {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
