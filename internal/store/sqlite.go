package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/partnerhealth/report-core/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development, single-node deployments and integration-style tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Timestamps are stored as fixed-width UTC text so that string comparison
// in SQL matches time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS payments (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	partner_id    TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	amount        INTEGER NOT NULL DEFAULT 0,
	pipeline_step TEXT NOT NULL DEFAULT '',
	report_url    TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	ephemeral     INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payments_user_partner ON payments(user_id, partner_id, updated_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_tracking ON payments(user_id, partner_id) WHERE ephemeral = 1;

CREATE TABLE IF NOT EXISTS consents (
	user_id          TEXT NOT NULL,
	partner_id       TEXT NOT NULL DEFAULT '',
	has_prior_report INTEGER NOT NULL DEFAULT 0,
	terms_agreed     INTEGER NOT NULL DEFAULT 0,
	terms_agreed_at  TEXT,
	identity         TEXT NOT NULL DEFAULT '{}',
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	PRIMARY KEY (user_id, partner_id)
);

CREATE TABLE IF NOT EXISTS checkup_datasets (
	user_id            TEXT PRIMARY KEY,
	source             TEXT NOT NULL DEFAULT '',
	metrics            TEXT NOT NULL DEFAULT '{}',
	checkup_count      INTEGER NOT NULL DEFAULT 0,
	prescription_count INTEGER NOT NULL DEFAULT 0,
	checkup_date       TEXT NOT NULL DEFAULT '',
	updated_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS generated_reports (
	user_id      TEXT NOT NULL,
	hospital_id  TEXT NOT NULL DEFAULT '',
	report_url   TEXT NOT NULL DEFAULT '',
	risk_score   REAL NOT NULL DEFAULT 0,
	rank         INTEGER NOT NULL DEFAULT 0,
	disease_data TEXT,
	cancer_data  TEXT,
	analyzed_at  TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	PRIMARY KEY (user_id, hospital_id)
);

CREATE TABLE IF NOT EXISTS generation_attempts (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	hospital_id  TEXT NOT NULL DEFAULT '',
	triggered_by TEXT NOT NULL DEFAULT '',
	outcome      TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_generation_attempts_created ON generation_attempts(created_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Payment ledger ---

const sqlitePaymentColumns = `id, user_id, partner_id, status, amount, pipeline_step, report_url, error_message, ephemeral, created_at, updated_at`

func (s *SQLiteStore) GetPayment(ctx context.Context, userID, partnerID string) (*model.PaymentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePaymentColumns+` FROM payments
		 WHERE user_id = ? AND (? = '' OR partner_id = ?)
		 ORDER BY ephemeral ASC, updated_at DESC LIMIT 1`,
		userID, partnerID, partnerID,
	)
	p, err := scanSQLitePayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get payment for %s", userID)
	}
	return p, nil
}

func (s *SQLiteStore) UpsertPayment(ctx context.Context, p *model.PaymentRecord) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (`+sqlitePaymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			status = excluded.status, amount = excluded.amount, pipeline_step = excluded.pipeline_step,
			report_url = excluded.report_url, error_message = excluded.error_message,
			ephemeral = excluded.ephemeral, updated_at = excluded.updated_at`,
		p.ID, p.UserID, p.PartnerID, string(p.Status), p.Amount, string(p.PipelineStep),
		p.ReportURL, p.ErrorMessage, p.Ephemeral, sqliteTime(p.CreatedAt), sqliteTime(p.UpdatedAt),
	)
	return eris.Wrapf(err, "sqlite: upsert payment %s", p.ID)
}

func (s *SQLiteStore) CreateTrackingRecord(ctx context.Context, userID, partnerID string) (*model.PaymentRecord, error) {
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

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO payments (id, user_id, partner_id, status, ephemeral, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)`,
		p.ID, userID, partnerID, string(p.Status), sqliteTime(now), sqliteTime(now),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: create tracking record for %s", userID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.GetPayment(ctx, userID, partnerID)
	}
	// Truncate to the stored precision so callers compare equal to a re-read.
	p.CreatedAt, _ = parseSQLiteTime(sqliteTime(now))
	p.UpdatedAt = p.CreatedAt
	return p, nil
}

func (s *SQLiteStore) AdvancePipeline(ctx context.Context, paymentID string, step model.PipelineStep, reportURL string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payments SET pipeline_step = ?, report_url = ?, updated_at = ? WHERE id = ?`,
		string(step), reportURL, sqliteTime(time.Now()), paymentID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: advance pipeline %s", paymentID)
	}
	return checkRowsAffected(res, "payment", paymentID)
}

func (s *SQLiteStore) ListStuckPayments(ctx context.Context, updatedBefore time.Time, limit int) ([]model.PaymentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqlitePaymentColumns+` FROM payments
		 WHERE status = ? AND ephemeral = 0 AND report_url = '' AND updated_at < ?
		 ORDER BY updated_at ASC LIMIT ?`,
		string(model.PaymentStatusCompleted), sqliteTime(updatedBefore), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stuck payments")
	}
	defer rows.Close()

	var out []model.PaymentRecord
	for rows.Next() {
		p, err := scanSQLitePayment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stuck payment")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate stuck payments")
}

// --- Consent ---

func (s *SQLiteStore) GetConsent(ctx context.Context, userID, partnerID string) (*model.ConsentRecord, error) {
	var c model.ConsentRecord
	var identityJSON, createdAt, updatedAt string
	var agreedAt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, partner_id, has_prior_report, terms_agreed, terms_agreed_at, identity, created_at, updated_at
		 FROM consents
		 WHERE user_id = ? AND (? = '' OR partner_id = ?)
		 ORDER BY updated_at DESC LIMIT 1`,
		userID, partnerID, partnerID,
	).Scan(&c.UserID, &c.PartnerID, &c.HasPriorReport, &c.TermsAgreed, &agreedAt, &identityJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get consent for %s", userID)
	}
	if err := json.Unmarshal([]byte(identityJSON), &c.Identity); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal identity")
	}
	if agreedAt.Valid {
		t, err := parseSQLiteTime(agreedAt.String)
		if err != nil {
			return nil, err
		}
		c.TermsAgreedAt = &t
	}
	if c.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) UpsertConsent(ctx context.Context, c *model.ConsentRecord) error {
	identityJSON, err := json.Marshal(c.Identity)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal identity")
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	var agreedAt any
	if c.TermsAgreedAt != nil {
		agreedAt = sqliteTime(*c.TermsAgreedAt)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO consents (user_id, partner_id, has_prior_report, terms_agreed, terms_agreed_at, identity, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, partner_id) DO UPDATE SET
			has_prior_report = excluded.has_prior_report, terms_agreed = excluded.terms_agreed,
			terms_agreed_at = excluded.terms_agreed_at, identity = excluded.identity,
			updated_at = excluded.updated_at`,
		c.UserID, c.PartnerID, c.HasPriorReport, c.TermsAgreed, agreedAt, string(identityJSON),
		sqliteTime(c.CreatedAt), sqliteTime(c.UpdatedAt),
	)
	return eris.Wrapf(err, "sqlite: upsert consent %s", c.UserID)
}

// --- Checkup data ---

func (s *SQLiteStore) GetCheckupSummary(ctx context.Context, userID string) (*model.CheckupDataset, error) {
	var d model.CheckupDataset
	var metricsJSON, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, source, metrics, checkup_count, prescription_count, checkup_date, updated_at
		 FROM checkup_datasets WHERE user_id = ?`,
		userID,
	).Scan(&d.UserID, &d.Source, &metricsJSON, &d.CheckupCount, &d.PrescriptionCount, &d.CheckupDate, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get checkup for %s", userID)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &d.Metrics); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal metrics")
	}
	if d.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLiteStore) UpsertCheckup(ctx context.Context, d *model.CheckupDataset) error {
	metricsJSON, err := json.Marshal(d.Metrics)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metrics")
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkup_datasets (user_id, source, metrics, checkup_count, prescription_count, checkup_date, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			source = excluded.source, metrics = excluded.metrics, checkup_count = excluded.checkup_count,
			prescription_count = excluded.prescription_count, checkup_date = excluded.checkup_date,
			updated_at = excluded.updated_at`,
		d.UserID, d.Source, string(metricsJSON), d.CheckupCount, d.PrescriptionCount, d.CheckupDate, sqliteTime(d.UpdatedAt),
	)
	return eris.Wrapf(err, "sqlite: upsert checkup %s", d.UserID)
}

// --- Reports ---

func (s *SQLiteStore) GetReport(ctx context.Context, userID, hospitalID string) (*model.GeneratedReport, error) {
	var r model.GeneratedReport
	var disease, cancer sql.NullString
	var analyzedAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, hospital_id, report_url, risk_score, rank, disease_data, cancer_data, analyzed_at, updated_at
		 FROM generated_reports
		 WHERE user_id = ? AND (? = '' OR hospital_id = ?)
		 ORDER BY analyzed_at DESC LIMIT 1`,
		userID, hospitalID, hospitalID,
	).Scan(&r.UserID, &r.HospitalID, &r.ReportURL, &r.RiskScore, &r.Rank, &disease, &cancer, &analyzedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report for %s", userID)
	}
	if disease.Valid {
		r.DiseaseData = json.RawMessage(disease.String)
	}
	if cancer.Valid {
		r.CancerData = json.RawMessage(cancer.String)
	}
	if r.AnalyzedAt, err = parseSQLiteTime(analyzedAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) UpsertReport(ctx context.Context, r *model.GeneratedReport) error {
	if r.AnalyzedAt.IsZero() {
		r.AnalyzedAt = time.Now().UTC()
	}
	r.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generated_reports (user_id, hospital_id, report_url, risk_score, rank, disease_data, cancer_data, analyzed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, hospital_id) DO UPDATE SET
			report_url = excluded.report_url, risk_score = excluded.risk_score, rank = excluded.rank,
			disease_data = excluded.disease_data, cancer_data = excluded.cancer_data,
			analyzed_at = excluded.analyzed_at, updated_at = excluded.updated_at
		 WHERE generated_reports.analyzed_at <= excluded.analyzed_at`,
		r.UserID, r.HospitalID, r.ReportURL, r.RiskScore, r.Rank,
		nullString(r.DiseaseData), nullString(r.CancerData), sqliteTime(r.AnalyzedAt), sqliteTime(r.UpdatedAt),
	)
	return eris.Wrapf(err, "sqlite: upsert report %s/%s", r.UserID, r.HospitalID)
}

// --- Generation log ---

func (s *SQLiteStore) RecordGeneration(ctx context.Context, a *model.GenerationAttempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generation_attempts (id, user_id, hospital_id, triggered_by, outcome, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.HospitalID, a.Trigger, string(a.Outcome), a.Error, a.DurationMs, sqliteTime(a.CreatedAt),
	)
	return eris.Wrap(err, "sqlite: record generation")
}

func (s *SQLiteStore) GenerationStats(ctx context.Context, since time.Time) (*model.GenerationStats, error) {
	var st model.GenerationStats
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*), COALESCE(SUM(CASE WHEN outcome IN (?, ?) THEN 1 ELSE 0 END), 0)
		 FROM generation_attempts WHERE created_at >= ?`,
		string(model.OutcomeScoringError), string(model.OutcomePersistError), sqliteTime(since),
	).Scan(&st.Total, &st.Failed)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: generation stats")
	}
	return &st, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLitePayment(row scannable) (*model.PaymentRecord, error) {
	var p model.PaymentRecord
	var status, createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.UserID, &p.PartnerID, &status, &p.Amount, &p.RawStep,
		&p.ReportURL, &p.ErrorMessage, &p.Ephemeral, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	p.PipelineStep = model.ParsePipelineStep(p.RawStep)
	if p.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func nullString(m json.RawMessage) any {
	if len(m) == 0 {
		return nil
	}
	return string(m)
}
