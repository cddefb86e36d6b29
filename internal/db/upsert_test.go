package db

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpsert_DefaultUpdateCols(t *testing.T) {
	sql, err := BuildUpsert(UpsertConfig{
		Table:        "checkup_datasets",
		Columns:      []string{"user_id", "metrics", "updated_at"},
		ConflictKeys: []string{"user_id"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "checkup_datasets" ("user_id", "metrics", "updated_at") VALUES ($1, $2, $3) ON CONFLICT ("user_id") DO UPDATE SET "metrics" = EXCLUDED."metrics", "updated_at" = EXCLUDED."updated_at"`,
		sql)
}

func TestBuildUpsert_Guard(t *testing.T) {
	sql, err := BuildUpsert(UpsertConfig{
		Table:        "generated_reports",
		Columns:      []string{"user_id", "hospital_id", "report_url", "analyzed_at"},
		ConflictKeys: []string{"user_id", "hospital_id"},
		Guard:        `"generated_reports"."analyzed_at" <= EXCLUDED."analyzed_at"`,
	})
	require.NoError(t, err)
	assert.Contains(t, sql, `ON CONFLICT ("user_id", "hospital_id") DO UPDATE SET "report_url" = EXCLUDED."report_url", "analyzed_at" = EXCLUDED."analyzed_at"`)
	assert.Contains(t, sql, `WHERE "generated_reports"."analyzed_at" <= EXCLUDED."analyzed_at"`)
}

func TestBuildUpsert_DoNothing(t *testing.T) {
	sql, err := BuildUpsert(UpsertConfig{
		Table:        "payments",
		Columns:      []string{"id"},
		ConflictKeys: []string{"id"},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "DO NOTHING")
}

func TestBuildUpsert_NoColumns(t *testing.T) {
	_, err := BuildUpsert(UpsertConfig{Table: "payments", ConflictKeys: []string{"id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBuildUpsert_NoConflictKeys(t *testing.T) {
	_, err := BuildUpsert(UpsertConfig{Table: "payments", Columns: []string{"id", "status"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestUpsert_Exec(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO "consents"`).
		WithArgs("u1", "p1", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	n, err := Upsert(context.Background(), mock, UpsertConfig{
		Table:        "consents",
		Columns:      []string{"user_id", "partner_id", "terms_agreed"},
		ConflictKeys: []string{"user_id", "partner_id"},
	}, "u1", "p1", true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_ArgumentMismatch(t *testing.T) {
	_, err := Upsert(context.Background(), nil, UpsertConfig{
		Table:        "consents",
		Columns:      []string{"user_id", "partner_id"},
		ConflictKeys: []string{"user_id"},
	}, "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 values for 2 columns")
}

func TestUpsert_ExecError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO "consents"`).WillReturnError(errors.New("conn closed"))

	_, err = Upsert(context.Background(), mock, UpsertConfig{
		Table:        "consents",
		Columns:      []string{"user_id"},
		ConflictKeys: []string{"user_id"},
	}, "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: upsert consents")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"payments", `"payments"`},
		{"public.payments", `"public"."payments"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
