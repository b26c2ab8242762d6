// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, DriverPostgres), mock
}

func TestRebind(t *testing.T) {
	pg := New(nil, DriverPostgres)
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := New(nil, DriverSQLite)
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestPostgres_Migrate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("confidence DOUBLE PRECISION NOT NULL")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS routing_overrides").WillReturnResult(sqlmock.NewResult(0, 0))
	for i := 0; i < 3; i++ {
		mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, s.Migrate(context.Background()))
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPostgres_InsertUsesTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	rec := sampleRecord("rec-1", base)
	rec.Overrides = []string{"explicit_preference"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO routing_decisions")).
		WithArgs("rec-1", base, "acct-1", "user-1", "anthropic", 1, "claude-3-5-haiku-latest", "simple",
			15, 0.58, rec.Reasoning, 0.12, 2, "short_query,greeting", "v1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO routing_overrides (decision_id, position, type) VALUES ($1, $2, $3)")).
		WithArgs("rec-1", 0, "explicit_preference").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Insert(context.Background(), rec))
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPostgres_InsertRollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO routing_decisions").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.Insert(context.Background(), sampleRecord("rec-1", base))
	assert.ErrorIs(t, err, assert.AnError)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPostgres_UpdateOutcome(t *testing.T) {
	update := regexp.QuoteMeta("WHERE id = $5 AND outcome_at IS NULL")
	lookup := regexp.QuoteMeta("SELECT 1 FROM routing_decisions WHERE id = $1")
	out := Outcome{RequestSucceeded: true, ResponseTokens: 120, EstimatedCostMillicents: 35}

	t.Run("first update", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(update).
			WithArgs(true, int64(120), int64(35), sqlmock.AnyArg(), "rec-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.UpdateOutcome(context.Background(), "rec-1", out))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already recorded", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(lookup).WithArgs("rec-1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		assert.ErrorIs(t, s.UpdateOutcome(context.Background(), "rec-1", out), ErrOutcomeRecorded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing record", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(lookup).WithArgs("rec-9").WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

		assert.ErrorIs(t, s.UpdateOutcome(context.Background(), "rec-9", out), ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgres_TierDistributionFilters(t *testing.T) {
	s, mock := newMockStore(t)
	f := Filter{AccountID: "acct-1", Since: base}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND d.account_id = $1 AND d.created_at >= $2 GROUP BY d.tier")).
		WithArgs("acct-1", base).
		WillReturnRows(sqlmock.NewRows([]string{"tier", "count"}).AddRow("simple", 4).AddRow("complex", 1))

	got, err := s.TierDistribution(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"simple": 4, "complex": 1}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_IteratePagesWithKeyset(t *testing.T) {
	s, mock := newMockStore(t)
	defer func(n int) { iteratePageSize = n }(iteratePageSize)
	iteratePageSize = 1

	cols := []string{"id", "created_at", "account_id", "user_id", "provider", "conversation_turn",
		"selected_model", "tier", "score", "confidence", "reasoning", "routing_time_ms", "query_length",
		"matched_signals", "thresholds_version", "request_succeeded", "response_tokens",
		"estimated_cost_millicents", "outcome_at"}
	row := func(id string) *sqlmock.Rows {
		return sqlmock.NewRows(cols).AddRow(id, base, "acct-1", "", "anthropic", 1, "claude-3-5-haiku-latest",
			"simple", 15, 0.58, "", 0.1, 2, "greeting", "v1", nil, nil, nil, nil)
	}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND d.account_id = $1 ORDER BY d.created_at, d.id LIMIT 1")).
		WithArgs("acct-1").
		WillReturnRows(row("rec-1"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE decision_id IN ($1)")).
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"decision_id", "type"}).AddRow("rec-1", "cache_coherence"))
	mock.ExpectQuery(regexp.QuoteMeta("AND (d.created_at > $2 OR (d.created_at = $3 AND d.id > $4))")).
		WithArgs("acct-1", base, base, "rec-1").
		WillReturnRows(sqlmock.NewRows(cols))

	var got []*Record
	err := s.Iterate(context.Background(), Filter{AccountID: "acct-1"}, func(r *Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"cache_coherence"}, got[0].Overrides)
	assert.Equal(t, []string{"greeting"}, got[0].MatchedSignals)
	assert.NoError(t, mock.ExpectationsWereMet())
}
