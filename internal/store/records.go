// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one persisted routing decision. The raw query text is never stored.
type Record struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	AccountID         string    `json:"account_id,omitempty"`
	UserID            string    `json:"user_id,omitempty"`
	Provider          string    `json:"provider"`
	ConversationTurn  int       `json:"conversation_turn"`
	SelectedModel     string    `json:"selected_model"`
	Tier              string    `json:"tier"`
	Score             int       `json:"score"`
	Confidence        float64   `json:"confidence"`
	Reasoning         string    `json:"reasoning"`
	RoutingTimeMs     float64   `json:"routing_time_ms"`
	QueryLength       int       `json:"query_length"`
	MatchedSignals    []string  `json:"matched_signals"`
	Overrides         []string  `json:"overrides"`
	ThresholdsVersion string    `json:"thresholds_version"`
	Outcome           *Outcome  `json:"outcome,omitempty"`
}

// Outcome is written once, after the downstream model call completes.
type Outcome struct {
	RequestSucceeded        bool      `json:"request_succeeded"`
	ResponseTokens          int64     `json:"response_tokens"`
	EstimatedCostMillicents int64     `json:"estimated_cost_millicents"`
	RecordedAt              time.Time `json:"recorded_at"`
}

const decisionColumns = `d.id, d.created_at, d.account_id, d.user_id, d.provider, d.conversation_turn,
	d.selected_model, d.tier, d.score, d.confidence, d.reasoning, d.routing_time_ms, d.query_length,
	d.matched_signals, d.thresholds_version, d.request_succeeded, d.response_tokens,
	d.estimated_cost_millicents, d.outcome_at`

// Insert writes a decision and its ordered overrides in one transaction.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("store: record id is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, s.rebind(`
	INSERT INTO routing_decisions (
		id, created_at, account_id, user_id, provider, conversation_turn,
		selected_model, tier, score, confidence, reasoning, routing_time_ms,
		query_length, matched_signals, thresholds_version
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID,
		rec.CreatedAt,
		rec.AccountID,
		rec.UserID,
		rec.Provider,
		rec.ConversationTurn,
		rec.SelectedModel,
		rec.Tier,
		rec.Score,
		rec.Confidence,
		rec.Reasoning,
		rec.RoutingTimeMs,
		rec.QueryLength,
		strings.Join(rec.MatchedSignals, ","),
		rec.ThresholdsVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}

	for i, typ := range rec.Overrides {
		if _, err := tx.ExecContext(ctx, s.rebind(
			`INSERT INTO routing_overrides (decision_id, position, type) VALUES (?, ?, ?)`),
			rec.ID, i, typ); err != nil {
			return fmt.Errorf("failed to insert override: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit decision: %w", err)
	}
	return nil
}

// UpdateOutcome attaches the outcome to a record. It succeeds at most once per record.
func (s *Store) UpdateOutcome(ctx context.Context, id string, out Outcome) error {
	if out.RecordedAt.IsZero() {
		out.RecordedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
	UPDATE routing_decisions
	SET request_succeeded = ?, response_tokens = ?, estimated_cost_millicents = ?, outcome_at = ?
	WHERE id = ? AND outcome_at IS NULL`),
		out.RequestSucceeded, out.ResponseTokens, out.EstimatedCostMillicents, out.RecordedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update outcome: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM routing_decisions WHERE id = ?`), id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check decision: %w", err)
	}
	return ErrOutcomeRecorded
}

// Get loads one record with its overrides.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var found *Record
	err := s.iterate(ctx, `d.id = ?`, []any{id}, func(r *Record) error {
		found = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// Iterate streams records matching f in creation order.
func (s *Store) Iterate(ctx context.Context, f Filter, fn func(*Record) error) error {
	where, args := f.where()
	return s.iterate(ctx, where, args, fn)
}

// iteratePageSize bounds how many decisions are buffered per page. The rows
// of a page are closed before any callback runs, so a slow consumer never
// pins the connection that writers need.
var iteratePageSize = 256

// iterate walks matching decisions in (created_at, id) order using keyset pagination.
func (s *Store) iterate(ctx context.Context, where string, args []any, fn func(*Record) error) error {
	var after *Record
	for {
		page, err := s.page(ctx, where, args, after)
		if err != nil {
			return err
		}
		for _, rec := range page {
			if err := fn(rec); err != nil {
				return err
			}
		}
		if len(page) < iteratePageSize {
			return nil
		}
		after = page[len(page)-1]
	}
}

// page loads the next page of decisions after the given keyset position,
// then their overrides. No rows are open when it returns.
func (s *Store) page(ctx context.Context, where string, args []any, after *Record) ([]*Record, error) {
	pageArgs := append([]any(nil), args...)
	if after != nil {
		where += ` AND (d.created_at > ? OR (d.created_at = ? AND d.id > ?))`
		pageArgs = append(pageArgs, after.CreatedAt, after.CreatedAt, after.ID)
	}
	query := `SELECT ` + decisionColumns + `
	FROM routing_decisions d
	WHERE ` + where + `
	ORDER BY d.created_at, d.id
	LIMIT ` + strconv.Itoa(iteratePageSize)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	var page []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		page = append(page, rec)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("error iterating decisions: %w", err)
	}

	if err := s.loadOverrides(ctx, page); err != nil {
		return nil, err
	}
	return page, nil
}

// loadOverrides attaches the ordered override types to each record of a page.
func (s *Store) loadOverrides(ctx context.Context, page []*Record) error {
	if len(page) == 0 {
		return nil
	}
	byID := make(map[string]*Record, len(page))
	ids := make([]any, len(page))
	marks := make([]string, len(page))
	for i, rec := range page {
		byID[rec.ID] = rec
		ids[i] = rec.ID
		marks[i] = "?"
	}

	query := `SELECT decision_id, type FROM routing_overrides
	WHERE decision_id IN (` + strings.Join(marks, ", ") + `)
	ORDER BY decision_id, position`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), ids...)
	if err != nil {
		return fmt.Errorf("failed to query overrides: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, typ string
		if err := rows.Scan(&id, &typ); err != nil {
			return fmt.Errorf("failed to scan override: %w", err)
		}
		if rec := byID[id]; rec != nil {
			rec.Overrides = append(rec.Overrides, typ)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating overrides: %w", err)
	}
	return nil
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		rec       Record
		signals   string
		succeeded sql.NullBool
		tokens    sql.NullInt64
		cost      sql.NullInt64
		outcomeAt sql.NullTime
	)
	err := rows.Scan(
		&rec.ID,
		&rec.CreatedAt,
		&rec.AccountID,
		&rec.UserID,
		&rec.Provider,
		&rec.ConversationTurn,
		&rec.SelectedModel,
		&rec.Tier,
		&rec.Score,
		&rec.Confidence,
		&rec.Reasoning,
		&rec.RoutingTimeMs,
		&rec.QueryLength,
		&signals,
		&rec.ThresholdsVersion,
		&succeeded,
		&tokens,
		&cost,
		&outcomeAt,
	)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.MatchedSignals = splitList(signals)
	rec.Overrides = []string{}
	if outcomeAt.Valid {
		rec.Outcome = &Outcome{
			RequestSucceeded:        succeeded.Bool,
			ResponseTokens:          tokens.Int64,
			EstimatedCostMillicents: cost.Int64,
			RecordedAt:              outcomeAt.Time.UTC(),
		}
	}
	return &rec, nil
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

// Prune deletes records created before the cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin prune: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	cutoff := before.UTC()
	if _, err := tx.ExecContext(ctx, s.rebind(`
	DELETE FROM routing_overrides
	WHERE decision_id IN (SELECT id FROM routing_decisions WHERE created_at < ?)`), cutoff); err != nil {
		return 0, fmt.Errorf("failed to prune overrides: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM routing_decisions WHERE created_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune decisions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to prune decisions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return n, nil
}
