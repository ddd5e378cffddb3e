package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/assessmentreport/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &sessionRepoPG{pool: pool}
}

func (r *sessionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *sessionRepoPG) Create(ctx context.Context, rec *Record) error {
	raw, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.SessionID, err)
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO assessment_session (session_id, assessment_id, data)
		VALUES ($1, $2, $3::jsonb)
		RETURNING created_at`,
		rec.SessionID, rec.AssessmentID, string(raw)).Scan(&rec.CreatedAt)
	if db.IsUniqueViolation(err) {
		return ErrSessionExists
	}
	return err
}

func (r *sessionRepoPG) GetBySessionID(ctx context.Context, sessionID string) (*Record, error) {
	var (
		rec Record
		raw []byte
	)
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT session_id, assessment_id, data, created_at
		FROM assessment_session WHERE session_id = $1`, sessionID).
		Scan(&rec.SessionID, &rec.AssessmentID, &raw, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &rec.Data); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &rec, nil
}

func (r *sessionRepoPG) List(ctx context.Context, limit, offset int) ([]Summary, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM assessment_session`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT session_id, assessment_id FROM assessment_session
		ORDER BY created_at DESC, session_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := scanSummaries(rows)
	return items, total, err
}

func (r *sessionRepoPG) ListAll(ctx context.Context) ([]Summary, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT session_id, assessment_id FROM assessment_session
		ORDER BY created_at DESC, session_id`)
	if err != nil {
		return nil, err
	}
	return scanSummaries(rows)
}

func scanSummaries(rows pgx.Rows) ([]Summary, error) {
	defer rows.Close()
	items := []Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.SessionID, &s.AssessmentID); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
