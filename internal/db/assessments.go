package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/pain-assessment/internal/types"
)

const assessmentColumns = `id, session_id, email, full_name, phone, date_of_birth, pain_areas,
	red_flags, treatment_goals, detail, ai_summary, urgency, created_at`

// SaveAssessment inserts a record and fills in its ID and CreatedAt.
func (db *DB) SaveAssessment(ctx context.Context, a *Assessment) (uuid.UUID, error) {
	areas, err := json.Marshal(a.PainAreas)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal pain areas: %w", err)
	}
	flags, err := json.Marshal(a.RedFlags)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal red flags: %w", err)
	}
	var detail []byte
	if a.Detail != nil {
		if detail, err = json.Marshal(a.Detail); err != nil {
			return uuid.Nil, fmt.Errorf("failed to marshal assessment detail: %w", err)
		}
	}

	err = db.pool.QueryRow(ctx,
		`INSERT INTO assessments (session_id, email, full_name, phone, date_of_birth, pain_areas,
		     red_flags, treatment_goals, detail, ai_summary, urgency)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at`,
		a.SessionID, a.Email, a.FullName, a.Phone, a.DateOfBirth, areas,
		flags, a.TreatmentGoals, detail, a.AISummary, string(a.Urgency),
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to save assessment: %w", err)
	}
	return a.ID, nil
}

// GetAssessment retrieves one record. It returns nil, nil when the id is unknown.
func (db *DB) GetAssessment(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, id)
	a, err := scanAssessment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	return a, nil
}

// ListAssessments returns the most recent records first.
func (db *DB) ListAssessments(ctx context.Context, limit int) ([]Assessment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+assessmentColumns+` FROM assessments ORDER BY created_at DESC LIMIT $1`,
		ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	return collectAssessments(rows)
}

// ListPatientAssessments returns one patient's records, newest first. The email match
// ignores case.
func (db *DB) ListPatientAssessments(ctx context.Context, email string, limit int) ([]Assessment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE lower(email) = lower($1)
		 ORDER BY created_at DESC LIMIT $2`,
		email, ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list patient assessments: %w", err)
	}
	return collectAssessments(rows)
}

// DeleteAssessment removes one record. It reports false when the id is unknown.
func (db *DB) DeleteAssessment(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM assessments WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete assessment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeletePatientAssessments removes every record for email and returns how many went.
func (db *DB) DeletePatientAssessments(ctx context.Context, email string) (int64, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM assessments WHERE lower(email) = lower($1)`, email)
	if err != nil {
		return 0, fmt.Errorf("failed to delete patient assessments: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectAssessments(rows pgx.Rows) ([]Assessment, error) {
	defer rows.Close()

	out := []Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	return out, nil
}

func scanAssessment(row pgx.Row) (*Assessment, error) {
	var (
		a                    Assessment
		areas, flags, detail []byte
		urgency              string
	)
	if err := row.Scan(&a.ID, &a.SessionID, &a.Email, &a.FullName, &a.Phone, &a.DateOfBirth,
		&areas, &flags, &a.TreatmentGoals, &detail, &a.AISummary, &urgency, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Urgency = types.Urgency(urgency)
	if err := json.Unmarshal(areas, &a.PainAreas); err != nil {
		return nil, fmt.Errorf("failed to decode pain areas: %w", err)
	}
	if err := json.Unmarshal(flags, &a.RedFlags); err != nil {
		return nil, fmt.Errorf("failed to decode red flags: %w", err)
	}
	if len(detail) > 0 {
		a.Detail = &types.AssessmentData{}
		if err := json.Unmarshal(detail, a.Detail); err != nil {
			return nil, fmt.Errorf("failed to decode assessment detail: %w", err)
		}
	}
	return &a, nil
}
