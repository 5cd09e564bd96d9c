package db

import (
	"context"
	"fmt"
)

// Patient is one distinct submitter, named as on their latest record.
type Patient struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	Assessments int    `json:"assessments"`
}

// ListPatients groups records by case-folded email, most recently active patient first.
func (db *DB) ListPatients(ctx context.Context, limit int) ([]Patient, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT email, full_name, total FROM (
		     SELECT DISTINCT ON (lower(email)) email, full_name, created_at,
		            count(*) OVER (PARTITION BY lower(email)) AS total
		     FROM assessments
		     ORDER BY lower(email), created_at DESC
		 ) latest
		 ORDER BY created_at DESC
		 LIMIT $1`,
		ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	defer rows.Close()

	out := []Patient{}
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.Email, &p.Name, &p.Assessments); err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return out, nil
}
