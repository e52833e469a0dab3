package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/curator/internal/submit"
)

var ErrNotFound = errors.New("submission not found")

// Submit writes the submission, replacing any earlier one for the same row.
// It satisfies submit.Submitter.
func (s *Store) Submit(ctx context.Context, sub submit.Submission) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO submissions (row_id, row_index, raw_text, make, model, year, color, condition, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (row_id) DO UPDATE SET
			make = EXCLUDED.make,
			model = EXCLUDED.model,
			year = EXCLUDED.year,
			color = EXCLUDED.color,
			condition = EXCLUDED.condition,
			submitted_at = EXCLUDED.submitted_at,
			updated_at = now()`,
		sub.RowID, sub.Index, sub.RawText,
		sub.Fields.Make, sub.Fields.Model, sub.Fields.Year, sub.Fields.Color, sub.Fields.Condition,
		sub.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *Store) GetSubmission(ctx context.Context, rowID uuid.UUID) (*submit.Submission, error) {
	var sub submit.Submission
	err := s.pool.QueryRow(ctx, `
		SELECT row_id, row_index, raw_text, make, model, year, color, condition, submitted_at
		FROM submissions WHERE row_id = $1`, rowID,
	).Scan(
		&sub.RowID, &sub.Index, &sub.RawText,
		&sub.Fields.Make, &sub.Fields.Model, &sub.Fields.Year, &sub.Fields.Color, &sub.Fields.Condition,
		&sub.SubmittedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rowID)
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return &sub, nil
}

// ListSubmissions returns the most recent submissions first.
func (s *Store) ListSubmissions(ctx context.Context, limit int) ([]submit.Submission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT row_id, row_index, raw_text, make, model, year, color, condition, submitted_at
		FROM submissions ORDER BY submitted_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []submit.Submission
	for rows.Next() {
		var sub submit.Submission
		if err := rows.Scan(
			&sub.RowID, &sub.Index, &sub.RawText,
			&sub.Fields.Make, &sub.Fields.Model, &sub.Fields.Year, &sub.Fields.Color, &sub.Fields.Condition,
			&sub.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
