package db

import (
	"context"
	"fmt"

	"github.com/mbakke/signoff/internal/models"
)

// CountByStatus returns counts of approval requests grouped by status.
// An empty projectID counts across all projects.
func (r *ApprovalRepository) CountByStatus(ctx context.Context, projectID string) (map[models.ApprovalStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM approval_requests
	`
	args := []any{}
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	query += " GROUP BY status"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ApprovalStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[models.ApprovalStatus(status)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}
