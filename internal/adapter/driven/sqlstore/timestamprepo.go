package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
	"github.com/ericfisherdev/ghereconcile/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TimestampStore = (*TimestampRepo)(nil)

// TimestampRepo is the database/sql implementation of the TimestampStore port interface.
type TimestampRepo struct {
	db *DB
}

// NewTimestampRepo creates a new TimestampRepo backed by the given DB.
func NewTimestampRepo(db *DB) *TimestampRepo {
	return &TimestampRepo{db: db}
}

// ListIssueTimes returns the update and close times of every issue in the repository.
func (r *TimestampRepo) ListIssueTimes(ctx context.Context, repoID int64) ([]model.IssueTimes, error) {
	rows, err := r.db.Reader.QueryContext(ctx,
		`SELECT id, updated_at, closed_at FROM issues WHERE repository_id = ? ORDER BY id`,
		repoID,
	)
	if err != nil {
		return nil, fmt.Errorf("query issue times for repository %d: %w", repoID, err)
	}
	defer rows.Close()

	var issues []model.IssueTimes
	for rows.Next() {
		var it model.IssueTimes
		var updatedAt, closedAt nullTime
		if err := rows.Scan(&it.ID, &updatedAt, &closedAt); err != nil {
			return nil, fmt.Errorf("scan issue times: %w", err)
		}
		it.UpdatedAt = updatedAt.Time
		it.ClosedAt = closedAt.Time
		issues = append(issues, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issue times: %w", err)
	}

	return issues, nil
}

// SetIssueContribution stores the normalized contribution time of an issue.
func (r *TimestampRepo) SetIssueContribution(ctx context.Context, issueID int64, c model.Contribution) error {
	_, err := r.db.Writer.ExecContext(ctx,
		`UPDATE issues SET contributed_at_timestamp = ?, contributed_at_offset = ? WHERE id = ?`,
		c.Timestamp, c.Offset, issueID,
	)
	if err != nil {
		return fmt.Errorf("set contribution of issue %d: %w", issueID, err)
	}
	return nil
}

// ListPullRequestTimes returns the creation and merge times of every pull request in the repository.
func (r *TimestampRepo) ListPullRequestTimes(ctx context.Context, repoID int64) ([]model.PullRequestTimes, error) {
	rows, err := r.db.Reader.QueryContext(ctx,
		`SELECT id, created_at, merged_at FROM pull_requests WHERE repository_id = ? ORDER BY id`,
		repoID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pull request times for repository %d: %w", repoID, err)
	}
	defer rows.Close()

	var prs []model.PullRequestTimes
	for rows.Next() {
		var pt model.PullRequestTimes
		var createdAt, mergedAt nullTime
		if err := rows.Scan(&pt.ID, &createdAt, &mergedAt); err != nil {
			return nil, fmt.Errorf("scan pull request times: %w", err)
		}
		pt.CreatedAt = createdAt.Time
		pt.MergedAt = mergedAt.Time
		prs = append(prs, pt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pull request times: %w", err)
	}

	return prs, nil
}

// SetPullRequestContribution stores the normalized contribution time of a
// pull request and moves its updated_at to the same instant.
func (r *TimestampRepo) SetPullRequestContribution(ctx context.Context, pullRequestID int64, c model.Contribution) error {
	_, err := r.db.Writer.ExecContext(ctx,
		`UPDATE pull_requests SET updated_at = ?, contributed_at_timestamp = ?, contributed_at_offset = ? WHERE id = ?`,
		dbTime(c.At), c.Timestamp, c.Offset, pullRequestID,
	)
	if err != nil {
		return fmt.Errorf("set contribution of pull request %d: %w", pullRequestID, err)
	}
	return nil
}

// ResetCrossReferences restores updated_at from referenced_at for the
// repository's issue cross references stamped on day.
func (r *TimestampRepo) ResetCrossReferences(ctx context.Context, repoID int64, day time.Time) (int64, error) {
	const query = `
		SELECT c.id, c.updated_at
		FROM cross_references c
		JOIN issues i ON i.id = c.target_id
		WHERE c.target_type = 'Issue' AND i.repository_id = ?
		ORDER BY c.id
	`

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	var reset int64
	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, repoID)
		if err != nil {
			return fmt.Errorf("query cross references for repository %d: %w", repoID, err)
		}

		var ids []int64
		for rows.Next() {
			var id int64
			var updatedAt nullTime
			if err := rows.Scan(&id, &updatedAt); err != nil {
				rows.Close()
				return fmt.Errorf("scan cross reference: %w", err)
			}
			if !updatedAt.Valid || updatedAt.Time.Before(start) || !updatedAt.Time.Before(end) {
				continue
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate cross references: %w", err)
		}
		rows.Close()

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE cross_references SET updated_at = referenced_at WHERE id = ?`, id,
			); err != nil {
				return fmt.Errorf("reset cross reference %d: %w", id, err)
			}
			reset++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return reset, nil
}
