package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
	"github.com/ericfisherdev/ghereconcile/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.ReviewStore = (*ReviewRepo)(nil)
	_ driven.ReviewTx    = (*reviewTx)(nil)
)

// ReviewRepo is the database/sql implementation of the ReviewStore port interface.
type ReviewRepo struct {
	db *DB
}

// NewReviewRepo creates a new ReviewRepo backed by the given DB.
func NewReviewRepo(db *DB) *ReviewRepo {
	return &ReviewRepo{db: db}
}

// LastReviewedPRNumber returns the highest pull request number in the
// repository that has a review row.
func (r *ReviewRepo) LastReviewedPRNumber(ctx context.Context, repoID int64) (int, bool, error) {
	const query = `
		SELECT MAX(i.number)
		FROM pull_request_reviews rv
		JOIN pull_requests p ON p.id = rv.pull_request_id
		JOIN issues i ON i.pull_request_id = p.id
		WHERE p.repository_id = ?
	`

	var last sql.NullInt64
	if err := r.db.Reader.QueryRowContext(ctx, query, repoID).Scan(&last); err != nil {
		return 0, false, fmt.Errorf("query last reviewed pull request for repository %d: %w", repoID, err)
	}
	if !last.Valid {
		return 0, false, nil
	}
	return int(last.Int64), true, nil
}

// ListPullRequestUnits returns the repository's pull requests updated after
// since, ordered by number. Activity is read from the pull request's issue
// row; the timestamp pass rewrites pull_requests.updated_at.
func (r *ReviewRepo) ListPullRequestUnits(ctx context.Context, repoID int64, since time.Time) ([]model.PullRequestUnit, error) {
	const query = `
		SELECT p.id, i.number, i.updated_at
		FROM pull_requests p
		JOIN issues i ON i.pull_request_id = p.id
		WHERE p.repository_id = ?
		ORDER BY i.number
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, repoID)
	if err != nil {
		return nil, fmt.Errorf("query pull requests for repository %d: %w", repoID, err)
	}
	defer rows.Close()

	var units []model.PullRequestUnit
	for rows.Next() {
		var unit model.PullRequestUnit
		var updatedAt nullTime
		if err := rows.Scan(&unit.ID, &unit.Number, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan pull request: %w", err)
		}
		// Compared here rather than in SQL: SQLite stores DATETIME as text.
		if !updatedAt.Time.After(since) {
			continue
		}
		unit.UpdatedAt = updatedAt.Time
		units = append(units, unit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pull requests: %w", err)
	}

	return units, nil
}

// CommitReviewSet runs fn in one transaction and commits it when fn returns nil.
func (r *ReviewRepo) CommitReviewSet(ctx context.Context, fn func(tx driven.ReviewTx) error) error {
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&reviewTx{tx: tx})
	})
}

// ActivatePendingComments makes every pending comment of the repository visible.
func (r *ReviewRepo) ActivatePendingComments(ctx context.Context, repoID int64) (int64, error) {
	const query = `
		UPDATE pull_request_review_comments
		SET state = ?
		WHERE repository_id = ? AND state = ?
	`

	res, err := r.db.Writer.ExecContext(ctx, query, model.CommentStateActive, repoID, model.CommentStatePending)
	if err != nil {
		return 0, fmt.Errorf("activate comments for repository %d: %w", repoID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("activate comments rows affected: %w", err)
	}
	return n, nil
}

// CountOrphanedComments counts pending comments that no review claims.
func (r *ReviewRepo) CountOrphanedComments(ctx context.Context, repoID int64) (int64, error) {
	const query = `
		SELECT COUNT(*)
		FROM pull_request_review_comments
		WHERE repository_id = ? AND state = ? AND pull_request_review_id IS NULL
	`

	var n int64
	if err := r.db.Reader.QueryRowContext(ctx, query, repoID, model.CommentStatePending).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orphaned comments for repository %d: %w", repoID, err)
	}
	return n, nil
}

// reviewTx is the transactional write side of one pull request.
type reviewTx struct {
	tx *sql.Tx
}

// ReviewExists reports whether a review by the same user with the same state,
// head commit and submission second is already stored on the pull request.
// Reviews differing in none of these collapse into one.
func (t *reviewTx) ReviewExists(ctx context.Context, review model.PullRequestReview) (bool, error) {
	const query = `
		SELECT submitted_at
		FROM pull_request_reviews
		WHERE pull_request_id = ? AND user_id = ? AND state = ? AND COALESCE(head_sha, '') = ?
	`

	rows, err := t.tx.QueryContext(ctx, query, review.PullRequestID, review.UserID, review.State, review.HeadSHA)
	if err != nil {
		return false, fmt.Errorf("query reviews of pull request %d: %w", review.PullRequestID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var submittedAt nullTime
		if err := rows.Scan(&submittedAt); err != nil {
			return false, fmt.Errorf("scan review: %w", err)
		}
		// DATETIME columns drop sub-second precision on MySQL.
		if submittedAt.Valid && submittedAt.Time.Truncate(time.Second).Equal(review.SubmittedAt.Truncate(time.Second)) {
			return true, nil
		}
	}

	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate reviews: %w", err)
	}
	return false, nil
}

// InsertReview creates the review row and links its comments.
func (t *reviewTx) InsertReview(ctx context.Context, review model.PullRequestReview) (int64, error) {
	const query = `
		INSERT INTO pull_request_reviews
			(pull_request_id, user_id, state, head_sha, body, formatter, created_at, updated_at, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	submitted := dbTime(review.SubmittedAt)
	res, err := t.tx.ExecContext(ctx, query,
		review.PullRequestID, review.UserID, review.State, review.HeadSHA,
		review.Body, review.Formatter(), submitted, submitted, submitted,
	)
	if err != nil {
		return 0, fmt.Errorf("insert review for pull request %d: %w", review.PullRequestID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert review last insert id: %w", err)
	}
	return id, nil
}

// LinkComment attaches a comment to a review unless it already has one.
func (t *reviewTx) LinkComment(ctx context.Context, commentID, reviewID int64) (bool, error) {
	const query = `
		UPDATE pull_request_review_comments
		SET pull_request_review_id = ?
		WHERE id = ? AND pull_request_review_id IS NULL
	`

	res, err := t.tx.ExecContext(ctx, query, reviewID, commentID)
	if err != nil {
		return false, fmt.Errorf("link comment %d to review %d: %w", commentID, reviewID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link comment rows affected: %w", err)
	}
	return n > 0, nil
}

// GetReviewRequest returns the newest request for reviewerID on the pull
// request, or nil, nil if there is none.
func (t *reviewTx) GetReviewRequest(ctx context.Context, pullRequestID, reviewerID int64) (*model.ReviewRequest, error) {
	const query = `
		SELECT id, pull_request_id, reviewer_id, created_at, updated_at
		FROM review_requests
		WHERE pull_request_id = ? AND reviewer_id = ?
		ORDER BY id DESC
		LIMIT 1
	`

	req, err := scanReviewRequest(t.tx.QueryRowContext(ctx, query, pullRequestID, reviewerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query review request on pull request %d: %w", pullRequestID, err)
	}

	return req, nil
}

func scanReviewRequest(s scanner) (*model.ReviewRequest, error) {
	var req model.ReviewRequest
	var createdAt, updatedAt nullTime
	if err := s.Scan(&req.ID, &req.PullRequestID, &req.ReviewerID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	req.CreatedAt = createdAt.Time
	req.UpdatedAt = updatedAt.Time
	return &req, nil
}

// DeleteReviewRequest removes a request that a review has answered.
func (t *reviewTx) DeleteReviewRequest(ctx context.Context, id int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM review_requests WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete review request %d: %w", id, err)
	}
	return nil
}

// BackfillDismissal copies dismissal metadata onto the event's detail row,
// creating the row when the import left it out.
func (t *reviewTx) BackfillDismissal(ctx context.Context, d model.DismissalBackfill) (int64, error) {
	var detailID int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM issue_event_details WHERE issue_event_id = ? ORDER BY id LIMIT 1`,
		d.EventID,
	).Scan(&detailID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		const insert = `
			INSERT INTO issue_event_details
				(issue_event_id, pull_request_review_state_was, message, pull_request_review_id)
			VALUES (?, ?, ?, ?)
		`
		if _, err := t.tx.ExecContext(ctx, insert, d.EventID, d.PriorState, d.Message, d.ReviewID); err != nil {
			return 0, fmt.Errorf("insert dismissal detail for event %d: %w", d.EventID, err)
		}
		return 1, nil
	case err != nil:
		return 0, fmt.Errorf("query detail of event %d: %w", d.EventID, err)
	}

	const update = `
		UPDATE issue_event_details
		SET pull_request_review_state_was = ?, message = ?, pull_request_review_id = ?
		WHERE id = ?
	`
	if _, err := t.tx.ExecContext(ctx, update, d.PriorState, d.Message, d.ReviewID, detailID); err != nil {
		return 0, fmt.Errorf("backfill dismissal detail for event %d: %w", d.EventID, err)
	}
	return 1, nil
}
