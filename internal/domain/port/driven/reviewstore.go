package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
)

// ReviewStore defines the driven port for review reconciliation state.
type ReviewStore interface {
	// LastReviewedPRNumber returns the highest pull request number of the
	// repository with at least one committed review; ok is false when none.
	LastReviewedPRNumber(ctx context.Context, repoID int64) (number int, ok bool, err error)
	// ListPullRequestUnits returns the repository's pull requests whose issue
	// was updated after since, ordered by number ascending. The result must not
	// depend on whether contribution timestamps were normalized.
	ListPullRequestUnits(ctx context.Context, repoID int64, since time.Time) ([]model.PullRequestUnit, error)
	// CommitReviewSet runs fn in one transaction and commits it when fn returns nil.
	CommitReviewSet(ctx context.Context, fn func(tx ReviewTx) error) error
	// ActivatePendingComments flips every pending comment of the repository
	// to active, linked or not.
	ActivatePendingComments(ctx context.Context, repoID int64) (int64, error)
	// CountOrphanedComments counts pending comments with no review.
	CountOrphanedComments(ctx context.Context, repoID int64) (int64, error)
}

// ReviewTx is the write side of one reconciliation unit.
type ReviewTx interface {
	ReviewExists(ctx context.Context, review model.PullRequestReview) (bool, error)
	InsertReview(ctx context.Context, review model.PullRequestReview) (int64, error)
	// LinkComment sets the comment's review only if it has none; it reports
	// whether the row changed.
	LinkComment(ctx context.Context, commentID, reviewID int64) (bool, error)
	// GetReviewRequest returns nil, nil when there is no request.
	GetReviewRequest(ctx context.Context, pullRequestID, reviewerID int64) (*model.ReviewRequest, error)
	DeleteReviewRequest(ctx context.Context, id int64) error
	// BackfillDismissal reports the number of detail rows updated.
	BackfillDismissal(ctx context.Context, d model.DismissalBackfill) (int64, error)
}
