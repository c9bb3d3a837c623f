package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
)

// TimestampStore defines the driven port for contribution timestamps.
type TimestampStore interface {
	ListIssueTimes(ctx context.Context, repoID int64) ([]model.IssueTimes, error)
	SetIssueContribution(ctx context.Context, issueID int64, c model.Contribution) error
	ListPullRequestTimes(ctx context.Context, repoID int64) ([]model.PullRequestTimes, error)
	// SetPullRequestContribution also overwrites updated_at with c.At.
	SetPullRequestContribution(ctx context.Context, pullRequestID int64, c model.Contribution) error
	// ResetCrossReferences sets updated_at to referenced_at for cross references
	// targeting the repository's issues whose updated_at falls on day (UTC).
	ResetCrossReferences(ctx context.Context, repoID int64, day time.Time) (int64, error)
}
