package driven

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
)

var (
	// ErrTransientSource marks an empty, short or failed source response that
	// is worth retrying later. It aborts the current repository pass only.
	ErrTransientSource = errors.New("transient source fault")

	// ErrRateLimited matches any *RateLimitError.
	ErrRateLimited = errors.New("source rate limit exceeded")
)

// RateLimitError reports that the source request budget is exhausted until ResetAt.
type RateLimitError struct {
	ResetAt time.Time
	Err     error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("source rate limit exceeded until %s: %v", e.ResetAt.Format(time.RFC3339), e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// SourceClient defines the driven port for reading the source collaboration
// platform. Implementations handle pagination and rate limiting; repoFullName
// is "owner/name".
type SourceClient interface {
	FetchRepository(ctx context.Context, repoFullName string) (*model.SourceRepository, error)
	FetchPullRequest(ctx context.Context, repoFullName string, number int) (*model.SourcePullRequest, error)
	FetchReviews(ctx context.Context, repoFullName string, number int) ([]model.SourceReview, error)
	FetchReviewComments(ctx context.Context, repoFullName string, number int) ([]model.SourceReviewComment, error)
	FetchIssueEvents(ctx context.Context, repoFullName string, number int) ([]model.SourceIssueEvent, error)

	// FetchProtectedBranches returns the names of the repository's protected branches.
	FetchProtectedBranches(ctx context.Context, repoFullName string) ([]string, error)
	// FetchBranchProtection returns nil, nil when the branch is not protected.
	FetchBranchProtection(ctx context.Context, repoFullName string, branch string) (*model.SourceBranchProtection, error)

	FetchForks(ctx context.Context, repoFullName string) ([]model.SourceFork, error)
}
