package model

import "time"

// SourceReview is a review as returned by the source system.
type SourceReview struct {
	ID          int64
	UserLogin   string
	State       string
	CommitID    string
	Body        string
	SubmittedAt time.Time
}

// PullRequestReview is a review row to be created in the target store.
// CommentIDs are target review comment ids whose review_id is set to this review.
type PullRequestReview struct {
	SourceReviewID int64
	ID             int64
	PullRequestID  int64
	UserID         int64
	State          ReviewState
	HeadSHA        string
	Body           string
	SubmittedAt    time.Time
	CommentIDs     []int64
	Dismissal      *DismissalBackfill
}

// Formatter returns the body formatter recorded with the review: "markdown"
// when there is a body, nil otherwise.
func (r PullRequestReview) Formatter() *string {
	if r.Body == "" {
		return nil
	}
	f := "markdown"
	return &f
}

// DismissalBackfill is copied onto the detail row of the matching
// review_dismissed event once the dismissed review has been inserted.
type DismissalBackfill struct {
	EventID    int64
	PriorState ReviewState
	Message    string
	ReviewID   int64
}

// ReviewRequest is an outstanding request for a user to review a pull request.
type ReviewRequest struct {
	ID            int64
	PullRequestID int64
	ReviewerID    int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SupersededBy reports whether a review submitted at submittedAt answers this
// request. A request updated after the submission is a re-request and stays.
func (r ReviewRequest) SupersededBy(submittedAt time.Time) bool {
	return submittedAt.After(r.UpdatedAt)
}
