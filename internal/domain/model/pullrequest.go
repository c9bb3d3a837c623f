package model

import "time"

// PullRequestUnit is a migrated pull request as seen by the review reconciler.
// Number is the reconciliation unit; ID is the target pull_requests.id.
type PullRequestUnit struct {
	ID        int64
	Number    int
	UpdatedAt time.Time
}

// SourcePullRequest is the subset of a source pull request needed to reconcile it.
type SourcePullRequest struct {
	Number   int
	HeadSHA  string
	MergedAt time.Time
}

// SourceIssueEvent is a timeline event of a source issue or pull request.
type SourceIssueEvent struct {
	ID              int64
	Event           string
	DismissedReview *SourceDismissal
}

// SourceDismissal is the dismissal metadata attached to a review_dismissed event.
type SourceDismissal struct {
	ReviewID   int64
	PriorState string
	Message    string
}
