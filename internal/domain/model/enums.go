package model

import "strings"

// ReviewState is the target-store encoding of a pull request review state.
type ReviewState int

const (
	ReviewStateCommented        ReviewState = 1
	ReviewStateChangesRequested ReviewState = 30
	ReviewStateApproved         ReviewState = 40
	ReviewStateDismissed        ReviewState = 50
)

// ParseReviewState maps a source review state ("APPROVED", "changes_requested", ...)
// to its target encoding. Pending and unknown states report false.
func ParseReviewState(s string) (ReviewState, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "COMMENTED":
		return ReviewStateCommented, true
	case "CHANGES_REQUESTED":
		return ReviewStateChangesRequested, true
	case "APPROVED":
		return ReviewStateApproved, true
	case "DISMISSED":
		return ReviewStateDismissed, true
	default:
		return 0, false
	}
}

// String returns the source-side name of the state.
func (s ReviewState) String() string {
	switch s {
	case ReviewStateCommented:
		return "commented"
	case ReviewStateChangesRequested:
		return "changes_requested"
	case ReviewStateApproved:
		return "approved"
	case ReviewStateDismissed:
		return "dismissed"
	default:
		return "unknown"
	}
}

// SupersedesRequests reports whether a submitted review of this state answers
// an outstanding review request.
func (s ReviewState) SupersedesRequests() bool {
	return s == ReviewStateApproved || s == ReviewStateChangesRequested
}

// CommentState is the target-store visibility state of a review comment.
type CommentState int

const (
	CommentStatePending CommentState = 0
	CommentStateActive  CommentState = 1
)

// EnforcementLevel is the target-store encoding of a branch protection rule's reach.
type EnforcementLevel int

const (
	EnforcementOff       EnforcementLevel = 0
	EnforcementNonAdmins EnforcementLevel = 1
	EnforcementEveryone  EnforcementLevel = 2
)

// EventType is the kind of an imported issue timeline event.
type EventType string

const (
	EventAssigned             EventType = "assigned"
	EventUnassigned           EventType = "unassigned"
	EventReviewRequested      EventType = "review_requested"
	EventReviewRequestRemoved EventType = "review_request_removed"
)

// ActorKind identifies whether an authorized actor is a user or a team.
type ActorKind string

const (
	ActorUser ActorKind = "User"
	ActorTeam ActorKind = "Team"
)
