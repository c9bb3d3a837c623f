package model

import "time"

// MembershipEvent is an imported grant or revoke event joined with its detail
// row and owning issue. DetailID and SubjectID are zero when the import left
// them out.
type MembershipEvent struct {
	EventID       int64
	DetailID      int64
	IssueID       int64
	PullRequestID int64
	IssueOwnerID  int64
	Type          EventType
	ActorID       int64
	SubjectID     int64
	CreatedAt     time.Time
}

// Membership names the set a pair of grant/revoke events maintains.
type Membership string

const (
	MembershipAssignees      Membership = "assignees"
	MembershipReviewRequests Membership = "review_requests"
)

// Grant returns the event type that adds a member.
func (m Membership) Grant() EventType {
	if m == MembershipReviewRequests {
		return EventReviewRequested
	}
	return EventAssigned
}

// Revoke returns the event type that removes a member.
func (m Membership) Revoke() EventType {
	if m == MembershipReviewRequests {
		return EventReviewRequestRemoved
	}
	return EventUnassigned
}

// Member is one entry of a reconstructed membership set: SubjectID belongs to
// Container (an issue id for assignees, a pull request id for review requests)
// since GrantedAt.
type Member struct {
	Container int64
	SubjectID int64
	GrantedAt time.Time
}

// Assignment is an issue assignee row.
type Assignment struct {
	IssueID    int64
	AssigneeID int64
	CreatedAt  time.Time
}
