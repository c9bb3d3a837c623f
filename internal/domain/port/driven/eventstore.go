package driven

import (
	"context"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
)

// EventStore defines the driven port for imported membership events.
type EventStore interface {
	// ListMembershipEvents returns the imported events of the given types for
	// the repository, joined with details and issues, in creation order.
	ListMembershipEvents(ctx context.Context, migrationID string, repoID int64, types ...model.EventType) ([]model.MembershipEvent, error)
	// PassComplete reports whether the named pass already ran for the repository.
	PassComplete(ctx context.Context, repoID int64, pass string) (bool, error)
	// ApplyMembershipFix runs fn in one transaction and commits it when fn returns nil.
	ApplyMembershipFix(ctx context.Context, fn func(tx EventTx) error) error
}

// EventTx is the write side of one directionality pass.
type EventTx interface {
	// CorrectDirection stores e.ActorID on the event and e.SubjectID on its
	// detail row, creating the detail row when DetailID is zero.
	CorrectDirection(ctx context.Context, e model.MembershipEvent) error
	// InsertAssignment reports false when the assignment already exists.
	InsertAssignment(ctx context.Context, a model.Assignment) (bool, error)
	// InsertReviewRequest reports false when the request already exists.
	InsertReviewRequest(ctx context.Context, r model.ReviewRequest) (bool, error)
	MarkPassComplete(ctx context.Context, repoID int64, pass string) error
}
