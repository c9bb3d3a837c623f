package application

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
	"github.com/ericfisherdev/ghereconcile/internal/domain/port/driven"
)

// FixResult counts what one directionality pass did for a repository.
type FixResult struct {
	AlreadyApplied  bool
	Events          int
	Corrected       int
	Members         int
	MembersInserted int
}

// NormalizeDirection returns e with the actor and subject the import swapped
// put back in place. When the import recorded no subject the stored actor is
// the member, and the issue's owner is taken as the actor.
func NormalizeDirection(e model.MembershipEvent) model.MembershipEvent {
	if e.SubjectID == 0 {
		e.SubjectID = e.ActorID
		e.ActorID = e.IssueOwnerID
		return e
	}

	e.ActorID, e.SubjectID = e.SubjectID, e.ActorID
	return e
}

// ReplayMembership folds corrected events in creation order into the final
// membership set. Events of other kinds and events without a subject are
// ignored. The result is ordered by container then subject.
func ReplayMembership(m model.Membership, events []model.MembershipEvent) []model.Member {
	ordered := slices.Clone(events)
	slices.SortStableFunc(ordered, func(a, b model.MembershipEvent) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	type key struct{ container, subject int64 }
	members := make(map[key]model.Member)

	for _, e := range ordered {
		container := membershipContainer(m, e)
		if container == 0 || e.SubjectID == 0 {
			continue
		}
		k := key{container, e.SubjectID}

		switch e.Type {
		case m.Grant():
			members[k] = model.Member{Container: container, SubjectID: e.SubjectID, GrantedAt: e.CreatedAt}
		case m.Revoke():
			delete(members, k)
		}
	}

	out := make([]model.Member, 0, len(members))
	for _, member := range members {
		out = append(out, member)
	}
	slices.SortFunc(out, func(a, b model.Member) int {
		if c := cmp.Compare(a.Container, b.Container); c != 0 {
			return c
		}
		return cmp.Compare(a.SubjectID, b.SubjectID)
	})

	return out
}

func membershipContainer(m model.Membership, e model.MembershipEvent) int64 {
	if m == model.MembershipReviewRequests {
		return e.PullRequestID
	}
	return e.IssueID
}

// DirectionalityFixer corrects the swapped actor and subject of imported
// membership events and materializes the membership rows the import never
// wrote. The swap is not idempotent, so each (repository, membership) pass
// records its completion in the same transaction and is never run twice.
type DirectionalityFixer struct {
	store       driven.EventStore
	migrationID string
}

// NewDirectionalityFixer creates a new DirectionalityFixer.
func NewDirectionalityFixer(store driven.EventStore, migrationID string) *DirectionalityFixer {
	return &DirectionalityFixer{store: store, migrationID: migrationID}
}

// FixRepository runs the pass for one membership kind of one repository.
func (f *DirectionalityFixer) FixRepository(ctx context.Context, repoID int64, m model.Membership) (FixResult, error) {
	var result FixResult
	pass := string(m)

	done, err := f.store.PassComplete(ctx, repoID, pass)
	if err != nil {
		return result, err
	}
	if done {
		slog.Info("membership pass already applied", "repository_id", repoID, "pass", pass)
		result.AlreadyApplied = true
		return result, nil
	}

	stored, err := f.store.ListMembershipEvents(ctx, f.migrationID, repoID, m.Grant(), m.Revoke())
	if err != nil {
		return result, fmt.Errorf("listing %s events: %w", pass, err)
	}

	corrected := make([]model.MembershipEvent, len(stored))
	for i, e := range stored {
		corrected[i] = NormalizeDirection(e)
	}
	members := ReplayMembership(m, corrected)

	var res FixResult
	err = f.store.ApplyMembershipFix(ctx, func(tx driven.EventTx) error {
		res = FixResult{Events: len(stored), Members: len(members)}

		for i, e := range corrected {
			if e == stored[i] && e.DetailID != 0 {
				continue
			}
			if err := tx.CorrectDirection(ctx, e); err != nil {
				return err
			}
			res.Corrected++
		}

		for _, member := range members {
			inserted, err := f.materialize(ctx, tx, m, member)
			if err != nil {
				return err
			}
			if inserted {
				res.MembersInserted++
			}
		}

		return tx.MarkPassComplete(ctx, repoID, pass)
	})
	if err != nil {
		return result, fmt.Errorf("applying %s pass to repository %d: %w", pass, repoID, err)
	}

	slog.Info("membership pass applied",
		"repository_id", repoID,
		"pass", pass,
		"events", res.Events,
		"corrected", res.Corrected,
		"members", res.Members,
		"inserted", res.MembersInserted,
	)

	return res, nil
}

func (f *DirectionalityFixer) materialize(ctx context.Context, tx driven.EventTx, m model.Membership, member model.Member) (bool, error) {
	if m == model.MembershipReviewRequests {
		return tx.InsertReviewRequest(ctx, model.ReviewRequest{
			PullRequestID: member.Container,
			ReviewerID:    member.SubjectID,
			CreatedAt:     member.GrantedAt,
			UpdatedAt:     member.GrantedAt,
		})
	}

	return tx.InsertAssignment(ctx, model.Assignment{
		IssueID:    member.Container,
		AssigneeID: member.SubjectID,
		CreatedAt:  member.GrantedAt,
	})
}
