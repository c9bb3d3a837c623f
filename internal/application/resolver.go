// Package application contains the reconciliation engine and the services that
// orchestrate it across a migration's repositories.
package application

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
	"github.com/ericfisherdev/ghereconcile/internal/domain/port/driven"
)

// resolution is a cached lookup result; found is false for a known miss.
type resolution struct {
	id    int64
	found bool
}

// IdentityResolver maps source references to target-store ids for one
// migration. Results, misses included, are cached for the lifetime of the
// resolver since the correlation table does not change during a run.
// It is not safe for concurrent use.
type IdentityResolver struct {
	store       driven.CorrelationStore
	migrationID string
	refs        model.SourceRefs
	cache       map[string]resolution
}

// NewIdentityResolver creates a resolver scoped to one migration.
func NewIdentityResolver(store driven.CorrelationStore, migrationID string, refs model.SourceRefs) *IdentityResolver {
	return &IdentityResolver{
		store:       store,
		migrationID: migrationID,
		refs:        refs,
		cache:       make(map[string]resolution),
	}
}

// Resolve returns the local id recorded for a source reference. A missing
// record yields *driven.UnresolvedReferenceError; store failures are returned
// as-is and not cached.
func (r *IdentityResolver) Resolve(ctx context.Context, sourceReference string) (int64, error) {
	if cached, ok := r.cache[sourceReference]; ok {
		if !cached.found {
			return 0, r.unresolved(sourceReference)
		}
		return cached.id, nil
	}

	rec, err := r.store.LookupCorrelation(ctx, r.migrationID, sourceReference)
	if err != nil {
		return 0, fmt.Errorf("resolving %s: %w", sourceReference, err)
	}

	if rec == nil {
		r.cache[sourceReference] = resolution{}
		return 0, r.unresolved(sourceReference)
	}

	r.cache[sourceReference] = resolution{id: rec.TargetLocalID, found: true}
	return rec.TargetLocalID, nil
}

// ResolveUser resolves a source account login.
func (r *IdentityResolver) ResolveUser(ctx context.Context, login string) (int64, error) {
	return r.Resolve(ctx, r.refs.User(login))
}

// ResolveTeam resolves an organization team.
func (r *IdentityResolver) ResolveTeam(ctx context.Context, org, slug string) (int64, error) {
	return r.Resolve(ctx, r.refs.Team(org, slug))
}

// ResolveReviewComment resolves an inline review comment of a pull request.
func (r *IdentityResolver) ResolveReviewComment(ctx context.Context, repoFullName string, prNumber int, commentID int64) (int64, error) {
	return r.Resolve(ctx, r.refs.ReviewComment(repoFullName, prNumber, commentID))
}

// ResolveIssueEvent resolves a timeline event of an issue or pull request.
func (r *IdentityResolver) ResolveIssueEvent(ctx context.Context, repoFullName string, number int, eventID int64) (int64, error) {
	return r.Resolve(ctx, r.refs.IssueEvent(repoFullName, number, eventID))
}

func (r *IdentityResolver) unresolved(sourceReference string) error {
	return &driven.UnresolvedReferenceError{MigrationID: r.migrationID, Reference: sourceReference}
}
