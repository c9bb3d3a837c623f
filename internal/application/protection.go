package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
	"github.com/ericfisherdev/ghereconcile/internal/domain/port/driven"
)

// ProtectionResult counts the branches one repository pass looked at.
type ProtectionResult struct {
	Branches      int
	Present       int
	Unprotected   int
	Inserted      int
	ActorsSkipped int
}

// TranslateProtection maps a source protection configuration to the target
// encoding. Repository, creator and authorized actors are left for the caller.
// A missing block yields enforcement off and no contexts.
func TranslateProtection(p model.SourceBranchProtection) model.ProtectedBranch {
	pb := model.ProtectedBranch{
		Name:                 p.Branch,
		AuthorizedActorsOnly: p.Restrictions != nil,
	}

	if p.StatusChecks != nil {
		pb.StatusCheckEnforcement = enforcementLevel(p.EnforceAdmins)
		pb.StrictStatusChecks = p.StatusChecks.Strict
		pb.StatusCheckContexts = slices.Clone(p.StatusChecks.Contexts)
	}

	if p.RequiresReviews {
		pb.ReviewEnforcement = enforcementLevel(p.EnforceAdmins)
	}

	return pb
}

func enforcementLevel(includeAdmins bool) model.EnforcementLevel {
	if includeAdmins {
		return model.EnforcementEveryone
	}
	return model.EnforcementNonAdmins
}

// ProtectionTranslator copies source branch protection rules onto the
// migrated repositories. Branches already protected in the target are left
// untouched.
type ProtectionTranslator struct {
	source    driven.SourceClient
	store     driven.ProtectionStore
	repos     driven.RepoStore
	resolver  *IdentityResolver
	localUser string
}

// NewProtectionTranslator creates a new ProtectionTranslator. Rules are
// recorded as created by the localUser account.
func NewProtectionTranslator(
	source driven.SourceClient,
	store driven.ProtectionStore,
	repos driven.RepoStore,
	resolver *IdentityResolver,
	localUser string,
) *ProtectionTranslator {
	return &ProtectionTranslator{
		source:    source,
		store:     store,
		repos:     repos,
		resolver:  resolver,
		localUser: localUser,
	}
}

// TranslateRepository inserts a protected branch for every source protected
// branch missing from the target. org owns the repository in the source.
func (t *ProtectionTranslator) TranslateRepository(ctx context.Context, repo model.Repository, org string) (ProtectionResult, error) {
	var result ProtectionResult
	fullName := repo.FullName(org)

	creatorID, err := t.repos.UserIDByLogin(ctx, t.localUser)
	if err != nil {
		return result, fmt.Errorf("resolving branch creator %q: %w", t.localUser, err)
	}

	branches, err := t.source.FetchProtectedBranches(ctx, fullName)
	if err != nil {
		return result, err
	}

	existing, err := t.store.ProtectedBranchNames(ctx, repo.ID)
	if err != nil {
		return result, err
	}

	for _, branch := range branches {
		result.Branches++
		if slices.Contains(existing, branch) {
			result.Present++
			continue
		}

		src, err := t.source.FetchBranchProtection(ctx, fullName, branch)
		if err != nil {
			return result, err
		}
		if src == nil {
			result.Unprotected++
			slog.Debug("branch listed as protected has no protection", "repo", fullName, "branch", branch)
			continue
		}

		pb := TranslateProtection(*src)
		pb.RepositoryID = repo.ID
		pb.CreatorID = creatorID

		if src.Restrictions != nil {
			actors, skipped, err := t.resolveActors(ctx, org, *src.Restrictions)
			if err != nil {
				return result, err
			}
			pb.AuthorizedActors = actors
			result.ActorsSkipped += skipped
		}

		_, inserted, err := t.store.InsertProtectedBranch(ctx, pb)
		if err != nil {
			return result, fmt.Errorf("protecting %s:%s: %w", fullName, branch, err)
		}
		if !inserted {
			result.Present++
			continue
		}
		result.Inserted++
		slog.Info("branch protected", "repo", fullName, "branch", branch,
			"contexts", len(pb.StatusCheckContexts), "actors", len(pb.AuthorizedActors))
	}

	return result, nil
}

// resolveActors maps restricted teams and users to local ids. Actors without
// a local record are skipped.
func (t *ProtectionTranslator) resolveActors(ctx context.Context, org string, r model.SourceRestrictions) ([]model.AuthorizedActor, int, error) {
	var actors []model.AuthorizedActor
	skipped := 0

	add := func(kind model.ActorKind, name string, id int64, err error) error {
		if errors.Is(err, driven.ErrUnresolvedReference) {
			slog.Warn("restricted actor has no local record", "kind", kind, "name", name)
			skipped++
			return nil
		}
		if err != nil {
			return err
		}
		actors = append(actors, model.AuthorizedActor{Kind: kind, ActorID: id})
		return nil
	}

	for _, slug := range r.TeamSlugs {
		id, err := t.resolver.ResolveTeam(ctx, org, slug)
		if err := add(model.ActorTeam, slug, id, err); err != nil {
			return nil, 0, err
		}
	}
	for _, login := range r.UserLogins {
		id, err := t.resolver.ResolveUser(ctx, login)
		if err := add(model.ActorUser, login, id, err); err != nil {
			return nil, 0, err
		}
	}

	return actors, skipped, nil
}
