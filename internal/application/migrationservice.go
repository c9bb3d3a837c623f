package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
	"github.com/ericfisherdev/ghereconcile/internal/domain/port/driven"
)

// maxRateLimitRetries bounds how often one repository is retried after
// waiting out a rate limit.
const maxRateLimitRetries = 3

// Stores groups the target-store ports the migration service writes through.
type Stores struct {
	Correlations driven.CorrelationStore
	Repos        driven.RepoStore
	Reviews      driven.ReviewStore
	Events       driven.EventStore
	Timestamps   driven.TimestampStore
	Protection   driven.ProtectionStore
}

// MigrationConfig is the already-validated configuration of one run.
type MigrationConfig struct {
	MigrationID string
	// Organization is discovered from the migration when empty.
	Organization       string
	LocalUser          string
	Refs               model.SourceRefs
	Reviews            ReviewReconcilerConfig
	ContributionOffset int
	ImportDate         time.Time
	MaxRateLimitWait   time.Duration
}

// RepositoryFailure is one repository a command could not finish.
type RepositoryFailure struct {
	Repository string
	Err        error
}

// RunError summarizes the repositories a command could not finish. The other
// repositories were processed normally.
type RunError struct {
	Total    int
	Failures []RepositoryFailure
}

func (e *RunError) Error() string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Repository
	}
	return fmt.Sprintf("%d of %d repositories failed: %s", len(e.Failures), e.Total, strings.Join(names, ", "))
}

// Unwrap exposes the individual repository errors to errors.Is and errors.As.
func (e *RunError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// MigrationService runs the reconciliation components over every repository
// of a migration, one repository at a time.
type MigrationService struct {
	source driven.SourceClient
	stores Stores
	cfg    MigrationConfig
}

// NewMigrationService creates a new MigrationService. source may be nil for
// runs that only fix events.
func NewMigrationService(source driven.SourceClient, stores Stores, cfg MigrationConfig) *MigrationService {
	return &MigrationService{source: source, stores: stores, cfg: cfg}
}

// Complete restores feature options, branch protection and reviews for every
// migrated repository.
func (s *MigrationService) Complete(ctx context.Context) error {
	if s.source == nil {
		return errors.New("complete needs a source client")
	}
	if s.cfg.LocalUser == "" {
		return errors.New("complete needs the local user that owns the protection rules")
	}

	org, err := s.organization(ctx)
	if err != nil {
		return err
	}

	repos, err := s.stores.Repos.ListMigratedRepositories(ctx, s.cfg.MigrationID)
	if err != nil {
		return err
	}

	resolver := NewIdentityResolver(s.stores.Correlations, s.cfg.MigrationID, s.cfg.Refs)
	reviews := NewReviewReconciler(s.source, s.stores.Reviews, s.stores.Repos, resolver, s.cfg.Reviews)
	protection := NewProtectionTranslator(s.source, s.stores.Protection, s.stores.Repos, resolver, s.cfg.LocalUser)

	slog.Info("completing migration", "migration", s.cfg.MigrationID, "organization", org, "repositories", len(repos))

	return s.eachRepository(ctx, repos, org, func(repo model.Repository) error {
		fullName := repo.FullName(org)

		src, err := s.source.FetchRepository(ctx, fullName)
		if err != nil {
			return err
		}
		if err := s.stores.Repos.SetFeatureOptions(ctx, repo.ID, src.HasWiki, src.HasIssues); err != nil {
			return err
		}

		if _, err := protection.TranslateRepository(ctx, repo, org); err != nil {
			return err
		}

		_, err = reviews.ReconcileRepository(ctx, repo, org)
		return err
	})
}

// FixEvents corrects imported assignment and review request events and
// normalizes contribution timestamps. It never reads the source.
func (s *MigrationService) FixEvents(ctx context.Context) error {
	repos, err := s.stores.Repos.ListMigratedRepositories(ctx, s.cfg.MigrationID)
	if err != nil {
		return err
	}

	fixer := NewDirectionalityFixer(s.stores.Events, s.cfg.MigrationID)
	normalizer := NewTimestampNormalizer(s.stores.Timestamps, s.cfg.ContributionOffset, s.cfg.ImportDate)

	slog.Info("fixing migrated events", "migration", s.cfg.MigrationID, "repositories", len(repos))

	return s.eachRepository(ctx, repos, "", func(repo model.Repository) error {
		for _, m := range []model.Membership{model.MembershipAssignees, model.MembershipReviewRequests} {
			if _, err := fixer.FixRepository(ctx, repo.ID, m); err != nil {
				return err
			}
		}

		_, err := normalizer.NormalizeRepository(ctx, repo.ID)
		return err
	})
}

// AuditForks reports the source forks of every migrated repository.
func (s *MigrationService) AuditForks(ctx context.Context) ([]ForkReport, error) {
	if s.source == nil {
		return nil, errors.New("forks needs a source client")
	}

	org, err := s.organization(ctx)
	if err != nil {
		return nil, err
	}

	repos, err := s.stores.Repos.ListMigratedRepositories(ctx, s.cfg.MigrationID)
	if err != nil {
		return nil, err
	}

	auditor := NewForkAuditor(s.source, NewIdentityResolver(s.stores.Correlations, s.cfg.MigrationID, s.cfg.Refs))

	var reports []ForkReport
	err = s.eachRepository(ctx, repos, org, func(repo model.Repository) error {
		found, err := auditor.AuditRepository(ctx, repo, org)
		if err != nil {
			return err
		}
		reports = append(reports, found...)
		return nil
	})

	return reports, err
}

// organization returns the configured organization or the migration's only one.
func (s *MigrationService) organization(ctx context.Context) (string, error) {
	if s.cfg.Organization != "" {
		return s.cfg.Organization, nil
	}

	org, err := s.stores.Repos.MigratedOrganization(ctx, s.cfg.MigrationID)
	if err != nil {
		return "", fmt.Errorf("set the organization explicitly: %w", err)
	}

	slog.Info("organization discovered", "organization", org.Login)
	return org.Login, nil
}

// eachRepository runs fn for every repository in order. A failing repository
// is recorded and skipped; cancellation stops the run.
func (s *MigrationService) eachRepository(ctx context.Context, repos []model.Repository, owner string, fn func(repo model.Repository) error) error {
	runErr := &RunError{Total: len(repos)}

	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := repo.Name
		if owner != "" {
			name = repo.FullName(owner)
		}

		err := s.retryRateLimited(ctx, name, func() error { return fn(repo) })
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if errors.Is(err, driven.ErrTransientSource) {
			slog.Warn("source fault, repository skipped; rerun to resume", "repo", name, "error", err)
		} else {
			slog.Error("repository failed", "repo", name, "error", err)
		}
		runErr.Failures = append(runErr.Failures, RepositoryFailure{Repository: name, Err: err})
	}

	if len(runErr.Failures) > 0 {
		return runErr
	}
	return nil
}

// retryRateLimited reruns fn after the source's rate limit resets, as long as
// the wait stays under the configured bound. Reruns resume from the
// repository's checkpoint.
func (s *MigrationService) retryRateLimited(ctx context.Context, name string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()

		var rl *driven.RateLimitError
		if !errors.As(err, &rl) || attempt >= maxRateLimitRetries {
			return err
		}

		wait := time.Until(rl.ResetAt) + time.Second
		if wait > s.cfg.MaxRateLimitWait {
			return err
		}

		slog.Warn("source rate limit reached, waiting for reset", "repo", name, "reset_at", rl.ResetAt, "wait", wait.Round(time.Second))
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}
