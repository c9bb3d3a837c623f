package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
	"github.com/ericfisherdev/ghereconcile/internal/domain/port/driven"
)

// ForkReport is one source fork and the local account that would own it.
// LocalUserID is zero when the fork owner was not migrated.
type ForkReport struct {
	Repository  string
	Fork        string
	OwnerLogin  string
	LocalUserID int64
}

// ForkAuditor lists the source forks of migrated repositories. It only
// reports; forks are not recreated.
type ForkAuditor struct {
	source   driven.SourceClient
	resolver *IdentityResolver
}

// NewForkAuditor creates a new ForkAuditor.
func NewForkAuditor(source driven.SourceClient, resolver *IdentityResolver) *ForkAuditor {
	return &ForkAuditor{source: source, resolver: resolver}
}

// AuditRepository reports every fork of one repository.
func (a *ForkAuditor) AuditRepository(ctx context.Context, repo model.Repository, org string) ([]ForkReport, error) {
	fullName := repo.FullName(org)

	forks, err := a.source.FetchForks(ctx, fullName)
	if err != nil {
		return nil, err
	}

	reports := make([]ForkReport, 0, len(forks))
	for _, fork := range forks {
		report := ForkReport{Repository: fullName, Fork: fork.FullName, OwnerLogin: fork.OwnerLogin}

		id, err := a.resolver.ResolveUser(ctx, fork.OwnerLogin)
		switch {
		case errors.Is(err, driven.ErrUnresolvedReference):
			slog.Warn("fork owner was not migrated", "repo", fullName, "fork", fork.FullName, "owner", fork.OwnerLogin)
		case err != nil:
			return nil, err
		default:
			report.LocalUserID = id
		}

		reports = append(reports, report)
	}

	return reports, nil
}
