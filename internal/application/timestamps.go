package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
	"github.com/ericfisherdev/ghereconcile/internal/domain/port/driven"
)

// TimestampResult counts the rows a timestamp pass rewrote.
type TimestampResult struct {
	Issues          int
	PullRequests    int
	CrossReferences int64
}

// TimestampNormalizer stores contribution times that reflect when work
// happened in the source rather than when it was imported.
type TimestampNormalizer struct {
	store      driven.TimestampStore
	offset     int
	importDate time.Time
}

// NewTimestampNormalizer creates a new TimestampNormalizer. A zero importDate
// disables the cross-reference fix.
func NewTimestampNormalizer(store driven.TimestampStore, offset int, importDate time.Time) *TimestampNormalizer {
	return &TimestampNormalizer{store: store, offset: offset, importDate: importDate}
}

// NormalizeRepository rewrites the contribution times of every issue and pull
// request in the repository. Rerunning it yields the same values.
func (n *TimestampNormalizer) NormalizeRepository(ctx context.Context, repoID int64) (TimestampResult, error) {
	var result TimestampResult

	issues, err := n.store.ListIssueTimes(ctx, repoID)
	if err != nil {
		return result, err
	}
	for _, issue := range issues {
		at := issue.ContributedAt()
		if at.IsZero() {
			continue
		}
		if err := n.store.SetIssueContribution(ctx, issue.ID, model.NewContribution(at, n.offset)); err != nil {
			return result, err
		}
		result.Issues++
	}

	prs, err := n.store.ListPullRequestTimes(ctx, repoID)
	if err != nil {
		return result, err
	}
	for _, pr := range prs {
		at := pr.ContributedAt()
		if at.IsZero() {
			continue
		}
		if err := n.store.SetPullRequestContribution(ctx, pr.ID, model.NewContribution(at, n.offset)); err != nil {
			return result, err
		}
		result.PullRequests++
	}

	if !n.importDate.IsZero() {
		if result.CrossReferences, err = n.store.ResetCrossReferences(ctx, repoID, n.importDate); err != nil {
			return result, fmt.Errorf("resetting cross references of repository %d: %w", repoID, err)
		}
	}

	slog.Info("timestamps normalized",
		"repository_id", repoID,
		"issues", result.Issues,
		"pull_requests", result.PullRequests,
		"cross_references", result.CrossReferences,
	)

	return result, nil
}
