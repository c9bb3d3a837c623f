package application

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
	"github.com/ericfisherdev/ghereconcile/internal/domain/port/driven"
)

// CheckpointTracker derives a repository's resume point from the reviews
// already committed to the target store. Nothing is persisted separately.
type CheckpointTracker struct {
	store driven.ReviewStore
}

// NewCheckpointTracker creates a new CheckpointTracker.
func NewCheckpointTracker(store driven.ReviewStore) *CheckpointTracker {
	return &CheckpointTracker{store: store}
}

// ResumePoint returns the last pull request number whose reviews are
// committed. Valid is false when the repository has no reviews yet.
func (t *CheckpointTracker) ResumePoint(ctx context.Context, repoID int64) (model.Checkpoint, error) {
	last, ok, err := t.store.LastReviewedPRNumber(ctx, repoID)
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("reading checkpoint for repository %d: %w", repoID, err)
	}

	return model.Checkpoint{RepositoryID: repoID, LastUnit: last, Valid: ok}, nil
}
