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

// ReviewResult counts what one repository pass of the review reconciler did.
type ReviewResult struct {
	Units                int
	Skipped              int
	UnitsWithoutReviews  int
	ReviewsInserted      int
	ReviewsAlreadyStored int
	CommentsLinked       int
	RequestsRemoved      int
	DismissalsBackfilled int64
	CommentsActivated    int64
	OrphanedComments     int64
}

func (r *ReviewResult) add(o ReviewResult) {
	r.ReviewsInserted += o.ReviewsInserted
	r.ReviewsAlreadyStored += o.ReviewsAlreadyStored
	r.CommentsLinked += o.CommentsLinked
	r.RequestsRemoved += o.RequestsRemoved
	r.DismissalsBackfilled += o.DismissalsBackfilled
}

// ReviewReconcilerConfig holds the reconciler's tunables.
type ReviewReconcilerConfig struct {
	// Since excludes pull requests not updated after it; they predate reviews.
	Since time.Time
	// Pace is the pause after a pull request that had reviews.
	Pace time.Duration
	// EmptyPace is the pause after a pull request without reviews.
	EmptyPace time.Duration
}

// ReviewReconciler recreates pull request reviews the bulk import dropped,
// links the imported review comments to them and makes the comments visible.
type ReviewReconciler struct {
	source      driven.SourceClient
	reviews     driven.ReviewStore
	repos       driven.RepoStore
	resolver    *IdentityResolver
	checkpoints *CheckpointTracker
	cfg         ReviewReconcilerConfig
}

// NewReviewReconciler creates a new ReviewReconciler with all required dependencies.
func NewReviewReconciler(
	source driven.SourceClient,
	reviews driven.ReviewStore,
	repos driven.RepoStore,
	resolver *IdentityResolver,
	cfg ReviewReconcilerConfig,
) *ReviewReconciler {
	return &ReviewReconciler{
		source:      source,
		reviews:     reviews,
		repos:       repos,
		resolver:    resolver,
		checkpoints: NewCheckpointTracker(reviews),
		cfg:         cfg,
	}
}

// ReconcileRepository processes every pull request past the checkpoint in
// ascending number order, committing each pull request's reviews in one
// transaction. Pending comments are activated only after all pull requests are done,
// and the repository's last push time is restored last. Any unit failure
// aborts the pass with the checkpoint left at the last committed unit.
func (r *ReviewReconciler) ReconcileRepository(ctx context.Context, repo model.Repository, owner string) (ReviewResult, error) {
	var result ReviewResult
	fullName := repo.FullName(owner)

	checkpoint, err := r.checkpoints.ResumePoint(ctx, repo.ID)
	if err != nil {
		return result, err
	}

	units, err := r.reviews.ListPullRequestUnits(ctx, repo.ID, r.cfg.Since)
	if err != nil {
		return result, fmt.Errorf("listing pull requests of %s: %w", fullName, err)
	}

	if checkpoint.Valid {
		slog.Info("resuming review reconciliation", "repo", fullName, "after_pr", checkpoint.LastUnit)
	}

	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Units++
		if checkpoint.ShouldSkip(unit.Number) {
			result.Skipped++
			slog.Debug("pull request already reconciled", "repo", fullName, "pr", unit.Number)
			continue
		}

		unitResult, hadReviews, err := r.reconcileUnit(ctx, fullName, unit)
		if err != nil {
			return result, fmt.Errorf("reconciling %s#%d: %w", fullName, unit.Number, err)
		}
		result.add(unitResult)

		pause := r.cfg.Pace
		if !hadReviews {
			result.UnitsWithoutReviews++
			pause = r.cfg.EmptyPace
		}
		if err := sleepCtx(ctx, pause); err != nil {
			return result, err
		}
	}

	if result.OrphanedComments, err = r.reviews.CountOrphanedComments(ctx, repo.ID); err != nil {
		return result, fmt.Errorf("counting orphaned comments of %s: %w", fullName, err)
	}
	if result.OrphanedComments > 0 {
		slog.Warn("activating comments that no review claims", "repo", fullName, "count", result.OrphanedComments)
	}

	if result.CommentsActivated, err = r.reviews.ActivatePendingComments(ctx, repo.ID); err != nil {
		return result, fmt.Errorf("activating comments of %s: %w", fullName, err)
	}

	src, err := r.source.FetchRepository(ctx, fullName)
	if err != nil {
		return result, err
	}
	if !src.PushedAt.IsZero() {
		if err := r.repos.SetPushedAt(ctx, repo.ID, src.PushedAt); err != nil {
			return result, err
		}
	}

	slog.Info("reviews reconciled",
		"repo", fullName,
		"units", result.Units,
		"skipped", result.Skipped,
		"reviews", result.ReviewsInserted,
		"comments_linked", result.CommentsLinked,
		"requests_removed", result.RequestsRemoved,
		"dismissals", result.DismissalsBackfilled,
		"comments_activated", result.CommentsActivated,
	)

	return result, nil
}

// reconcileUnit builds the review set of one pull request from the source and
// commits it. hadReviews is false when the source has no reviews to insert.
func (r *ReviewReconciler) reconcileUnit(ctx context.Context, fullName string, unit model.PullRequestUnit) (ReviewResult, bool, error) {
	pr, err := r.source.FetchPullRequest(ctx, fullName, unit.Number)
	if err != nil {
		return ReviewResult{}, false, err
	}

	sourceReviews, err := r.source.FetchReviews(ctx, fullName, unit.Number)
	if err != nil {
		return ReviewResult{}, false, err
	}
	if len(sourceReviews) == 0 {
		slog.Debug("no reviews", "repo", fullName, "pr", unit.Number)
		return ReviewResult{}, false, nil
	}

	reviews, err := r.buildReviews(ctx, fullName, unit, pr, sourceReviews)
	if err != nil {
		return ReviewResult{}, false, err
	}
	if len(reviews) == 0 {
		return ReviewResult{}, false, nil
	}

	var res ReviewResult
	err = r.reviews.CommitReviewSet(ctx, func(tx driven.ReviewTx) error {
		res = ReviewResult{}
		for _, review := range reviews {
			if err := r.writeReview(ctx, tx, review, &res); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ReviewResult{}, true, err
	}

	slog.Debug("pull request reconciled", "repo", fullName, "pr", unit.Number, "reviews", res.ReviewsInserted)
	return res, true, nil
}

// buildReviews resolves the local identities of a pull request's reviews,
// their comments and their dismissal events. Only the review author is
// required; comments and events without a local record are skipped.
func (r *ReviewReconciler) buildReviews(
	ctx context.Context,
	fullName string,
	unit model.PullRequestUnit,
	pr *model.SourcePullRequest,
	sourceReviews []model.SourceReview,
) ([]*model.PullRequestReview, error) {
	var reviews []*model.PullRequestReview
	bySourceID := make(map[int64]*model.PullRequestReview, len(sourceReviews))
	hasDismissed := false

	for _, sr := range sourceReviews {
		state, ok := model.ParseReviewState(sr.State)
		if !ok {
			slog.Debug("skipping review in unreconcilable state", "repo", fullName, "pr", unit.Number, "review", sr.ID, "state", sr.State)
			continue
		}

		userID, err := r.resolver.ResolveUser(ctx, sr.UserLogin)
		if err != nil {
			return nil, fmt.Errorf("review %d author: %w", sr.ID, err)
		}

		headSHA := sr.CommitID
		if headSHA == "" && pr != nil {
			headSHA = pr.HeadSHA
		}

		review := &model.PullRequestReview{
			SourceReviewID: sr.ID,
			PullRequestID:  unit.ID,
			UserID:         userID,
			State:          state,
			HeadSHA:        headSHA,
			Body:           sr.Body,
			SubmittedAt:    sr.SubmittedAt,
		}
		reviews = append(reviews, review)
		bySourceID[sr.ID] = review
		hasDismissed = hasDismissed || state == model.ReviewStateDismissed
	}

	if len(reviews) == 0 {
		return nil, nil
	}

	comments, err := r.source.FetchReviewComments(ctx, fullName, unit.Number)
	if err != nil {
		return nil, err
	}
	for _, c := range comments {
		review, ok := bySourceID[c.ReviewID]
		if c.ReviewID == 0 || !ok {
			continue
		}
		localID, err := r.resolver.ResolveReviewComment(ctx, fullName, unit.Number, c.ID)
		if errors.Is(err, driven.ErrUnresolvedReference) {
			slog.Debug("comment has no local record", "repo", fullName, "pr", unit.Number, "comment", c.ID)
			continue
		}
		if err != nil {
			return nil, err
		}
		review.CommentIDs = append(review.CommentIDs, localID)
	}

	if hasDismissed {
		if err := r.attachDismissals(ctx, fullName, unit, bySourceID); err != nil {
			return nil, err
		}
	}

	return reviews, nil
}

// attachDismissals finds the review_dismissed event of each dismissed review.
// Reviews without a matching, resolvable event are left alone.
func (r *ReviewReconciler) attachDismissals(ctx context.Context, fullName string, unit model.PullRequestUnit, bySourceID map[int64]*model.PullRequestReview) error {
	events, err := r.source.FetchIssueEvents(ctx, fullName, unit.Number)
	if err != nil {
		return err
	}

	for _, e := range events {
		if e.DismissedReview == nil {
			continue
		}
		review, ok := bySourceID[e.DismissedReview.ReviewID]
		if !ok || review.State != model.ReviewStateDismissed || review.Dismissal != nil {
			continue
		}

		prior, ok := model.ParseReviewState(e.DismissedReview.PriorState)
		if !ok {
			slog.Warn("dismissal has unknown prior state", "repo", fullName, "pr", unit.Number,
				"event", e.ID, "state", strings.ToLower(e.DismissedReview.PriorState))
			continue
		}

		eventID, err := r.resolver.ResolveIssueEvent(ctx, fullName, unit.Number, e.ID)
		if errors.Is(err, driven.ErrUnresolvedReference) {
			slog.Debug("dismissal event has no local record", "repo", fullName, "pr", unit.Number, "event", e.ID)
			continue
		}
		if err != nil {
			return err
		}

		review.Dismissal = &model.DismissalBackfill{
			EventID:    eventID,
			PriorState: prior,
			Message:    e.DismissedReview.Message,
		}
	}

	return nil
}

// writeReview inserts one review inside the unit's transaction, then links
// its comments, clears the review request it answers and backfills its
// dismissal event.
func (r *ReviewReconciler) writeReview(ctx context.Context, tx driven.ReviewTx, review *model.PullRequestReview, res *ReviewResult) error {
	exists, err := tx.ReviewExists(ctx, *review)
	if err != nil {
		return err
	}
	if exists {
		res.ReviewsAlreadyStored++
		return nil
	}

	id, err := tx.InsertReview(ctx, *review)
	if err != nil {
		return err
	}
	review.ID = id
	res.ReviewsInserted++

	for _, commentID := range review.CommentIDs {
		linked, err := tx.LinkComment(ctx, commentID, id)
		if err != nil {
			return err
		}
		if linked {
			res.CommentsLinked++
		}
	}

	if review.State.SupersedesRequests() {
		req, err := tx.GetReviewRequest(ctx, review.PullRequestID, review.UserID)
		if err != nil {
			return err
		}
		if req != nil && req.SupersededBy(review.SubmittedAt) {
			if err := tx.DeleteReviewRequest(ctx, req.ID); err != nil {
				return err
			}
			res.RequestsRemoved++
		}
	}

	if review.Dismissal != nil {
		d := *review.Dismissal
		d.ReviewID = id
		n, err := tx.BackfillDismissal(ctx, d)
		if err != nil {
			return err
		}
		res.DismissalsBackfilled += n
	}

	return nil
}

// sleepCtx pauses for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
