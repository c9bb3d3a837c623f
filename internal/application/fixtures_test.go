package application_test

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/ericfisherdev/ghereconcile/internal/adapter/driven/sqlstore"
	"github.com/ericfisherdev/ghereconcile/internal/application"
	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
	"github.com/ericfisherdev/ghereconcile/internal/domain/port/driven"
)

const (
	testGUID = "guid-1"
	testOrg  = "acme"
)

var (
	testRefs  = model.SourceRefs{Base: "https://github.com"}
	testSince = time.Date(2016, 9, 1, 12, 0, 0, 0, time.UTC)
)

// --- Fake source system ---

type fakeRepo struct {
	info     model.SourceRepository
	prs      map[int]model.SourcePullRequest
	reviews  map[int][]model.SourceReview
	comments map[int][]model.SourceReviewComment
	events   map[int][]model.SourceIssueEvent
	branches []string
	rules    map[string]*model.SourceBranchProtection
	forks    []model.SourceFork
}

func newFakeRepo(fullName string) *fakeRepo {
	return &fakeRepo{
		info:     model.SourceRepository{FullName: fullName, HasWiki: false, HasIssues: true, PushedAt: time.Date(2017, 6, 1, 9, 30, 0, 0, time.UTC)},
		prs:      make(map[int]model.SourcePullRequest),
		reviews:  make(map[int][]model.SourceReview),
		comments: make(map[int][]model.SourceReviewComment),
		events:   make(map[int][]model.SourceIssueEvent),
		rules:    make(map[string]*model.SourceBranchProtection),
	}
}

// fakeSource serves canned repositories. fail, when set, is consulted before
// every call and may inject an error.
type fakeSource struct {
	repos map[string]*fakeRepo
	fail  func(op, repo string, number int) error
	calls []string
}

var _ driven.SourceClient = (*fakeSource)(nil)

func newFakeSource(repos ...*fakeRepo) *fakeSource {
	s := &fakeSource{repos: make(map[string]*fakeRepo)}
	for _, r := range repos {
		s.repos[r.info.FullName] = r
	}
	return s
}

func (s *fakeSource) call(op, repo string, number int) (*fakeRepo, error) {
	s.calls = append(s.calls, fmt.Sprintf("%s %s#%d", op, repo, number))
	if s.fail != nil {
		if err := s.fail(op, repo, number); err != nil {
			return nil, err
		}
	}
	r, ok := s.repos[repo]
	if !ok {
		return nil, fmt.Errorf("repository %s not found", repo)
	}
	return r, nil
}

func (s *fakeSource) callCount(op, repo string, number int) int {
	want := fmt.Sprintf("%s %s#%d", op, repo, number)
	n := 0
	for _, c := range s.calls {
		if c == want {
			n++
		}
	}
	return n
}

func (s *fakeSource) FetchRepository(_ context.Context, repo string) (*model.SourceRepository, error) {
	r, err := s.call("repository", repo, 0)
	if err != nil {
		return nil, err
	}
	info := r.info
	return &info, nil
}

func (s *fakeSource) FetchPullRequest(_ context.Context, repo string, number int) (*model.SourcePullRequest, error) {
	r, err := s.call("pull", repo, number)
	if err != nil {
		return nil, err
	}
	pr, ok := r.prs[number]
	if !ok {
		pr = model.SourcePullRequest{Number: number, HeadSHA: fmt.Sprintf("head-%d", number)}
	}
	return &pr, nil
}

func (s *fakeSource) FetchReviews(_ context.Context, repo string, number int) ([]model.SourceReview, error) {
	r, err := s.call("reviews", repo, number)
	if err != nil {
		return nil, err
	}
	return r.reviews[number], nil
}

func (s *fakeSource) FetchReviewComments(_ context.Context, repo string, number int) ([]model.SourceReviewComment, error) {
	r, err := s.call("comments", repo, number)
	if err != nil {
		return nil, err
	}
	return r.comments[number], nil
}

func (s *fakeSource) FetchIssueEvents(_ context.Context, repo string, number int) ([]model.SourceIssueEvent, error) {
	r, err := s.call("events", repo, number)
	if err != nil {
		return nil, err
	}
	return r.events[number], nil
}

func (s *fakeSource) FetchProtectedBranches(_ context.Context, repo string) ([]string, error) {
	r, err := s.call("branches", repo, 0)
	if err != nil {
		return nil, err
	}
	return r.branches, nil
}

func (s *fakeSource) FetchBranchProtection(_ context.Context, repo string, branch string) (*model.SourceBranchProtection, error) {
	r, err := s.call("protection "+branch, repo, 0)
	if err != nil {
		return nil, err
	}
	return r.rules[branch], nil
}

func (s *fakeSource) FetchForks(_ context.Context, repo string) ([]model.SourceFork, error) {
	r, err := s.call("forks", repo, 0)
	if err != nil {
		return nil, err
	}
	return r.forks, nil
}

// --- Target store fixture ---

// target wraps an in-memory rehearsal database seeded the way the bulk import
// leaves it.
type target struct {
	t  *testing.T
	db *sqlstore.DB
}

func newTarget(t *testing.T) *target {
	t.Helper()

	db, err := sqlstore.OpenMemory(context.Background(), url.PathEscape(t.Name()))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return &target{t: t, db: db}
}

func (tg *target) exec(query string, args ...any) int64 {
	tg.t.Helper()

	res, err := tg.db.Writer.ExecContext(context.Background(), query, args...)
	if err != nil {
		tg.t.Fatalf("fixture %q: %v", query, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		tg.t.Fatalf("fixture last insert id: %v", err)
	}
	return id
}

func (tg *target) count(query string, args ...any) int {
	tg.t.Helper()

	var n int
	if err := tg.db.Reader.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		tg.t.Fatalf("count %q: %v", query, err)
	}
	return n
}

func (tg *target) correlate(modelName string, id int64, ref string) {
	tg.t.Helper()
	tg.exec(
		`INSERT INTO migratable_resources (guid, model_name, model_id, source_url) VALUES (?, ?, ?, ?)`,
		testGUID, modelName, id, ref,
	)
}

// user creates a migrated user account.
func (tg *target) user(login string) int64 {
	tg.t.Helper()
	id := tg.exec(`INSERT INTO users (login) VALUES (?)`, login)
	tg.correlate("user", id, testRefs.User(login))
	return id
}

// localUser creates an account that was not part of the migration.
func (tg *target) localUser(login string) int64 {
	tg.t.Helper()
	return tg.exec(`INSERT INTO users (login) VALUES (?)`, login)
}

func (tg *target) organization(login string) int64 {
	tg.t.Helper()
	id := tg.exec(`INSERT INTO users (login, type) VALUES (?, 'Organization')`, login)
	tg.correlate("organization", id, testRefs.Organization(login))
	return id
}

func (tg *target) repository(name string) int64 {
	tg.t.Helper()
	id := tg.exec(`INSERT INTO repositories (name) VALUES (?)`, name)
	tg.correlate("repository", id, fmt.Sprintf("%s/%s/%s", testRefs.Base, testOrg, name))
	return id
}

// pullRequest creates a migrated pull request and its issue row, returning
// both ids.
func (tg *target) pullRequest(repoID int64, number int, ownerID int64, updatedAt time.Time) (int64, int64) {
	tg.t.Helper()
	createdAt := updatedAt.Add(-24 * time.Hour)
	prID := tg.exec(
		`INSERT INTO pull_requests (repository_id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		repoID, ownerID, createdAt, updatedAt,
	)
	issueID := tg.exec(
		`INSERT INTO issues (repository_id, user_id, number, pull_request_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		repoID, ownerID, number, prID, createdAt, updatedAt,
	)
	return prID, issueID
}

// reviewComment creates a pending imported review comment correlated to the
// source comment sourceID.
func (tg *target) reviewComment(repoID, prID int64, repoFullName string, number int, sourceID int64) int64 {
	tg.t.Helper()
	id := tg.exec(
		`INSERT INTO pull_request_review_comments (repository_id, pull_request_id, state) VALUES (?, ?, 0)`,
		repoID, prID,
	)
	tg.correlate("pull_request_review_comment", id, testRefs.ReviewComment(repoFullName, number, sourceID))
	return id
}

// issueEvent creates an imported timeline event correlated to the source
// event sourceID. A zero subject leaves the event without a detail row.
func (tg *target) issueEvent(issueID int64, repoFullName string, number int, sourceID int64, event string, actorID, subjectID int64, at time.Time) (int64, int64) {
	tg.t.Helper()
	eventID := tg.exec(
		`INSERT INTO issue_events (issue_id, actor_id, event, created_at) VALUES (?, ?, ?, ?)`,
		issueID, actorID, event, at,
	)
	tg.correlate("issue_event", eventID, testRefs.IssueEvent(repoFullName, number, sourceID))

	var detailID int64
	if subjectID != 0 {
		detailID = tg.exec(
			`INSERT INTO issue_event_details (issue_event_id, subject_id, subject_type) VALUES (?, ?, 'User')`,
			eventID, subjectID,
		)
	}
	return eventID, detailID
}

func (tg *target) reviewRequest(prID, reviewerID int64, updatedAt time.Time) int64 {
	tg.t.Helper()
	return tg.exec(
		`INSERT INTO review_requests (pull_request_id, reviewer_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		prID, reviewerID, updatedAt, updatedAt,
	)
}

func (tg *target) stores() application.Stores {
	return application.Stores{
		Correlations: sqlstore.NewCorrelationRepo(tg.db),
		Repos:        sqlstore.NewRepoRepo(tg.db),
		Reviews:      sqlstore.NewReviewRepo(tg.db),
		Events:       sqlstore.NewEventRepo(tg.db),
		Timestamps:   sqlstore.NewTimestampRepo(tg.db),
		Protection:   sqlstore.NewProtectionRepo(tg.db),
	}
}

func (tg *target) resolver() *application.IdentityResolver {
	return application.NewIdentityResolver(sqlstore.NewCorrelationRepo(tg.db), testGUID, testRefs)
}
