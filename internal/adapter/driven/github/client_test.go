package github_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghAdapter "github.com/ericfisherdev/ghereconcile/internal/adapter/driven/github"
	"github.com/ericfisherdev/ghereconcile/internal/domain/port/driven"
)

// newTestClient creates a Client backed by the given httptest handler. Transient
// faults are retried twice with no delay.
func newTestClient(t *testing.T, handler http.Handler) *ghAdapter.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := ghAdapter.NewClientWithHTTPClient(
		server.Client(),
		server.URL+"/",
		ghAdapter.WithRetryBackOff(func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
		}),
	)
	require.NoError(t, err)

	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestFetchRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"name":       "widgets",
			"full_name":  "acme/widgets",
			"has_wiki":   false,
			"has_issues": true,
			"pushed_at":  "2017-02-01T08:30:00Z",
		})
	})

	client := newTestClient(t, mux)
	repo, err := client.FetchRepository(context.Background(), "acme/widgets")

	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", repo.FullName)
	assert.False(t, repo.HasWiki)
	assert.True(t, repo.HasIssues)
	assert.Equal(t, time.Date(2017, 2, 1, 8, 30, 0, 0, time.UTC), repo.PushedAt.UTC())
}

func TestFetchPullRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"number":    7,
			"head":      map[string]any{"ref": "feature", "sha": "abc123"},
			"merged_at": "2017-01-05T10:00:00Z",
		})
	})

	client := newTestClient(t, mux)
	pr, err := client.FetchPullRequest(context.Background(), "acme/widgets", 7)

	require.NoError(t, err)
	assert.Equal(t, 7, pr.Number)
	assert.Equal(t, "abc123", pr.HeadSHA)
	assert.Equal(t, time.Date(2017, 1, 5, 10, 0, 0, 0, time.UTC), pr.MergedAt.UTC())
}

func TestFetchPullRequest_EmptyObjectIsTransient(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, map[string]any{})
	})

	client := newTestClient(t, mux)
	_, err := client.FetchPullRequest(context.Background(), "acme/widgets", 7)

	require.Error(t, err)
	assert.ErrorIs(t, err, driven.ErrTransientSource)
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")
}

func TestFetchReviews_Pagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			writeJSON(t, w, []map[string]any{
				{
					"id":           1002,
					"state":        "CHANGES_REQUESTED",
					"body":         "",
					"commit_id":    "def456",
					"submitted_at": "2017-01-03T11:00:00Z",
					"user":         map[string]any{"login": "bob"},
				},
			})
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<http://%s%s?page=2>; rel="next"`, r.Host, r.URL.Path))
		writeJSON(t, w, []map[string]any{
			{
				"id":           1001,
				"state":        "APPROVED",
				"body":         "Ship it",
				"commit_id":    "abc123",
				"submitted_at": "2017-01-02T10:00:00Z",
				"user":         map[string]any{"login": "alice"},
			},
		})
	})

	client := newTestClient(t, mux)
	reviews, err := client.FetchReviews(context.Background(), "acme/widgets", 7)

	require.NoError(t, err)
	require.Len(t, reviews, 2)

	assert.Equal(t, int64(1001), reviews[0].ID)
	assert.Equal(t, "alice", reviews[0].UserLogin)
	assert.Equal(t, "APPROVED", reviews[0].State)
	assert.Equal(t, "abc123", reviews[0].CommitID)
	assert.Equal(t, "Ship it", reviews[0].Body)
	assert.Equal(t, time.Date(2017, 1, 2, 10, 0, 0, 0, time.UTC), reviews[0].SubmittedAt.UTC())

	assert.Equal(t, int64(1002), reviews[1].ID)
	assert.Equal(t, "bob", reviews[1].UserLogin)
	assert.Equal(t, "CHANGES_REQUESTED", reviews[1].State)
}

func TestFetchReviews_EmptyListIsNotTransient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []any{})
	})

	client := newTestClient(t, mux)
	reviews, err := client.FetchReviews(context.Background(), "acme/widgets", 7)

	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestFetchReviews_NullBodyIsTransient(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("null"))
	})

	client := newTestClient(t, mux)
	_, err := client.FetchReviews(context.Background(), "acme/widgets", 7)

	require.Error(t, err)
	assert.ErrorIs(t, err, driven.ErrTransientSource)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchReviews_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"message":"bad gateway"}`))
			return
		}
		writeJSON(t, w, []map[string]any{
			{"id": 1001, "state": "COMMENTED", "user": map[string]any{"login": "alice"}},
		})
	})

	client := newTestClient(t, mux)
	reviews, err := client.FetchReviews(context.Background(), "acme/widgets", 7)

	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchReviews_NotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})

	client := newTestClient(t, mux)
	_, err := client.FetchReviews(context.Background(), "acme/widgets", 7)

	require.Error(t, err)
	assert.NotErrorIs(t, err, driven.ErrTransientSource)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchReviews_RateLimited(t *testing.T) {
	reset := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"API rate limit exceeded for 10.0.0.1."}`))
	})

	client := newTestClient(t, mux)
	_, err := client.FetchReviews(context.Background(), "acme/widgets", 7)

	require.Error(t, err)
	assert.ErrorIs(t, err, driven.ErrRateLimited)

	var rateErr *driven.RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.WithinDuration(t, reset, rateErr.ResetAt, time.Second)
	assert.Equal(t, int32(1), calls.Load(), "rate limits are not retried by the adapter")
}

func TestFetchReviewComments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7/comments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			{"id": 501, "pull_request_review_id": 1001, "body": "nit"},
			{"id": 502, "pull_request_review_id": 1002, "body": "typo"},
		})
	})

	client := newTestClient(t, mux)
	comments, err := client.FetchReviewComments(context.Background(), "acme/widgets", 7)

	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, int64(501), comments[0].ID)
	assert.Equal(t, int64(1001), comments[0].ReviewID)
	assert.Equal(t, int64(502), comments[1].ID)
	assert.Equal(t, int64(1002), comments[1].ReviewID)
}

func TestFetchIssueEvents_DismissedReview(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/issues/7/events", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			{"id": 9001, "event": "labeled"},
			{
				"id":    9002,
				"event": "review_dismissed",
				"dismissed_review": map[string]any{
					"state":             "approved",
					"review_id":         1001,
					"dismissal_message": "stale",
				},
			},
		})
	})

	client := newTestClient(t, mux)
	events, err := client.FetchIssueEvents(context.Background(), "acme/widgets", 7)

	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, int64(9001), events[0].ID)
	assert.Nil(t, events[0].DismissedReview)

	assert.Equal(t, int64(9002), events[1].ID)
	assert.Equal(t, "review_dismissed", events[1].Event)
	require.NotNil(t, events[1].DismissedReview)
	assert.Equal(t, int64(1001), events[1].DismissedReview.ReviewID)
	assert.Equal(t, "approved", events[1].DismissedReview.PriorState)
	assert.Equal(t, "stale", events[1].DismissedReview.Message)
}

func TestFetchProtectedBranches(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/branches", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("protected"))
		writeJSON(t, w, []map[string]any{
			{"name": "main", "protected": true},
			{"name": "release", "protected": true},
		})
	})

	client := newTestClient(t, mux)
	names, err := client.FetchProtectedBranches(context.Background(), "acme/widgets")

	require.NoError(t, err)
	assert.Equal(t, []string{"main", "release"}, names)
}

func TestFetchBranchProtection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/branches/main/protection", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"required_status_checks": map[string]any{
				"strict":   true,
				"contexts": []string{"ci/legacy"},
				"checks": []map[string]any{
					{"context": "ci/build"},
					{"context": "ci/lint"},
				},
			},
			"enforce_admins": map[string]any{"enabled": true},
			"required_pull_request_reviews": map[string]any{
				"required_approving_review_count": 2,
			},
			"restrictions": map[string]any{
				"users": []map[string]any{{"login": "alice"}},
				"teams": []map[string]any{{"slug": "core"}},
			},
		})
	})

	client := newTestClient(t, mux)
	p, err := client.FetchBranchProtection(context.Background(), "acme/widgets", "main")

	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "main", p.Branch)
	assert.True(t, p.EnforceAdmins)
	require.NotNil(t, p.StatusChecks)
	assert.True(t, p.StatusChecks.Strict)
	assert.Equal(t, []string{"ci/build", "ci/lint"}, p.StatusChecks.Contexts)
	assert.True(t, p.RequiresReviews)
	require.NotNil(t, p.Restrictions)
	assert.Equal(t, []string{"alice"}, p.Restrictions.UserLogins)
	assert.Equal(t, []string{"core"}, p.Restrictions.TeamSlugs)
}

func TestFetchBranchProtection_LegacyContexts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/branches/main/protection", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"required_status_checks": map[string]any{
				"strict":   false,
				"contexts": []string{"ci/legacy"},
			},
		})
	})

	client := newTestClient(t, mux)
	p, err := client.FetchBranchProtection(context.Background(), "acme/widgets", "main")

	require.NoError(t, err)
	require.NotNil(t, p)
	assert.False(t, p.EnforceAdmins)
	require.NotNil(t, p.StatusChecks)
	assert.Equal(t, []string{"ci/legacy"}, p.StatusChecks.Contexts)
	assert.False(t, p.RequiresReviews)
	assert.Nil(t, p.Restrictions)
}

func TestFetchBranchProtection_NotProtected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/branches/main/protection", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Branch not protected"}`))
	})

	client := newTestClient(t, mux)
	p, err := client.FetchBranchProtection(context.Background(), "acme/widgets", "main")

	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFetchForks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/forks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			{"full_name": "alice/widgets", "owner": map[string]any{"login": "alice"}},
			{"full_name": "bob/widgets", "owner": map[string]any{"login": "bob"}},
		})
	})

	client := newTestClient(t, mux)
	forks, err := client.FetchForks(context.Background(), "acme/widgets")

	require.NoError(t, err)
	require.Len(t, forks, 2)
	assert.Equal(t, "alice/widgets", forks[0].FullName)
	assert.Equal(t, "alice", forks[0].OwnerLogin)
	assert.Equal(t, "bob", forks[1].OwnerLogin)
}

func TestInvalidRepoName(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called for invalid repo name")
	})

	client := newTestClient(t, handler)

	tests := []struct {
		name string
		repo string
	}{
		{name: "no slash", repo: "invalid"},
		{name: "empty owner", repo: "/repo"},
		{name: "empty repo", repo: "owner/"},
		{name: "empty string", repo: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.FetchReviews(context.Background(), tc.repo, 1)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid repo name")
		})
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := ghAdapter.NewClient(ghAdapter.Credentials{}, "")
	require.Error(t, err)

	_, err = ghAdapter.NewClient(ghAdapter.Credentials{Token: "ghp_x"}, "https://ghe.example.com/api/v3/")
	require.NoError(t, err)
}

func TestNewClient_TwoFactorPromptedOnce(t *testing.T) {
	var prompts int
	creds := ghAdapter.Credentials{
		Username: "octocat",
		Password: "secret",
		TwoFactor: func() (string, error) {
			prompts++
			return " 123456\n", nil
		},
	}

	_, err := ghAdapter.NewClient(creds, "")

	require.NoError(t, err)
	assert.Equal(t, 1, prompts)
}
