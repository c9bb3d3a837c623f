// Package github implements the SourceClient port using the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
	"github.com/ericfisherdev/ghereconcile/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SourceClient = (*Client)(nil)

// Credentials selects how the client authenticates. Token wins over Username.
type Credentials struct {
	Token    string
	Username string
	Password string
	// TwoFactor is called once while the client is built with basic auth and
	// returns the one-time code. Nil when the account has no second factor.
	TwoFactor func() (string, error)
}

// Client implements the driven.SourceClient port using the go-github library.
type Client struct {
	gh         *gh.Client
	newBackOff func() backoff.BackOff
}

// Option customizes a Client.
type Option func(*Client)

// WithRetryBackOff replaces the backoff policy used for transient faults.
// A fresh BackOff is requested per call since implementations are stateful.
func WithRetryBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = newBackOff }
}

// WithRetryMaxElapsed bounds the exponential backoff used for transient faults.
func WithRetryMaxElapsed(d time.Duration) Option {
	return WithRetryBackOff(func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = d
		return bo
	})
}

// NewClient creates a new source API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. basic auth with optional OTP header, when no token is given
//  3. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  4. go-github (REST API client, PAT auth when a token is given)
//
// baseURL selects an enterprise source API; empty means api.github.com.
func NewClient(creds Credentials, baseURL string, opts ...Option) (*Client, error) {
	cacheTransport := httpcache.NewMemoryCacheTransport()

	var client *gh.Client
	switch {
	case creds.Token != "":
		client = gh.NewClient(github_ratelimit.NewClient(cacheTransport)).WithAuthToken(creds.Token)
	case creds.Username != "":
		var otp string
		if creds.TwoFactor != nil {
			code, err := creds.TwoFactor()
			if err != nil {
				return nil, fmt.Errorf("reading two-factor code: %w", err)
			}
			otp = strings.TrimSpace(code)
		}
		basic := &gh.BasicAuthTransport{
			Username:  creds.Username,
			Password:  creds.Password,
			OTP:       otp,
			Transport: cacheTransport,
		}
		client = gh.NewClient(github_ratelimit.NewClient(basic))
	default:
		return nil, errors.New("source credentials require a token or a username")
	}

	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring enterprise URL %q: %w", baseURL, err)
		}
	}

	c := &Client{gh: client}
	WithRetryMaxElapsed(2 * time.Minute)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, opts ...Option) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	c := &Client{gh: client}
	WithRetryMaxElapsed(2 * time.Minute)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchRepository retrieves the repository attributes that the import does not carry over.
func (c *Client) FetchRepository(ctx context.Context, repoFullName string) (*model.SourceRepository, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	var r *gh.Repository
	err = c.withRetry(ctx, func() error {
		var resp *gh.Response
		var err error
		r, resp, err = c.gh.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return err
		}
		logRateLimit(resp, repoFullName, 0, 1)
		if r.GetName() == "" {
			return fmt.Errorf("%w: empty repository response", driven.ErrTransientSource)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching repository %s: %w", repoFullName, err)
	}

	return &model.SourceRepository{
		FullName:  repoFullName,
		HasWiki:   r.GetHasWiki(),
		HasIssues: r.GetHasIssues(),
		PushedAt:  r.GetPushedAt().Time,
	}, nil
}

// FetchPullRequest retrieves a single pull request.
func (c *Client) FetchPullRequest(ctx context.Context, repoFullName string, number int) (*model.SourcePullRequest, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	var pr *gh.PullRequest
	err = c.withRetry(ctx, func() error {
		var resp *gh.Response
		var err error
		pr, resp, err = c.gh.PullRequests.Get(ctx, owner, repo, number)
		if err != nil {
			return err
		}
		logRateLimit(resp, repoFullName+"/pull", 0, 1)
		if pr.GetNumber() == 0 {
			return fmt.Errorf("%w: empty pull request response", driven.ErrTransientSource)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching pull request %s#%d: %w", repoFullName, number, err)
	}

	return &model.SourcePullRequest{
		Number:   pr.GetNumber(),
		HeadSHA:  pr.GetHead().GetSHA(),
		MergedAt: pr.GetMergedAt().Time,
	}, nil
}

// FetchReviews retrieves all reviews for a pull request in the order the API returns them.
func (c *Client) FetchReviews(ctx context.Context, repoFullName string, number int) ([]model.SourceReview, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	what := fmt.Sprintf("listing reviews for %s#%d", repoFullName, number)
	reviews, err := paginate(ctx, c, what, func(page int) ([]*gh.PullRequestReview, *gh.Response, error) {
		return c.gh.PullRequests.ListReviews(ctx, owner, repo, number, &gh.ListOptions{Page: page, PerPage: 100})
	})
	if err != nil {
		return nil, err
	}

	result := make([]model.SourceReview, 0, len(reviews))
	for _, r := range reviews {
		result = append(result, mapReview(r))
	}
	return result, nil
}

// FetchReviewComments retrieves all inline review comments for a pull request.
func (c *Client) FetchReviewComments(ctx context.Context, repoFullName string, number int) ([]model.SourceReviewComment, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	what := fmt.Sprintf("listing review comments for %s#%d", repoFullName, number)
	comments, err := paginate(ctx, c, what, func(page int) ([]*gh.PullRequestComment, *gh.Response, error) {
		opts := &gh.PullRequestListCommentsOptions{
			ListOptions: gh.ListOptions{Page: page, PerPage: 100},
		}
		return c.gh.PullRequests.ListComments(ctx, owner, repo, number, opts)
	})
	if err != nil {
		return nil, err
	}

	result := make([]model.SourceReviewComment, 0, len(comments))
	for _, comment := range comments {
		result = append(result, model.SourceReviewComment{
			ID:       comment.GetID(),
			ReviewID: comment.GetPullRequestReviewID(),
		})
	}
	return result, nil
}

// FetchIssueEvents retrieves the timeline events of an issue or pull request.
func (c *Client) FetchIssueEvents(ctx context.Context, repoFullName string, number int) ([]model.SourceIssueEvent, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	what := fmt.Sprintf("listing issue events for %s#%d", repoFullName, number)
	events, err := paginate(ctx, c, what, func(page int) ([]*gh.IssueEvent, *gh.Response, error) {
		return c.gh.Issues.ListIssueEvents(ctx, owner, repo, number, &gh.ListOptions{Page: page, PerPage: 100})
	})
	if err != nil {
		return nil, err
	}

	result := make([]model.SourceIssueEvent, 0, len(events))
	for _, e := range events {
		result = append(result, mapIssueEvent(e))
	}
	return result, nil
}

// FetchProtectedBranches returns the names of the repository's protected branches.
func (c *Client) FetchProtectedBranches(ctx context.Context, repoFullName string) ([]string, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	what := fmt.Sprintf("listing protected branches for %s", repoFullName)
	branches, err := paginate(ctx, c, what, func(page int) ([]*gh.Branch, *gh.Response, error) {
		opts := &gh.BranchListOptions{
			Protected:   gh.Ptr(true),
			ListOptions: gh.ListOptions{Page: page, PerPage: 100},
		}
		return c.gh.Repositories.ListBranches(ctx, owner, repo, opts)
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(branches))
	for _, b := range branches {
		if b.GetProtected() {
			names = append(names, b.GetName())
		}
	}
	return names, nil
}

// FetchBranchProtection returns the protection rules of a branch. Returns nil, nil
// if the branch is not protected (404).
func (c *Client) FetchBranchProtection(ctx context.Context, repoFullName string, branch string) (*model.SourceBranchProtection, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	var protection *gh.Protection
	var unprotected bool
	err = c.withRetry(ctx, func() error {
		var resp *gh.Response
		var err error
		protection, resp, err = c.gh.Repositories.GetBranchProtection(ctx, owner, repo, branch)
		if errors.Is(err, gh.ErrBranchNotProtected) || (err != nil && resp != nil && resp.StatusCode == http.StatusNotFound) {
			unprotected = true
			return nil
		}
		if err != nil {
			return err
		}
		logRateLimit(resp, repoFullName+"/protection", 0, 1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching protection for %s branch %s: %w", repoFullName, branch, err)
	}
	if unprotected || protection == nil {
		return nil, nil
	}

	return mapProtection(branch, protection), nil
}

// FetchForks lists the forks of a repository.
func (c *Client) FetchForks(ctx context.Context, repoFullName string) ([]model.SourceFork, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	what := fmt.Sprintf("listing forks for %s", repoFullName)
	forks, err := paginate(ctx, c, what, func(page int) ([]*gh.Repository, *gh.Response, error) {
		opts := &gh.RepositoryListForksOptions{
			ListOptions: gh.ListOptions{Page: page, PerPage: 100},
		}
		return c.gh.Repositories.ListForks(ctx, owner, repo, opts)
	})
	if err != nil {
		return nil, err
	}

	result := make([]model.SourceFork, 0, len(forks))
	for _, f := range forks {
		result = append(result, model.SourceFork{
			FullName:   f.GetFullName(),
			OwnerLogin: f.GetOwner().GetLogin(),
		})
	}
	return result, nil
}

// paginate walks every page of a list endpoint. Each page is fetched under the
// client's retry policy; a missing body (nil slice) counts as a transient fault.
func paginate[T any](ctx context.Context, c *Client, what string, list func(page int) ([]T, *gh.Response, error)) ([]T, error) {
	var all []T
	page := 0

	for {
		var items []T
		var resp *gh.Response
		err := c.withRetry(ctx, func() error {
			var err error
			items, resp, err = list(page)
			if err != nil {
				return err
			}
			if items == nil {
				return fmt.Errorf("%w: empty response", driven.ErrTransientSource)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%s (page %d): %w", what, page, err)
		}

		logRateLimit(resp, what, page, len(items))
		all = append(all, items...)

		if resp.NextPage == 0 {
			break
		}
		page = resp.NextPage
	}

	return all, nil
}

// mapReview converts a go-github PullRequestReview to a source review.
func mapReview(r *gh.PullRequestReview) model.SourceReview {
	return model.SourceReview{
		ID:          r.GetID(),
		UserLogin:   r.GetUser().GetLogin(),
		State:       r.GetState(),
		CommitID:    r.GetCommitID(),
		Body:        r.GetBody(),
		SubmittedAt: r.GetSubmittedAt().Time,
	}
}

// mapIssueEvent converts a go-github IssueEvent, keeping dismissal metadata when present.
func mapIssueEvent(e *gh.IssueEvent) model.SourceIssueEvent {
	event := model.SourceIssueEvent{
		ID:    e.GetID(),
		Event: e.GetEvent(),
	}
	if d := e.DismissedReview; d != nil {
		event.DismissedReview = &model.SourceDismissal{
			ReviewID:   d.GetReviewID(),
			PriorState: d.GetState(),
			Message:    d.GetDismissalMessage(),
		}
	}
	return event
}

// mapProtection converts go-github protection rules. Status-check contexts come
// from the checks list, falling back to the legacy contexts list.
func mapProtection(branch string, p *gh.Protection) *model.SourceBranchProtection {
	result := &model.SourceBranchProtection{Branch: branch}

	if ea := p.EnforceAdmins; ea != nil {
		result.EnforceAdmins = ea.Enabled
	}

	if rsc := p.RequiredStatusChecks; rsc != nil {
		var contexts []string
		for _, check := range rsc.GetChecks() {
			contexts = append(contexts, check.Context)
		}
		if len(contexts) == 0 && rsc.Contexts != nil {
			contexts = append(contexts, *rsc.Contexts...)
		}
		result.StatusChecks = &model.SourceStatusChecks{
			Strict:   rsc.Strict,
			Contexts: contexts,
		}
	}

	result.RequiresReviews = p.RequiredPullRequestReviews != nil

	if r := p.Restrictions; r != nil {
		restrictions := &model.SourceRestrictions{}
		for _, u := range r.Users {
			restrictions.UserLogins = append(restrictions.UserLogins, u.GetLogin())
		}
		for _, t := range r.Teams {
			restrictions.TeamSlugs = append(restrictions.TeamSlugs, t.GetSlug())
		}
		result.Restrictions = restrictions
	}

	return result
}

// logRateLimit logs the source API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
