package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/ghereconcile/internal/domain/port/driven"
)

// withRetry runs op, retrying transient faults under the client's backoff policy.
// Rate-limit and all other errors stop immediately.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := classify(op())
		if err == nil {
			return nil
		}
		if errors.Is(err, driven.ErrTransientSource) {
			slog.Warn("transient source fault, retrying", "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(c.newBackOff(), ctx))
}

// classify maps go-github and transport errors onto the port's error contract.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, driven.ErrTransientSource) || errors.Is(err, driven.ErrRateLimited) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return &driven.RateLimitError{ResetAt: rateErr.Rate.Reset.Time, Err: err}
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		wait := time.Minute
		if abuseErr.RetryAfter != nil {
			wait = *abuseErr.RetryAfter
		}
		return &driven.RateLimitError{ResetAt: time.Now().Add(wait), Err: err}
	}

	var acceptedErr *gh.AcceptedError
	if errors.As(err, &acceptedErr) {
		return fmt.Errorf("%w: %v", driven.ErrTransientSource, err)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) {
		if respErr.Response != nil && respErr.Response.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %v", driven.ErrTransientSource, err)
		}
		return err
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated response: %v", driven.ErrTransientSource, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", driven.ErrTransientSource, err)
	}

	return err
}
