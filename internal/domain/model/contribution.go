package model

import "time"

// Contribution is a normalized contribution time: Unix seconds plus a fixed
// UTC offset in seconds.
type Contribution struct {
	At        time.Time
	Timestamp int64
	Offset    int
}

// NewContribution normalizes t with the given offset.
func NewContribution(t time.Time, offset int) Contribution {
	return Contribution{At: t.UTC(), Timestamp: t.Unix(), Offset: offset}
}

// IssueTimes holds the timestamps a contribution time is derived from.
// ClosedAt is zero for open issues.
type IssueTimes struct {
	ID        int64
	UpdatedAt time.Time
	ClosedAt  time.Time
}

// ContributedAt is the close time of a closed issue, the last update otherwise.
func (i IssueTimes) ContributedAt() time.Time {
	if !i.ClosedAt.IsZero() {
		return i.ClosedAt
	}
	return i.UpdatedAt
}

// PullRequestTimes holds the timestamps a contribution time is derived from.
// MergedAt is zero for unmerged pull requests.
type PullRequestTimes struct {
	ID        int64
	CreatedAt time.Time
	MergedAt  time.Time
}

// ContributedAt is the merge time of a merged pull request, its creation otherwise.
func (p PullRequestTimes) ContributedAt() time.Time {
	if !p.MergedAt.IsZero() {
		return p.MergedAt
	}
	return p.CreatedAt
}
