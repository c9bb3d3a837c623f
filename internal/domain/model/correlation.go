package model

import "fmt"

// CorrelationRecord maps a source object reference to its target-store id.
// It is written by the bulk import and only read here.
type CorrelationRecord struct {
	MigrationID     string
	SourceReference string
	TargetLocalID   int64
	ResourceKind    string
}

// SourceRefs builds canonical source references for a source web base URL
// such as "https://github.com".
type SourceRefs struct {
	Base string
}

// User returns the reference of a user account.
func (s SourceRefs) User(login string) string {
	return fmt.Sprintf("%s/%s", s.Base, login)
}

// Organization returns the reference of an organization account.
func (s SourceRefs) Organization(login string) string {
	return fmt.Sprintf("%s/%s", s.Base, login)
}

// Team returns the reference of an organization team.
func (s SourceRefs) Team(org, slug string) string {
	return fmt.Sprintf("%s/orgs/%s/teams/%s", s.Base, org, slug)
}

// ReviewComment returns the reference of an inline pull request review comment.
func (s SourceRefs) ReviewComment(repoFullName string, prNumber int, commentID int64) string {
	return fmt.Sprintf("%s/%s/pull/%d/files#r%d", s.Base, repoFullName, prNumber, commentID)
}

// IssueEvent returns the reference of an issue or pull request timeline event.
func (s SourceRefs) IssueEvent(repoFullName string, issueNumber int, eventID int64) string {
	return fmt.Sprintf("%s/%s/issues/%d#event-%d", s.Base, repoFullName, issueNumber, eventID)
}
