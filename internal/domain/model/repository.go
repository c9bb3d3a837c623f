package model

import "time"

// Repository is a migrated repository in the target store.
type Repository struct {
	ID   int64
	Name string
}

// FullName returns the "owner/name" form used against the source system.
func (r Repository) FullName(owner string) string {
	return owner + "/" + r.Name
}

// Organization is the migrated organization account in the target store.
type Organization struct {
	ID    int64
	Login string
}

// SourceRepository holds the source-side repository attributes copied back
// onto the migrated repository.
type SourceRepository struct {
	FullName  string
	HasWiki   bool
	HasIssues bool
	PushedAt  time.Time
}

// SourceFork is a fork of a source repository.
type SourceFork struct {
	FullName   string
	OwnerLogin string
}
