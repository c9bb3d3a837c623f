package model

// Checkpoint is the last fully reconciled pull request number of a repository.
// Valid is false when nothing has been reconciled yet.
type Checkpoint struct {
	RepositoryID int64
	LastUnit     int
	Valid        bool
}

// ShouldSkip reports whether unit was already reconciled.
func (c Checkpoint) ShouldSkip(unit int) bool {
	return c.Valid && unit <= c.LastUnit
}
