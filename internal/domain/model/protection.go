package model

// SourceBranchProtection is the source protection configuration of one branch.
// A nil block means the source has no such rule.
type SourceBranchProtection struct {
	Branch        string
	EnforceAdmins bool
	StatusChecks  *SourceStatusChecks
	// RequiresReviews is set when the branch has a required-reviews block.
	RequiresReviews bool
	Restrictions    *SourceRestrictions
}

// SourceStatusChecks is the required-status-checks block.
type SourceStatusChecks struct {
	Strict   bool
	Contexts []string
}

// SourceRestrictions lists who may push to the branch.
type SourceRestrictions struct {
	UserLogins []string
	TeamSlugs  []string
}

// ProtectedBranch is the target-store form of a branch protection rule.
type ProtectedBranch struct {
	ID                     int64
	RepositoryID           int64
	Name                   string
	CreatorID              int64
	StatusCheckEnforcement EnforcementLevel
	StrictStatusChecks     bool
	ReviewEnforcement      EnforcementLevel
	AuthorizedActorsOnly   bool
	StatusCheckContexts    []string
	AuthorizedActors       []AuthorizedActor
}

// AuthorizedActor is a local user or team allowed to push to a protected branch.
type AuthorizedActor struct {
	Kind    ActorKind
	ActorID int64
}
