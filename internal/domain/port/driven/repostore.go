package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
)

var (
	// ErrOrganizationUnknown is returned when the migration does not name exactly
	// one organization and none was configured.
	ErrOrganizationUnknown = errors.New("migrated organization could not be determined")

	// ErrUserNotFound is returned when a local login does not exist.
	ErrUserNotFound = errors.New("local user not found")
)

// RepoStore defines the driven port for migrated repositories and accounts.
type RepoStore interface {
	ListMigratedRepositories(ctx context.Context, migrationID string) ([]model.Repository, error)
	// MigratedOrganization returns ErrOrganizationUnknown unless the migration
	// holds exactly one organization.
	MigratedOrganization(ctx context.Context, migrationID string) (*model.Organization, error)
	// UserIDByLogin returns ErrUserNotFound for unknown logins.
	UserIDByLogin(ctx context.Context, login string) (int64, error)
	SetFeatureOptions(ctx context.Context, repoID int64, hasWiki, hasIssues bool) error
	SetPushedAt(ctx context.Context, repoID int64, pushedAt time.Time) error
}
