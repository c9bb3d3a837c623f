package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
	"github.com/ericfisherdev/ghereconcile/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoStore = (*RepoRepo)(nil)

// RepoRepo is the database/sql implementation of the RepoStore port interface.
type RepoRepo struct {
	db *DB
}

// NewRepoRepo creates a new RepoRepo backed by the given DB.
func NewRepoRepo(db *DB) *RepoRepo {
	return &RepoRepo{db: db}
}

// ListMigratedRepositories returns the repositories the migration imported, ordered by id.
func (r *RepoRepo) ListMigratedRepositories(ctx context.Context, migrationID string) ([]model.Repository, error) {
	const query = `
		SELECT r.id, r.name
		FROM repositories r
		JOIN migratable_resources m ON m.model_id = r.id AND m.model_name = 'repository'
		WHERE m.guid = ?
		ORDER BY r.id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, migrationID)
	if err != nil {
		return nil, fmt.Errorf("query migrated repositories: %w", err)
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		var repo model.Repository
		if err := rows.Scan(&repo.ID, &repo.Name); err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

// MigratedOrganization returns the single organization account of the migration.
func (r *RepoRepo) MigratedOrganization(ctx context.Context, migrationID string) (*model.Organization, error) {
	const query = `
		SELECT u.id, u.login
		FROM users u
		JOIN migratable_resources m ON m.model_id = u.id AND m.model_name = 'organization'
		WHERE m.guid = ?
		ORDER BY u.id
		LIMIT 2
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, migrationID)
	if err != nil {
		return nil, fmt.Errorf("query migrated organization: %w", err)
	}
	defer rows.Close()

	var orgs []model.Organization
	for rows.Next() {
		var org model.Organization
		if err := rows.Scan(&org.ID, &org.Login); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organizations: %w", err)
	}

	if len(orgs) != 1 {
		return nil, fmt.Errorf("migration %s has %d organizations: %w", migrationID, len(orgs), driven.ErrOrganizationUnknown)
	}

	return &orgs[0], nil
}

// UserIDByLogin returns the id of a local account.
func (r *RepoRepo) UserIDByLogin(ctx context.Context, login string) (int64, error) {
	var id int64
	err := r.db.Reader.QueryRowContext(ctx, `SELECT id FROM users WHERE login = ?`, login).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("user %q: %w", login, driven.ErrUserNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("query user %q: %w", login, err)
	}
	return id, nil
}

// SetFeatureOptions copies the wiki and issue tracker switches onto a repository.
func (r *RepoRepo) SetFeatureOptions(ctx context.Context, repoID int64, hasWiki, hasIssues bool) error {
	_, err := r.db.Writer.ExecContext(ctx,
		`UPDATE repositories SET has_wiki = ?, has_issues = ? WHERE id = ?`,
		hasWiki, hasIssues, repoID,
	)
	if err != nil {
		return fmt.Errorf("set feature options for repository %d: %w", repoID, err)
	}
	return nil
}

// SetPushedAt restores the last push time of a repository.
func (r *RepoRepo) SetPushedAt(ctx context.Context, repoID int64, pushedAt time.Time) error {
	_, err := r.db.Writer.ExecContext(ctx,
		`UPDATE repositories SET pushed_at = ? WHERE id = ?`,
		dbTime(pushedAt), repoID,
	)
	if err != nil {
		return fmt.Errorf("set pushed_at for repository %d: %w", repoID, err)
	}
	return nil
}
