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
var _ driven.ProtectionStore = (*ProtectionRepo)(nil)

// ProtectionRepo is the database/sql implementation of the ProtectionStore port interface.
type ProtectionRepo struct {
	db *DB
}

// NewProtectionRepo creates a new ProtectionRepo backed by the given DB.
func NewProtectionRepo(db *DB) *ProtectionRepo {
	return &ProtectionRepo{db: db}
}

// ProtectedBranchNames returns the names of the repository's protected branches.
func (r *ProtectionRepo) ProtectedBranchNames(ctx context.Context, repoID int64) ([]string, error) {
	rows, err := r.db.Reader.QueryContext(ctx,
		`SELECT name FROM protected_branches WHERE repository_id = ? ORDER BY name`,
		repoID,
	)
	if err != nil {
		return nil, fmt.Errorf("query protected branches for repository %d: %w", repoID, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan protected branch: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate protected branches: %w", err)
	}

	return names, nil
}

// InsertProtectedBranch writes a protected branch with its required status
// checks and push abilities. An existing branch of the same name is left
// untouched and its id returned with inserted=false.
func (r *ProtectionRepo) InsertProtectedBranch(ctx context.Context, pb model.ProtectedBranch) (int64, bool, error) {
	var id int64
	var inserted bool

	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM protected_branches WHERE repository_id = ? AND name = ?`,
			pb.RepositoryID, pb.Name,
		).Scan(&id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query protected branch %s: %w", pb.Name, err)
		}

		now := time.Now().UTC()
		const insertBranch = `
			INSERT INTO protected_branches
				(repository_id, name, created_at, updated_at, creator_id,
				 required_status_checks_enforcement_level, strict_required_status_checks_policy,
				 authorized_actors_only, pull_request_reviews_enforcement_level)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		res, err := tx.ExecContext(ctx, insertBranch,
			pb.RepositoryID, pb.Name, now, now, pb.CreatorID,
			pb.StatusCheckEnforcement, pb.StrictStatusChecks,
			pb.AuthorizedActorsOnly, pb.ReviewEnforcement,
		)
		if err != nil {
			return fmt.Errorf("insert protected branch %s: %w", pb.Name, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert protected branch last insert id: %w", err)
		}

		for _, check := range pb.StatusCheckContexts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO required_status_checks (protected_branch_id, context, created_at, updated_at) VALUES (?, ?, ?, ?)`,
				id, check, now, now,
			); err != nil {
				return fmt.Errorf("insert status check %q: %w", check, err)
			}
		}

		const insertAbility = `
			INSERT INTO abilities
				(action, actor_id, actor_type, created_at, parent_id, priority, subject_id, subject_type, updated_at)
			VALUES (1, ?, ?, ?, 0, 1, ?, 'ProtectedBranch', ?)
		`
		for _, actor := range pb.AuthorizedActors {
			if _, err := tx.ExecContext(ctx, insertAbility,
				actor.ActorID, string(actor.Kind), now, id, now,
			); err != nil {
				return fmt.Errorf("insert ability for %s %d: %w", actor.Kind, actor.ActorID, err)
			}
		}

		inserted = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}

	return id, inserted, nil
}
