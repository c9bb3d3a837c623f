package driven

import (
	"context"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
)

// ProtectionStore defines the driven port for protected branches.
type ProtectionStore interface {
	ProtectedBranchNames(ctx context.Context, repoID int64) ([]string, error)
	// InsertProtectedBranch writes the branch row, its status-check contexts and
	// its authorized actors in one transaction. It returns inserted=false without
	// writing when a row for (repository, name) already exists.
	InsertProtectedBranch(ctx context.Context, pb model.ProtectedBranch) (id int64, inserted bool, err error)
}
