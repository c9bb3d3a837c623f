package driven

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
)

// ErrUnresolvedReference matches any *UnresolvedReferenceError.
var ErrUnresolvedReference = errors.New("unresolved source reference")

// UnresolvedReferenceError reports a source reference with no correlation
// record. It is fatal to the entity being linked, not to the run.
type UnresolvedReferenceError struct {
	MigrationID string
	Reference   string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("no local record for %s in migration %s", e.Reference, e.MigrationID)
}

// Is lets errors.Is(err, ErrUnresolvedReference) match.
func (e *UnresolvedReferenceError) Is(target error) bool { return target == ErrUnresolvedReference }

// CorrelationStore defines the driven port for the import's correlation table.
type CorrelationStore interface {
	// LookupCorrelation returns nil, nil when no record exists.
	LookupCorrelation(ctx context.Context, migrationID, sourceReference string) (*model.CorrelationRecord, error)
}
