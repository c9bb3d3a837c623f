package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
	"github.com/ericfisherdev/ghereconcile/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CorrelationStore = (*CorrelationRepo)(nil)

// CorrelationRepo reads the import's migratable_resources table.
type CorrelationRepo struct {
	db *DB
}

// NewCorrelationRepo creates a new CorrelationRepo backed by the given DB.
func NewCorrelationRepo(db *DB) *CorrelationRepo {
	return &CorrelationRepo{db: db}
}

// LookupCorrelation finds the record whose source reference matches exactly.
// Returns nil, nil if there is none.
func (r *CorrelationRepo) LookupCorrelation(ctx context.Context, migrationID, sourceReference string) (*model.CorrelationRecord, error) {
	const query = `
		SELECT guid, source_url, model_id, model_name
		FROM migratable_resources
		WHERE guid = ? AND source_url = ?
		LIMIT 1
	`

	var rec model.CorrelationRecord
	err := r.db.Reader.QueryRowContext(ctx, query, migrationID, sourceReference).Scan(
		&rec.MigrationID, &rec.SourceReference, &rec.TargetLocalID, &rec.ResourceKind,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup correlation %s: %w", sourceReference, err)
	}

	return &rec, nil
}
