package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
	"github.com/ericfisherdev/ghereconcile/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.EventStore = (*EventRepo)(nil)
	_ driven.EventTx    = (*eventTx)(nil)
)

// EventRepo is the database/sql implementation of the EventStore port interface.
type EventRepo struct {
	db *DB
}

// NewEventRepo creates a new EventRepo backed by the given DB.
func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

// ListMembershipEvents returns the migration's events of the given types on
// the repository's issues, ordered by creation time then id.
func (r *EventRepo) ListMembershipEvents(ctx context.Context, migrationID string, repoID int64, types ...model.EventType) ([]model.MembershipEvent, error) {
	if len(types) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(types)), ", ")
	query := `
		SELECT e.id, COALESCE(d.id, 0), i.id, COALESCE(i.pull_request_id, 0), COALESCE(i.user_id, 0),
		       e.event, COALESCE(e.actor_id, 0), COALESCE(d.subject_id, 0), e.created_at
		FROM issue_events e
		JOIN issues i ON i.id = e.issue_id
		JOIN migratable_resources m ON m.model_id = e.id AND m.model_name = 'issue_event'
		LEFT JOIN issue_event_details d ON d.issue_event_id = e.id
		WHERE m.guid = ? AND i.repository_id = ? AND e.event IN (` + placeholders + `)
		ORDER BY e.id
	`

	args := make([]any, 0, len(types)+2)
	args = append(args, migrationID, repoID)
	for _, t := range types {
		args = append(args, string(t))
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query membership events for repository %d: %w", repoID, err)
	}
	defer rows.Close()

	var events []model.MembershipEvent
	for rows.Next() {
		var e model.MembershipEvent
		var eventType string
		var createdAt nullTime
		err := rows.Scan(
			&e.EventID, &e.DetailID, &e.IssueID, &e.PullRequestID, &e.IssueOwnerID,
			&eventType, &e.ActorID, &e.SubjectID, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan membership event: %w", err)
		}
		e.Type = model.EventType(eventType)
		e.CreatedAt = createdAt.Time
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate membership events: %w", err)
	}

	// A detail row joined twice would repeat the event; keep the first.
	events = slices.CompactFunc(events, func(a, b model.MembershipEvent) bool {
		return a.EventID == b.EventID
	})

	slices.SortStableFunc(events, func(a, b model.MembershipEvent) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return events, nil
}

// PassComplete reports whether the named pass already ran for the repository.
func (r *EventRepo) PassComplete(ctx context.Context, repoID int64, pass string) (bool, error) {
	var n int
	err := r.db.Reader.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reconcile_passes WHERE repository_id = ? AND pass = ?`,
		repoID, pass,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query pass %s for repository %d: %w", pass, repoID, err)
	}
	return n > 0, nil
}

// ApplyMembershipFix runs fn in one transaction and commits it when fn returns nil.
func (r *EventRepo) ApplyMembershipFix(ctx context.Context, fn func(tx driven.EventTx) error) error {
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&eventTx{tx: tx})
	})
}

// eventTx is the transactional write side of one directionality pass.
type eventTx struct {
	tx *sql.Tx
}

// CorrectDirection writes the corrected actor and subject of an event.
func (t *eventTx) CorrectDirection(ctx context.Context, e model.MembershipEvent) error {
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE issue_events SET actor_id = ? WHERE id = ?`,
		e.ActorID, e.EventID,
	); err != nil {
		return fmt.Errorf("update actor of event %d: %w", e.EventID, err)
	}

	if e.DetailID == 0 {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO issue_event_details (issue_event_id, subject_id, subject_type) VALUES (?, ?, ?)`,
			e.EventID, e.SubjectID, string(model.ActorUser),
		); err != nil {
			return fmt.Errorf("insert detail of event %d: %w", e.EventID, err)
		}
		return nil
	}

	if _, err := t.tx.ExecContext(ctx,
		`UPDATE issue_event_details SET subject_id = ? WHERE id = ?`,
		e.SubjectID, e.DetailID,
	); err != nil {
		return fmt.Errorf("update subject of event %d: %w", e.EventID, err)
	}
	return nil
}

// InsertAssignment materializes an assignee unless the row already exists.
func (t *eventTx) InsertAssignment(ctx context.Context, a model.Assignment) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assignments WHERE issue_id = ? AND assignee_id = ? AND assignee_type = ?`,
		a.IssueID, a.AssigneeID, string(model.ActorUser),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query assignment on issue %d: %w", a.IssueID, err)
	}
	if n > 0 {
		return false, nil
	}

	at := dbTime(a.CreatedAt)
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO assignments (assignee_id, assignee_type, issue_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		a.AssigneeID, string(model.ActorUser), a.IssueID, at, at,
	)
	if err != nil {
		return false, fmt.Errorf("insert assignment on issue %d: %w", a.IssueID, err)
	}
	return true, nil
}

// InsertReviewRequest materializes a pending reviewer unless the row already exists.
func (t *eventTx) InsertReviewRequest(ctx context.Context, req model.ReviewRequest) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM review_requests WHERE pull_request_id = ? AND reviewer_id = ?`,
		req.PullRequestID, req.ReviewerID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query review request on pull request %d: %w", req.PullRequestID, err)
	}
	if n > 0 {
		return false, nil
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO review_requests (reviewer_id, reviewer_type, pull_request_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		req.ReviewerID, string(model.ActorUser), req.PullRequestID, dbTime(req.CreatedAt), dbTime(req.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert review request on pull request %d: %w", req.PullRequestID, err)
	}
	return true, nil
}

// MarkPassComplete records that the named pass ran for the repository.
func (t *eventTx) MarkPassComplete(ctx context.Context, repoID int64, pass string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO reconcile_passes (repository_id, pass, completed_at) VALUES (?, ?, ?)`,
		repoID, pass, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record pass %s for repository %d: %w", pass, repoID, err)
	}
	return nil
}
