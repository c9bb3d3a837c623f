package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"
)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// Writer and reader connections share the same in-memory database via cache=shared.
// A unique name derived from t.Name() ensures isolation between parallel tests.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name so it's a safe SQLite URI filename component
	// and cannot be misinterpreted as query parameters in the "file:%s?..." DSN.
	db, err := OpenMemory(context.Background(), url.PathEscape(t.Name()))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

// exec runs a fixture statement on the writer and returns the last insert id.
func exec(t *testing.T, db *DB, query string, args ...any) int64 {
	t.Helper()

	res, err := db.Writer.ExecContext(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("fixture %q: %v", query, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("fixture last insert id: %v", err)
	}
	return id
}

// count runs a COUNT(*) query on the reader.
func count(t *testing.T, db *DB, query string, args ...any) int {
	t.Helper()

	var n int
	if err := db.Reader.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

func insertUser(t *testing.T, db *DB, login string) int64 {
	t.Helper()
	return exec(t, db, `INSERT INTO users (login) VALUES (?)`, login)
}

func insertRepository(t *testing.T, db *DB, guid, name string) int64 {
	t.Helper()
	id := exec(t, db, `INSERT INTO repositories (name) VALUES (?)`, name)
	exec(t, db,
		`INSERT INTO migratable_resources (guid, model_name, model_id, source_url) VALUES (?, 'repository', ?, ?)`,
		guid, id, "https://github.com/acme/"+name,
	)
	return id
}

// insertPullRequest creates a pull request and its issue row. It returns the
// pull request id and the issue id.
func insertPullRequest(t *testing.T, db *DB, repoID int64, number int, ownerID int64, createdAt, updatedAt time.Time) (int64, int64) {
	t.Helper()
	prID := exec(t, db,
		`INSERT INTO pull_requests (repository_id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		repoID, ownerID, createdAt, updatedAt,
	)
	issueID := exec(t, db,
		`INSERT INTO issues (repository_id, user_id, number, pull_request_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		repoID, ownerID, number, prID, createdAt, updatedAt,
	)
	return prID, issueID
}

func insertPendingComment(t *testing.T, db *DB, repoID, prID int64) int64 {
	t.Helper()
	return exec(t, db,
		`INSERT INTO pull_request_review_comments (repository_id, pull_request_id, state) VALUES (?, ?, 0)`,
		repoID, prID,
	)
}

// insertEvent creates a migrated issue event. A zero subjectID leaves the
// event without a detail row.
func insertEvent(t *testing.T, db *DB, guid string, issueID int64, event string, actorID, subjectID int64, at time.Time) (int64, int64) {
	t.Helper()
	eventID := exec(t, db,
		`INSERT INTO issue_events (issue_id, actor_id, event, created_at) VALUES (?, ?, ?, ?)`,
		issueID, actorID, event, at,
	)
	exec(t, db,
		`INSERT INTO migratable_resources (guid, model_name, model_id, source_url) VALUES (?, 'issue_event', ?, ?)`,
		guid, eventID, fmt.Sprintf("https://github.com/acme/widgets/issues/%d#event-%d", issueID, eventID),
	)

	var detailID int64
	if subjectID != 0 {
		detailID = exec(t, db,
			`INSERT INTO issue_event_details (issue_event_id, subject_id, subject_type) VALUES (?, ?, 'User')`,
			eventID, subjectID,
		)
	}
	return eventID, detailID
}
