package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/podlog/podlog/internal/fingerprint"
	"github.com/podlog/podlog/internal/match"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DefaultDedupWindow is the sliding window within which two payloads with
// the same content hash are treated as the same submission.
const DefaultDedupWindow = 5 * time.Minute

// timeLayout is RFC 3339 with a fixed-width 9-digit fraction. RFC3339Nano
// trims trailing zeros, which breaks the lexicographic ordering SQLite
// applies to queued_at comparisons (".5Z" sorts after ".5123Z").
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when an operation targets an id that is not in
// the queue.
var ErrNotFound = errors.New("queue: entry not found")

// QueuedMatch is the unit of work: a match recorded locally that has not yet
// been confirmed by the server.
type QueuedMatch struct {
	ID          string
	Payload     match.Payload
	ContentHash string
	Status      Status
	RetryCount  int
	LastError   *SyncError
	Snapshots   match.Snapshots
	QueuedAt    time.Time
	SubmittedAt *time.Time
}

// Store is the durable queue backed by an embedded SQLite database.
type Store struct {
	conn *sql.DB
	path string

	// DedupWindow bounds duplicate detection; identical payloads queued
	// further apart than this are distinct operations.
	DedupWindow time.Duration

	now func() time.Time

	subs *subscribers
}

// Open creates a queue store at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If it doesn't exist it is created; call InitSchema before first use.
// The caller MUST call Close when done.
//
// Example:
//
//	store, err := queue.Open(filepath.Join(dir, "queue.db"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Immediate transactions take the write lock up front, so the dedup
	// check-then-insert in Add serializes across writers.
	conn, err := sql.Open("sqlite3", "file:"+path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:        conn,
		path:        path,
		DedupWindow: DefaultDedupWindow,
		now:         time.Now,
		subs:        newSubscribers(),
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return s, nil
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	s.subs.closeAll()

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the queue schema if it doesn't exist. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS queued_matches (
		id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,            -- JSON match payload
		content_hash TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error_code TEXT,
		last_error_message TEXT,
		last_error_at TEXT,
		snapshots TEXT NOT NULL,          -- JSON entity name snapshots
		queued_at TEXT NOT NULL,
		submitted_at TEXT
	);

	-- Secondary lookup path for deduplication
	CREATE INDEX IF NOT EXISTS idx_queued_matches_hash
	    ON queued_matches(content_hash, queued_at);

	CREATE INDEX IF NOT EXISTS idx_queued_matches_status ON queued_matches(status);
	CREATE INDEX IF NOT EXISTS idx_queued_matches_queued_at ON queued_matches(queued_at);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Add validates nothing and persists a new pending entry for the payload,
// unless an entry with the same content hash was queued within the
// deduplication window and is still live.
//
// A duplicate is a normal, expected outcome, not a failure: Add returns
// (nil, nil) and the caller keeps the original entry. Identical payloads
// queued outside the window are distinct operations.
func (s *Store) Add(ctx context.Context, payload *match.Payload, snapshots match.Snapshots) (*QueuedMatch, error) {
	hash := fingerprint.Sum(payload)

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	snapshotsJSON, err := json.Marshal(snapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshots: %w", err)
	}

	entry := &QueuedMatch{
		ID:          uuid.NewString(),
		Payload:     *payload,
		ContentHash: hash,
		Status:      StatusPending,
		Snapshots:   snapshots,
		QueuedAt:    s.now().UTC(),
	}

	// The duplicate check and the insert must see the same state, even with
	// a second writer (another CLI invocation) racing on the same payload.
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	dup, err := s.findLiveDuplicate(ctx, tx, hash)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, nil
	}

	query := `
	INSERT INTO queued_matches (
		id, payload, content_hash, status, retry_count, snapshots, queued_at
	) VALUES (?, ?, ?, ?, 0, ?, ?)
	`

	_, err = tx.ExecContext(ctx, query,
		entry.ID,
		string(payloadJSON),
		entry.ContentHash,
		string(entry.Status),
		string(snapshotsJSON),
		entry.QueuedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert queued match: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit queued match: %w", err)
	}

	s.subs.publish(Event{Type: EventAdded, ID: entry.ID})
	return entry, nil
}

// findLiveDuplicate reports whether a live entry with the given hash was
// queued within the dedup window.
func (s *Store) findLiveDuplicate(ctx context.Context, tx *sql.Tx, hash string) (bool, error) {
	cutoff := s.now().UTC().Add(-s.DedupWindow)

	query := `
	SELECT COUNT(*) FROM queued_matches
	WHERE content_hash = ?
	  AND queued_at > ?
	  AND status IN (` + statusPlaceholders(LiveStatuses) + `)
	`

	args := []interface{}{hash, cutoff.Format(timeLayout)}
	for _, st := range LiveStatuses {
		args = append(args, string(st))
	}

	var count int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check for duplicate: %w", err)
	}
	return count > 0, nil
}

// Get retrieves a single entry by id. Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, id string) (*QueuedMatch, error) {
	row := s.conn.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListByStatus returns entries in any of the given statuses, oldest first,
// so callers process a FIFO-biased backlog.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*QueuedMatch, error) {
	if len(statuses) == 0 {
		statuses = LiveStatuses
	}

	query := selectColumns + `
	WHERE status IN (` + statusPlaceholders(statuses) + `)
	ORDER BY queued_at ASC
	`

	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued matches: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// UpdateStatus transitions an entry to the given status.
//
// A non-nil syncErr is required for StatusError and forbidden otherwise;
// the last-error columns are cleared on any transition away from error so
// the "lastError iff error" invariant holds in the table itself.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status, syncErr *SyncError) error {
	if (status == StatusError) != (syncErr != nil) {
		return fmt.Errorf("queue: status %s requires lastError iff error", status)
	}

	var code, message, at sql.NullString
	if syncErr != nil {
		code = sql.NullString{String: syncErr.Code, Valid: true}
		message = sql.NullString{String: syncErr.Message, Valid: true}
		at = sql.NullString{String: syncErr.At.UTC().Format(timeLayout), Valid: true}
	}

	query := `
	UPDATE queued_matches
	SET status = ?, last_error_code = ?, last_error_message = ?, last_error_at = ?
	WHERE id = ?
	`

	res, err := s.conn.ExecContext(ctx, query, string(status), code, message, at, id)
	if err != nil {
		return fmt.Errorf("failed to update status for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.subs.publish(Event{Type: EventUpdated, ID: id})
	return nil
}

// IncrementRetry bumps the retry counter for an entry. The counter only
// ever increases; it resets only by delete and re-create.
func (s *Store) IncrementRetry(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE queued_matches SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment retry for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.subs.publish(Event{Type: EventUpdated, ID: id})
	return nil
}

// MarkSubmitted records the time a transmission attempt was made.
func (s *Store) MarkSubmitted(ctx context.Context, id string, at time.Time) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE queued_matches SET submitted_at = ? WHERE id = ?`,
		at.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("failed to mark submitted for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an entry. Returns nil if the entry doesn't exist
// (idempotent): successful sync and explicit user removal both land here.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM queued_matches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete queued match %s: %w", id, err)
	}

	s.subs.publish(Event{Type: EventDeleted, ID: id})
	return nil
}

// Clear removes every entry from the queue.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM queued_matches`); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}

	s.subs.publish(Event{Type: EventDeleted, ID: ""})
	return nil
}

// Count returns how many entries are in any of the given statuses
// (all live statuses when none are given).
func (s *Store) Count(ctx context.Context, statuses ...Status) (int, error) {
	if len(statuses) == 0 {
		statuses = LiveStatuses
	}

	query := `SELECT COUNT(*) FROM queued_matches WHERE status IN (` +
		statusPlaceholders(statuses) + `)`

	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}

	var count int
	if err := s.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count queued matches: %w", err)
	}
	return count, nil
}

// ResetStale moves syncing entries back to pending, excluding the given ids.
//
// Entries stuck in syncing are leftovers from a crash or reload mid-attempt;
// the orchestrator calls this before building a batch, excluding ids that
// are genuinely in flight in this process. Returns the number reset.
func (s *Store) ResetStale(ctx context.Context, exclude []string) (int, error) {
	query := `UPDATE queued_matches SET status = ? WHERE status = ?`
	args := []interface{}{string(StatusPending), string(StatusSyncing)}

	if len(exclude) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(",?", len(exclude)-1) + `)`
		for _, id := range exclude {
			args = append(args, id)
		}
	}

	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale entries: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		s.subs.publish(Event{Type: EventUpdated, ID: ""})
	}
	return int(n), nil
}

const selectColumns = `
	SELECT id, payload, content_hash, status, retry_count,
	       last_error_code, last_error_message, last_error_at,
	       snapshots, queued_at, submitted_at
	FROM queued_matches`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*QueuedMatch, error) {
	var entry QueuedMatch
	var payloadJSON, snapshotsJSON, status, queuedAt string
	var errCode, errMessage, errAt, submittedAt sql.NullString

	err := row.Scan(
		&entry.ID,
		&payloadJSON,
		&entry.ContentHash,
		&status,
		&entry.RetryCount,
		&errCode,
		&errMessage,
		&errAt,
		&snapshotsJSON,
		&queuedAt,
		&submittedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Status = Status(status)

	if err := json.Unmarshal([]byte(payloadJSON), &entry.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if err := json.Unmarshal([]byte(snapshotsJSON), &entry.Snapshots); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshots: %w", err)
	}

	if t, err := time.Parse(time.RFC3339Nano, queuedAt); err == nil {
		entry.QueuedAt = t
	}
	entry.SubmittedAt = nullStringToTime(submittedAt)

	if errCode.Valid {
		syncErr := &SyncError{Code: errCode.String, Message: errMessage.String}
		if t := nullStringToTime(errAt); t != nil {
			syncErr.At = *t
		}
		entry.LastError = syncErr
	}

	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]*QueuedMatch, error) {
	var entries []*QueuedMatch

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queued match: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queued matches: %w", err)
	}

	return entries, nil
}

func statusPlaceholders(statuses []Status) string {
	return "?" + strings.Repeat(",?", len(statuses)-1)
}

func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
