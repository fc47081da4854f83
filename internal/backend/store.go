package backend

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"wedding-sync/internal/errs"
	"wedding-sync/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Store is the durable copy of every event plus the queue of provider
// updates waiting to be applied. Events are stored as JSON documents.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Events returns every event in creation order.
func (s *Store) Events(ctx context.Context) (models.EventSet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM events ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := models.EventSet{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var ev models.Event
		if err := json.Unmarshal([]byte(doc), &ev); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Event returns one event.
func (s *Store) Event(ctx context.Context, id string) (models.Event, error) {
	return eventTx(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func eventTx(ctx context.Context, q querier, id string) (models.Event, error) {
	var doc string
	err := q.QueryRowContext(ctx, `SELECT doc FROM events WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, errs.NotFound("backend.Event", "event %s not found", id)
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to read event %s: %w", id, err)
	}
	var ev models.Event
	if err := json.Unmarshal([]byte(doc), &ev); err != nil {
		return models.Event{}, fmt.Errorf("failed to decode event %s: %w", id, err)
	}
	return ev, nil
}

// PutEvent inserts or replaces an event.
func (s *Store) PutEvent(ctx context.Context, ev models.Event) error {
	return putEventTx(ctx, s.db, ev)
}

func putEventTx(ctx context.Context, q querier, ev models.Event) error {
	doc, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
	}
	_, err = q.ExecContext(ctx, `
INSERT INTO events (id, position, doc, updated_at)
VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM events), ?, ?)
ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		ev.ID, string(doc), ev.UpdatedAt.EpochMillis())
	if err != nil {
		return fmt.Errorf("failed to write event %s: %w", ev.ID, err)
	}
	return nil
}

// UpdateEvent reads, modifies and writes back one event in a transaction.
// Nothing is written if fn fails.
func (s *Store) UpdateEvent(ctx context.Context, id string, fn func(*models.Event) error) (models.Event, error) {
	return s.modifyEvent(ctx, id, false, func(ev *models.Event, _ bool) error { return fn(ev) })
}

// UpsertEvent is UpdateEvent for an event that may not exist yet. fn
// receives an empty event carrying only the id and found=false in that case.
func (s *Store) UpsertEvent(ctx context.Context, id string, fn func(ev *models.Event, found bool) error) (models.Event, error) {
	return s.modifyEvent(ctx, id, true, fn)
}

func (s *Store) modifyEvent(ctx context.Context, id string, create bool, fn func(*models.Event, bool) error) (models.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	found := true
	ev, err := eventTx(ctx, tx, id)
	if errs.IsNotFound(err) && create {
		ev, found, err = models.Event{ID: id}, false, nil
	}
	if err != nil {
		return models.Event{}, err
	}
	if err := fn(&ev, found); err != nil {
		return models.Event{}, err
	}
	if err := putEventTx(ctx, tx, ev); err != nil {
		return models.Event{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Event{}, fmt.Errorf("failed to commit event %s: %w", id, err)
	}
	return ev, nil
}

// Enqueue stores a provider update for later processing.
func (s *Store) Enqueue(ctx context.Context, pu models.PendingUpdate) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO pending_updates
    (event_id, guest_id, phone, kind, message_status, rsvp_status, guest_count, occurred_at, source, state)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pu.EventID, pu.GuestID, pu.Phone, pu.Kind, pu.MessageStatus, pu.RSVPStatus,
		pu.GuestCount, pu.OccurredAt.UnixMilli(), pu.Source, models.PendingQueued)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue update: %w", err)
	}
	return res.LastInsertId()
}

// CountPending returns the number of queued updates.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_updates WHERE state = ?`, models.PendingQueued).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending updates: %w", err)
	}
	return n, nil
}

// Updates lists queued updates in arrival order. When since is non-zero,
// only updates that occurred at or after it are returned, and updates that
// were already processed are included.
func (s *Store) Updates(ctx context.Context, since time.Time) ([]models.PendingUpdate, error) {
	query := `SELECT id, event_id, guest_id, phone, kind, message_status, rsvp_status, guest_count,
    occurred_at, source, attempts, last_error, state
FROM pending_updates WHERE state = ? ORDER BY id`
	args := []any{models.PendingQueued}
	if !since.IsZero() {
		query = `SELECT id, event_id, guest_id, phone, kind, message_status, rsvp_status, guest_count,
    occurred_at, source, attempts, last_error, state
FROM pending_updates WHERE state IN (?, ?) AND occurred_at >= ? ORDER BY id`
		args = []any{models.PendingQueued, models.PendingProcessed, since.UnixMilli()}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending updates: %w", err)
	}
	defer rows.Close()

	var out []models.PendingUpdate
	for rows.Next() {
		var (
			pu         models.PendingUpdate
			occurredAt int64
		)
		if err := rows.Scan(&pu.ID, &pu.EventID, &pu.GuestID, &pu.Phone, &pu.Kind, &pu.MessageStatus,
			&pu.RSVPStatus, &pu.GuestCount, &occurredAt, &pu.Source, &pu.Attempts, &pu.LastError, &pu.State); err != nil {
			return nil, fmt.Errorf("failed to scan pending update: %w", err)
		}
		pu.OccurredAt = time.UnixMilli(occurredAt).UTC()
		out = append(out, pu)
	}
	return out, rows.Err()
}

// MarkProcessed records a successful application and resolves the target.
func (s *Store) MarkProcessed(ctx context.Context, pu models.PendingUpdate) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE pending_updates
SET state = ?, event_id = ?, guest_id = ?, attempts = attempts + 1, last_error = ''
WHERE id = ?`, models.PendingProcessed, pu.EventID, pu.GuestID, pu.ID)
	if err != nil {
		return fmt.Errorf("failed to mark update %d processed: %w", pu.ID, err)
	}
	return nil
}

// MarkAttempt records a failed application. Once attempts reach
// maxAttempts the update leaves the queue as failed.
func (s *Store) MarkAttempt(ctx context.Context, id int64, cause error, maxAttempts int) (models.PendingState, error) {
	var state models.PendingState
	err := s.db.QueryRowContext(ctx, `
UPDATE pending_updates
SET attempts = attempts + 1,
    last_error = ?,
    state = CASE WHEN attempts + 1 >= ? THEN ? ELSE state END
WHERE id = ?
RETURNING state`, cause.Error(), maxAttempts, models.PendingFailed, id).Scan(&state)
	if err != nil {
		return "", fmt.Errorf("failed to record attempt for update %d: %w", id, err)
	}
	return state, nil
}
