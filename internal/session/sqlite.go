package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Fixed width so stored instants sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore keeps tickets in the tickets table created by the database
// package. A partial unique index guarantees one pending ticket per
// session.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Open(ctx context.Context, t Ticket) error {
	op, err := json.Marshal(t.Operation)
	if err != nil {
		return fmt.Errorf("error encoding operation: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if t.SessionID != "" {
		_, err = tx.ExecContext(ctx,
			`UPDATE tickets SET resolution = ?, resolved_at = ? WHERE session_id = ? AND resolution = ?`,
			Superseded, formatTime(t.CreatedAt), t.SessionID, Pending)
		if err != nil {
			return fmt.Errorf("error superseding tickets: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tickets (id, session_id, operation, proposed_start, proposed_end, created_at, expires_at, resolution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, nullString(t.SessionID), string(op),
		formatTime(t.Proposed.Start), formatTime(t.Proposed.End),
		formatTime(t.CreatedAt), formatTime(t.ExpiresAt), Pending)
	if err != nil {
		return fmt.Errorf("error inserting ticket: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Ticket, error) {
	row := s.db.QueryRowContext(ctx, selectTicket+` WHERE id = ?`, id)
	return scanTicket(row)
}

func (s *SQLiteStore) Pending(ctx context.Context, sessionID string) (Ticket, error) {
	row := s.db.QueryRowContext(ctx, selectTicket+` WHERE session_id = ? AND resolution = ?`, sessionID, Pending)
	return scanTicket(row)
}

func (s *SQLiteStore) Resolve(ctx context.Context, id string, res Resolution, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET resolution = ?, resolved_at = ? WHERE id = ? AND resolution = ?`,
		res, formatTime(at), id, Pending)
	if err != nil {
		return fmt.Errorf("error resolving ticket: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrNotPending
}

func (s *SQLiteStore) Reopen(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET resolution = ?, resolved_at = NULL
		WHERE id = ? AND resolution = ? AND (session_id IS NULL OR NOT EXISTS (
			SELECT 1 FROM tickets other WHERE other.session_id = tickets.session_id AND other.resolution = ?))`,
		Pending, id, Accepted, Pending)
	if err != nil {
		return fmt.Errorf("error reopening ticket: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrNotReopenable
}

func (s *SQLiteStore) Supersede(ctx context.Context, sessionID string, at time.Time) error {
	if sessionID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET resolution = ?, resolved_at = ? WHERE session_id = ? AND resolution = ?`,
		Superseded, formatTime(at), sessionID, Pending)
	if err != nil {
		return fmt.Errorf("error superseding tickets: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Purge(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE expires_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("error purging tickets: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// Close is a no-op: the database handle is shared with the token store
// and closed by its owner.
func (s *SQLiteStore) Close() error { return nil }

// List returns all tickets, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Ticket, error) {
	rows, err := s.db.QueryContext(ctx, selectTicket+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

const selectTicket = `SELECT id, session_id, operation, proposed_start, proposed_end, created_at, expires_at, resolution, resolved_at FROM tickets`

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (Ticket, error) {
	var (
		t                                     Ticket
		sessionID, resolvedAt                 sql.NullString
		op, start, end, created, expires, res string
	)
	err := row.Scan(&t.ID, &sessionID, &op, &start, &end, &created, &expires, &res, &resolvedAt)
	if err == sql.ErrNoRows {
		return Ticket{}, ErrNotFound
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("error reading ticket: %w", err)
	}

	if err := json.Unmarshal([]byte(op), &t.Operation); err != nil {
		return Ticket{}, fmt.Errorf("error decoding operation of ticket %s: %w", t.ID, err)
	}
	t.SessionID = sessionID.String
	t.Resolution = Resolution(res)

	times := []struct {
		dst *time.Time
		src string
	}{
		{&t.Proposed.Start, start},
		{&t.Proposed.End, end},
		{&t.CreatedAt, created},
		{&t.ExpiresAt, expires},
		{&t.ResolvedAt, resolvedAt.String},
	}
	for _, tm := range times {
		if tm.src == "" {
			continue
		}
		parsed, err := time.Parse(timeLayout, tm.src)
		if err != nil {
			return Ticket{}, fmt.Errorf("error decoding time of ticket %s: %w", t.ID, err)
		}
		*tm.dst = parsed
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
