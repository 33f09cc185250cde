// Package roster persists the directory and attendance rows served by
// the development upstream (cmd/upstream). The production directory is a
// remote institutional service; this repository only exists so the
// gateway has a real collaborator to talk to locally.
package roster

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"asistencia/internal/directory"
)

// ErrUnknownRecord means an attendance submission referenced a record ID
// with no directory entry.
var ErrUnknownRecord = errors.New("unknown record id")

// Repository reads and writes the roster tables in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ListUsers returns every enrolled person in listing order.
func (r *Repository) ListUsers(ctx context.Context) ([]directory.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT record, national_id, lastnames, names, mail, phone, username
		FROM roster_users
		ORDER BY record
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []directory.User
	for rows.Next() {
		var record int64
		var u directory.User
		var nationalID string
		if err := rows.Scan(&record, &nationalID, &u.LastNames, &u.FirstNames, &u.Mail, &u.Phone, &u.Username); err != nil {
			return nil, err
		}
		u.Record = directory.FlexString(strconv.FormatInt(record, 10))
		u.NationalID = directory.FlexString(nationalID)
		users = append(users, u)
	}
	return users, rows.Err()
}

// userExists checks whether a record ID is enrolled.
func (r *Repository) userExists(ctx context.Context, recordID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM roster_users WHERE record = $1)`, recordID).Scan(&exists)
	return exists, err
}

// InsertAttendance writes one attendance event for an enrolled record,
// timestamped server-side, and returns the stored row in wire form.
func (r *Repository) InsertAttendance(ctx context.Context, recordID int64) (directory.Record, error) {
	ok, err := r.userExists(ctx, recordID)
	if err != nil {
		return directory.Record{}, err
	}
	if !ok {
		return directory.Record{}, ErrUnknownRecord
	}

	now := time.Now()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO attendance_events (id, record_user, join_user, occurred_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), recordID, recordID, now)
	if err != nil {
		return directory.Record{}, err
	}
	return wireRecord(recordID, now), nil
}

// ListAttendance returns every event for one record, oldest first, in
// the wire shape the history endpoint serves.
func (r *Repository) ListAttendance(ctx context.Context, recordID int64) ([]directory.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT record_user, occurred_at
		FROM attendance_events
		WHERE record_user = $1
		ORDER BY occurred_at
	`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []directory.Record
	for rows.Next() {
		var record int64
		var occurredAt time.Time
		if err := rows.Scan(&record, &occurredAt); err != nil {
			return nil, err
		}
		out = append(out, wireRecord(record, occurredAt))
	}
	return out, rows.Err()
}

// wireRecord renders a stored event with the fixed-width zero-padded
// date and time fields downstream sorting relies on.
func wireRecord(recordID int64, at time.Time) directory.Record {
	return directory.Record{
		Record:   directory.FlexString(strconv.FormatInt(recordID, 10)),
		Date:     at.Format("2006-01-02"),
		Time:     at.Format("15:04:05"),
		JoinDate: at.Format("2006-01-02 15:04:05"),
	}
}
