package store

import (
	"database/sql"
	"errors"
	"time"
)

// EventKind classifies a session event.
type EventKind string

const (
	// EventDevice records a device selection.
	EventDevice EventKind = "device"
	// EventError records a capture error.
	EventError EventKind = "error"
)

// Session is one mounted-viewer lifetime. It holds diagnostics only;
// camera state is never stored.
type Session struct {
	ID         string     `json:"id"`
	DeviceID   string     `json:"device_id"`
	Preset     string     `json:"preset"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Samples    int64      `json:"samples"`
	Detections int64      `json:"detections"`
	Misses     int64      `json:"misses"`
	Timeouts   int64      `json:"timeouts"`
	Frames     int64      `json:"frames"`
}

// SessionTotals are the counters written when a session ends.
type SessionTotals struct {
	Samples    int64
	Detections int64
	Misses     int64
	Timeouts   int64
	Frames     int64
}

// Event is a device switch or capture error within a session.
type Event struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      EventKind `json:"kind"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionRepository provides access to the session log.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new session. StartedAt defaults to now.
func (r *SessionRepository) Create(sess *Session) error {
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, device_id, preset, started_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.DeviceID, sess.Preset, sess.StartedAt,
	)
	return err
}

// SetDevice records the device a session is currently streaming from.
func (r *SessionRepository) SetDevice(id, deviceID string) error {
	result, err := r.db.Exec(`UPDATE sessions SET device_id = ? WHERE id = ?`, deviceID, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Finish stamps the end time and final counters on a session.
func (r *SessionRepository) Finish(id string, totals SessionTotals) error {
	result, err := r.db.Exec(
		`UPDATE sessions
		 SET ended_at = ?, samples = ?, detections = ?, misses = ?, timeouts = ?, frames = ?
		 WHERE id = ?`,
		time.Now(), totals.Samples, totals.Detections, totals.Misses, totals.Timeouts, totals.Frames, id,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	row := r.db.QueryRow(
		`SELECT id, device_id, preset, started_at, ended_at, samples, detections, misses, timeouts, frames
		 FROM sessions WHERE id = ?`,
		id,
	)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List returns the most recent sessions, newest first.
func (r *SessionRepository) List(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		`SELECT id, device_id, preset, started_at, ended_at, samples, detections, misses, timeouts, frames
		 FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// Delete removes a session and its events.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// AddEvent appends an event to a session.
func (r *SessionRepository) AddEvent(sessionID string, kind EventKind, detail string) error {
	_, err := r.db.Exec(
		`INSERT INTO session_events (session_id, kind, detail, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, string(kind), detail, time.Now(),
	)
	return err
}

// Events returns a session's events in order.
func (r *SessionRepository) Events(sessionID string) ([]Event, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, kind, detail, created_at
		 FROM session_events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var kind string
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = EventKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var sess Session
	var ended sql.NullTime
	if err := row.Scan(
		&sess.ID, &sess.DeviceID, &sess.Preset, &sess.StartedAt, &ended,
		&sess.Samples, &sess.Detections, &sess.Misses, &sess.Timeouts, &sess.Frames,
	); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	return &sess, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
