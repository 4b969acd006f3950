package persist

import (
	"context"
	"time"
)

// EventRow is one append-only event record. IDs are monotonic by insertion;
// feed consumers rely on that ordering.
type EventRow struct {
	ID         int64     `db:"id"`
	TS         time.Time `db:"ts"`
	Type       string    `db:"type"`
	ResidentID string    `db:"resident_id"`
	TargetID   string    `db:"target_id"`
	BuildingID string    `db:"building_id"`
	X          *float64  `db:"x"`
	Y          *float64  `db:"y"`
	Payload    string    `db:"payload"` // opaque JSON
}

type EventRepo struct {
	db *DB
}

func NewEventRepo(db *DB) *EventRepo { return &EventRepo{db: db} }

// Append inserts an event and returns its monotonic id.
func (r *EventRepo) Append(ctx context.Context, e *EventRow) (int64, error) {
	res, err := r.db.Conn.ExecContext(ctx,
		`INSERT INTO events (ts, type, resident_id, target_id, building_id, x, y, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TS, e.Type, e.ResidentID, e.TargetID, e.BuildingID, e.X, e.Y, e.Payload)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AppendBatch inserts many events in one transaction, preserving order. Rows
// carry their caller-assigned ids; the log owns the sequence.
func (r *EventRepo) AppendBatch(ctx context.Context, events []*EventRow) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.db.Conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, e := range events {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, ts, type, resident_id, target_id, building_id, x, y, payload)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.TS, e.Type, e.ResidentID, e.TargetID, e.BuildingID, e.X, e.Y, e.Payload); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LastID returns the highest persisted event id, 0 for an empty log.
func (r *EventRepo) LastID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.Conn.GetContext(ctx, &id, `SELECT COALESCE(MAX(id), 0) FROM events`)
	return id, err
}

// Recent returns the latest events, newest first.
func (r *EventRepo) Recent(ctx context.Context, limit int) ([]EventRow, error) {
	var rows []EventRow
	err := r.db.Conn.SelectContext(ctx, &rows,
		`SELECT id, ts, type, resident_id, target_id, building_id, x, y, payload
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	return rows, err
}

// ByResident returns a resident's events, newest first.
func (r *EventRepo) ByResident(ctx context.Context, residentID string, limit int) ([]EventRow, error) {
	var rows []EventRow
	err := r.db.Conn.SelectContext(ctx, &rows,
		`SELECT id, ts, type, resident_id, target_id, building_id, x, y, payload
		 FROM events WHERE resident_id = ? ORDER BY id DESC LIMIT ?`, residentID, limit)
	return rows, err
}
