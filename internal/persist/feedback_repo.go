package persist

import (
	"context"
	"time"
)

// FeedbackRow is an issued feedback token and, once answered, the response.
type FeedbackRow struct {
	Token      string     `db:"token"`
	ResidentID string     `db:"resident_id"`
	Kind       string     `db:"kind"`
	IssuedAt   time.Time  `db:"issued_at"`
	Response   *string    `db:"response"`
	AnsweredAt *time.Time `db:"answered_at"`
}

type FeedbackRepo struct {
	db *DB
}

func NewFeedbackRepo(db *DB) *FeedbackRepo { return &FeedbackRepo{db: db} }

// Issue records a token handed to a resident with a reflection prompt.
func (r *FeedbackRepo) Issue(ctx context.Context, token, residentID, kind string) error {
	_, err := r.db.Conn.ExecContext(ctx,
		`INSERT INTO feedback (token, resident_id, kind) VALUES (?, ?, ?)`,
		token, residentID, kind)
	return err
}

// Answer stores the response for a token. Returns false when the token is
// unknown or already answered.
func (r *FeedbackRepo) Answer(ctx context.Context, token, response string) (bool, error) {
	res, err := r.db.Conn.ExecContext(ctx,
		`UPDATE feedback SET response = ?, answered_at = ?
		 WHERE token = ? AND answered_at IS NULL`,
		response, time.Now().UTC(), token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Recent returns the latest answered feedback, newest first.
func (r *FeedbackRepo) Recent(ctx context.Context, limit int) ([]FeedbackRow, error) {
	var rows []FeedbackRow
	err := r.db.Conn.SelectContext(ctx, &rows,
		`SELECT token, resident_id, kind, issued_at, response, answered_at
		 FROM feedback WHERE answered_at IS NOT NULL
		 ORDER BY answered_at DESC LIMIT ?`, limit)
	return rows, err
}
