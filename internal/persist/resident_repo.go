package persist

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ResidentRow mirrors the residents table. Status values and custody
// semantics match the in-memory entity; escort links are runtime-only.
type ResidentRow struct {
	ID          string    `db:"id"`
	PassportNo  string    `db:"passport_no"`
	Name        string    `db:"name"`
	Type        string    `db:"type"`
	Status      string    `db:"status"`
	X           float64   `db:"x"`
	Y           float64   `db:"y"`
	Facing      int       `db:"facing"`
	Building    string    `db:"building"`
	Wallet      int       `db:"wallet"`
	WebhookURL  string    `db:"webhook_url"`
	Bio         string    `db:"bio"`
	Hunger      float64   `db:"hunger"`
	Thirst      float64   `db:"thirst"`
	Energy      float64   `db:"energy"`
	Bladder     float64   `db:"bladder"`
	Health      float64   `db:"health"`
	Social      float64   `db:"social"`
	JobID       string    `db:"job_id"`
	OnShift     bool      `db:"on_shift"`
	ShiftSecs   float64   `db:"shift_secs"`
	Offenses    string    `db:"offenses"` // JSON array of tags
	PrisonUntil int64     `db:"prison_until"`
	Sleeping    bool      `db:"sleeping"`
	LastUBIWS   int64     `db:"last_ubi_ws"`
	Referral    string    `db:"referral_code"`
	CreatedAt   time.Time `db:"created_at"`
}

type ResidentRepo struct {
	db *DB
}

func NewResidentRepo(db *DB) *ResidentRepo { return &ResidentRepo{db: db} }

const residentCols = `id, passport_no, name, type, status, x, y, facing, building,
	wallet, webhook_url, bio, hunger, thirst, energy, bladder, health, social,
	job_id, on_shift, shift_secs, offenses, prison_until, sleeping,
	last_ubi_ws, referral_code, created_at`

// LoadActive returns every alive and deceased resident for world rehydration.
// Processed and departed rows stay in the store but never re-enter the world.
func (r *ResidentRepo) LoadActive(ctx context.Context) ([]ResidentRow, error) {
	var rows []ResidentRow
	err := r.db.Conn.SelectContext(ctx, &rows,
		`SELECT `+residentCols+` FROM residents WHERE status IN ('alive','deceased') ORDER BY created_at`)
	return rows, err
}

// Get returns one resident row.
func (r *ResidentRepo) Get(ctx context.Context, id string) (*ResidentRow, error) {
	var row ResidentRow
	err := r.db.Conn.GetContext(ctx, &row,
		`SELECT `+residentCols+` FROM residents WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Create inserts a new resident.
func (r *ResidentRepo) Create(ctx context.Context, row *ResidentRow) error {
	_, err := r.db.Conn.NamedExecContext(ctx,
		`INSERT INTO residents (`+residentCols+`) VALUES
		 (:id, :passport_no, :name, :type, :status, :x, :y, :facing, :building,
		  :wallet, :webhook_url, :bio, :hunger, :thirst, :energy, :bladder,
		  :health, :social, :job_id, :on_shift, :shift_secs, :offenses,
		  :prison_until, :sleeping, :last_ubi_ws, :referral_code, :created_at)`, row)
	return err
}

// Save upserts the mutable fields of a resident row.
func (r *ResidentRepo) Save(ctx context.Context, row *ResidentRow) error {
	_, err := r.db.Conn.NamedExecContext(ctx,
		`UPDATE residents SET
			status = :status, x = :x, y = :y, facing = :facing,
			building = :building, wallet = :wallet, webhook_url = :webhook_url,
			bio = :bio, hunger = :hunger, thirst = :thirst, energy = :energy,
			bladder = :bladder, health = :health, social = :social,
			job_id = :job_id, on_shift = :on_shift, shift_secs = :shift_secs,
			offenses = :offenses, prison_until = :prison_until,
			sleeping = :sleeping, last_ubi_ws = :last_ubi_ws
		 WHERE id = :id`, row)
	return err
}

// SaveBatch writes many rows in one transaction.
func (r *ResidentRepo) SaveBatch(ctx context.Context, rows []*ResidentRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.Conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx,
			`UPDATE residents SET
				status = :status, x = :x, y = :y, facing = :facing,
				building = :building, wallet = :wallet, webhook_url = :webhook_url,
				bio = :bio, hunger = :hunger, thirst = :thirst, energy = :energy,
				bladder = :bladder, health = :health, social = :social,
				job_id = :job_id, on_shift = :on_shift, shift_secs = :shift_secs,
				offenses = :offenses, prison_until = :prison_until,
				sleeping = :sleeping, last_ubi_ws = :last_ubi_ws
			 WHERE id = :id`, row); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetReferralCode stores a resident's referral code once allocated.
func (r *ResidentRepo) SetReferralCode(ctx context.Context, id, code string) error {
	_, err := r.db.Conn.ExecContext(ctx,
		`UPDATE residents SET referral_code = ? WHERE id = ?`, code, id)
	return err
}

// Leaderboard returns the top alive residents by wallet.
func (r *ResidentRepo) Leaderboard(ctx context.Context, limit int) ([]ResidentRow, error) {
	var rows []ResidentRow
	err := r.db.Conn.SelectContext(ctx, &rows,
		`SELECT `+residentCols+` FROM residents
		 WHERE status = 'alive' ORDER BY wallet DESC, created_at ASC LIMIT ?`, limit)
	return rows, err
}
