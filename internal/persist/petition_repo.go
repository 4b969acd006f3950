package persist

import "context"

// PetitionRow is one council petition. Times are world-seconds.
type PetitionRow struct {
	ID        string `db:"id"`
	AuthorID  string `db:"author_id"`
	Title     string `db:"title"`
	Body      string `db:"body"`
	CreatedWS int64  `db:"created_ws"`
	ExpiresWS int64  `db:"expires_ws"`
	Open      bool   `db:"open"`
	// vote tallies, filled by queries
	Up   int `db:"up_votes"`
	Down int `db:"down_votes"`
}

type PetitionRepo struct {
	db *DB
}

func NewPetitionRepo(db *DB) *PetitionRepo { return &PetitionRepo{db: db} }

// Create inserts a petition.
func (r *PetitionRepo) Create(ctx context.Context, p *PetitionRow) error {
	_, err := r.db.Conn.ExecContext(ctx,
		`INSERT INTO petitions (id, author_id, title, body, created_ws, expires_ws, open)
		 VALUES (?, ?, ?, ?, ?, ?, 1)`,
		p.ID, p.AuthorID, p.Title, p.Body, p.CreatedWS, p.ExpiresWS)
	return err
}

const petitionSelect = `
	SELECT p.id, p.author_id, p.title, p.body, p.created_ws, p.expires_ws, p.open,
	       COALESCE(SUM(CASE WHEN v.up = 1 THEN 1 ELSE 0 END), 0) AS up_votes,
	       COALESCE(SUM(CASE WHEN v.up = 0 THEN 1 ELSE 0 END), 0) AS down_votes
	FROM petitions p LEFT JOIN petition_votes v ON v.petition_id = p.id`

// Open returns open petitions with tallies, newest first.
func (r *PetitionRepo) OpenPetitions(ctx context.Context) ([]PetitionRow, error) {
	var rows []PetitionRow
	err := r.db.Conn.SelectContext(ctx, &rows,
		petitionSelect+` WHERE p.open = 1 GROUP BY p.id ORDER BY p.created_ws DESC`)
	return rows, err
}

// Get returns one petition with tallies.
func (r *PetitionRepo) Get(ctx context.Context, id string) (*PetitionRow, error) {
	var rows []PetitionRow
	err := r.db.Conn.SelectContext(ctx, &rows,
		petitionSelect+` WHERE p.id = ? GROUP BY p.id`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// Vote records a vote; a second vote by the same resident is rejected by
// the primary key and reported as changed=false.
func (r *PetitionRepo) Vote(ctx context.Context, petitionID, residentID string, up bool) (bool, error) {
	res, err := r.db.Conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO petition_votes (petition_id, resident_id, up)
		 VALUES (?, ?, ?)`, petitionID, residentID, boolToInt(up))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CloseExpired closes petitions whose expiry has passed; returns the ids.
func (r *PetitionRepo) CloseExpired(ctx context.Context, worldSecs int64) ([]string, error) {
	var ids []string
	if err := r.db.Conn.SelectContext(ctx, &ids,
		`SELECT id FROM petitions WHERE open = 1 AND expires_ws <= ?`, worldSecs); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := r.db.Conn.ExecContext(ctx,
		`UPDATE petitions SET open = 0 WHERE open = 1 AND expires_ws <= ?`, worldSecs); err != nil {
		return nil, err
	}
	return ids, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
