package persist

import (
	"context"
	"time"
)

// WorldStateRow is the single world_state row.
type WorldStateRow struct {
	ID           int       `db:"id"`
	WorldSecs    int64     `db:"world_secs"`
	TrainTimer   int64     `db:"train_timer"`
	RestockTimer int64     `db:"restock_timer"`
	PassportCtr  int64     `db:"passport_ctr"`
	SavedAt      time.Time `db:"saved_at"`
}

// JobRow mirrors the jobs table (seeded from the job table artifact so the
// HTTP surface can read it without the YAML).
type JobRow struct {
	ID        string `db:"id"`
	Title     string `db:"title"`
	Building  string `db:"building"`
	Wage      int    `db:"wage"`
	Vacancies int    `db:"vacancies"`
	Role      string `db:"role"`
}

type WorldRepo struct {
	db *DB
}

func NewWorldRepo(db *DB) *WorldRepo { return &WorldRepo{db: db} }

// Load returns the world_state row.
func (r *WorldRepo) Load(ctx context.Context) (*WorldStateRow, error) {
	var row WorldStateRow
	if err := r.db.Conn.GetContext(ctx, &row,
		`SELECT id, world_secs, train_timer, restock_timer, passport_ctr, saved_at
		 FROM world_state WHERE id = 1`); err != nil {
		return nil, err
	}
	return &row, nil
}

// Save persists the world clock and timers.
func (r *WorldRepo) Save(ctx context.Context, row *WorldStateRow) error {
	_, err := r.db.Conn.ExecContext(ctx,
		`UPDATE world_state SET world_secs = ?, train_timer = ?, restock_timer = ?,
		        passport_ctr = ?, saved_at = ? WHERE id = 1`,
		row.WorldSecs, row.TrainTimer, row.RestockTimer, row.PassportCtr, time.Now().UTC())
	return err
}

// SeedJobs upserts job definitions at boot.
func (r *WorldRepo) SeedJobs(ctx context.Context, jobs []JobRow) error {
	tx, err := r.db.Conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, j := range jobs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, title, building, wage, vacancies, role)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   title = excluded.title, building = excluded.building,
			   wage = excluded.wage, vacancies = excluded.vacancies,
			   role = excluded.role`,
			j.ID, j.Title, j.Building, j.Wage, j.Vacancies, j.Role); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadShopStock returns current stock per item type.
func (r *WorldRepo) LoadShopStock(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		ItemType string `db:"item_type"`
		Stock    int    `db:"stock"`
	}
	if err := r.db.Conn.SelectContext(ctx, &rows,
		`SELECT item_type, stock FROM shop_stock`); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.ItemType] = row.Stock
	}
	return out, nil
}

// SaveShopStock writes the full stock map.
func (r *WorldRepo) SaveShopStock(ctx context.Context, stock map[string]int) error {
	tx, err := r.db.Conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for typ, n := range stock {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO shop_stock (item_type, stock) VALUES (?, ?)
			 ON CONFLICT(item_type) DO UPDATE SET stock = excluded.stock`,
			typ, n); err != nil {
			return err
		}
	}
	return tx.Commit()
}
