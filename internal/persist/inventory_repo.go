package persist

import "context"

// InventoryRow mirrors the inventory table: one row per item stack.
type InventoryRow struct {
	ID         string `db:"id"`
	ResidentID string `db:"resident_id"`
	ItemType   string `db:"item_type"`
	Quantity   int    `db:"quantity"`
	Durability int    `db:"durability"`
}

type InventoryRepo struct {
	db *DB
}

func NewInventoryRepo(db *DB) *InventoryRepo { return &InventoryRepo{db: db} }

// LoadAll returns every inventory row grouped by resident id.
func (r *InventoryRepo) LoadAll(ctx context.Context) (map[string][]InventoryRow, error) {
	var rows []InventoryRow
	if err := r.db.Conn.SelectContext(ctx, &rows,
		`SELECT id, resident_id, item_type, quantity, durability FROM inventory`); err != nil {
		return nil, err
	}
	out := make(map[string][]InventoryRow)
	for _, row := range rows {
		out[row.ResidentID] = append(out[row.ResidentID], row)
	}
	return out, nil
}

// Replace swaps a resident's inventory for the given rows in one
// transaction. Full replace keeps the save path simple; stacks are few.
func (r *InventoryRepo) Replace(ctx context.Context, residentID string, rows []InventoryRow) error {
	tx, err := r.db.Conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM inventory WHERE resident_id = ?`, residentID); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO inventory (id, resident_id, item_type, quantity, durability)
			 VALUES (?, ?, ?, ?, ?)`,
			row.ID, row.ResidentID, row.ItemType, row.Quantity, row.Durability); err != nil {
			return err
		}
	}
	return tx.Commit()
}
