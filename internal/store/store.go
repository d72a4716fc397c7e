// Package store keeps the session's item collection and split parameters in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Simplici0/invoicecalc/internal/pricing"
	"github.com/Simplici0/invoicecalc/internal/split"
)

// ErrNotFound is returned when the split parameter row is missing.
var ErrNotFound = errors.New("store: not found")

// SplitParams are the user inputs of the profit split.
type SplitParams struct {
	CreatorMarkup   string
	SplitPercentage float64
	SplitTouched    bool
}

// DefaultSplitParams returns the inputs a new session starts with.
func DefaultSplitParams() SplitParams {
	return SplitParams{SplitPercentage: split.DefaultPercentage}
}

// Store is the SQLite-backed session repository.
type Store struct {
	db *sql.DB
}

// New wraps an open, migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListItems returns the collection in display order.
func (s *Store) ListItems(ctx context.Context) ([]pricing.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, cost_price, markup_percentage, selling_price
		FROM items
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := make([]pricing.Item, 0)
	for rows.Next() {
		var it pricing.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.CostPrice, &it.MarkupPercentage, &it.SellingPrice); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	return items, nil
}

// CountItems returns the size of the collection.
func (s *Store) CountItems(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// ReplaceItems swaps the stored collection for items in one transaction.
func (s *Store) ReplaceItems(ctx context.Context, items []pricing.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace items transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (id, position, name, cost_price, markup_percentage, selling_price)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert item: %w", err)
	}
	defer stmt.Close()

	for i, it := range items {
		if _, err := stmt.ExecContext(ctx, it.ID, i, it.Name, it.CostPrice, it.MarkupPercentage, it.SellingPrice); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert item %s: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace items transaction: %w", err)
	}
	return nil
}

// EnsureSplitParams inserts the default split row when it is missing and
// reports whether it did.
func (s *Store) EnsureSplitParams(ctx context.Context) (bool, error) {
	def := DefaultSplitParams()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO split_params (id, creator_markup, split_percentage, split_touched)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, def.CreatorMarkup, def.SplitPercentage, def.SplitTouched)
	if err != nil {
		return false, fmt.Errorf("insert default split_params: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert default split_params: %w", err)
	}
	return affected > 0, nil
}

// GetSplitParams reads the split singleton.
func (s *Store) GetSplitParams(ctx context.Context) (SplitParams, error) {
	var p SplitParams
	err := s.db.QueryRowContext(ctx, `
		SELECT creator_markup, split_percentage, split_touched
		FROM split_params
		WHERE id = 1
	`).Scan(&p.CreatorMarkup, &p.SplitPercentage, &p.SplitTouched)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SplitParams{}, ErrNotFound
		}
		return SplitParams{}, fmt.Errorf("query split_params: %w", err)
	}
	return p, nil
}

// SaveSplitParams overwrites the split singleton.
func (s *Store) SaveSplitParams(ctx context.Context, p SplitParams) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE split_params
		SET
			creator_markup = ?,
			split_percentage = ?,
			split_touched = ?
		WHERE id = 1
	`, p.CreatorMarkup, p.SplitPercentage, p.SplitTouched)
	if err != nil {
		return fmt.Errorf("update split_params: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update split_params: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
