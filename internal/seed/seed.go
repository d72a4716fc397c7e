package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Simplici0/invoicecalc/internal/pricing"
)

//go:embed data.json
var defaultData []byte

// Entry is one row of the initial dataset. Selling price and id are derived
// when the entry is turned into an item.
type Entry struct {
	Name             string  `json:"name"`
	CostPrice        float64 `json:"costPrice"`
	MarkupPercentage float64 `json:"markupPercentage"`
}

type dataset struct {
	Items []Entry `json:"items"`
}

// Target is the storage the seed writes into.
type Target interface {
	CountItems(ctx context.Context) (int, error)
	ReplaceItems(ctx context.Context, items []pricing.Item) error
	EnsureSplitParams(ctx context.Context) (bool, error)
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
}

// Load reads the dataset at path, or the bundled one when path is empty.
func Load(path string) ([]Entry, error) {
	raw := defaultData
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read seed file: %w", err)
		}
		raw = b
	}

	var ds dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("decode seed data: %w", err)
	}
	return ds.Items, nil
}

// Items turns entries into priced items with fresh ids.
func Items(entries []Entry, newID pricing.IDFunc) []pricing.Item {
	items := make([]pricing.Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, pricing.NewItem(newID(), e.Name, e.CostPrice, e.MarkupPercentage))
	}
	return items
}

// Run executes the startup seed in an idempotent way: the split row is
// created when missing and items are written only into an empty collection.
func Run(ctx context.Context, st Target, entries []Entry, newID pricing.IDFunc) (Stats, error) {
	stats := Stats{}

	inserted, err := st.EnsureSplitParams(ctx)
	if err != nil {
		return Stats{}, err
	}
	if inserted {
		stats.Inserts++
	}

	n, err := st.CountItems(ctx)
	if err != nil {
		return Stats{}, err
	}
	if n > 0 || len(entries) == 0 {
		return stats, nil
	}

	if err := st.ReplaceItems(ctx, Items(entries, newID)); err != nil {
		return Stats{}, fmt.Errorf("seed items: %w", err)
	}
	stats.Inserts += len(entries)

	return stats, nil
}
