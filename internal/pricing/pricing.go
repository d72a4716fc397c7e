package pricing

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Item is one priced line of the invoice.
type Item struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	CostPrice        float64 `json:"costPrice"`
	MarkupPercentage float64 `json:"markupPercentage"`
	SellingPrice     float64 `json:"sellingPrice"`
}

// Totals contains roll-up values over an item collection.
type Totals struct {
	TotalCostPrice    float64 `json:"totalCostPrice"`
	TotalSellingPrice float64 `json:"totalSellingPrice"`
	TotalProfit       float64 `json:"totalProfit"`
	AverageMarkup     float64 `json:"averageMarkup"`
}

// Field selects the editable attribute of an item.
type Field string

const (
	FieldName             Field = "name"
	FieldCostPrice        Field = "costPrice"
	FieldMarkupPercentage Field = "markupPercentage"
)

// ParseField maps a field key to a Field. Unknown keys report false.
func ParseField(key string) (Field, bool) {
	switch f := Field(key); f {
	case FieldName, FieldCostPrice, FieldMarkupPercentage:
		return f, true
	}
	return "", false
}

// Edit is a single raw-text change to one field of an item.
type Edit struct {
	Field Field
	Value string
}

// IDFunc produces a fresh identifier for a new item.
type IDFunc func() string

// DerivePrice returns the selling price for a cost and a markup percentage.
func DerivePrice(cost, markupPercent float64) float64 {
	return cost * (1 + markupPercent/100)
}

// ParseAmount parses user-entered numeric text. Surrounding whitespace is
// ignored; anything that is not a finite decimal number reports false.
// Go-only syntax such as hex floats or digit separators is rejected.
func ParseAmount(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if _, err := decimal.NewFromString(s); err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// NewItem builds an item with its selling price derived from cost and markup.
func NewItem(id, name string, cost, markupPercent float64) Item {
	return Item{
		ID:               id,
		Name:             name,
		CostPrice:        cost,
		MarkupPercentage: markupPercent,
		SellingPrice:     DerivePrice(cost, markupPercent),
	}
}

// AddItem appends a new item built from raw form input. The add is rejected,
// and items returned as-is with false, when name is empty or either number
// does not parse. Names are stored verbatim.
func AddItem(items []Item, name, costRaw, markupRaw string, newID IDFunc) ([]Item, bool) {
	if name == "" {
		return items, false
	}
	cost, ok := ParseAmount(costRaw)
	if !ok {
		return items, false
	}
	markup, ok := ParseAmount(markupRaw)
	if !ok {
		return items, false
	}

	out := make([]Item, 0, len(items)+1)
	out = append(out, items...)
	out = append(out, NewItem(newID(), name, cost, markup))
	return out, true
}

// UpdateItemField applies one raw-text edit to the item with the given id.
// Names are stored verbatim. Numeric fields that fail to parse leave the
// item untouched; otherwise the selling price is recomputed in the same step.
func UpdateItemField(items []Item, id string, field Field, raw string) []Item {
	out, _ := ApplyEdits(items, id, Edit{Field: field, Value: raw})
	return out
}

// ApplyEdits applies several edits to one item as a single transition. Each
// edit follows UpdateItemField rules, so a rejected numeric edit does not
// stop the others. It reports whether any field actually changed.
func ApplyEdits(items []Item, id string, edits ...Edit) ([]Item, bool) {
	idx := slices.IndexFunc(items, func(it Item) bool { return it.ID == id })
	if idx < 0 {
		return items, false
	}

	updated := items[idx]
	for _, e := range edits {
		updated = applyEdit(updated, e)
	}
	if updated == items[idx] {
		return items, false
	}

	out := slices.Clone(items)
	out[idx] = updated
	return out, true
}

func applyEdit(item Item, e Edit) Item {
	switch e.Field {
	case FieldName:
		item.Name = e.Value
	case FieldCostPrice:
		cost, ok := ParseAmount(e.Value)
		if !ok {
			return item
		}
		item.CostPrice = cost
		item.SellingPrice = DerivePrice(cost, item.MarkupPercentage)
	case FieldMarkupPercentage:
		markup, ok := ParseAmount(e.Value)
		if !ok {
			return item
		}
		item.MarkupPercentage = markup
		item.SellingPrice = DerivePrice(item.CostPrice, markup)
	}
	return item
}

// RemoveItem drops the item with the given id, preserving the order of the
// rest. It reports false when no item matched.
func RemoveItem(items []Item, id string) ([]Item, bool) {
	idx := slices.IndexFunc(items, func(it Item) bool { return it.ID == id })
	if idx < 0 {
		return items, false
	}
	out := make([]Item, 0, len(items)-1)
	out = append(out, items[:idx]...)
	out = append(out, items[idx+1:]...)
	return out, true
}

// ComputeTotals aggregates an item collection. An empty collection yields
// zero totals.
func ComputeTotals(items []Item) Totals {
	if len(items) == 0 {
		return Totals{}
	}

	costs := make([]float64, len(items))
	sells := make([]float64, len(items))
	markups := make([]float64, len(items))
	for i, it := range items {
		costs[i] = it.CostPrice
		sells[i] = it.SellingPrice
		markups[i] = it.MarkupPercentage
	}

	totalCost := floats.Sum(costs)
	totalSell := floats.Sum(sells)
	return Totals{
		TotalCostPrice:    totalCost,
		TotalSellingPrice: totalSell,
		TotalProfit:       totalSell - totalCost,
		AverageMarkup:     stat.Mean(markups, nil),
	}
}
