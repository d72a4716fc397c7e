// Package workspace holds the session's invoice: the item collection and the
// profit-split inputs. Every edit is one complete transition: load, run the
// pricing and split calculators, store, publish.
package workspace

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Simplici0/invoicecalc/internal/pricing"
	"github.com/Simplici0/invoicecalc/internal/split"
	"github.com/Simplici0/invoicecalc/internal/store"
)

// Operation names used for metrics and logs.
const (
	OpAdd    = "add"
	OpUpdate = "update"
	OpRemove = "remove"
	OpSplit  = "split"
)

// SnapshotMessage is the message type published after every applied edit.
const SnapshotMessage = "snapshot"

// Repository is the storage the workspace reads and writes.
type Repository interface {
	ListItems(ctx context.Context) ([]pricing.Item, error)
	ReplaceItems(ctx context.Context, items []pricing.Item) error
	GetSplitParams(ctx context.Context) (store.SplitParams, error)
	SaveSplitParams(ctx context.Context, p store.SplitParams) error
}

// Publisher receives each new snapshot.
type Publisher interface {
	Publish(kind string, payload any)
}

// Recorder counts edits.
type Recorder interface {
	RecordEdit(op string, applied bool)
	SetItems(n int)
}

// SplitView is the profit split plus the inputs it was derived from.
type SplitView struct {
	split.Split
	CreatorMarkupText string `json:"creatorMarkupText"`
	MarkupRequired    bool   `json:"markupRequired"`
}

// Snapshot is everything the invoice view renders.
type Snapshot struct {
	Items  []pricing.Item `json:"items"`
	Totals pricing.Totals `json:"totals"`
	Split  SplitView      `json:"split"`
}

// SplitInput carries the split fields a caller wants to change; nil fields
// are left alone. Percentage wins over PercentageText when both are set.
type SplitInput struct {
	CreatorMarkup  *string
	Percentage     *float64
	PercentageText *string
}

// Options configure a Workspace. Zero values are replaced by no-ops.
type Options struct {
	NewID     pricing.IDFunc
	Publisher Publisher
	Recorder  Recorder
	Logger    zerolog.Logger
}

// Workspace serializes edits to one session.
type Workspace struct {
	mu        sync.Mutex
	repo      Repository
	newID     pricing.IDFunc
	publisher Publisher
	recorder  Recorder
	logger    zerolog.Logger
}

// New creates a workspace over repo.
func New(repo Repository, opts Options) *Workspace {
	w := &Workspace{
		repo:      repo,
		newID:     opts.NewID,
		publisher: opts.Publisher,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
	}
	if w.newID == nil {
		w.newID = NewUUID
	}
	if w.publisher == nil {
		w.publisher = nopPublisher{}
	}
	if w.recorder == nil {
		w.recorder = nopRecorder{}
	}
	return w
}

// Snapshot returns the current state.
func (w *Workspace) Snapshot(ctx context.Context) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	items, params, err := w.load(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return build(items, params), nil
}

// AddItem appends an item from raw form input. Invalid input leaves the
// collection unchanged and reports false.
func (w *Workspace) AddItem(ctx context.Context, name, costRaw, markupRaw string) (Snapshot, bool, error) {
	return w.mutateItems(ctx, OpAdd, func(items []pricing.Item) ([]pricing.Item, bool) {
		out, ok := pricing.AddItem(items, name, costRaw, markupRaw, w.newID)
		if !ok {
			w.logger.Debug().
				Str("name", name).
				Str("cost_price", costRaw).
				Str("markup_percentage", markupRaw).
				Msg("add item rejected")
		}
		return out, ok
	})
}

// UpdateItem applies raw-text edits to one item. Edits whose value does not
// parse are skipped; the rest apply.
func (w *Workspace) UpdateItem(ctx context.Context, id string, edits ...pricing.Edit) (Snapshot, bool, error) {
	return w.mutateItems(ctx, OpUpdate, func(items []pricing.Item) ([]pricing.Item, bool) {
		out, changed := pricing.ApplyEdits(items, id, edits...)
		if !changed {
			w.logger.Debug().Str("item_id", id).Int("edits", len(edits)).Msg("update item had no effect")
		}
		return out, changed
	})
}

// RemoveItem deletes one item; an unknown id is a no-op.
func (w *Workspace) RemoveItem(ctx context.Context, id string) (Snapshot, bool, error) {
	return w.mutateItems(ctx, OpRemove, func(items []pricing.Item) ([]pricing.Item, bool) {
		return pricing.RemoveItem(items, id)
	})
}

// SetCreatorMarkup stores the raw creator markup text.
func (w *Workspace) SetCreatorMarkup(ctx context.Context, raw string) (Snapshot, bool, error) {
	return w.UpdateSplit(ctx, SplitInput{CreatorMarkup: &raw})
}

// SetSplitPercentage stores the creator's share, clamped to [0, 100].
func (w *Workspace) SetSplitPercentage(ctx context.Context, p float64) (Snapshot, bool, error) {
	return w.UpdateSplit(ctx, SplitInput{Percentage: &p})
}

// SetSplitPercentageText stores the creator's share typed as text.
func (w *Workspace) SetSplitPercentageText(ctx context.Context, raw string) (Snapshot, bool, error) {
	return w.UpdateSplit(ctx, SplitInput{PercentageText: &raw})
}

// UpdateSplit changes the split inputs in one transition. Adjusting the
// percentage without a positive creator markup marks the markup as
// required; entering a positive markup clears the mark.
func (w *Workspace) UpdateSplit(ctx context.Context, in SplitInput) (Snapshot, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	items, params, err := w.load(ctx)
	if err != nil {
		return Snapshot{}, false, err
	}

	next := params
	if in.CreatorMarkup != nil {
		next.CreatorMarkup = *in.CreatorMarkup
		if hasPositiveMarkup(next.CreatorMarkup) {
			next.SplitTouched = false
		}
	}

	var percentage *float64
	switch {
	case in.Percentage != nil:
		p := split.ClampPercentage(*in.Percentage)
		percentage = &p
	case in.PercentageText != nil:
		p := split.ParsePercentage(*in.PercentageText)
		percentage = &p
	}
	if percentage != nil {
		next.SplitPercentage = *percentage
		if !hasPositiveMarkup(next.CreatorMarkup) {
			next.SplitTouched = true
		}
	}

	if next == params {
		w.recorder.RecordEdit(OpSplit, false)
		return build(items, params), false, nil
	}

	if err := w.repo.SaveSplitParams(ctx, next); err != nil {
		return Snapshot{}, false, fmt.Errorf("save split params: %w", err)
	}
	w.recorder.RecordEdit(OpSplit, true)

	snap := build(items, next)
	w.publisher.Publish(SnapshotMessage, snap)
	return snap, true, nil
}

func (w *Workspace) mutateItems(ctx context.Context, op string, fn func([]pricing.Item) ([]pricing.Item, bool)) (Snapshot, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	items, params, err := w.load(ctx)
	if err != nil {
		return Snapshot{}, false, err
	}

	next, applied := fn(items)
	if !applied {
		w.recorder.RecordEdit(op, false)
		return build(items, params), false, nil
	}

	if err := w.repo.ReplaceItems(ctx, next); err != nil {
		return Snapshot{}, false, fmt.Errorf("%s item: %w", op, err)
	}
	w.recorder.RecordEdit(op, true)
	w.recorder.SetItems(len(next))

	snap := build(next, params)
	w.publisher.Publish(SnapshotMessage, snap)
	return snap, true, nil
}

func (w *Workspace) load(ctx context.Context) ([]pricing.Item, store.SplitParams, error) {
	items, err := w.repo.ListItems(ctx)
	if err != nil {
		return nil, store.SplitParams{}, fmt.Errorf("load items: %w", err)
	}
	params, err := w.repo.GetSplitParams(ctx)
	if err != nil {
		return nil, store.SplitParams{}, fmt.Errorf("load split params: %w", err)
	}
	return items, params, nil
}

func build(items []pricing.Item, params store.SplitParams) Snapshot {
	totals := pricing.ComputeTotals(items)
	s := split.Derive(totals.TotalSellingPrice, params.CreatorMarkup, params.SplitPercentage, totals.TotalProfit)
	return Snapshot{
		Items:  items,
		Totals: totals,
		Split: SplitView{
			Split:             s,
			CreatorMarkupText: params.CreatorMarkup,
			MarkupRequired:    split.MarkupRequired(params.SplitTouched, s.HasPositiveMarkup),
		},
	}
}

func hasPositiveMarkup(raw string) bool {
	v, ok := pricing.ParseAmount(raw)
	return ok && v > 0
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

type nopRecorder struct{}

func (nopRecorder) RecordEdit(string, bool) {}
func (nopRecorder) SetItems(int)            {}
