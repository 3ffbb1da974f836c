package sheetstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/tradebook/internal/common"
)

// Table performs CRUD for one collection. T is the entity, P its patch.
type Table[T any, P any] struct {
	store   *Store
	schema  schema
	encode  func(T) []any
	decode  func([]any) (T, error)
	id      func(T) string
	prepare func(T, time.Time) T
	merge   func(T, P, time.Time) T
	less    func(a, b T) int
}

// FetchAll returns every valid row of the collection. Rows shorter than the
// schema minimum are logged and skipped.
func (t *Table[T, P]) FetchAll(ctx context.Context) ([]T, error) {
	docID, err := t.store.ResolveDocument(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := t.store.api.ReadRange(ctx, docID, t.schema.dataRange())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.schema.tab(), err)
	}

	out := make([]T, 0, len(rows))
	for i, row := range rows {
		rec, err := t.decode(row)
		if err != nil {
			t.store.log.Warn(ctx, "dropping invalid row", "tab", t.schema.tab(), "row", i+2, "error", err)
			continue
		}
		out = append(out, rec)
	}

	if t.less != nil {
		slices.SortStableFunc(out, t.less)
	}
	return out, nil
}

// Append writes rec as a new row and returns it as stored.
func (t *Table[T, P]) Append(ctx context.Context, rec T) (T, error) {
	var zero T

	docID, err := t.store.ResolveDocument(ctx)
	if err != nil {
		return zero, err
	}

	rec = t.prepare(rec, t.store.timestamp())
	if err := t.store.api.AppendRow(ctx, docID, t.schema.dataRange(), t.encode(rec)); err != nil {
		return zero, fmt.Errorf("append %s: %w", t.schema.tab(), err)
	}
	t.store.log.Debug(ctx, "row appended", "tab", t.schema.tab(), "id", t.id(rec))
	return rec, nil
}

// UpdateByID merges patch into the row with the given id and overwrites it.
func (t *Table[T, P]) UpdateByID(ctx context.Context, id string, patch P) (T, error) {
	var zero T

	docID, err := t.store.ResolveDocument(ctx)
	if err != nil {
		return zero, err
	}

	row, err := t.locate(ctx, docID, id)
	if err != nil {
		return zero, err
	}

	rng := t.schema.rowRange(row)
	cells, err := t.store.api.ReadRange(ctx, docID, rng)
	if err != nil {
		return zero, fmt.Errorf("read %s: %w", rng, err)
	}
	if len(cells) == 0 {
		return zero, t.notFound(id)
	}

	cur, err := t.decode(cells[0])
	if err != nil {
		return zero, err
	}

	next := t.merge(cur, patch, t.store.timestamp())
	if err := t.store.api.UpdateRange(ctx, docID, rng, [][]any{t.encode(next)}); err != nil {
		return zero, fmt.Errorf("update %s: %w", rng, err)
	}
	t.store.log.Debug(ctx, "row updated", "tab", t.schema.tab(), "id", id, "row", row)
	return next, nil
}

// DeleteByID removes the row with the given id.
func (t *Table[T, P]) DeleteByID(ctx context.Context, id string) error {
	docID, err := t.store.ResolveDocument(ctx)
	if err != nil {
		return err
	}

	row, err := t.locate(ctx, docID, id)
	if err != nil {
		return err
	}

	if err := t.store.api.DeleteRow(ctx, docID, t.schema.tab(), row-1); err != nil {
		return fmt.Errorf("delete %s row %d: %w", t.schema.tab(), row, err)
	}
	t.store.log.Debug(ctx, "row deleted", "tab", t.schema.tab(), "id", id, "row", row)
	return nil
}

// locate scans the id column and returns the 1-based sheet row of the first
// match.
func (t *Table[T, P]) locate(ctx context.Context, docID, id string) (int, error) {
	ids, err := t.store.api.ReadRange(ctx, docID, t.schema.idRange())
	if err != nil {
		return 0, fmt.Errorf("scan %s ids: %w", t.schema.tab(), err)
	}
	for i, cells := range ids {
		if len(cells) > 0 && cellString(cells[0]) == id {
			return i + 2, nil
		}
	}
	return 0, t.notFound(id)
}

func (t *Table[T, P]) notFound(id string) error {
	return fmt.Errorf("%w: %s %q", common.ErrNotFound, t.schema.collection, id)
}
