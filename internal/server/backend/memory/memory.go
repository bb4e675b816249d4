// Package memory is an in-process implementation of backend.Backend used
// for local development and tests. Rows live in insertion order per table.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/annachatkara/moviedb/internal/common"
	"github.com/annachatkara/moviedb/internal/server/backend"
)

type table struct {
	rows   []backend.Record
	byID   map[string]int
	nextID int64
}

// Backend keeps every table in memory. Unknown tables are rejected the way
// a relational store would reject them.
type Backend struct {
	mu     sync.RWMutex
	tables map[string]*table
}

var _ backend.Backend = (*Backend)(nil)

// New creates an empty store with the given tables.
func New(tables ...string) *Backend {
	b := &Backend{tables: make(map[string]*table, len(tables))}
	for _, name := range tables {
		b.tables[name] = &table{byID: make(map[string]int), nextID: 1}
	}
	return b
}

func (b *Backend) table(op, name string) (*table, error) {
	t, ok := b.tables[name]
	if !ok {
		return nil, backend.NewError(op, name, "42P01", "relation %q does not exist", name)
	}
	return t, nil
}

// Insert adds rows, failing the whole call on any duplicate id.
func (b *Backend) Insert(ctx context.Context, name string, rows []backend.Record) ([]backend.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.table("insert", name)
	if err != nil {
		return nil, err
	}

	prepared := make([]backend.Record, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	next := t.nextID
	for _, row := range rows {
		rec := maps.Clone(row)
		if rec == nil {
			rec = backend.Record{}
		}
		if _, ok := rec.ID(); !ok {
			rec["id"] = next
			next++
		}
		key := backend.Key(rec["id"])
		if _, dup := t.byID[key]; dup {
			return nil, duplicateError("insert", name, key)
		}
		if _, dup := seen[key]; dup {
			return nil, duplicateError("insert", name, key)
		}
		seen[key] = struct{}{}
		prepared = append(prepared, rec)
	}

	out := make([]backend.Record, 0, len(prepared))
	for _, rec := range prepared {
		t.add(rec)
		out = append(out, maps.Clone(rec))
	}
	return out, nil
}

// Upsert inserts rows or, on a conflict, either skips them or merges the
// incoming columns into the stored row.
func (b *Backend) Upsert(ctx context.Context, name string, rows []backend.Record, opts backend.UpsertOptions) ([]backend.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.table("upsert", name)
	if err != nil {
		return nil, err
	}
	column := opts.ConflictColumn()

	out := make([]backend.Record, 0, len(rows))
	for _, row := range rows {
		rec := maps.Clone(row)
		if rec == nil {
			rec = backend.Record{}
		}
		if _, ok := rec.ID(); !ok {
			rec["id"] = t.nextID
		}
		idx, found := t.find(column, rec[column])
		switch {
		case !found:
			t.add(rec)
			out = append(out, maps.Clone(rec))
		case opts.IgnoreDuplicates:
			continue
		default:
			maps.Copy(t.rows[idx], rec)
			out = append(out, maps.Clone(t.rows[idx]))
		}
	}
	return out, nil
}

// Update merges values into every row matching filters.
func (b *Backend) Update(ctx context.Context, name string, filters []backend.Filter, values backend.Record) ([]backend.Record, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no columns to update", common.ErrInvalidArgument)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.table("update", name)
	if err != nil {
		return nil, err
	}

	var out []backend.Record
	for i, row := range t.rows {
		if !matches(row, filters) {
			continue
		}
		oldKey := backend.Key(row["id"])
		maps.Copy(row, values)
		if newKey := backend.Key(row["id"]); newKey != oldKey {
			delete(t.byID, oldKey)
			t.byID[newKey] = i
		}
		out = append(out, maps.Clone(row))
	}
	return out, nil
}

// Delete removes every row matching filters.
func (b *Backend) Delete(ctx context.Context, name string, filters []backend.Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("%w: delete requires a filter", common.ErrInvalidArgument)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.table("delete", name)
	if err != nil {
		return err
	}

	kept := t.rows[:0]
	for _, row := range t.rows {
		if !matches(row, filters) {
			kept = append(kept, row)
		}
	}
	t.rows = kept
	t.reindex()
	return nil
}

// Select filters, orders and pages rows. Estimated counts are exact here.
func (b *Backend) Select(ctx context.Context, name string, q backend.Query) (backend.Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, err := b.table("select", name)
	if err != nil {
		return backend.Result{}, err
	}

	var matched []backend.Record
	for _, row := range t.rows {
		if matches(row, q.Filters) {
			matched = append(matched, row)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			c := compare(matched[i][q.OrderBy], matched[j][q.OrderBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	res := backend.Result{Count: -1}
	if q.Count != backend.CountNone {
		res.Count = int64(len(matched))
	}

	start := min(max(q.Offset, 0), len(matched))
	end := len(matched)
	if q.Limit > 0 {
		end = min(start+q.Limit, end)
	}
	res.Rows = make([]backend.Record, 0, end-start)
	for _, row := range matched[start:end] {
		res.Rows = append(res.Rows, maps.Clone(row))
	}
	return res, nil
}

// Len reports how many rows a table holds.
func (b *Backend) Len(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if t, ok := b.tables[name]; ok {
		return len(t.rows)
	}
	return 0
}

func (t *table) add(rec backend.Record) {
	key := backend.Key(rec["id"])
	t.byID[key] = len(t.rows)
	t.rows = append(t.rows, rec)
	if n, err := strconv.ParseInt(key, 10, 64); err == nil && n >= t.nextID {
		t.nextID = n + 1
	}
}

func (t *table) find(column string, value any) (int, bool) {
	if column == "id" {
		idx, ok := t.byID[backend.Key(value)]
		return idx, ok
	}
	key := backend.Key(value)
	for i, row := range t.rows {
		if backend.Key(row[column]) == key {
			return i, true
		}
	}
	return 0, false
}

func (t *table) reindex() {
	clear(t.byID)
	for i, row := range t.rows {
		t.byID[backend.Key(row["id"])] = i
	}
}

func duplicateError(op, name, key string) *backend.Error {
	err := backend.NewError(op, name, "23505", "duplicate key value violates unique constraint %q", name+"_pkey")
	err.Details = fmt.Sprintf("Key (id)=(%s) already exists.", key)
	return err
}

func matches(row backend.Record, filters []backend.Filter) bool {
	for _, f := range filters {
		v, present := row[f.Column]
		switch f.Op {
		case backend.OpEq:
			if !present || v == nil || backend.Key(v) != backend.Key(f.Value) {
				return false
			}
		case backend.OpNeq:
			if !present || v == nil || backend.Key(v) == backend.Key(f.Value) {
				return false
			}
		case backend.OpNotNull:
			if !present || v == nil {
				return false
			}
		case backend.OpContainsCI:
			s, ok := v.(string)
			if !ok {
				return false
			}
			// Casers are stateful, so one per comparison.
			folder := cases.Fold()
			needle := folder.String(backend.Key(f.Value))
			if !strings.Contains(folder.String(s), needle) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compare orders values the way Postgres does for mixed scalars: NULL sorts
// above everything, numbers numerically, everything else as text.
func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(backend.Key(a), backend.Key(b))
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
