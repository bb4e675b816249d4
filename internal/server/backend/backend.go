// Package backend defines the capability interface the catalog API uses to
// talk to the remote tabular store, plus the query and record types shared
// by every driver (memory, postgres, postgrest).
package backend

import (
	"context"
	"fmt"
	"strconv"
)

// Record is one untyped row: column name to scalar or JSON value.
type Record map[string]any

// ID returns the record's "id" value, if any.
func (r Record) ID() (any, bool) {
	v, ok := r["id"]
	return v, ok && v != nil
}

// Op is a filter operator.
type Op string

const (
	OpEq         Op = "eq"
	OpNeq        Op = "neq"
	OpNotNull    Op = "notnull"
	OpContainsCI Op = "icontains" // case-insensitive substring match
)

// Filter restricts a select, update or delete to matching rows.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq is shorthand for an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// CountMode selects how Select computes Result.Count.
type CountMode int

const (
	CountNone CountMode = iota
	CountExact
	CountEstimated
)

// Query describes a filtered, ordered, paginated select.
// Limit 0 means no limit.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
	Count   CountMode
}

// Result is the outcome of a Select. Count is -1 when the query did not
// request one.
type Result struct {
	Rows  []Record
	Count int64
}

// UpsertOptions configures conflict handling for Upsert.
type UpsertOptions struct {
	// OnConflict is the conflict target column, "id" when empty.
	OnConflict string
	// IgnoreDuplicates keeps existing rows untouched instead of merging.
	IgnoreDuplicates bool
}

// ConflictColumn returns the effective conflict target.
func (o UpsertOptions) ConflictColumn() string {
	if o.OnConflict == "" {
		return "id"
	}
	return o.OnConflict
}

// Backend is the remote store. Write methods return the rows the store
// reports as written, in input order where the store preserves it.
// Implementations must be safe for concurrent use.
type Backend interface {
	Insert(ctx context.Context, table string, rows []Record) ([]Record, error)
	Upsert(ctx context.Context, table string, rows []Record, opts UpsertOptions) ([]Record, error)
	Update(ctx context.Context, table string, filters []Filter, values Record) ([]Record, error)
	Delete(ctx context.Context, table string, filters []Filter) error
	Select(ctx context.Context, table string, q Query) (Result, error)
}

// Error is a rejection reported by the store. Its message is passed
// through to API clients unchanged.
type Error struct {
	Op      string
	Table   string
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds an Error with a formatted message.
func NewError(op, table, code, format string, args ...any) *Error {
	return &Error{Op: op, Table: table, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Key normalises a column value for equality comparison, so that the JSON
// number 42, the int64 42 and the path segment "42" compare equal.
func Key(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return Key(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
