// Package postgres implements backend.Backend directly over PostgreSQL using
// the pgx database/sql driver. Records cross the boundary as JSON objects:
// rows are read back with to_jsonb so no per-table schema is needed here.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/annachatkara/moviedb/internal/common"
	"github.com/annachatkara/moviedb/internal/dbx"
	"github.com/annachatkara/moviedb/internal/server/backend"
)

// rowAlias is the alias every statement gives its target table.
const rowAlias = "t"

// Repository runs catalog statements over a dbx.DBTX (*sql.DB or *sql.Tx).
type Repository struct {
	db dbx.DBTX
}

var _ backend.Backend = (*Repository)(nil)

// NewRepository constructs a backend bound to db.
func NewRepository(db dbx.DBTX) *Repository {
	return &Repository{db: db}
}

// Insert writes rows in one multi-row INSERT; any duplicate fails the
// whole statement.
func (r *Repository) Insert(ctx context.Context, table string, rows []backend.Record) ([]backend.Record, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	query, args := buildInsert(table, rows, "")
	return r.queryRecords(ctx, "insert", table, query, args...)
}

// Upsert writes rows with ON CONFLICT on the conflict column, either doing
// nothing or overwriting the incoming columns.
func (r *Repository) Upsert(ctx context.Context, table string, rows []backend.Record, opts backend.UpsertOptions) ([]backend.Record, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	query, args := buildInsert(table, rows, conflictClause(rows, opts))
	return r.queryRecords(ctx, "upsert", table, query, args...)
}

// Update sets values on every row matching filters and returns them.
func (r *Repository) Update(ctx context.Context, table string, filters []backend.Filter, values backend.Record) ([]backend.Record, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no columns to update", common.ErrInvalidArgument)
	}

	columns := sortedKeys(values)
	args := make([]any, 0, len(columns)+len(filters))
	sets := make([]string, 0, len(columns))
	for _, col := range columns {
		args = append(args, toArg(values[col]))
		sets = append(sets, fmt.Sprintf("%s = $%d", ident(col), len(args)))
	}
	where, args := buildWhere(filters, args)

	query := fmt.Sprintf("UPDATE %s AS %s SET %s%s RETURNING to_jsonb(%s.*)",
		ident(table), rowAlias, strings.Join(sets, ", "), where, rowAlias)
	return r.queryRecords(ctx, "update", table, query, args...)
}

// Delete removes every row matching filters. An unfiltered delete is refused.
func (r *Repository) Delete(ctx context.Context, table string, filters []backend.Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("%w: delete requires a filter", common.ErrInvalidArgument)
	}
	where, args := buildWhere(filters, nil)
	query := fmt.Sprintf("DELETE FROM %s AS %s%s", ident(table), rowAlias, where)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return wrapError("delete", table, err)
	}
	return nil
}

// Select runs the count (when requested) and then the page query.
func (r *Repository) Select(ctx context.Context, table string, q backend.Query) (backend.Result, error) {
	where, args := buildWhere(q.Filters, nil)
	res := backend.Result{Count: -1}

	switch q.Count {
	case backend.CountExact:
		query := fmt.Sprintf("SELECT count(*) FROM %s AS %s%s", ident(table), rowAlias, where)
		if err := r.db.QueryRowContext(ctx, query, args...).Scan(&res.Count); err != nil {
			return backend.Result{}, wrapError("select", table, err)
		}
	case backend.CountEstimated:
		n, err := r.estimate(ctx, table, where, args)
		if err != nil {
			return backend.Result{}, err
		}
		res.Count = n
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT to_jsonb(%s.*) FROM %s AS %s%s", rowAlias, ident(table), rowAlias, where)
	if q.OrderBy != "" {
		fmt.Fprintf(&sb, " ORDER BY %s.%s", rowAlias, ident(q.OrderBy))
		if q.Desc {
			sb.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	rows, err := r.queryRecords(ctx, "select", table, sb.String(), args...)
	if err != nil {
		return backend.Result{}, err
	}
	res.Rows = rows
	return res, nil
}

type explainPlan struct {
	Plan struct {
		PlanRows float64 `json:"Plan Rows"`
	} `json:"Plan"`
}

// estimate reads the planner's row estimate instead of counting.
func (r *Repository) estimate(ctx context.Context, table, where string, args []any) (int64, error) {
	query := fmt.Sprintf("EXPLAIN (FORMAT JSON) SELECT 1 FROM %s AS %s%s", ident(table), rowAlias, where)
	var raw []byte
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		return 0, wrapError("select", table, err)
	}
	var plans []explainPlan
	if err := json.Unmarshal(raw, &plans); err != nil {
		return 0, fmt.Errorf("decode query plan: %w", err)
	}
	if len(plans) == 0 {
		return 0, nil
	}
	return int64(plans[0].Plan.PlanRows), nil
}

func (r *Repository) queryRecords(ctx context.Context, op, table, query string, args ...any) ([]backend.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError(op, table, err)
	}
	defer rows.Close()

	var result []backend.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, wrapError(op, table, err)
		}
		var rec backend.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", table, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(op, table, err)
	}
	return result, nil
}

// buildInsert renders a multi-row INSERT over the union of the rows'
// columns. Columns a row lacks get DEFAULT so identity and timestamp
// defaults still apply.
func buildInsert(table string, rows []backend.Record, onConflict string) (string, []any) {
	columns := unionKeys(rows)
	if len(columns) == 0 {
		columns = []string{"id"}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s AS %s", ident(table), rowAlias)

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = ident(col)
	}
	fmt.Fprintf(&sb, " (%s) VALUES ", strings.Join(quoted, ", "))

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, col := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			v, ok := row[col]
			if !ok {
				sb.WriteString("DEFAULT")
				continue
			}
			args = append(args, toArg(v))
			fmt.Fprintf(&sb, "$%d", len(args))
		}
		sb.WriteByte(')')
	}
	sb.WriteString(onConflict)
	fmt.Fprintf(&sb, " RETURNING to_jsonb(%s.*)", rowAlias)
	return sb.String(), args
}

func conflictClause(rows []backend.Record, opts backend.UpsertOptions) string {
	target := opts.ConflictColumn()
	if opts.IgnoreDuplicates {
		return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", ident(target))
	}
	var sets []string
	for _, col := range unionKeys(rows) {
		if col == target {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", ident(col), ident(col)))
	}
	if len(sets) == 0 {
		return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", ident(target))
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", ident(target), strings.Join(sets, ", "))
}

// buildWhere appends filter arguments after the ones already in args and
// returns the rendered clause (with a leading space) or "".
func buildWhere(filters []backend.Filter, args []any) (string, []any) {
	if len(filters) == 0 {
		return "", args
	}
	clauses := make([]string, 0, len(filters))
	for _, f := range filters {
		col := rowAlias + "." + ident(f.Column)
		switch f.Op {
		case backend.OpNotNull:
			clauses = append(clauses, col+" IS NOT NULL")
		case backend.OpNeq:
			args = append(args, toArg(f.Value))
			clauses = append(clauses, fmt.Sprintf("%s <> $%d", col, len(args)))
		case backend.OpContainsCI:
			args = append(args, "%"+escapeLike(backend.Key(f.Value))+"%")
			clauses = append(clauses, fmt.Sprintf("%s ILIKE $%d", col, len(args)))
		default:
			args = append(args, toArg(f.Value))
			clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// toArg converts nested JSON values to their text form for json/jsonb
// columns; scalars pass through to the driver unchanged.
func toArg(v any) any {
	switch v.(type) {
	case map[string]any, []any, backend.Record:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return v
	}
}

func unionKeys(rows []backend.Record) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys(rec backend.Record) []string {
	return unionKeys([]backend.Record{rec})
}

// wrapError turns server-reported failures into *backend.Error and leaves
// transport errors (connection refused, context canceled) untouched.
func wrapError(op, table string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &backend.Error{
			Op:      op,
			Table:   table,
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	return fmt.Errorf("%s %s: %w", op, table, err)
}
