package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"go.uber.org/zap"

	"algoverse/internal/common"
	"algoverse/internal/platform/store"
)

// Connect opens and verifies a pool for connStr.
func Connect(ctx context.Context, connStr string, log *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	log.Info("connected to PostgreSQL")
	return db, nil
}

func Close(db *sql.DB, log *zap.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		log.Warn("closing database", zap.Error(err))
		return
	}
	log.Info("database connection closed")
}

// Gateway implements store.Gateway with plain SQL over the same tables the
// REST store exposes. Collections map to tables and fields to columns.
type Gateway struct {
	db      *sql.DB
	timeout time.Duration
}

// NewGateway bounds every call by timeout; zero leaves the caller's context
// as the only bound.
func NewGateway(db *sql.DB, timeout time.Duration) *Gateway {
	return &Gateway{db: db, timeout: timeout}
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *Gateway) Fetch(ctx context.Context, collection string, q store.Query) ([]store.Record, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	if err := checkIdentifiers(collection, q.Filter); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, `SELECT to_jsonb(t.*) FROM %q AS t`, collection)
	where, args := whereClause(q.Filter, 1)
	b.WriteString(where)

	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			if !store.ValidIdentifier(o.Field) {
				return nil, fmt.Errorf("invalid order field %q: %w", o.Field, common.ErrBadRequest)
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts = append(parts, fmt.Sprintf(`t.%q %s`, o.Field, dir))
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}

	rows, err := g.query(ctx, g.db, collection, b.String(), args...)
	if err != nil {
		return nil, err
	}
	return project(rows, q.Select), nil
}

// Insert writes the batch in one transaction so it is all-or-nothing.
func (g *Gateway) Insert(ctx context.Context, collection string, records ...store.Record) ([]store.Record, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	if len(records) == 0 {
		return nil, nil
	}
	if !store.ValidIdentifier(collection) {
		return nil, fmt.Errorf("invalid collection %q: %w", collection, common.ErrBadRequest)
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert into %s: %v: %w", collection, err, common.ErrUpstream)
	}
	defer tx.Rollback()

	var out []store.Record
	for _, rec := range records {
		cols := sortedKeys(rec)
		quoted := make([]string, 0, len(cols))
		placeholders := make([]string, 0, len(cols))
		args := make([]any, 0, len(cols))
		for i, c := range cols {
			if !store.ValidIdentifier(c) {
				return nil, fmt.Errorf("invalid column %q: %w", c, common.ErrBadRequest)
			}
			quoted = append(quoted, strconv.Quote(c))
			placeholders = append(placeholders, "$"+strconv.Itoa(i+1))
			args = append(args, rec[c])
		}
		query := fmt.Sprintf(`INSERT INTO %q AS t (%s) VALUES (%s) RETURNING to_jsonb(t.*)`,
			collection, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

		rows, err := g.query(ctx, tx, collection, query, args...)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}

	if err := tx.Commit(); err != nil {
		return nil, translate(collection, err)
	}
	return out, nil
}

func (g *Gateway) Update(ctx context.Context, collection string, filter store.Filter, patch store.Record) ([]store.Record, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	if err := checkIdentifiers(collection, filter); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return g.Fetch(ctx, collection, store.Query{Filter: filter})
	}

	cols := sortedKeys(patch)
	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+len(filter))
	for i, c := range cols {
		if !store.ValidIdentifier(c) {
			return nil, fmt.Errorf("invalid column %q: %w", c, common.ErrBadRequest)
		}
		sets = append(sets, fmt.Sprintf(`%q = $%d`, c, i+1))
		args = append(args, patch[c])
	}
	where, whereArgs := whereClause(filter, len(cols)+1)
	args = append(args, whereArgs...)

	query := fmt.Sprintf(`UPDATE %q AS t SET %s%s RETURNING to_jsonb(t.*)`, collection, strings.Join(sets, ", "), where)
	return g.query(ctx, g.db, collection, query, args...)
}

func (g *Gateway) Delete(ctx context.Context, collection string, filter store.Filter) ([]store.Record, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	if err := checkIdentifiers(collection, filter); err != nil {
		return nil, err
	}
	where, args := whereClause(filter, 1)
	query := fmt.Sprintf(`DELETE FROM %q AS t%s RETURNING to_jsonb(t.*)`, collection, where)
	return g.query(ctx, g.db, collection, query, args...)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (g *Gateway) query(ctx context.Context, q querier, collection, query string, args ...any) ([]store.Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(collection, err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, translate(collection, err)
		}
		var rec store.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode %s row: %v: %w", collection, err, common.ErrUpstream)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(collection, err)
	}
	return out, nil
}

var sqlOps = map[store.Op]string{
	store.OpEq:  "=",
	store.OpNeq: "<>",
	store.OpGt:  ">",
	store.OpGte: ">=",
	store.OpLt:  "<",
	store.OpLte: "<=",
}

// whereClause renders filter with placeholders numbered from start.
func whereClause(filter store.Filter, start int) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}
	conds := make([]string, 0, len(filter))
	args := make([]any, 0, len(filter))
	for _, p := range filter {
		if p.Value == nil {
			if p.Op == store.OpNeq {
				conds = append(conds, fmt.Sprintf(`t.%q IS NOT NULL`, p.Field))
			} else {
				conds = append(conds, fmt.Sprintf(`t.%q IS NULL`, p.Field))
			}
			continue
		}
		op, ok := sqlOps[p.Op]
		if !ok {
			op = "="
		}
		conds = append(conds, fmt.Sprintf(`t.%q %s $%d`, p.Field, op, start+len(args)))
		args = append(args, p.Value)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func checkIdentifiers(collection string, filter store.Filter) error {
	if !store.ValidIdentifier(collection) {
		return fmt.Errorf("invalid collection %q: %w", collection, common.ErrBadRequest)
	}
	for _, p := range filter {
		if !store.ValidIdentifier(p.Field) {
			return fmt.Errorf("invalid filter field %q: %w", p.Field, common.ErrBadRequest)
		}
	}
	return nil
}

func translate(collection string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && common.IsUniqueViolation(pgErr) {
		return fmt.Errorf("conflict on %s: %s: %w", collection, pgErr.Message, common.ErrConflict)
	}
	return fmt.Errorf("query %s: %v: %w", collection, err, common.ErrUpstream)
}

func sortedKeys(r store.Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func project(rows []store.Record, fields []string) []store.Record {
	if len(fields) == 0 {
		return rows
	}
	out := make([]store.Record, 0, len(rows))
	for _, r := range rows {
		p := make(store.Record, len(fields))
		for _, f := range fields {
			if v, ok := r[f]; ok {
				p[f] = v
			}
		}
		out = append(out, p)
	}
	return out
}
