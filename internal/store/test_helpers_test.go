package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubDB struct {
	beginFn    func(ctx context.Context) (pgx.Tx, error)
	queryFn    func(sql string, args ...any) (pgx.Rows, error)
	queryRowFn func(sql string, args ...any) pgx.Row
	execFn     func(sql string, args ...any) (pgconn.CommandTag, error)

	queries []string
}

func (d *stubDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if d.beginFn == nil {
		return nil, errors.New("unexpected Begin")
	}
	return d.beginFn(ctx)
}

func (d *stubDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	d.queries = append(d.queries, sql)
	if d.queryFn == nil {
		return nil, errors.New("unexpected Query")
	}
	return d.queryFn(sql, args...)
}

func (d *stubDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	d.queries = append(d.queries, sql)
	if d.queryRowFn == nil {
		return stubRow{err: errors.New("unexpected QueryRow")}
	}
	return d.queryRowFn(sql, args...)
}

func (d *stubDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if d.execFn == nil {
		return pgconn.CommandTag{}, errors.New("unexpected Exec")
	}
	return d.execFn(sql, args...)
}

type execCall struct {
	sql  string
	args []any
}

type stubTx struct {
	execTag   string
	execErrAt int
	execErr   error
	execs     []execCall

	queryFn    func(sql string, args ...any) (pgx.Rows, error)
	queryRowFn func(sql string, args ...any) pgx.Row
	commitErr  error
	committed  bool
}

func (t *stubTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *stubTx) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}
func (t *stubTx) Rollback(context.Context) error { return nil }
func (t *stubTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *stubTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *stubTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *stubTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *stubTx) Conn() *pgx.Conn { return nil }

func (t *stubTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, execCall{sql: sql, args: args})
	if t.execErr != nil && t.execErrAt == len(t.execs) {
		return pgconn.CommandTag{}, t.execErr
	}
	tag := t.execTag
	if tag == "" {
		tag = "UPDATE 1"
	}
	return pgconn.NewCommandTag(tag), nil
}

func (t *stubTx) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if t.queryFn == nil {
		return &stubRows{}, nil
	}
	return t.queryFn(sql, args...)
}

func (t *stubTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if t.queryRowFn != nil {
		return t.queryRowFn(sql, args...)
	}
	return stubRow{err: errors.New("unexpected QueryRow")}
}

func assign(dest any, v any) error {
	switch d := dest.(type) {
	case *string:
		*d = v.(string)
	case *bool:
		*d = v.(bool)
	case *int64:
		*d = v.(int64)
	case *time.Time:
		*d = v.(time.Time)
	default:
		return errors.New("unsupported dest")
	}
	return nil
}

type stubRow struct {
	vals []any
	err  error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		if err := assign(dest[i], r.vals[i]); err != nil {
			return err
		}
	}
	return nil
}

// stubRows serves positional rows. When fields is set it also backs
// pgx.RowToMap through Values and FieldDescriptions.
type stubRows struct {
	fields []string
	vals   [][]any
	idx    int
	err    error
}

func (r *stubRows) Close()                        {}
func (r *stubRows) Err() error                    { return r.err }
func (r *stubRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.fields))
	for i, f := range r.fields {
		out[i] = pgconn.FieldDescription{Name: f}
	}
	return out
}
func (r *stubRows) Next() bool {
	if r.idx >= len(r.vals) {
		return false
	}
	r.idx++
	return true
}
func (r *stubRows) Scan(dest ...any) error {
	if len(dest) == 1 {
		if rs, ok := dest[0].(pgx.RowScanner); ok {
			return rs.ScanRow(r)
		}
	}
	row := r.vals[r.idx-1]
	for i := range dest {
		if err := assign(dest[i], row[i]); err != nil {
			return err
		}
	}
	return nil
}
func (r *stubRows) Values() ([]any, error) { return r.vals[r.idx-1], nil }
func (r *stubRows) RawValues() [][]byte    { return nil }
func (r *stubRows) Conn() *pgx.Conn        { return nil }

func columnRows(cols ...string) *stubRows {
	rows := &stubRows{}
	for i := 0; i+1 < len(cols); i += 2 {
		rows.vals = append(rows.vals, []any{cols[i], cols[i+1], true})
	}
	return rows
}
