package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jacksonlee411/mandi-console/internal/resource"
)

var ErrNotFound = errors.New("store: not found")

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store runs resource queries against Postgres. Table metadata is looked up
// once per table and cached for the life of the process.
type Store struct {
	db DB

	mu      sync.RWMutex
	columns map[string][]resource.Attribute
	pks     map[string]string
}

func New(db DB) *Store {
	return &Store{
		db:      db,
		columns: map[string][]resource.Attribute{},
		pks:     map[string]string{},
	}
}

// ident quotes a possibly schema-qualified name.
func ident(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func col(alias string, name string) string {
	return pgx.Identifier{alias, name}.Sanitize()
}

func splitTable(table string) (schema string, name string) {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "", table
}

// Columns lists a table's columns in ordinal order with upper-cased types.
func (s *Store) Columns(ctx context.Context, table string) ([]resource.Attribute, error) {
	s.mu.RLock()
	cached, ok := s.columns[table]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	schema, name := splitTable(table)
	var schemaArg any
	if schema != "" {
		schemaArg = schema
	}
	rows, err := s.db.Query(ctx, `
SELECT column_name, upper(data_type), is_nullable = 'YES'
FROM information_schema.columns
WHERE table_schema = COALESCE($1::text, current_schema()) AND table_name = $2
ORDER BY ordinal_position
`, schemaArg, name)
	if err != nil {
		return nil, fmt.Errorf("store: columns of %s: %w", table, err)
	}
	defer rows.Close()

	var out []resource.Attribute
	for rows.Next() {
		var a resource.Attribute
		if err := rows.Scan(&a.Name, &a.Type, &a.Nullable); err != nil {
			return nil, fmt.Errorf("store: columns of %s: %w", table, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: columns of %s: %w", table, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("store: table %s: %w", table, ErrNotFound)
	}

	s.mu.Lock()
	s.columns[table] = out
	s.mu.Unlock()
	return out, nil
}

// PrimaryKey returns the first primary key column of table.
func (s *Store) PrimaryKey(ctx context.Context, table string) (string, error) {
	s.mu.RLock()
	cached, ok := s.pks[table]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var pk string
	err := s.db.QueryRow(ctx, `
SELECT a.attname
FROM pg_index i
JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
WHERE i.indrelid = $1::regclass AND i.indisprimary
ORDER BY a.attnum
LIMIT 1
`, table).Scan(&pk)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("store: primary key of %s: %w", table, ErrNotFound)
		}
		return "", fmt.Errorf("store: primary key of %s: %w", table, err)
	}

	s.mu.Lock()
	s.pks[table] = pk
	s.mu.Unlock()
	return pk, nil
}

// ResolvePK fills r.PK from the catalog when the registry left it unset.
// Tables without a primary key fall back to "id".
func (s *Store) ResolvePK(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	if r.PK != "" {
		return r, nil
	}
	pk, err := s.PrimaryKey(ctx, r.Table)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.PK = "id"
			return r, nil
		}
		return r, err
	}
	r.PK = pk
	return r, nil
}

func columnSet(cols []resource.Attribute) map[string]resource.Attribute {
	out := make(map[string]resource.Attribute, len(cols))
	for _, c := range cols {
		out[c.Name] = c
	}
	return out
}
