package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jacksonlee411/mandi-console/internal/resource"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// pkMatch compares the primary key with parameter n. The text id is sent
// untyped so the server reads it as the key's own type.
func pkMatch(r resource.Resource, op string, n int) string {
	return fmt.Sprintf("%s %s $%d", pgx.Identifier{r.PrimaryKey()}.Sanitize(), op, n)
}

// badID maps ids the key type cannot represent to ErrNotFound.
func badID(err error) error {
	if pgErr, ok := errors.AsType[*pgconn.PgError](err); ok && pgErr != nil {
		switch pgErr.Code {
		case "22P02", "22003": // invalid_text_representation, numeric_value_out_of_range
			return ErrNotFound
		}
	}
	return err
}

func selectByID(ctx context.Context, q querier, r resource.Resource, id string, forUpdate bool) (map[string]any, error) {
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s", ident(r.Table), pkMatch(r, "=", 1))
	if forUpdate {
		sql += " FOR UPDATE"
	}
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, badID(err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, badID(err)
	}
	return row, nil
}

// Get loads one row by primary key.
func (s *Store) Get(ctx context.Context, r resource.Resource, id string) (map[string]any, error) {
	row, err := selectByID(ctx, s.db, r, id, false)
	if err != nil {
		return nil, fmt.Errorf("store: get %s %s: %w", r.Name, id, err)
	}
	return row, nil
}

func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func insertRow(ctx context.Context, tx pgx.Tx, table string, pk string, values map[string]any) (string, error) {
	keys := sortedKeys(values)
	names := make([]string, len(keys))
	params := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		names[i] = pgx.Identifier{k}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[k]
	}

	var sql string
	if len(keys) == 0 {
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", ident(table))
	} else {
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", ident(table), strings.Join(names, ", "), strings.Join(params, ", "))
	}
	sql += fmt.Sprintf(" RETURNING CAST(%s AS TEXT)", pgx.Identifier{pk}.Sanitize())

	var id string
	if err := tx.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// Insert creates one row and returns its primary key as text.
func (s *Store) Insert(ctx context.Context, r resource.Resource, values map[string]any, a Audit) (string, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	id, err := insertRow(ctx, tx, r.Table, r.PrimaryKey(), values)
	if err != nil {
		return "", fmt.Errorf("store: insert %s: %w", r.Name, err)
	}
	if err := insertAudit(ctx, tx, a, "resource.create", r.Name, id, map[string]any{"columns": sortedKeys(values)}); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

// InsertMany creates every row in one transaction; any failure leaves the
// table untouched.
func (s *Store) InsertMany(ctx context.Context, r resource.Resource, rows []map[string]any, a Audit) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	for i, values := range rows {
		if _, err := insertRow(ctx, tx, r.Table, r.PrimaryKey(), values); err != nil {
			return 0, fmt.Errorf("store: upload %s row %d: %w", r.Name, i+1, err)
		}
	}
	if err := insertAudit(ctx, tx, a, "resource.upload", r.Name, "", map[string]any{"rows": len(rows)}); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Update applies values to the row id. For resources with revisions the
// pre-edit row is copied to the revision table when anything changed.
// EditedBy is stored on the revision when the table has an edited_by column.
func (s *Store) Update(ctx context.Context, r resource.Resource, id string, values map[string]any, editedBy any, a Audit) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	old, err := selectByID(ctx, tx, r, id, true)
	if err != nil {
		return fmt.Errorf("store: update %s %s: %w", r.Name, id, err)
	}

	if r.DuplicateCheck != nil {
		dup, err := hasDuplicate(ctx, tx, r, id, old, values)
		if err != nil {
			return fmt.Errorf("store: update %s %s: %w", r.Name, id, err)
		}
		if dup {
			values[r.DuplicateCheck.Flag] = false
		}
	}

	if len(values) > 0 {
		keys := sortedKeys(values)
		sets := make([]string, len(keys))
		args := make([]any, 0, len(keys)+1)
		for i, k := range keys {
			sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{k}.Sanitize(), i+1)
			args = append(args, values[k])
		}
		args = append(args, id)
		sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
			ident(r.Table), strings.Join(sets, ", "), pkMatch(r, "=", len(args)))
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("store: update %s %s: %w", r.Name, id, err)
		}
	}

	if r.Revisions && Modified(old, values) {
		if err := s.InsertRevision(ctx, tx, r, old, editedBy); err != nil {
			return err
		}
	}

	if err := insertAudit(ctx, tx, a, "resource.update", r.Name, id, map[string]any{"columns": sortedKeys(values)}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Modified reports whether any value differs from the stored row.
func Modified(old map[string]any, values map[string]any) bool {
	for k, v := range values {
		if k == "created_at" || k == "updated_at" {
			continue
		}
		if !sameValue(old[k], v) {
			return true
		}
	}
	return false
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return normalize(a) == normalize(b)
}

func normalize(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(t)
	}
	if f, ok := resource.AsFloat(v); ok {
		if _, isString := v.(string); !isString {
			return fmt.Sprint(f)
		}
	}
	return fmt.Sprint(v)
}

// InsertRevision copies old into the resource's revision table. Columns the
// revision table lacks are dropped; timestamps and the primary key are
// replaced by the revision key.
func (s *Store) InsertRevision(ctx context.Context, tx pgx.Tx, r resource.Resource, old map[string]any, editedBy any) error {
	cols, err := s.Columns(ctx, r.RevisionTable)
	if err != nil {
		return err
	}
	known := columnSet(cols)
	pk := r.PrimaryKey()

	values := map[string]any{}
	for k, v := range old {
		if k == pk || k == "created_at" || k == "updated_at" {
			continue
		}
		if _, ok := known[k]; ok {
			values[k] = v
		}
	}
	values[r.RevisionPK] = old[pk]
	if _, ok := known["edited_by"]; ok && editedBy != nil {
		values["edited_by"] = editedBy
	}

	revPK := "id"
	if _, ok := known[revPK]; !ok {
		revPK = r.RevisionPK
	}
	if _, err := insertRow(ctx, tx, r.RevisionTable, revPK, values); err != nil {
		return fmt.Errorf("store: revision %s: %w", r.Name, err)
	}
	return nil
}

func hasDuplicate(ctx context.Context, tx pgx.Tx, r resource.Resource, id string, old map[string]any, values map[string]any) (bool, error) {
	dc := r.DuplicateCheck
	current := func(k string) any {
		if v, ok := values[k]; ok {
			return v
		}
		return old[k]
	}

	conds := []string{
		pkMatch(r, "<>", 1),
		pgx.Identifier{dc.Flag}.Sanitize() + " = true",
	}
	args := []any{id}
	for _, c := range dc.Columns {
		v := current(c)
		if v == nil {
			return false, nil
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), len(args)))
	}
	if dc.DateColumn != "" {
		v := current(dc.DateColumn)
		if v == nil {
			return false, nil
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("CAST(%s AS DATE) = CAST($%d AS DATE)", pgx.Identifier{dc.DateColumn}.Sanitize(), len(args)))
	}

	var exists bool
	sql := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s)", ident(r.Table), strings.Join(conds, " AND "))
	if err := tx.QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Delete removes the row id.
func (s *Store) Delete(ctx context.Context, r resource.Resource, id string, a Audit) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", ident(r.Table), pkMatch(r, "=", 1)), id)
	if err != nil {
		return fmt.Errorf("store: delete %s %s: %w", r.Name, id, badID(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: delete %s %s: %w", r.Name, id, ErrNotFound)
	}
	if err := insertAudit(ctx, tx, a, "resource.delete", r.Name, id, nil); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RelationOptions lists the choices for an editable relation dropdown,
// ordered by label.
func (s *Store) RelationOptions(ctx context.Context, rel resource.EditableRelation) ([]resource.Option, error) {
	label := pgx.Identifier{rel.RelatedLabel}.Sanitize()
	rows, err := s.db.Query(ctx, fmt.Sprintf("SELECT CAST(%s AS TEXT), COALESCE(CAST(%s AS TEXT), '') FROM %s ORDER BY %s",
		pgx.Identifier{rel.RelatedKey}.Sanitize(), label, ident(rel.RelatedTable), label))
	if err != nil {
		return nil, fmt.Errorf("store: options %s: %w", rel.Key, err)
	}
	defer rows.Close()

	var out []resource.Option
	for rows.Next() {
		var o resource.Option
		if err := rows.Scan(&o.Value, &o.Label); err != nil {
			return nil, fmt.Errorf("store: options %s: %w", rel.Key, err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: options %s: %w", rel.Key, err)
	}
	return out, nil
}
