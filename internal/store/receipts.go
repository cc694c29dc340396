package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jacksonlee411/mandi-console/internal/correction"
)

// Receipts serves the correction page and its update endpoint.
type Receipts struct {
	db    DB
	table string
}

func (s *Store) Receipts(table string) *Receipts {
	if table == "" {
		table = "sale_receipts"
	}
	return &Receipts{db: s.db, table: table}
}

// Pending pages through receipts whose data has not been extracted yet,
// oldest first.
func (rs *Receipts) Pending(ctx context.Context, page int, perPage int) ([]map[string]any, int64, error) {
	page = max(page, 1)
	if perPage <= 0 {
		perPage = 20
	}

	var total int64
	if err := rs.db.QueryRow(ctx, fmt.Sprintf(`
SELECT count(*) FROM %s WHERE NOT COALESCE(is_data_extracted, false)
`, ident(rs.table))).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count pending receipts: %w", err)
	}

	rows, err := rs.db.Query(ctx, fmt.Sprintf(`
SELECT * FROM %s
WHERE NOT COALESCE(is_data_extracted, false)
ORDER BY id
LIMIT $1 OFFSET $2
`, ident(rs.table)), perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("store: pending receipts: %w", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, 0, fmt.Errorf("store: pending receipts: %w", err)
	}
	return items, total, nil
}

// Traders loads the traders of the given mandis in id order.
func (rs *Receipts) Traders(ctx context.Context, mandiIDs []int64) ([]correction.Trader, error) {
	if len(mandiIDs) == 0 {
		return nil, nil
	}
	rows, err := rs.db.Query(ctx, `
SELECT id, COALESCE(name, ''), COALESCE(code, ''), mandi_id
FROM traders
WHERE mandi_id = ANY($1)
ORDER BY id
`, mandiIDs)
	if err != nil {
		return nil, fmt.Errorf("store: traders: %w", err)
	}
	defer rows.Close()

	var out []correction.Trader
	for rows.Next() {
		var t correction.Trader
		if err := rows.Scan(&t.ID, &t.Name, &t.Code, &t.MandiID); err != nil {
			return nil, fmt.Errorf("store: traders: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: traders: %w", err)
	}
	return out, nil
}

// UpdateReceiptCorrection stores a validated correction and marks the
// receipt as extracted.
func (rs *Receipts) UpdateReceiptCorrection(ctx context.Context, u correction.Update, actor string, requestID string) error {
	tx, err := rs.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, fmt.Sprintf(`
UPDATE %s SET
  receipt_printed = $2,
  receipt_owner_mobile_number = NULLIF($3, ''),
  receipt_owner_mobile_number_not_available = $4,
  trader_code = NULLIF($5, ''),
  trader_code_not_available = $6,
  trader_name = NULLIF($7, ''),
  is_data_extracted = true,
  updated_at = now()
WHERE id = $1
`, ident(rs.table)),
		u.SaleReceiptID, u.PrintedFlag(), u.OwnerMobileNumber, u.MobileNotAvailable,
		u.TraderCode, u.TraderCodeNotAvailable, u.TraderName)
	if err != nil {
		return fmt.Errorf("store: update receipt %d: %w", u.SaleReceiptID, err)
	}
	if tag.RowsAffected() == 0 {
		return correction.ErrReceiptNotFound
	}

	payload := map[string]any{
		"receipt_printed":    u.ReceiptPrinted,
		"mobile_unavailable": u.MobileNotAvailable,
		"trader_code":        u.TraderCode,
		"trader_unavailable": u.TraderCodeNotAvailable,
	}
	if err := insertAudit(ctx, tx, Audit{Actor: actor, RequestID: requestID}, "receipt.correct", rs.table, fmt.Sprint(u.SaleReceiptID), payload); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateApprovalStatus records an approve/reject decision on a receipt.
func (rs *Receipts) UpdateApprovalStatus(ctx context.Context, a correction.Approval, actor string, requestID string) error {
	tx, err := rs.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, fmt.Sprintf(`
UPDATE %s SET is_approved = $2, updated_at = now()
WHERE id = $1
`, ident(rs.table)), a.SaleReceiptID, a.Approved)
	if err != nil {
		return fmt.Errorf("store: approve receipt %d: %w", a.SaleReceiptID, err)
	}
	if tag.RowsAffected() == 0 {
		return correction.ErrReceiptNotFound
	}

	payload := map[string]any{"is_approved": a.Approved}
	if err := insertAudit(ctx, tx, Audit{Actor: actor, RequestID: requestID}, a.Action(), rs.table, fmt.Sprint(a.SaleReceiptID), payload); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MandiIDs collects the distinct mandi_id values of rows in first-seen order.
func MandiIDs(rows []map[string]any) []int64 {
	seen := map[int64]bool{}
	var out []int64
	for _, r := range rows {
		id, ok := AsInt64(r["mandi_id"])
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// AsInt64 converts integer scan results without going through float64.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
