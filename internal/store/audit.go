package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Audit identifies who made a change and under which request.
type Audit struct {
	Actor     string
	RequestID string
}

func insertAudit(ctx context.Context, tx pgx.Tx, a Audit, action string, resourceType string, resourceID string, payload any) error {
	if a.Actor == "" {
		return errors.New("store: missing actor")
	}
	b := []byte(`{}`)
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		b = encoded
	}
	_, err := tx.Exec(ctx, `
INSERT INTO admin_audit_logs(actor, action, resource_type, resource_id, payload, request_id)
VALUES ($1, $2, $3, $4, $5::jsonb, $6)
`, a.Actor, action, resourceType, resourceID, b, a.RequestID)
	return err
}
