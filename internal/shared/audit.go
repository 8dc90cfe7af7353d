package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry is one row of the ledger audit trail.
type AuditEntry struct {
	Actor    string
	Action   string
	Entity   string
	EntityID int64
	Meta     map[string]any
	At       time.Time
}

// AuditTrail appends entries to audit_entries.
type AuditTrail struct {
	pool *pgxpool.Pool
}

// NewAuditTrail returns an AuditTrail backed by pool.
func NewAuditTrail(pool *pgxpool.Pool) *AuditTrail {
	return &AuditTrail{pool: pool}
}

// Record persists the entry.
func (a *AuditTrail) Record(ctx context.Context, entry AuditEntry) error {
	if a == nil || a.pool == nil {
		return errors.New("audit trail not initialised")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == 0 {
		return errors.New("audit entry requires action, entity and entity id")
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = a.pool.Exec(ctx,
		`INSERT INTO audit_entries (actor, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.Actor, entry.Action, entry.Entity, entry.EntityID, meta, at)
	return err
}
