package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger persists audit history. Recording is best effort: a failed
// insert is logged and never propagated to the caller.
type AuditLogger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAuditLogger constructs an AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool, logger *slog.Logger) *AuditLogger {
	return &AuditLogger{pool: pool, logger: logger}
}

// Record writes one audit entry.
func (a *AuditLogger) Record(ctx context.Context, entry AuditLog) {
	if a == nil || a.pool == nil {
		return
	}
	if err := a.record(ctx, entry); err != nil && a.logger != nil {
		a.logger.Error("record audit entry",
			slog.String("action", entry.Action),
			slog.String("entity", entry.Entity),
			slog.Any("error", err))
	}
}

func (a *AuditLogger) record(ctx context.Context, entry AuditLog) error {
	if entry.Action == "" || entry.Entity == "" {
		return errors.New("audit action and entity required")
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = a.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`, entry.ActorID, entry.Action, entry.Entity, entry.EntityID, meta, at)
	return err
}
