package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"lawn-route-service/internal/domain"
)

// SQLite-backed implementation of the AuditLog port.
type SqliteAuditLog struct{ DB *sql.DB }

func NewSqliteAuditLog(db *sql.DB) *SqliteAuditLog {
	return &SqliteAuditLog{DB: db}
}

func (s *SqliteAuditLog) Append(ctx context.Context, ev domain.AuditEvent) error {
	if s.DB == nil {
		return errors.New("audit log: DB is nil")
	}

	detail := []byte("{}")
	if ev.Detail != nil {
		var err error
		detail, err = json.Marshal(ev.Detail)
		if err != nil {
			return fmt.Errorf("append audit event: marshal detail: %w", err)
		}
	}

	query := `
	INSERT INTO audit_log (audit_id, action, entity_type, entity_id, detail, created_at)
	VALUES (?, ?, ?, ?, ?, ?);
	`
	_, err := s.DB.ExecContext(ctx, query,
		ev.ID, ev.Action, ev.EntityType, ev.EntityID, string(detail), timestamp(ev.At),
	)
	if err != nil {
		return fmt.Errorf("append audit event: insert: %w", err)
	}
	return nil
}
