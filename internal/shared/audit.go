package shared

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Audit action tags.
const (
	AuditUserRegistered      = "USER_REGISTERED"
	AuditUserUpdated         = "USER_UPDATED"
	AuditReportCreated       = "REPORT_CREATED"
	AuditReportUpdated       = "REPORT_UPDATED"
	AuditReportDeleted       = "REPORT_DELETED"
	AuditReportStatusUpdated = "REPORT_STATUS_UPDATED"
	AuditMediaAdded          = "MEDIA_ADDED"
	AuditMediaDeleted        = "MEDIA_DELETED"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	Action   string
	Entity   string
	EntityID string
	ActorID  string
	Changes  any
	Meta     RequestMeta
}

// Execer is the subset of pgx used to write audit rows, so the logger works
// both on the pool and inside a transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct{}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

// Record persists the log entry through q.
func (l *AuditLogger) Record(ctx context.Context, q Execer, log AuditLog) error {
	if l == nil || q == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	changes, err := json.Marshal(log.Changes)
	if err != nil {
		return err
	}
	var actor *string
	if log.ActorID != "" {
		actor = &log.ActorID
	}
	_, err = q.Exec(ctx,
		`INSERT INTO audit_logs (action, entity, entity_id, actor_id, changes, ip_address, user_agent) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.Action, log.Entity, log.EntityID, actor, changes, nullable(log.Meta.IP), nullable(log.Meta.UserAgent))
	return err
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
