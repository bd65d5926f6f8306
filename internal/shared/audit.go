package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aurum-erp/aurum/internal/platform/db"
)

// ActivityEntry is a row of activity_logs.
type ActivityEntry struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// ActivityLogger writes records into activity_logs.
type ActivityLogger struct {
	db db.DBTX
}

// NewActivityLogger returns a new ActivityLogger.
func NewActivityLogger(conn db.DBTX) *ActivityLogger {
	return &ActivityLogger{db: conn}
}

// WithTx returns a logger writing through the given transaction.
func (l *ActivityLogger) WithTx(conn db.DBTX) *ActivityLogger {
	if l == nil {
		return nil
	}
	return &ActivityLogger{db: conn}
}

// Record persists the log entry.
func (l *ActivityLogger) Record(ctx context.Context, entry ActivityEntry) error {
	if l == nil {
		return errors.New("activity logger not initialised")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return errors.New("activity log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !entry.At.IsZero() {
		at = &entry.At
	}
	var actor *string
	if entry.ActorID != "" {
		actor = &entry.ActorID
	}
	_, err = l.db.Exec(ctx, `INSERT INTO activity_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, actor, entry.Action, entry.Entity, entry.EntityID, metaJSON, at)
	return err
}
