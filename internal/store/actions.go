package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blendonl/mkanban-mobile/internal/action"
)

// UpsertAction inserts or updates an action definition.
func (db *DB) UpsertAction(def *action.Definition) error {
	return db.UpsertActionContext(context.Background(), def)
}

// UpsertActionContext inserts or updates an action with context support.
func (db *DB) UpsertActionContext(ctx context.Context, def *action.Definition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid action: %w", err)
	}

	eventsJSON, err := json.Marshal(def.Trigger.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	metadataJSON, err := json.Marshal(def.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
	INSERT INTO actions (
		id, type, scope_kind, target_id, enabled, trigger_kind,
		interval_secs, at_time, events, metadata, last_fired_at,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		type = excluded.type,
		scope_kind = excluded.scope_kind,
		target_id = excluded.target_id,
		enabled = excluded.enabled,
		trigger_kind = excluded.trigger_kind,
		interval_secs = excluded.interval_secs,
		at_time = excluded.at_time,
		events = excluded.events,
		metadata = excluded.metadata,
		updated_at = excluded.updated_at
	`

	_, err = db.conn.ExecContext(ctx, query,
		def.ID,
		def.Type,
		def.Scope.Kind.String(),
		def.Scope.TargetID,
		boolToInt(def.Enabled),
		def.Trigger.Kind.String(),
		int64(def.Trigger.Every/time.Second),
		def.Trigger.At,
		string(eventsJSON),
		string(metadataJSON),
		timeToNullString(def.LastFiredAt),
		def.CreatedAt.Format(time.RFC3339),
		def.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert action %s: %w", def.ID, err)
	}

	return nil
}

// GetAction retrieves a single action by ID.
// Returns sql.ErrNoRows if the action is not found.
func (db *DB) GetAction(id string) (*action.Definition, error) {
	return db.GetActionContext(context.Background(), id)
}

// GetActionContext retrieves a single action with context support.
func (db *DB) GetActionContext(ctx context.Context, id string) (*action.Definition, error) {
	row := db.conn.QueryRowContext(ctx, actionSelect+` WHERE id = ?`, id)
	return scanAction(row)
}

// ListActions retrieves every stored action.
func (db *DB) ListActions() ([]*action.Definition, error) {
	return db.ListActionsContext(context.Background())
}

// ListActionsContext retrieves every stored action with context support.
func (db *DB) ListActionsContext(ctx context.Context) ([]*action.Definition, error) {
	rows, err := db.conn.QueryContext(ctx, actionSelect+` ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// ListEnabledByTriggerKind retrieves enabled actions of one trigger family.
func (db *DB) ListEnabledByTriggerKind(kind action.TriggerKind) ([]*action.Definition, error) {
	return db.ListEnabledByTriggerKindContext(context.Background(), kind)
}

// ListEnabledByTriggerKindContext retrieves enabled actions of one trigger
// family with context support.
func (db *DB) ListEnabledByTriggerKindContext(ctx context.Context, kind action.TriggerKind) ([]*action.Definition, error) {
	rows, err := db.conn.QueryContext(ctx,
		actionSelect+` WHERE enabled = 1 AND trigger_kind = ? ORDER BY created_at ASC`,
		kind.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s actions: %w", kind, err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// DeleteAction removes an action. Returns nil if it doesn't exist.
func (db *DB) DeleteAction(id string) error {
	return db.DeleteActionContext(context.Background(), id)
}

// DeleteActionContext removes an action with context support.
func (db *DB) DeleteActionContext(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM actions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete action %s: %w", id, err)
	}
	return nil
}

// MarkActionFired persists when an action last executed, so clock-time
// schedules fire once per day and interval schedules measure from the
// last run.
func (db *DB) MarkActionFired(ctx context.Context, id string, firedAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE actions SET last_fired_at = ? WHERE id = ?`,
		firedAt.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to mark action %s fired: %w", id, err)
	}
	return nil
}

// ActionCount returns the total number of stored actions.
func (db *DB) ActionCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return count, nil
}

const actionSelect = `
	SELECT id, type, scope_kind, target_id, enabled, trigger_kind,
	       interval_secs, at_time, events, metadata, last_fired_at,
	       created_at, updated_at
	FROM actions`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAction reads one action definition from a row.
func scanAction(row rowScanner) (*action.Definition, error) {
	var (
		def          action.Definition
		scopeKind    string
		targetID     sql.NullString
		enabled      int
		triggerKind  string
		intervalSecs int64
		atTime       sql.NullString
		eventsJSON   sql.NullString
		metadataJSON sql.NullString
		lastFired    sql.NullString
		createdAt    string
		updatedAt    string
	)

	err := row.Scan(
		&def.ID, &def.Type, &scopeKind, &targetID, &enabled, &triggerKind,
		&intervalSecs, &atTime, &eventsJSON, &metadataJSON, &lastFired,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	kind, err := action.ParseScopeKind(scopeKind)
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", def.ID, err)
	}
	def.Scope = action.Scope{Kind: kind, TargetID: targetID.String}

	tk, err := action.ParseTriggerKind(triggerKind)
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", def.ID, err)
	}
	def.Trigger = action.Trigger{
		Kind:  tk,
		Every: time.Duration(intervalSecs) * time.Second,
		At:    atTime.String,
	}

	if eventsJSON.Valid && eventsJSON.String != "" && eventsJSON.String != "null" {
		if err := json.Unmarshal([]byte(eventsJSON.String), &def.Trigger.Events); err != nil {
			return nil, fmt.Errorf("action %s: failed to unmarshal events: %w", def.ID, err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &def.Metadata); err != nil {
			return nil, fmt.Errorf("action %s: failed to unmarshal metadata: %w", def.ID, err)
		}
	}

	def.Enabled = enabled != 0
	def.LastFiredAt = nullStringToTime(lastFired)
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		def.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		def.UpdatedAt = t
	}

	return &def, nil
}

// scanActions reads action definitions from query results.
func scanActions(rows *sql.Rows) ([]*action.Definition, error) {
	var defs []*action.Definition

	for rows.Next() {
		def, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		defs = append(defs, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return defs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
