package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warp/hub-engine/generic"
)

// Append adds an audit entry. Append-only: there is no update or delete.
func (s *Store) Append(ctx context.Context, e generic.AuditEntry) error {
	return s.root().withTx(ctx, func(v view) error { return appendAudit(ctx, v.q, e) })
}

func appendAudit(ctx context.Context, q querier, e generic.AuditEntry) error {
	var details sql.NullString
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("audit %s details: %w", e.ID, err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, actor_role, action, entity_type, entity_id, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, formatTime(e.Timestamp), e.ActorID, nullString(string(e.ActorRole)),
		e.Action, e.EntityType, e.EntityID, details)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Query returns matching entries, newest first.
func (s *Store) Query(ctx context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, f.ActorID)
	}
	if len(f.Actions) > 0 {
		where = append(where, "action IN (?"+strings.Repeat(", ?", len(f.Actions)-1)+")")
		for _, a := range f.Actions {
			args = append(args, a)
		}
	}
	if f.From != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		where = append(where, "timestamp <= ?")
		args = append(args, formatTime(*f.To))
	}

	query := `SELECT id, timestamp, actor_id, actor_role, action, entity_type, entity_id, details_json FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []generic.AuditEntry
	for rows.Next() {
		var (
			e                 generic.AuditEntry
			ts, action        string
			role, detailsJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &role, &action, &e.EntityType, &e.EntityID, &detailsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp = parseTime(ts)
		e.ActorRole = generic.Role(role.String)
		e.Action = generic.AuditAction(action)
		if detailsJSON.Valid {
			if err := json.Unmarshal([]byte(detailsJSON.String), &e.Details); err != nil {
				return nil, fmt.Errorf("audit %s details: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
