package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"tasker/internal/platform/database"
	"tasker/internal/platform/models"
)

type AuditRepository struct {
	db database.DBTX
}

func NewAuditRepository(db database.DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	var metadata sql.NullString
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, nullString(entry.UserID), entry.Action, entry.ResourceType, nullString(entry.ResourceID),
		metadata, nullString(entry.IPAddress), nullString(entry.UserAgent), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListByUser returns the user's most recent entries, newest first.
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	logs := []*models.AuditLog{}
	for rows.Next() {
		var l models.AuditLog
		var uid, resourceID, metadata, ip, userAgent sql.NullString
		if err := rows.Scan(&l.ID, &uid, &l.Action, &l.ResourceType, &resourceID, &metadata, &ip, &userAgent, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		l.UserID, l.ResourceID, l.IPAddress, l.UserAgent = uid.String, resourceID.String, ip.String, userAgent.String
		if metadata.Valid {
			_ = json.Unmarshal([]byte(metadata.String), &l.Metadata)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
