package repositories

import (
	"context"
	"fmt"

	"github.com/incidentdesk/backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepo is append-only: it has no update or delete path.
type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Append(ctx context.Context, entry *models.AuditLog) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, changes, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, entry.UserID, string(entry.Action), entry.EntityType, entry.EntityID, entry.Changes, entry.IPAddress,
	).Scan(&entry.ID, &entry.CreatedAt)
	return mapErr(err)
}

func (r *AuditRepo) List(ctx context.Context, f models.AuditFilter) ([]models.AuditLog, error) {
	query := `SELECT id, user_id, action, entity_type, entity_id, changes, ip_address, created_at FROM audit_logs`
	args := []any{}
	if f.EntityType != nil {
		args = append(args, *f.EntityType)
		query += fmt.Sprintf(" WHERE entity_type = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	logs := []models.AuditLog{}
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.EntityType, &l.EntityID, &l.Changes, &l.IPAddress, &l.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		logs = append(logs, l)
	}
	return logs, mapErr(rows.Err())
}
