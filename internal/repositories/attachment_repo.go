package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AttachmentRepo struct {
	pool *pgxpool.Pool
}

func NewAttachmentRepo(pool *pgxpool.Pool) *AttachmentRepo {
	return &AttachmentRepo{pool: pool}
}

func (r *AttachmentRepo) Create(ctx context.Context, a *models.Attachment) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO attachments (incident_id, uploader_id, filename, storage_path, file_size, mime_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, a.IncidentID, a.UploaderID, a.Filename, a.StoragePath, a.FileSize, a.MimeType).Scan(&a.ID, &a.CreatedAt)
	return mapErr(err)
}

func (r *AttachmentRepo) ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]models.Attachment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, incident_id, uploader_id, filename, storage_path, file_size, mime_type, created_at
		FROM attachments WHERE incident_id = $1
		ORDER BY created_at, id
	`, incidentID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	attachments := []models.Attachment{}
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.IncidentID, &a.UploaderID, &a.Filename, &a.StoragePath, &a.FileSize, &a.MimeType, &a.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		attachments = append(attachments, a)
	}
	return attachments, mapErr(rows.Err())
}
