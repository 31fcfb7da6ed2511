package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CommentRepo struct {
	pool *pgxpool.Pool
}

func NewCommentRepo(pool *pgxpool.Pool) *CommentRepo {
	return &CommentRepo{pool: pool}
}

func (r *CommentRepo) Create(ctx context.Context, c *models.Comment) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO comments (incident_id, author_id, message)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, c.IncidentID, c.AuthorID, c.Message).Scan(&c.ID, &c.CreatedAt)
	return mapErr(err)
}

func (r *CommentRepo) ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]models.Comment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, incident_id, author_id, message, created_at
		FROM comments WHERE incident_id = $1
		ORDER BY created_at, id
	`, incidentID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.IncidentID, &c.AuthorID, &c.Message, &c.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		comments = append(comments, c)
	}
	return comments, mapErr(rows.Err())
}
