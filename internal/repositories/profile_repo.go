package repositories

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/apperr"
	"github.com/incidentdesk/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const profileColumns = `id, username, role, team, created_at, last_login`

type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

func scanProfile(row pgx.Row) (models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.ID, &p.Username, &p.Role, &p.Team, &p.CreatedAt, &p.LastLogin)
	return p, err
}

func collectProfiles(rows pgx.Rows) ([]models.Profile, error) {
	defer rows.Close()

	out := []models.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, p)
	}
	return out, mapErr(rows.Err())
}

func (r *ProfileRepo) Create(ctx context.Context, p *models.Profile) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO profiles (username, role, team)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, p.Username, string(p.Role), p.Team).Scan(&p.ID, &p.CreatedAt)
	return mapErr(err)
}

func (r *ProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *ProfileRepo) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE username = $1`, username))
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *ProfileRepo) List(ctx context.Context) ([]models.Profile, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectProfiles(rows)
}

func (r *ProfileRepo) ListByRoles(ctx context.Context, roles []models.Role) ([]models.Profile, error) {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+profileColumns+` FROM profiles
		WHERE role = ANY($1)
		ORDER BY username
	`, names)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectProfiles(rows)
}

func (r *ProfileRepo) Update(ctx context.Context, id uuid.UUID, mutate func(models.Profile) (models.Profile, error)) (*models.Profile, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanProfile(tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapErr(err)
	}

	next, err := mutate(current)
	if err != nil {
		return nil, err
	}

	if !next.Role.Assignable() {
		var assigned int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM incidents WHERE assigned_to = $1`, id).Scan(&assigned); err != nil {
			return nil, mapErr(err)
		}
		if assigned > 0 {
			return nil, fmt.Errorf("%w: profile is assigned to %d incident(s)", apperr.ErrInvalidAssignee, assigned)
		}
	}

	_, err = tx.Exec(ctx, `UPDATE profiles SET username = $1, role = $2, team = $3 WHERE id = $4`,
		next.Username, string(next.Role), next.Team, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapErr(err)
	}
	return &next, nil
}

func (r *ProfileRepo) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE profiles SET last_login = now() WHERE id = $1`, id)
	return mapErr(err)
}

// Delete unassigns the profile's incidents and removes it, returning the unassigned
// incident ids. The profile row is locked first so no assignment can land in between.
// Reporter, author and uploader references are ON DELETE RESTRICT and surface as
// apperr.ErrConflict.
func (r *ProfileRepo) Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM profiles WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
		return nil, mapErr(err)
	}

	rows, err := tx.Query(ctx, `
		UPDATE incidents SET assigned_to = NULL, updated_at = now()
		WHERE assigned_to = $1
		RETURNING id
	`, id)
	if err != nil {
		return nil, mapErr(err)
	}
	unassigned, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, mapErr(err)
	}
	sort.Slice(unassigned, func(a, b int) bool { return unassigned[a].String() < unassigned[b].String() })

	if _, err := tx.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id); err != nil {
		return nil, mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapErr(err)
	}
	return unassigned, nil
}
