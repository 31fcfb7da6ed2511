package repositories

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"
	"github.com/incidentdesk/backend/internal/apperr"
	"github.com/incidentdesk/backend/internal/models"
	"github.com/incidentdesk/backend/internal/rbac"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const incidentColumns = `id, reporter_id, title, description, severity, status, category, assigned_to, team, created_at, updated_at`

type IncidentRepo struct {
	pool *pgxpool.Pool
}

func NewIncidentRepo(pool *pgxpool.Pool) *IncidentRepo {
	return &IncidentRepo{pool: pool}
}

// incidentQuery accumulates WHERE conditions with positional arguments.
type incidentQuery struct {
	where []string
	args  []any
}

func (q *incidentQuery) add(cond string, arg any) {
	q.args = append(q.args, arg)
	q.where = append(q.where, fmt.Sprintf(cond, len(q.args)))
}

func (q *incidentQuery) clause() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

// scopeQuery starts a query restricted to the incidents scope admits.
func scopeQuery(scope rbac.VisibilityScope) *incidentQuery {
	q := &incidentQuery{}
	switch {
	case scope.All:
	case scope.ReporterID != nil:
		q.add("reporter_id = $%d", *scope.ReporterID)
	case scope.AssigneeID != nil:
		q.add("assigned_to = $%d", *scope.AssigneeID)
	}
	return q
}

func buildListQuery(scope rbac.VisibilityScope, f models.IncidentFilter) (string, []any) {
	q := scopeQuery(scope)
	if f.Status != nil {
		q.add("status = $%d", string(*f.Status))
	}
	if f.Severity != nil {
		q.add("severity = $%d", string(*f.Severity))
	}

	sql := "SELECT " + incidentColumns + " FROM incidents" + q.clause() + " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		q.args = append(q.args, f.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(q.args))
	}
	return sql, q.args
}

func buildGetQuery(scope rbac.VisibilityScope, id uuid.UUID, forUpdate bool) (string, []any) {
	q := scopeQuery(scope)
	q.add("id = $%d", id)
	sql := "SELECT " + incidentColumns + " FROM incidents" + q.clause()
	if forUpdate {
		sql += " FOR UPDATE"
	}
	return sql, q.args
}

func scanIncident(row pgx.Row) (models.Incident, error) {
	var i models.Incident
	err := row.Scan(&i.ID, &i.ReporterID, &i.Title, &i.Description, &i.Severity, &i.Status,
		&i.Category, &i.AssignedTo, &i.Team, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

// List streams visible incidents from an open cursor. Breaking out of the loop closes it.
func (r *IncidentRepo) List(ctx context.Context, actor models.Profile, f models.IncidentFilter) iter.Seq2[models.Incident, error] {
	return func(yield func(models.Incident, error) bool) {
		scope := rbac.Scope(actor)
		if scope.None() {
			return
		}

		sql, args := buildListQuery(scope, f)
		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			yield(models.Incident{}, mapErr(err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			i, err := scanIncident(rows)
			if err != nil {
				yield(models.Incident{}, mapErr(err))
				return
			}
			if !yield(i, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Incident{}, mapErr(err))
		}
	}
}

func (r *IncidentRepo) Get(ctx context.Context, actor models.Profile, id uuid.UUID) (*models.Incident, error) {
	scope := rbac.Scope(actor)
	if scope.None() {
		return nil, apperr.ErrNotFound
	}

	sql, args := buildGetQuery(scope, id, false)
	i, err := scanIncident(r.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapErr(err)
	}
	return &i, nil
}

func (r *IncidentRepo) Create(ctx context.Context, i *models.Incident) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO incidents (reporter_id, title, description, severity, status, category, assigned_to, team)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, i.ReporterID, i.Title, i.Description, string(i.Severity), string(i.Status), i.Category, i.AssignedTo, i.Team,
	).Scan(&i.ID, &i.CreatedAt, &i.UpdatedAt)
	return mapErr(err)
}

// Update holds a row lock between reading the current incident and writing the
// mutated one, so concurrent patches apply one after another.
func (r *IncidentRepo) Update(ctx context.Context, actor models.Profile, id uuid.UUID, mutate func(models.Incident) (models.Incident, error)) (*models.Incident, error) {
	scope := rbac.Scope(actor)
	if scope.None() {
		return nil, apperr.ErrNotFound
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sql, args := buildGetQuery(scope, id, true)
	current, err := scanIncident(tx.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapErr(err)
	}

	next, err := mutate(current)
	if err != nil {
		return nil, err
	}
	if next.AssignedTo != nil && !current.IsAssignedTo(*next.AssignedTo) {
		if err := checkAssignee(ctx, tx, *next.AssignedTo); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE incidents SET status = $1, severity = $2, assigned_to = $3, updated_at = $4
		WHERE id = $5
	`, string(next.Status), string(next.Severity), next.AssignedTo, next.UpdatedAt, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapErr(err)
	}
	return &next, nil
}

// Delete removes the incident; comments and attachments go with it through ON DELETE CASCADE.
func (r *IncidentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM incidents WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// checkAssignee share-locks the assignee's profile for the rest of tx, so a concurrent
// demotion or deletion waits for the assignment to commit, and rejects non-assignable roles.
func checkAssignee(ctx context.Context, tx pgx.Tx, profileID uuid.UUID) error {
	var role string
	err := tx.QueryRow(ctx, `SELECT role FROM profiles WHERE id = $1 FOR SHARE`, profileID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: assignee %s does not exist", apperr.ErrInvalidAssignee, profileID)
	}
	if err != nil {
		return mapErr(err)
	}
	if !models.Role(role).Assignable() {
		return fmt.Errorf("%w: assignee has role %s", apperr.ErrInvalidAssignee, role)
	}
	return nil
}
