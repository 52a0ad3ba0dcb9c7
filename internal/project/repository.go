package project

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context) ([]Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, title, description, repo_url, created_at, updated_at
		FROM projects
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.RepoURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	return projects, nil
}

func (r *Repository) Create(ctx context.Context, ownerID string, input ProjectInput) (Project, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Project{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	p := Project{
		ID:          id.String(),
		OwnerID:     ownerID,
		Title:       input.Title,
		Description: input.Description,
		RepoURL:     input.RepoURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO projects (id, owner_id, title, description, repo_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.OwnerID, p.Title, p.Description, p.RepoURL, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}

	return p, nil
}

func (r *Repository) Update(ctx context.Context, id string, input ProjectInput) (Project, error) {
	var p Project
	p.UpdatedAt = time.Now().UTC()

	err := r.db.QueryRowContext(ctx, `
		UPDATE projects
		SET title = $2, description = $3, repo_url = $4, updated_at = $5
		WHERE id = $1
		RETURNING id, owner_id, title, description, repo_url, created_at, updated_at
	`, id, input.Title, input.Description, input.RepoURL, p.UpdatedAt).
		Scan(&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.RepoURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Project{}, err
		}
		return Project{}, fmt.Errorf("update project: %w", err)
	}

	return p, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}
