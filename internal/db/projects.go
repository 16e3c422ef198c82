package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/planwise/plancheck/internal/types"
)

// CreateProject creates a new project.
func (db *DB) CreateProject(ctx context.Context, name, description string) (*types.Project, error) {
	var p types.Project
	err := db.pool.QueryRow(ctx,
		`INSERT INTO projects (name, description)
		 VALUES ($1, $2)
		 RETURNING id, name, COALESCE(description, ''), created_at, updated_at`,
		name, description,
	).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return &p, nil
}

// GetProject retrieves a project by ID. Returns nil if not found.
func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (*types.Project, error) {
	var p types.Project
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(description, ''), created_at, updated_at
		 FROM projects WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// GetProjectSettings retrieves settings for a project. Returns zero-valued
// settings (not nil) when no row exists yet.
func (db *DB) GetProjectSettings(ctx context.Context, projectID uuid.UUID) (*types.ProjectSettings, error) {
	s := types.ProjectSettings{ProjectID: projectID}
	err := db.pool.QueryRow(ctx,
		`SELECT COALESCE(compliance_model, ''), total_input_tokens, total_output_tokens
		 FROM project_settings WHERE project_id = $1`,
		projectID,
	).Scan(&s.ComplianceModel, &s.TotalUsage.InputTokens, &s.TotalUsage.OutputTokens)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &s, nil
		}
		return nil, fmt.Errorf("failed to get project settings: %w", err)
	}
	return &s, nil
}

// AddProjectUsage adds token usage onto the project's running totals.
// The increment is a single atomic statement, never read-modify-write.
func (db *DB) AddProjectUsage(ctx context.Context, projectID uuid.UUID, usage types.Usage) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO project_settings (project_id, total_input_tokens, total_output_tokens)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (project_id) DO UPDATE SET
		   total_input_tokens = project_settings.total_input_tokens + EXCLUDED.total_input_tokens,
		   total_output_tokens = project_settings.total_output_tokens + EXCLUDED.total_output_tokens`,
		projectID, usage.InputTokens, usage.OutputTokens,
	)
	if err != nil {
		return fmt.Errorf("failed to add project usage: %w", err)
	}
	return nil
}
