package database

import (
	"context"
	"fmt"

	"github.com/shadowsight/shadowsight/internal/model"
)

// UpsertRecruiter inserts or updates a recruiter profile (dedup by ID)
func (db *DB) UpsertRecruiter(ctx context.Context, r *model.Recruiter) error {
	query := `
		INSERT INTO recruiters (id, email, org_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id)
		DO UPDATE SET
			email = EXCLUDED.email,
			org_name = EXCLUDED.org_name
		RETURNING created_at
	`

	err := db.pool.QueryRow(ctx, query, r.ID, r.Email, r.OrgName).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert recruiter: %w", err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return nil
}

// GetRecruiter retrieves a recruiter profile by ID
func (db *DB) GetRecruiter(ctx context.Context, id string) (*model.Recruiter, error) {
	query := `SELECT id, email, org_name, created_at FROM recruiters WHERE id = $1`

	r := &model.Recruiter{}
	err := db.pool.QueryRow(ctx, query, id).Scan(&r.ID, &r.Email, &r.OrgName, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get recruiter: %w", notFound(err))
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}
