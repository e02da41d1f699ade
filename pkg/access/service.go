package access

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresService implements the access store using PostgreSQL.
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// CreateInstitution creates a new institution
func (s *PostgresService) CreateInstitution(ctx context.Context, inst *Institution) error {
	if inst.Name == "" || inst.HomeDomain == "" {
		return fmt.Errorf("institution name and home domain are required")
	}

	query := `
		INSERT INTO institutions (name, display_name, home_domain)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, inst.Name, inst.DisplayName, inst.HomeDomain).
		Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create institution: %w", err)
	}
	return nil
}

// GetInstitution retrieves an institution by ID
func (s *PostgresService) GetInstitution(ctx context.Context, id int64) (*Institution, error) {
	query := `
		SELECT id, name, display_name, home_domain, created_at, updated_at
		FROM institutions
		WHERE id = $1
	`
	inst := &Institution{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&inst.ID, &inst.Name, &inst.DisplayName, &inst.HomeDomain,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("institution not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get institution: %w", err)
	}
	return inst, nil
}

// ListInstitutions returns all institutions ordered by name
func (s *PostgresService) ListInstitutions(ctx context.Context) ([]*Institution, error) {
	query := `
		SELECT id, name, display_name, home_domain, created_at, updated_at
		FROM institutions
		ORDER BY name ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list institutions: %w", err)
	}
	defer rows.Close()

	var institutions []*Institution
	for rows.Next() {
		inst := &Institution{}
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.DisplayName, &inst.HomeDomain,
			&inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan institution: %w", err)
		}
		institutions = append(institutions, inst)
	}
	return institutions, rows.Err()
}
