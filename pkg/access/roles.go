package access

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const roleColumns = `
	r.id, r.application_id, r.name, r.description, r.remote_group_id, r.created_at, r.updated_at`

func scanRole(scanner interface{ Scan(...any) error }, dest []any) (*Role, error) {
	role := &Role{}
	var description, remoteGroupID sql.NullString
	fields := []any{
		&role.ID, &role.ApplicationID, &role.Name, &description, &remoteGroupID,
		&role.CreatedAt, &role.UpdatedAt,
	}
	if err := scanner.Scan(append(fields, dest...)...); err != nil {
		return nil, err
	}
	role.Description = description.String
	role.RemoteGroupID = remoteGroupID.String
	return role, nil
}

// CreateRole creates a new role. Role names are unique per application,
// case-insensitively.
func (s *PostgresService) CreateRole(ctx context.Context, role *Role) error {
	if strings.TrimSpace(role.Name) == "" {
		return fmt.Errorf("role name is required")
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM roles WHERE application_id = $1 AND LOWER(name) = LOWER($2))`,
		role.ApplicationID, role.Name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check role name: %w", err)
	}
	if exists {
		return fmt.Errorf("role %q already exists for this application", role.Name)
	}

	query := `
		INSERT INTO roles (application_id, name, description, remote_group_id)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query, role.ApplicationID, role.Name, role.Description,
		role.RemoteGroupID).
		Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// RoleByID retrieves a role with its application and institution joined
func (s *PostgresService) RoleByID(ctx context.Context, id int64) (*Role, error) {
	query := `
		SELECT ` + roleColumns + `, ` + applicationColumns + `
		FROM roles r
		JOIN applications a ON a.id = r.application_id
		JOIN institutions i ON i.id = a.institution_id
		WHERE r.id = $1
	`
	return s.queryRole(ctx, query, id)
}

// RoleByName resolves a role from the URN segments: institution home
// domain, application name and role name, all matched
// case-insensitively.
func (s *PostgresService) RoleByName(ctx context.Context, institutionDomain, applicationName, roleName string) (*Role, error) {
	query := `
		SELECT ` + roleColumns + `, ` + applicationColumns + `
		FROM roles r
		JOIN applications a ON a.id = r.application_id
		JOIN institutions i ON i.id = a.institution_id
		WHERE LOWER(i.home_domain) = LOWER($1)
		  AND LOWER(a.name) = LOWER($2)
		  AND LOWER(r.name) = LOWER($3)
	`
	return s.queryRole(ctx, query, institutionDomain, applicationName, roleName)
}

func (s *PostgresService) queryRole(ctx context.Context, query string, args ...any) (*Role, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	app := &Application{Institution: &Institution{}}
	var endpointURL, endpointUsername, endpointPassword, emailHook sql.NullString
	role, err := scanRole(row, []any{
		&app.ID, &app.InstitutionID, &app.Name, &app.DisplayName, &app.Mode, &app.UpdateMode,
		&endpointURL, &endpointUsername, &endpointPassword, &emailHook,
		&app.CreatedAt, &app.UpdatedAt,
		&app.Institution.ID, &app.Institution.Name, &app.Institution.DisplayName,
		&app.Institution.HomeDomain, &app.Institution.CreatedAt, &app.Institution.UpdatedAt,
	})
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	app.EndpointURL = endpointURL.String
	app.EndpointUsername = endpointUsername.String
	app.EndpointPassword = endpointPassword.String
	app.EmailHookAddress = emailHook.String
	role.Application = app
	return role, nil
}

// ListRolesByApplication returns an application's roles
func (s *PostgresService) ListRolesByApplication(ctx context.Context, applicationID int64) ([]*Role, error) {
	query := `
		SELECT ` + roleColumns + `
		FROM roles r
		WHERE r.application_id = $1
		ORDER BY r.name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// SetRemoteGroupID records the service provider's identifier for a
// role's remote group. The identifier is assigned once; a role that
// already carries one keeps it.
func (s *PostgresService) SetRemoteGroupID(ctx context.Context, roleID int64, remoteID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE roles SET remote_group_id = $2, updated_at = NOW() WHERE id = $1 AND remote_group_id IS NULL`,
		roleID, remoteID)
	if err != nil {
		return fmt.Errorf("failed to set remote group id: %w", err)
	}
	if _, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to set remote group id: %w", err)
	}
	return nil
}

// DeleteRole removes a role and its memberships
func (s *PostgresService) DeleteRole(ctx context.Context, roleID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_roles WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete role memberships: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return nil
}
