package access

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// CreateUser creates a new user
func (s *PostgresService) CreateUser(ctx context.Context, user *User) error {
	if user.PrincipalName == "" || user.Email == "" {
		return fmt.Errorf("user principal name and email are required")
	}

	query := `
		INSERT INTO users (principal_name, email, given_name, family_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, user.PrincipalName, user.Email,
		user.GivenName, user.FamilyName).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UserWithRoles retrieves a user by ID with all role memberships
// loaded, including each role's application and institution.
func (s *PostgresService) UserWithRoles(ctx context.Context, id int64) (*User, error) {
	return s.loadUser(ctx, `u.id = $1`, id)
}

// UserByPrincipalName retrieves a user by stable login identifier with
// all role memberships loaded.
func (s *PostgresService) UserByPrincipalName(ctx context.Context, principalName string) (*User, error) {
	return s.loadUser(ctx, `LOWER(u.principal_name) = LOWER($1)`, principalName)
}

// FindUserByPrincipalName is UserByPrincipalName without the not-found
// error: a missing user returns (nil, nil).
func (s *PostgresService) FindUserByPrincipalName(ctx context.Context, principalName string) (*User, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(principal_name) = LOWER($1))`,
		principalName).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !exists {
		return nil, nil
	}
	return s.UserByPrincipalName(ctx, principalName)
}

func (s *PostgresService) loadUser(ctx context.Context, where string, arg any) (*User, error) {
	query := `
		SELECT u.id, u.principal_name, u.email, u.given_name, u.family_name, u.created_at, u.updated_at
		FROM users u
		WHERE ` + where
	user := &User{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.PrincipalName, &user.Email, &user.GivenName, &user.FamilyName,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	roles, err := s.membershipsWhere(ctx, `ur.user_id = $1`, user.ID)
	if err != nil {
		return nil, err
	}
	for _, ur := range roles {
		ur.User = user
	}
	user.Roles = roles
	return user, nil
}

// RoleMemberships returns every membership on a role, with users joined.
// Used by the synchronizer to compute full-replace group bodies.
func (s *PostgresService) RoleMemberships(ctx context.Context, roleID int64) ([]*UserRole, error) {
	memberships, err := s.membershipsWhere(ctx, `ur.role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	for _, ur := range memberships {
		user := &User{}
		err := s.db.QueryRowContext(ctx,
			`SELECT id, principal_name, email, given_name, family_name, created_at, updated_at FROM users WHERE id = $1`,
			ur.UserID).Scan(&user.ID, &user.PrincipalName, &user.Email, &user.GivenName,
			&user.FamilyName, &user.CreatedAt, &user.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to load membership user: %w", err)
		}
		ur.User = user
	}
	return memberships, nil
}

func (s *PostgresService) membershipsWhere(ctx context.Context, where string, arg any) ([]*UserRole, error) {
	query := `
		SELECT ur.id, ur.user_id, ur.role_id, ur.remote_member_id, ur.created_at,
		       ` + roleColumns + `, ` + applicationColumns + `
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		JOIN applications a ON a.id = r.application_id
		JOIN institutions i ON i.id = a.institution_id
		WHERE ` + where + `
		ORDER BY ur.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*UserRole
	for rows.Next() {
		ur := &UserRole{}
		role := &Role{}
		app := &Application{Institution: &Institution{}}
		var remoteMemberID, description, remoteGroupID sql.NullString
		var endpointURL, endpointUsername, endpointPassword, emailHook sql.NullString
		err := rows.Scan(
			&ur.ID, &ur.UserID, &ur.RoleID, &remoteMemberID, &ur.CreatedAt,
			&role.ID, &role.ApplicationID, &role.Name, &description, &remoteGroupID,
			&role.CreatedAt, &role.UpdatedAt,
			&app.ID, &app.InstitutionID, &app.Name, &app.DisplayName, &app.Mode, &app.UpdateMode,
			&endpointURL, &endpointUsername, &endpointPassword, &emailHook,
			&app.CreatedAt, &app.UpdatedAt,
			&app.Institution.ID, &app.Institution.Name, &app.Institution.DisplayName,
			&app.Institution.HomeDomain, &app.Institution.CreatedAt, &app.Institution.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		ur.RemoteMemberID = remoteMemberID.String
		role.Description = description.String
		role.RemoteGroupID = remoteGroupID.String
		app.EndpointURL = endpointURL.String
		app.EndpointUsername = endpointUsername.String
		app.EndpointPassword = endpointPassword.String
		app.EmailHookAddress = emailHook.String
		role.Application = app
		ur.Role = role
		memberships = append(memberships, ur)
	}
	return memberships, rows.Err()
}

// GrantRole creates a membership of a user on a role
func (s *PostgresService) GrantRole(ctx context.Context, userRole *UserRole) error {
	query := `
		INSERT INTO user_roles (user_id, role_id, remote_member_id)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query, userRole.UserID, userRole.RoleID, userRole.RemoteMemberID).
		Scan(&userRole.ID, &userRole.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// RevokeRole removes a membership
func (s *PostgresService) RevokeRole(ctx context.Context, userRoleID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_roles WHERE id = $1`, userRoleID); err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}

// SetRemoteMemberID records the service provider's identifier for a set
// of memberships in one statement, keeping the one-account-per-user-
// per-application invariant in a single place.
func (s *PostgresService) SetRemoteMemberID(ctx context.Context, userRoleIDs []int64, remoteID string) error {
	if len(userRoleIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_roles SET remote_member_id = $2 WHERE id = ANY($1)`,
		pq.Array(userRoleIDs), remoteID)
	if err != nil {
		return fmt.Errorf("failed to set remote member id: %w", err)
	}
	return nil
}

// DeleteUser removes a user and all memberships
func (s *PostgresService) DeleteUser(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user memberships: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}
