package access

import (
	"context"
	"database/sql"
	"fmt"
)

const applicationColumns = `
	a.id, a.institution_id, a.name, a.display_name, a.provisioning_mode, a.update_mode,
	a.endpoint_url, a.endpoint_username, a.endpoint_password, a.email_hook_address,
	a.created_at, a.updated_at,
	i.id, i.name, i.display_name, i.home_domain, i.created_at, i.updated_at`

func scanApplication(scanner interface{ Scan(...any) error }) (*Application, error) {
	app := &Application{Institution: &Institution{}}
	var endpointURL, endpointUsername, endpointPassword, emailHook sql.NullString
	err := scanner.Scan(
		&app.ID, &app.InstitutionID, &app.Name, &app.DisplayName, &app.Mode, &app.UpdateMode,
		&endpointURL, &endpointUsername, &endpointPassword, &emailHook,
		&app.CreatedAt, &app.UpdatedAt,
		&app.Institution.ID, &app.Institution.Name, &app.Institution.DisplayName,
		&app.Institution.HomeDomain, &app.Institution.CreatedAt, &app.Institution.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	app.EndpointURL = endpointURL.String
	app.EndpointUsername = endpointUsername.String
	app.EndpointPassword = endpointPassword.String
	app.EmailHookAddress = emailHook.String
	return app, nil
}

// CreateApplication creates a new application after validating its
// provisioning configuration.
func (s *PostgresService) CreateApplication(ctx context.Context, app *Application) error {
	if err := app.Validate(); err != nil {
		return err
	}
	if app.UpdateMode == "" {
		app.UpdateMode = UpdateFullReplace
	}

	query := `
		INSERT INTO applications (institution_id, name, display_name, provisioning_mode, update_mode,
		                          endpoint_url, endpoint_username, endpoint_password, email_hook_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, app.InstitutionID, app.Name, app.DisplayName,
		app.Mode, app.UpdateMode, app.EndpointURL, app.EndpointUsername,
		app.EndpointPassword, app.EmailHookAddress).
		Scan(&app.ID, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// UpdateApplication updates an application's configuration after
// re-validating it.
func (s *PostgresService) UpdateApplication(ctx context.Context, app *Application) error {
	if err := app.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE applications
		SET display_name = $2, provisioning_mode = $3, update_mode = $4, endpoint_url = $5,
		    endpoint_username = $6, endpoint_password = $7, email_hook_address = $8,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query, app.ID, app.DisplayName, app.Mode, app.UpdateMode,
		app.EndpointURL, app.EndpointUsername, app.EndpointPassword, app.EmailHookAddress).
		Scan(&app.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("application not found")
	}
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}
	return nil
}

// ApplicationByID retrieves an application with its institution joined
func (s *PostgresService) ApplicationByID(ctx context.Context, id int64) (*Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications a
		JOIN institutions i ON i.id = a.institution_id
		WHERE a.id = $1
	`
	app, err := scanApplication(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("application not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return app, nil
}

// ListApplicationsByInstitution returns an institution's applications
func (s *PostgresService) ListApplicationsByInstitution(ctx context.Context, institutionID int64) ([]*Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications a
		JOIN institutions i ON i.id = a.institution_id
		WHERE a.institution_id = $1
		ORDER BY a.name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, institutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []*Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}
