package provisioning

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SCIMFailure is the durable record of one failed delivery attempt,
// keyed by everything an operator needs to replay it. Created only by
// the delivery channel; deleted only by resend or discard.
type SCIMFailure struct {
	ID            int64     `json:"id"`
	API           APIKind   `json:"api"`
	Method        string    `json:"method"`
	URI           string    `json:"uri"`
	Body          string    `json:"body"`
	RemoteID      string    `json:"remote_id,omitempty"`
	ApplicationID int64     `json:"application_id"`
	CreatedAt     time.Time `json:"created_at"`

	// InstitutionID and ApplicationName are joined in on reads for
	// operator listings; they are not stored on the row.
	InstitutionID   int64  `json:"institution_id,omitempty"`
	ApplicationName string `json:"application_name,omitempty"`
}

// FailureStore persists SCIMFailure records.
type FailureStore interface {
	Create(ctx context.Context, failure *SCIMFailure) error
	Get(ctx context.Context, id int64) (*SCIMFailure, error)
	ListByInstitution(ctx context.Context, institutionID int64) ([]*SCIMFailure, error)
	ListAll(ctx context.Context) ([]*SCIMFailure, error)
	Delete(ctx context.Context, id int64) error
}

// PostgresFailureStore implements FailureStore using PostgreSQL.
type PostgresFailureStore struct {
	db *sql.DB
}

// NewPostgresFailureStore creates a new PostgresFailureStore
func NewPostgresFailureStore(db *sql.DB) *PostgresFailureStore {
	return &PostgresFailureStore{db: db}
}

// Create persists a new failure record
func (s *PostgresFailureStore) Create(ctx context.Context, failure *SCIMFailure) error {
	query := `
		INSERT INTO scim_failures (api, method, uri, body, remote_id, application_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query, failure.API, failure.Method, failure.URI,
		failure.Body, failure.RemoteID, failure.ApplicationID).
		Scan(&failure.ID, &failure.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create scim failure: %w", err)
	}
	return nil
}

const failureColumns = `
	f.id, f.api, f.method, f.uri, f.body, f.remote_id, f.application_id, f.created_at,
	a.institution_id, a.name`

func scanFailure(scanner interface{ Scan(...any) error }) (*SCIMFailure, error) {
	failure := &SCIMFailure{}
	var remoteID sql.NullString
	err := scanner.Scan(
		&failure.ID, &failure.API, &failure.Method, &failure.URI, &failure.Body,
		&remoteID, &failure.ApplicationID, &failure.CreatedAt,
		&failure.InstitutionID, &failure.ApplicationName,
	)
	if err != nil {
		return nil, err
	}
	failure.RemoteID = remoteID.String
	return failure, nil
}

// Get retrieves one failure by id
func (s *PostgresFailureStore) Get(ctx context.Context, id int64) (*SCIMFailure, error) {
	query := `
		SELECT ` + failureColumns + `
		FROM scim_failures f
		JOIN applications a ON a.id = f.application_id
		WHERE f.id = $1
	`
	failure, err := scanFailure(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scim failure not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scim failure: %w", err)
	}
	return failure, nil
}

// ListByInstitution returns an institution's failures, newest first
func (s *PostgresFailureStore) ListByInstitution(ctx context.Context, institutionID int64) ([]*SCIMFailure, error) {
	query := `
		SELECT ` + failureColumns + `
		FROM scim_failures f
		JOIN applications a ON a.id = f.application_id
		WHERE a.institution_id = $1
		ORDER BY f.created_at DESC
	`
	return s.list(ctx, query, institutionID)
}

// ListAll returns every outstanding failure, newest first
func (s *PostgresFailureStore) ListAll(ctx context.Context) ([]*SCIMFailure, error) {
	query := `
		SELECT ` + failureColumns + `
		FROM scim_failures f
		JOIN applications a ON a.id = f.application_id
		ORDER BY f.created_at DESC
	`
	return s.list(ctx, query)
}

func (s *PostgresFailureStore) list(ctx context.Context, query string, args ...any) ([]*SCIMFailure, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scim failures: %w", err)
	}
	defer rows.Close()

	var failures []*SCIMFailure
	for rows.Next() {
		failure, err := scanFailure(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scim failure: %w", err)
		}
		failures = append(failures, failure)
	}
	return failures, rows.Err()
}

// Delete removes a failure record
func (s *PostgresFailureStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scim_failures WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete scim failure: %w", err)
	}
	return nil
}
