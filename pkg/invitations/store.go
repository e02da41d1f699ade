package invitations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/fedid/guestsync/pkg/authority"
)

// PostgresStore persists invitations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create persists a new pending invitation, assigning it a fresh token
// and an expiry.
func (s *PostgresStore) Create(ctx context.Context, inv *Invitation) error {
	if inv.Email == "" || len(inv.RoleIDs) == 0 {
		return fmt.Errorf("invitation requires an email and at least one role")
	}
	if inv.Token == "" {
		inv.Token = uuid.NewString()
	}
	if inv.ExpiresAt.IsZero() {
		inv.ExpiresAt = time.Now().AddDate(0, 0, 14)
	}
	inv.Status = StatusPending

	query := `
		INSERT INTO invitations (institution_id, email, role_ids, intended_level, token, message, status, invited_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query, inv.InstitutionID, inv.Email, pq.Array(inv.RoleIDs),
		inv.IntendedLevel.String(), inv.Token, inv.Message, inv.Status, inv.InvitedBy, inv.ExpiresAt).
		Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// GetByToken retrieves an invitation by its token
func (s *PostgresStore) GetByToken(ctx context.Context, token string) (*Invitation, error) {
	query := `
		SELECT id, institution_id, email, role_ids, intended_level, token, message, status, invited_by, created_at, expires_at, accepted_at
		FROM invitations
		WHERE token = $1
	`
	inv := &Invitation{}
	var roleIDs pq.Int64Array
	var levelName string
	var acceptedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&inv.ID, &inv.InstitutionID, &inv.Email, &roleIDs, &levelName, &inv.Token,
		&inv.Message, &inv.Status, &inv.InvitedBy, &inv.CreatedAt, &inv.ExpiresAt, &acceptedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invitation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	inv.RoleIDs = roleIDs
	level, err := authority.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	inv.IntendedLevel = level
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	return inv, nil
}

// MarkStatus transitions an invitation's status. Accepted transitions
// also record the acceptance time.
func (s *PostgresStore) MarkStatus(ctx context.Context, id int64, status Status) error {
	var err error
	if status == StatusAccepted {
		_, err = s.db.ExecContext(ctx,
			`UPDATE invitations SET status = $2, accepted_at = NOW() WHERE id = $1`, id, status)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE invitations SET status = $2 WHERE id = $1`, id, status)
	}
	if err != nil {
		return fmt.Errorf("failed to update invitation status: %w", err)
	}
	return nil
}

// ListByInstitution returns an institution's invitations, newest first
func (s *PostgresStore) ListByInstitution(ctx context.Context, institutionID int64) ([]*Invitation, error) {
	query := `
		SELECT id, institution_id, email, role_ids, intended_level, token, message, status, invited_by, created_at, expires_at, accepted_at
		FROM invitations
		WHERE institution_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, institutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv := &Invitation{}
		var roleIDs pq.Int64Array
		var levelName string
		var acceptedAt sql.NullTime
		if err := rows.Scan(&inv.ID, &inv.InstitutionID, &inv.Email, &roleIDs, &levelName,
			&inv.Token, &inv.Message, &inv.Status, &inv.InvitedBy, &inv.CreatedAt,
			&inv.ExpiresAt, &acceptedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		inv.RoleIDs = roleIDs
		level, err := authority.ParseLevel(levelName)
		if err != nil {
			return nil, err
		}
		inv.IntendedLevel = level
		if acceptedAt.Valid {
			inv.AcceptedAt = &acceptedAt.Time
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}
