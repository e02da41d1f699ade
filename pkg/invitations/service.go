package invitations

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fedid/guestsync/pkg/access"
	"github.com/fedid/guestsync/pkg/mail"
	"github.com/fedid/guestsync/pkg/scim"
)

// Store persists invitations. *PostgresStore satisfies it.
type Store interface {
	Create(ctx context.Context, inv *Invitation) error
	GetByToken(ctx context.Context, token string) (*Invitation, error)
	MarkStatus(ctx context.Context, id int64, status Status) error
	ListByInstitution(ctx context.Context, institutionID int64) ([]*Invitation, error)
}

// Directory is the slice of the access store the invitation flow needs.
// *access.PostgresService satisfies it.
type Directory interface {
	FindUserByPrincipalName(ctx context.Context, principalName string) (*access.User, error)
	CreateUser(ctx context.Context, user *access.User) error
	GrantRole(ctx context.Context, userRole *access.UserRole) error
	UserWithRoles(ctx context.Context, id int64) (*access.User, error)
}

// Synchronizer is the provisioning surface accept drives.
// *provisioning.Synchronizer satisfies it.
type Synchronizer interface {
	NewUserRequest(ctx context.Context, user *access.User) error
	UpdateRoleRequest(ctx context.Context, userRole *access.UserRole, op scim.PatchOperationType, excluded []*access.UserRole) error
}

// Service drives the invitation lifecycle.
type Service struct {
	store     Store
	directory Directory
	sync      Synchronizer
	sender    mail.Sender
	baseURL   string
	log       *logrus.Entry
}

// NewService creates a new Service. baseURL is the public URL used in
// invitation mails.
func NewService(store Store, directory Directory, sync Synchronizer, sender mail.Sender, baseURL string, log *logrus.Entry) *Service {
	return &Service{store: store, directory: directory, sync: sync, sender: sender, baseURL: baseURL, log: log}
}

// Invite issues an invitation and mails the guest their accept link.
func (s *Service) Invite(ctx context.Context, inv *Invitation) error {
	if err := s.store.Create(ctx, inv); err != nil {
		return err
	}

	body := fmt.Sprintf("You have been invited to guest access.\n\nAccept: %s/invitations/%s/accept\n\nThis invitation expires on %s.\n",
		s.baseURL, inv.Token, inv.ExpiresAt.Format("2006-01-02"))
	if inv.Message != "" {
		body += "\n" + inv.Message + "\n"
	}
	msg := mail.Message{
		To:      []string{inv.Email},
		Subject: "You have been invited",
		Body:    body,
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("invitation stored but mail failed: %w", err)
	}
	return nil
}

// Accept redeems an invitation: the guest's user record is created or
// reused, every invited role is granted, and the new memberships are
// pushed through the synchronizer: one account provisioning per
// application followed by a membership add per role.
func (s *Service) Accept(ctx context.Context, token string, req AcceptRequest) (*access.User, error) {
	inv, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusPending {
		return nil, fmt.Errorf("invitation is %s", inv.Status)
	}
	if time.Now().After(inv.ExpiresAt) {
		if err := s.store.MarkStatus(ctx, inv.ID, StatusExpired); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("invitation has expired")
	}
	if req.PrincipalName == "" {
		return nil, fmt.Errorf("accepting requires a principal name")
	}

	user, err := s.directory.FindUserByPrincipalName(ctx, req.PrincipalName)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &access.User{
			PrincipalName: req.PrincipalName,
			Email:         req.Email,
			GivenName:     req.GivenName,
			FamilyName:    req.FamilyName,
		}
		if user.Email == "" {
			user.Email = inv.Email
		}
		if err := s.directory.CreateUser(ctx, user); err != nil {
			return nil, err
		}
	}

	held := make(map[int64]bool)
	for _, ur := range user.Roles {
		held[ur.RoleID] = true
	}
	granted := make(map[int64]bool)
	for _, roleID := range inv.RoleIDs {
		if held[roleID] {
			continue
		}
		if err := s.directory.GrantRole(ctx, &access.UserRole{UserID: user.ID, RoleID: roleID}); err != nil {
			return nil, err
		}
		granted[roleID] = true
	}

	if err := s.store.MarkStatus(ctx, inv.ID, StatusAccepted); err != nil {
		return nil, err
	}

	// Reload with the fresh memberships joined before provisioning.
	user, err = s.directory.UserWithRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.sync.NewUserRequest(ctx, user); err != nil {
		return nil, err
	}
	for _, ur := range user.Roles {
		if !granted[ur.RoleID] {
			continue
		}
		if err := s.sync.UpdateRoleRequest(ctx, ur, scim.PatchAdd, nil); err != nil {
			return nil, err
		}
	}

	s.log.WithFields(logrus.Fields{
		"invitation": inv.ID,
		"user":       user.PrincipalName,
		"roles":      len(granted),
	}).Info("invitation accepted")
	return user, nil
}

// Decline marks a pending invitation declined.
func (s *Service) Decline(ctx context.Context, token string) error {
	inv, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	if inv.Status != StatusPending {
		return fmt.Errorf("invitation is %s", inv.Status)
	}
	return s.store.MarkStatus(ctx, inv.ID, StatusDeclined)
}
