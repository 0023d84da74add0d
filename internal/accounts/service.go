// Package accounts manages an authenticated account's own record: reading
// it, rotating its password and deleting it with everything it owns.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/commercepilot-backend/internal/store"
	"github.com/angelmondragon/commercepilot-backend/pkg/auth/session"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

type Service interface {
	Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	// ChangePassword verifies the current password, stores the new hash,
	// voids the account's other sessions and reissues sess under a fresh id.
	ChangePassword(ctx context.Context, sess *session.Session, accountID uuid.UUID, req ChangePasswordRequest) error
	// Delete removes usage, listings, subscriptions and finally the account
	// in one transaction, then revokes sess.
	Delete(ctx context.Context, sess *session.Session, accountID uuid.UUID) error
}

type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

type sessionManager interface {
	Establish(ctx context.Context, s *session.Session, accountID uuid.UUID) error
	Revoke(ctx context.Context, s *session.Session) error
	RevokeAccount(ctx context.Context, accountID uuid.UUID) error
}

type ServiceParams struct {
	Store    store.Store
	Hasher   passwordHasher
	Sessions sessionManager
	Logger   *logger.Logger
}

type service struct {
	store    store.Store
	hasher   passwordHasher
	sessions sessionManager
	logg     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if params.Hasher == nil {
		return nil, fmt.Errorf("password hasher is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		store:    params.Store,
		hasher:   params.Hasher,
		sessions: params.Sessions,
		logg:     logg,
	}, nil
}

func (s *service) Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "get account")
	}
	return account, nil
}

func (s *service) ChangePassword(ctx context.Context, sess *session.Session, accountID uuid.UUID, req ChangePasswordRequest) error {
	account, err := s.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(req.CurrentPassword, account.PasswordHash) {
		return pkgerrors.New(pkgerrors.CodeValidation, "current password is incorrect")
	}
	if req.CurrentPassword == req.NewPassword {
		return pkgerrors.New(pkgerrors.CodeValidation, "new password must differ from the current password")
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "new password does not meet the policy")
	}
	if err := s.store.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update password")
	}

	ctx = s.logg.WithAccountID(ctx, accountID.String())
	// void sessions on other devices before reissuing this one
	if err := s.sessions.RevokeAccount(ctx, accountID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "password changed but other sessions could not be revoked")
	}
	if err := s.sessions.Establish(ctx, sess, accountID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "password changed but the session could not be reissued")
	}
	s.logg.Info(ctx, "password changed")
	return nil
}

func (s *service) Delete(ctx context.Context, sess *session.Session, accountID uuid.UUID) error {
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.GetAccount(ctx, accountID); err != nil {
			return err
		}
		if err := tx.DeleteUsageByAccount(ctx, accountID); err != nil {
			return fmt.Errorf("delete usage: %w", err)
		}
		if err := tx.DeleteProductListingsByAccount(ctx, accountID); err != nil {
			return fmt.Errorf("delete listings: %w", err)
		}
		if err := tx.DeleteSubscriptionsByAccount(ctx, accountID); err != nil {
			return fmt.Errorf("delete subscriptions: %w", err)
		}
		if err := tx.DeleteAccount(ctx, accountID); err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "account deletion failed, nothing was removed")
	}

	ctx = s.logg.WithAccountID(ctx, accountID.String())
	if err := s.sessions.Revoke(ctx, sess); err != nil {
		// the account is gone; a surviving record resolves to anonymous
		s.logg.Error(ctx, "revoke session after account deletion", err)
	}
	s.logg.Info(ctx, "account deleted")
	return nil
}
