// Package auth runs the register, login, logout and resolve transitions of
// the session state machine.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/commercepilot-backend/internal/store"
	"github.com/angelmondragon/commercepilot-backend/internal/subscriptions"
	"github.com/angelmondragon/commercepilot-backend/pkg/auth/session"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
	"github.com/angelmondragon/commercepilot-backend/pkg/metrics"
)

// Service defines the behavior needed by the auth controllers. Each method
// that authenticates leaves sess regenerated and saved; the caller writes
// the cookie afterwards.
type Service interface {
	Register(ctx context.Context, sess *session.Session, req RegisterRequest) (*models.Account, error)
	Login(ctx context.Context, sess *session.Session, req LoginRequest) (*models.Account, error)
	Logout(ctx context.Context, sess *session.Session) error
	// Resolve maps an authenticated session to its account. Anything short
	// of a live account is reported as Unauthorized.
	Resolve(ctx context.Context, sess *session.Session) (*models.Account, error)
}

type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
	VerifyMissing(password string)
}

type sessionManager interface {
	Establish(ctx context.Context, s *session.Session, accountID uuid.UUID) error
	Revoke(ctx context.Context, s *session.Session) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Store    store.Store
	Ledger   subscriptions.Service
	Hasher   passwordHasher
	Sessions sessionManager
	Metrics  *metrics.LedgerMetrics
	Logger   *logger.Logger
}

type service struct {
	store    store.Store
	ledger   subscriptions.Service
	hasher   passwordHasher
	sessions sessionManager
	metrics  *metrics.LedgerMetrics
	logg     *logger.Logger
}

// NewService constructs the authenticator.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Store == nil:
		return nil, fmt.Errorf("store is required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("subscription ledger is required")
	case params.Hasher == nil:
		return nil, fmt.Errorf("password hasher is required")
	case params.Sessions == nil:
		return nil, fmt.Errorf("session manager is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		store:    params.Store,
		ledger:   params.Ledger,
		hasher:   params.Hasher,
		sessions: params.Sessions,
		metrics:  params.Metrics,
		logg:     logg,
	}, nil
}

// NormalizeEmail trims surrounding whitespace. Case is preserved because
// email matching is exact.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

func (s *service) Register(ctx context.Context, sess *session.Session, req RegisterRequest) (account *models.Account, err error) {
	defer func() { s.metrics.AuthEvent("register", err == nil) }()

	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}

	// fast path only; the unique index decides races
	if _, err := s.store.GetAccountByEmail(ctx, email); err == nil {
		return nil, duplicateEmail()
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup account")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password does not meet the policy")
	}

	account = &models.Account{Email: email, PasswordHash: hash}
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.CreateAccount(ctx, account); err != nil {
			if errors.Is(err, store.ErrDuplicateEmail) {
				return duplicateEmail()
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create account")
		}
		if _, err := s.ledger.WithStore(tx).AttachDefaultPlan(ctx, account.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attach default plan")
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "register")
	}

	if err := s.establish(ctx, sess, account.ID); err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithAccountID(ctx, account.ID.String()), "account registered")
	return account, nil
}

func (s *service) Login(ctx context.Context, sess *session.Session, req LoginRequest) (account *models.Account, err error) {
	defer func() { s.metrics.AuthEvent("login", err == nil) }()

	email := NormalizeEmail(req.Email)
	account, err = s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.VerifyMissing(req.Password)
			return nil, pkgerrors.InvalidCredentials()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup account")
	}
	if !s.hasher.Verify(req.Password, account.PasswordHash) {
		return nil, pkgerrors.InvalidCredentials()
	}

	ctx = s.logg.WithAccountID(ctx, account.ID.String())

	// an account left without a plan by an interrupted registration is repaired here
	if _, repaired, repairErr := s.ledger.EnsureActive(ctx, account.ID); repairErr != nil {
		s.logg.Error(ctx, "subscription repair on login failed", repairErr)
	} else if repaired {
		s.logg.Warn(ctx, "attached missing default subscription on login")
	}

	if err := s.establish(ctx, sess, account.ID); err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "account logged in")
	return account, nil
}

func (s *service) Logout(ctx context.Context, sess *session.Session) error {
	err := s.sessions.Revoke(ctx, sess)
	s.metrics.AuthEvent("logout", err == nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "logout")
	}
	return nil
}

func (s *service) Resolve(ctx context.Context, sess *session.Session) (*models.Account, error) {
	accountID, ok := sess.AccountID()
	if !ok {
		return nil, unauthorized()
	}
	account, err := s.store.GetAccount(ctx, accountID)
	if err == nil {
		return account, nil
	}

	ctx = s.logg.WithAccountID(ctx, accountID.String())
	if errors.Is(err, store.ErrNotFound) {
		if revokeErr := s.sessions.Revoke(ctx, sess); revokeErr != nil {
			s.logg.Error(ctx, "revoke orphaned session", revokeErr)
		}
		return nil, unauthorized()
	}
	s.logg.Error(ctx, "resolve session account", err)
	return nil, unauthorized()
}

func (s *service) establish(ctx context.Context, sess *session.Session, accountID uuid.UUID) error {
	if err := s.sessions.Establish(ctx, sess, accountID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "establish session")
	}
	return nil
}

func duplicateEmail() error {
	return pkgerrors.New(pkgerrors.CodeDuplicateEmail, "an account with this email already exists")
}

func unauthorized() error {
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
}
