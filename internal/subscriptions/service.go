// Package subscriptions is the credit ledger: it binds each account to at
// most one active plan and owns every balance mutation.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/commercepilot-backend/internal/plans"
	"github.com/angelmondragon/commercepilot-backend/internal/store"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

// Service defines the ledger surface.
type Service interface {
	// AttachDefaultPlan creates the initial subscription for a new account.
	AttachDefaultPlan(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error)
	// EnsureActive returns the active subscription, attaching the default
	// plan when the account has none. repaired is true in that case.
	EnsureActive(ctx context.Context, accountID uuid.UUID) (sub *models.Subscription, repaired bool, err error)
	GetActive(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error)
	Update(ctx context.Context, id uuid.UUID, patch store.SubscriptionPatch) (*models.Subscription, error)
	// Debit atomically decrements the balance. Unlimited subscriptions are
	// returned unchanged.
	Debit(ctx context.Context, subscriptionID uuid.UUID, amount int) (*models.Subscription, error)
	// ChangePlan deactivates the current subscription and starts a new one
	// on planID in a single transaction.
	ChangePlan(ctx context.Context, accountID, planID uuid.UUID) (*models.Subscription, error)
	// WithStore returns a ledger bound to st, typically a transaction.
	WithStore(st store.Store) Service
}

// ServiceParams groups dependencies for the ledger.
type ServiceParams struct {
	Store  store.Store
	Plans  plans.Service
	Logger *logger.Logger
	Clock  func() time.Time
}

type service struct {
	store store.Store
	plans plans.Service
	logg  *logger.Logger
	now   func() time.Time
}

// NewService constructs the ledger.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan catalog is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &service{store: params.Store, plans: params.Plans, logg: logg, now: now}, nil
}

func (s *service) WithStore(st store.Store) Service {
	clone := *s
	clone.store = st
	clone.plans = s.plans.WithStore(st)
	return &clone
}

// newSubscription builds an active subscription seeded with the plan allotment.
// A nil allotment means unlimited: no numeric total and a balance that is
// never decremented.
func newSubscription(accountID uuid.UUID, plan *models.Plan, startedAt time.Time) *models.Subscription {
	sub := &models.Subscription{
		AccountID: accountID,
		PlanID:    plan.ID,
		Active:    true,
		StartedAt: startedAt,
	}
	if plan.ProductCredits != nil {
		total := *plan.ProductCredits
		sub.CreditsTotal = &total
		sub.CreditsRemaining = store.ClampCredits(total)
	}
	return sub
}

func (s *service) AttachDefaultPlan(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error) {
	plan, err := s.plans.Default(ctx)
	if err != nil {
		return nil, err
	}
	sub := newSubscription(accountID, plan, s.now().UTC())
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, mapStoreError(err, "attach default plan")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"account_id": accountID.String(),
		"plan":       plan.Name,
	}), "default plan attached")
	return sub, nil
}

func (s *service) EnsureActive(ctx context.Context, accountID uuid.UUID) (*models.Subscription, bool, error) {
	sub, err := s.store.GetActiveSubscription(ctx, accountID)
	if err == nil {
		return sub, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, mapStoreError(err, "get active subscription")
	}

	sub, err = s.AttachDefaultPlan(ctx, accountID)
	if err != nil {
		// lost a race with a concurrent repair; the winner's row is what we want
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			sub, err = s.GetActive(ctx, accountID)
			return sub, false, err
		}
		return nil, false, err
	}
	return sub, true, nil
}

func (s *service) GetActive(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.store.GetActiveSubscription(ctx, accountID)
	if err != nil {
		return nil, mapStoreError(err, "get active subscription")
	}
	return sub, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, patch store.SubscriptionPatch) (*models.Subscription, error) {
	sub, err := s.store.UpdateSubscription(ctx, id, patch)
	if err != nil {
		return nil, mapStoreError(err, "update subscription")
	}
	return sub, nil
}

func (s *service) Debit(ctx context.Context, subscriptionID uuid.UUID, amount int) (*models.Subscription, error) {
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit cost must be positive")
	}
	sub, err := s.store.DebitCredits(ctx, subscriptionID, amount)
	if err != nil {
		return nil, mapStoreError(err, "debit credits")
	}
	return sub, nil
}

func (s *service) ChangePlan(ctx context.Context, accountID, planID uuid.UUID) (*models.Subscription, error) {
	plan, err := s.plans.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.ContactSales {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "this plan is available through sales only")
	}

	var created *models.Subscription
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		current, err := tx.GetActiveSubscription(ctx, accountID)
		switch {
		case err == nil && current.PlanID == plan.ID:
			return pkgerrors.New(pkgerrors.CodeConflict, "account is already on this plan")
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return mapStoreError(err, "get active subscription")
		}

		now := s.now().UTC()
		if err := tx.DeactivateSubscriptions(ctx, accountID, now); err != nil {
			return mapStoreError(err, "deactivate subscription")
		}
		created = newSubscription(accountID, plan, now)
		if err := tx.CreateSubscription(ctx, created); err != nil {
			return mapStoreError(err, "create subscription")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"account_id": accountID.String(),
		"plan":       plan.Name,
	}), "subscription plan changed")
	return created, nil
}

func mapStoreError(err error, op string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "no active subscription")
	case errors.Is(err, store.ErrInsufficientCredits):
		return pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient credits")
	case errors.Is(err, store.ErrActiveSubscriptionExists):
		return pkgerrors.New(pkgerrors.CodeConflict, "account already has an active subscription")
	case errors.Is(err, store.ErrInvalidAmount):
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid credit amount")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
	}
}
