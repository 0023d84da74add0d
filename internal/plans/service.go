// Package plans serves the read-mostly plan catalog and its one-time seed.
package plans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/angelmondragon/commercepilot-backend/internal/store"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

const (
	defaultCacheTTL = 5 * time.Minute
	catalogCacheKey = "catalog"
)

// Service exposes the plan catalog.
type Service interface {
	List(ctx context.Context) ([]models.Plan, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	// Default returns the plan named "basic", or the first by sort order.
	Default(ctx context.Context) (*models.Plan, error)
	// Seed inserts the canonical catalog when no plans exist. It reports
	// whether this call inserted the rows.
	Seed(ctx context.Context) (bool, error)
	// WithStore returns a catalog reading through st, typically a
	// transaction. The read cache is shared.
	WithStore(st store.PlanStore) Service
}

// Lock guards seeding across instances. cron.RedisLock satisfies it.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// ServiceParams bundles the dependencies of the catalog.
type ServiceParams struct {
	Store    store.PlanStore
	Logger   *logger.Logger
	SeedLock Lock
	CacheTTL time.Duration
}

type service struct {
	store    store.PlanStore
	logg     *logger.Logger
	seedLock Lock
	cache    *cache.Cache
}

// NewService constructs the catalog.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("plan store is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &service{
		store:    params.Store,
		logg:     logg,
		seedLock: params.SeedLock,
		cache:    cache.New(ttl, 2*ttl),
	}, nil
}

func (s *service) WithStore(st store.PlanStore) Service {
	clone := *s
	clone.store = st
	return &clone
}

func (s *service) List(ctx context.Context) ([]models.Plan, error) {
	if cached, ok := s.cache.Get(catalogCacheKey); ok {
		return copyPlans(cached.([]models.Plan)), nil
	}
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list plans")
	}
	if len(plans) > 0 {
		s.cache.SetDefault(catalogCacheKey, copyPlans(plans))
	}
	return plans, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	plan, err := s.store.GetPlan(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "get plan")
	}
	return plan, nil
}

func (s *service) Default(ctx context.Context) (*models.Plan, error) {
	plans, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no plans available")
	}
	for i := range plans {
		if plans[i].Name == DefaultPlanName {
			return &plans[i], nil
		}
	}
	// List is ordered by sort order, so the first row is the fallback.
	return &plans[0], nil
}

func (s *service) Seed(ctx context.Context) (bool, error) {
	if s.seedLock != nil {
		acquired, err := s.seedLock.Acquire(ctx)
		switch {
		case err != nil:
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "plan seed lock unavailable; relying on empty-table check")
		case !acquired:
			s.logg.Info(ctx, "plan seed running elsewhere; skipping")
			return false, nil
		default:
			defer func() {
				if relErr := s.seedLock.Release(ctx); relErr != nil {
					s.logg.Error(ctx, "release plan seed lock", relErr)
				}
			}()
		}
	}

	count, err := s.store.CountPlans(ctx)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count plans")
	}
	if count > 0 {
		return false, nil
	}

	if err := s.store.CreatePlans(ctx, Canonical()); err != nil {
		if errors.Is(err, store.ErrDuplicatePlan) {
			s.logg.Warn(ctx, "plans seeded concurrently by another instance")
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seed plans")
	}
	s.cache.Flush()
	s.logg.Info(s.logg.WithField(ctx, "plans", len(Canonical())), "plan catalog seeded")
	return true, nil
}

func copyPlans(in []models.Plan) []models.Plan {
	out := make([]models.Plan, len(in))
	copy(out, in)
	return out
}
