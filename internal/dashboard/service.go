// Package dashboard assembles the account overview shown on the dashboard
// home: plan, balance, today's usage and a usage series.
package dashboard

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/commercepilot-backend/internal/plans"
	"github.com/angelmondragon/commercepilot-backend/internal/subscriptions"
	"github.com/angelmondragon/commercepilot-backend/internal/usage"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

type Service interface {
	Metrics(ctx context.Context, accountID uuid.UUID, days int) (*Metrics, error)
}

// Metrics is the aggregate. Plan and Subscription are nil for an account
// that currently has no active subscription.
type Metrics struct {
	Plan         *models.Plan
	Subscription *models.Subscription
	Today        models.UsageMetric
	History      []models.UsageMetric
}

type ServiceParams struct {
	Plans  plans.Service
	Ledger subscriptions.Service
	Usage  usage.Service
	Logger *logger.Logger
}

type service struct {
	plans  plans.Service
	ledger subscriptions.Service
	usage  usage.Service
	logg   *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Plans == nil || params.Ledger == nil || params.Usage == nil {
		return nil, fmt.Errorf("plans, ledger and usage services are required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{plans: params.Plans, ledger: params.Ledger, usage: params.Usage, logg: logg}, nil
}

func (s *service) Metrics(ctx context.Context, accountID uuid.UUID, days int) (*Metrics, error) {
	out := &Metrics{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sub, err := s.ledger.GetActive(gctx, accountID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				s.logg.Warn(s.logg.WithAccountID(gctx, accountID.String()), "dashboard requested without an active subscription")
				return nil
			}
			return err
		}
		plan, err := s.plans.Get(gctx, sub.PlanID)
		if err != nil {
			return err
		}
		out.Subscription = sub
		out.Plan = plan
		return nil
	})
	g.Go(func() error {
		today, err := s.usage.Today(gctx, accountID)
		if err != nil {
			return err
		}
		out.Today = today
		return nil
	})
	g.Go(func() error {
		history, err := s.usage.History(gctx, accountID, days)
		if err != nil {
			return err
		}
		out.History = history
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
