// Package usage meters capability consumption against the credit ledger.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/commercepilot-backend/internal/store"
	"github.com/angelmondragon/commercepilot-backend/internal/subscriptions"
	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	"github.com/angelmondragon/commercepilot-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
	"github.com/angelmondragon/commercepilot-backend/pkg/metrics"
)

// Service records usage and serves the read-side aggregates.
type Service interface {
	// Record debits cost credits and bumps today's counter for capability.
	// Both writes commit together or not at all.
	Record(ctx context.Context, accountID uuid.UUID, capability enums.Capability, cost int) (*Result, error)
	Today(ctx context.Context, accountID uuid.UUID) (models.UsageMetric, error)
	// History returns one row per UTC day, oldest first, ending today.
	// Days without usage are zero-filled. days <= 0 selects the default.
	History(ctx context.Context, accountID uuid.UUID, days int) ([]models.UsageMetric, error)
	WithStore(st store.Store) Service
}

// Result is the ledger state after a recorded event.
type Result struct {
	Subscription *models.Subscription
	Today        *models.UsageMetric
}

// ServiceParams groups dependencies for usage metering.
type ServiceParams struct {
	Store   store.Store
	Ledger  subscriptions.Service
	Config  config.UsageConfig
	Metrics *metrics.LedgerMetrics
	Logger  *logger.Logger
	Clock   func() time.Time
}

type service struct {
	store   store.Store
	ledger  subscriptions.Service
	cfg     config.UsageConfig
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService constructs the metering service.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("subscription ledger is required")
	}
	cfg := params.Config
	if cfg.DefaultHistoryDays <= 0 {
		cfg.DefaultHistoryDays = 7
	}
	if cfg.MaxHistoryDays < cfg.DefaultHistoryDays {
		cfg.MaxHistoryDays = 90
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &service{
		store:   params.Store,
		ledger:  params.Ledger,
		cfg:     cfg,
		metrics: params.Metrics,
		logg:    logg,
		now:     now,
	}, nil
}

func (s *service) WithStore(st store.Store) Service {
	clone := *s
	clone.store = st
	clone.ledger = s.ledger.WithStore(st)
	return &clone
}

func (s *service) Record(ctx context.Context, accountID uuid.UUID, capability enums.Capability, cost int) (*Result, error) {
	if !capability.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown capability %q", capability))
	}
	if cost <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit cost must be positive")
	}

	day := store.Day(s.now())
	result := &Result{}
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		ledger := s.ledger.WithStore(tx)

		sub, err := ledger.GetActive(ctx, accountID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				s.metrics.UsageRejected(metrics.ReasonNoSubscription)
			}
			return err
		}

		debited, err := ledger.Debit(ctx, sub.ID, cost)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientCredits) {
				s.metrics.UsageRejected(metrics.ReasonInsufficientCredits)
				return pkgerrors.New(pkgerrors.CodeInsufficientCredits, "not enough credits for this action").
					WithDetails(map[string]any{
						"credits_required":  cost,
						"credits_remaining": sub.CreditsRemaining,
					})
			}
			return err
		}

		row, err := tx.AddUsage(ctx, accountID, day, capability, cost)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record usage")
		}
		result.Subscription = debited
		result.Today = row
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record usage")
		}
		return nil, err
	}

	s.metrics.CreditsConsumed(string(capability), cost)
	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"account_id": accountID.String(),
		"capability": string(capability),
		"cost":       cost,
	}), "usage recorded")
	return result, nil
}

func (s *service) Today(ctx context.Context, accountID uuid.UUID) (models.UsageMetric, error) {
	day := store.Day(s.now())
	row, err := s.store.GetUsage(ctx, accountID, day)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.UsageMetric{AccountID: accountID, Day: day}, nil
		}
		return models.UsageMetric{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "get usage")
	}
	return *row, nil
}

func (s *service) History(ctx context.Context, accountID uuid.UUID, days int) ([]models.UsageMetric, error) {
	if days <= 0 {
		days = s.cfg.DefaultHistoryDays
	}
	if days > s.cfg.MaxHistoryDays {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("days must be between 1 and %d", s.cfg.MaxHistoryDays))
	}

	today := s.now().UTC()
	from := today.AddDate(0, 0, -(days - 1))
	rows, err := s.store.ListUsageSince(ctx, accountID, store.Day(from))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list usage")
	}

	byDay := make(map[string]models.UsageMetric, len(rows))
	for _, row := range rows {
		byDay[row.Day] = row
	}

	out := make([]models.UsageMetric, 0, days)
	for i := 0; i < days; i++ {
		day := store.Day(from.AddDate(0, 0, i))
		row, ok := byDay[day]
		if !ok {
			row = models.UsageMetric{AccountID: accountID, Day: day}
		}
		out = append(out, row)
	}
	return out, nil
}

