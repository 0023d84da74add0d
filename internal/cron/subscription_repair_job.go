package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

const (
	subscriptionRepairJobName = "subscription-repair"
	defaultRepairBatchSize    = 250
	maxRepairBatchesPerCycle  = 40
)

type orphanLister interface {
	ListAccountsWithoutActiveSubscription(ctx context.Context, limit int) ([]models.Account, error)
}

type subscriptionEnsurer interface {
	EnsureActive(ctx context.Context, accountID uuid.UUID) (*models.Subscription, bool, error)
}

// SubscriptionRepairJobParams configures the repair job.
type SubscriptionRepairJobParams struct {
	Logger    *logger.Logger
	Accounts  orphanLister
	Ledger    subscriptionEnsurer
	BatchSize int
}

type subscriptionRepairJob struct {
	logg      *logger.Logger
	accounts  orphanLister
	ledger    subscriptionEnsurer
	batchSize int
}

// NewSubscriptionRepairJob attaches the default plan to accounts left
// without an active subscription, such as those whose registration was
// interrupted before the plan was attached.
func NewSubscriptionRepairJob(params SubscriptionRepairJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("account store required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("subscription ledger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRepairBatchSize
	}
	return &subscriptionRepairJob{
		logg:      params.Logger,
		accounts:  params.Accounts,
		ledger:    params.Ledger,
		batchSize: batch,
	}, nil
}

func (j *subscriptionRepairJob) Name() string { return subscriptionRepairJobName }

func (j *subscriptionRepairJob) Run(ctx context.Context) error {
	var (
		errs     error
		repaired int
		failed   = map[uuid.UUID]bool{}
	)

	for batch := 0; batch < maxRepairBatchesPerCycle; batch++ {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		// failed accounts stay orphaned, so widen the window to look past them
		limit := j.batchSize + len(failed)
		accounts, err := j.accounts.ListAccountsWithoutActiveSubscription(ctx, limit)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list orphaned accounts: %w", err))
		}

		progressed := false
		for _, account := range accounts {
			if failed[account.ID] {
				continue
			}
			progressed = true
			_, ok, err := j.ledger.EnsureActive(ctx, account.ID)
			if err != nil {
				failed[account.ID] = true
				errs = multierr.Append(errs, fmt.Errorf("account %s: %w", account.ID, err))
				continue
			}
			if ok {
				repaired++
			}
		}
		if !progressed || len(accounts) < limit {
			break
		}
	}

	ctx = j.logg.WithFields(ctx, map[string]any{
		"repaired": repaired,
		"failed":   len(failed),
	})
	if repaired > 0 || len(failed) > 0 {
		j.logg.Warn(ctx, "subscription repair finished with changes")
	} else {
		j.logg.Debug(ctx, "no orphaned accounts")
	}
	return errs
}
