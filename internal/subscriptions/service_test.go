package subscriptions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commercepilot-backend/internal/plans"
	"github.com/angelmondragon/commercepilot-backend/internal/store"
	"github.com/angelmondragon/commercepilot-backend/internal/store/memory"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
)

type fixture struct {
	st      *memory.Store
	catalog plans.Service
	ledger  Service
	byName  map[string]models.Plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	catalog, err := plans.NewService(plans.ServiceParams{Store: st})
	require.NoError(t, err)
	_, err = catalog.Seed(ctx)
	require.NoError(t, err)

	ledger, err := NewService(ServiceParams{Store: st, Plans: catalog})
	require.NoError(t, err)

	all, err := catalog.List(ctx)
	require.NoError(t, err)
	byName := map[string]models.Plan{}
	for _, p := range all {
		byName[p.Name] = p
	}
	return &fixture{st: st, catalog: catalog, ledger: ledger, byName: byName}
}

func TestAttachDefaultPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := uuid.New()

	sub, err := f.ledger.AttachDefaultPlan(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, f.byName["basic"].ID, sub.PlanID)
	assert.Equal(t, 20, sub.CreditsRemaining)
	require.NotNil(t, sub.CreditsTotal)
	assert.Equal(t, 20, *sub.CreditsTotal)
	assert.True(t, sub.Active)

	_, err = f.ledger.AttachDefaultPlan(ctx, accountID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "a second active subscription must be refused")
}

func TestEnsureActiveRepairsOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := uuid.New()

	_, err := f.ledger.GetActive(ctx, accountID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	sub, repaired, err := f.ledger.EnsureActive(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Equal(t, 20, sub.CreditsRemaining)

	again, repaired, err := f.ledger.EnsureActive(ctx, accountID)
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Equal(t, sub.ID, again.ID)
}

func TestDebit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.ledger.AttachDefaultPlan(ctx, uuid.New())
	require.NoError(t, err)

	got, err := f.ledger.Debit(ctx, sub.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 19, got.CreditsRemaining)

	_, err = f.ledger.Debit(ctx, sub.ID, 50)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientCredits))

	_, err = f.ledger.Debit(ctx, sub.ID, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.ledger.Debit(ctx, uuid.New(), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	current, err := f.ledger.GetActive(ctx, sub.AccountID)
	require.NoError(t, err)
	assert.Equal(t, 19, current.CreditsRemaining)
}

func TestUpdateClampsAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.ledger.AttachDefaultPlan(ctx, uuid.New())
	require.NoError(t, err)

	negative := -3
	got, err := f.ledger.Update(ctx, sub.ID, store.SubscriptionPatch{CreditsRemaining: &negative})
	require.NoError(t, err)
	assert.Equal(t, 0, got.CreditsRemaining)
}

func TestChangePlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := uuid.New()
	original, err := f.ledger.AttachDefaultPlan(ctx, accountID)
	require.NoError(t, err)

	upgraded, err := f.ledger.ChangePlan(ctx, accountID, f.byName["pro"].ID)
	require.NoError(t, err)
	assert.Equal(t, 100, upgraded.CreditsRemaining)
	assert.NotEqual(t, original.ID, upgraded.ID)

	old, err := f.st.GetSubscription(ctx, original.ID)
	require.NoError(t, err)
	assert.False(t, old.Active)
	assert.NotNil(t, old.EndedAt)

	active, err := f.ledger.GetActive(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, upgraded.ID, active.ID)

	_, err = f.ledger.ChangePlan(ctx, accountID, f.byName["pro"].ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.ledger.ChangePlan(ctx, accountID, f.byName["enterprise"].ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.ledger.ChangePlan(ctx, accountID, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	active, err = f.ledger.GetActive(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, upgraded.ID, active.ID, "failed changes leave the current subscription in place")
}

func TestChangePlanWithoutCurrentSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.ledger.ChangePlan(ctx, uuid.New(), f.byName["business"].ID)
	require.NoError(t, err)
	assert.Equal(t, 500, sub.CreditsRemaining)
}

func TestUnlimitedSubscriptionsAreNeverDecremented(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enterprise := f.byName["enterprise"]
	sub := newSubscription(uuid.New(), &enterprise, time.Now().UTC())
	require.NoError(t, f.st.CreateSubscription(ctx, sub))
	assert.Nil(t, sub.CreditsTotal)

	got, err := f.ledger.Debit(ctx, sub.ID, 5)
	require.NoError(t, err)
	assert.True(t, got.Unlimited())
	assert.Equal(t, 0, got.CreditsRemaining)
}

func TestWithStoreJoinsTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := uuid.New()
	boom := errors.New("boom")

	err := f.st.WithTx(ctx, func(tx store.Store) error {
		if _, err := f.ledger.WithStore(tx).AttachDefaultPlan(ctx, accountID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = f.ledger.GetActive(ctx, accountID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "attach must roll back with the transaction")
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Store: memory.New()})
	assert.Error(t, err)
}
