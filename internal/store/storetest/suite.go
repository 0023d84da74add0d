// Package storetest holds the behavioural contract every store.Store backend
// must satisfy. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commercepilot-backend/internal/store"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	"github.com/angelmondragon/commercepilot-backend/pkg/enums"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the full contract against the backend built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("duplicate email race", func(t *testing.T) { testDuplicateEmailRace(t, newStore(t)) })
	t.Run("plans", func(t *testing.T) { testPlans(t, newStore(t)) })
	t.Run("single active subscription", func(t *testing.T) { testSingleActive(t, newStore(t)) })
	t.Run("subscription patch", func(t *testing.T) { testSubscriptionPatch(t, newStore(t)) })
	t.Run("debit credits", func(t *testing.T) { testDebit(t, newStore(t)) })
	t.Run("concurrent debits never overdraw", func(t *testing.T) { testConcurrentDebit(t, newStore(t)) })
	t.Run("usage upsert", func(t *testing.T) { testUsage(t, newStore(t)) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("listings", func(t *testing.T) { testListings(t, newStore(t)) })
	t.Run("orphan accounts", func(t *testing.T) { testOrphans(t, newStore(t)) })
	t.Run("leads", func(t *testing.T) { testLeads(t, newStore(t)) })
}

func intPtr(v int) *int { return &v }

func newAccount(t *testing.T, s store.Store, email string) *models.Account {
	t.Helper()
	account := &models.Account{Email: email, PasswordHash: "hash"}
	require.NoError(t, s.CreateAccount(context.Background(), account))
	require.NotEqual(t, uuid.Nil, account.ID)
	return account
}

func newPlan(t *testing.T, s store.Store, name string, credits *int, sort int) models.Plan {
	t.Helper()
	plans := []models.Plan{{Name: name, DisplayName: name, Currency: enums.CurrencyUSD, ProductCredits: credits, SortOrder: sort}}
	require.NoError(t, s.CreatePlans(context.Background(), plans))
	return plans[0]
}

func newSubscription(t *testing.T, s store.Store, accountID, planID uuid.UUID, credits *int) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{AccountID: accountID, PlanID: planID, Active: true, CreditsTotal: credits}
	if credits != nil {
		sub.CreditsRemaining = *credits
	}
	require.NoError(t, s.CreateSubscription(context.Background(), sub))
	return sub
}

func testAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	account := newAccount(t, s, "Case@Example.com")

	got, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Case@Example.com", got.Email)
	assert.Equal(t, "hash", got.PasswordHash)

	got, err = s.GetAccountByEmail(ctx, "Case@Example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	_, err = s.GetAccountByEmail(ctx, "case@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound, "email lookup is case-sensitive")

	err = s.CreateAccount(ctx, &models.Account{Email: "Case@Example.com", PasswordHash: "other"})
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)

	require.NoError(t, s.UpdatePasswordHash(ctx, account.ID, "new-hash"))
	got, err = s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)

	assert.ErrorIs(t, s.UpdatePasswordHash(ctx, uuid.New(), "x"), store.ErrNotFound)

	require.NoError(t, s.DeleteAccount(ctx, account.ID))
	_, err = s.GetAccount(ctx, account.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, s.DeleteAccount(ctx, account.ID), "delete is unconditional")

	// the email is free again once the account is gone
	newAccount(t, s, "Case@Example.com")
}

func testDuplicateEmailRace(t *testing.T, s store.Store) {
	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateAccount(context.Background(), &models.Account{Email: "race@x.com", PasswordHash: "h"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, store.ErrDuplicateEmail):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, dupes)
}

func testPlans(t *testing.T, s store.Store) {
	ctx := context.Background()
	count, err := s.CountPlans(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	price := int64(1900)
	plans := []models.Plan{
		{Name: "pro", DisplayName: "Pro", Currency: enums.CurrencyUSD, ProductCredits: intPtr(100), SortOrder: 2, Popular: true, Features: []string{"a", "b"}},
		{Name: "basic", DisplayName: "Basic", Currency: enums.CurrencyUSD, ProductCredits: intPtr(20), SortOrder: 1, PriceCents: &price},
		{Name: "enterprise", DisplayName: "Enterprise", Currency: enums.CurrencyUSD, SortOrder: 4, ContactSales: true, APIAccess: true},
	}
	require.NoError(t, s.CreatePlans(ctx, plans))

	count, err = s.CountPlans(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	listed, err := s.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, []string{"basic", "pro", "enterprise"}, []string{listed[0].Name, listed[1].Name, listed[2].Name})
	assert.Equal(t, []string{"a", "b"}, listed[1].Features)
	assert.True(t, listed[2].Unlimited())
	assert.Nil(t, listed[2].PriceCents)
	require.NotNil(t, listed[0].PriceCents)
	assert.EqualValues(t, 1900, *listed[0].PriceCents)

	got, err := s.GetPlan(ctx, plans[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "pro", got.Name)
	assert.True(t, got.Popular)

	byName, err := s.GetPlanByName(ctx, "enterprise")
	require.NoError(t, err)
	assert.True(t, byName.ContactSales)
	assert.True(t, byName.APIAccess)

	_, err = s.GetPlan(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetPlanByName(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.CreatePlans(ctx, []models.Plan{{Name: "basic", DisplayName: "Again", Currency: enums.CurrencyUSD}})
	assert.ErrorIs(t, err, store.ErrDuplicatePlan)
}

func testSingleActive(t *testing.T, s store.Store) {
	ctx := context.Background()
	account := newAccount(t, s, "single@x.com")
	plan := newPlan(t, s, "basic", intPtr(20), 1)

	first := newSubscription(t, s, account.ID, plan.ID, intPtr(20))

	err := s.CreateSubscription(ctx, &models.Subscription{AccountID: account.ID, PlanID: plan.ID, Active: true, CreditsRemaining: 5, CreditsTotal: intPtr(5)})
	assert.ErrorIs(t, err, store.ErrActiveSubscriptionExists)

	inactive := &models.Subscription{AccountID: account.ID, PlanID: plan.ID, Active: false}
	require.NoError(t, s.CreateSubscription(ctx, inactive), "inactive rows never conflict")

	got, err := s.GetActiveSubscription(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = s.UpdateSubscription(ctx, inactive.ID, store.SubscriptionPatch{Active: boolPtr(true)})
	assert.ErrorIs(t, err, store.ErrActiveSubscriptionExists)

	ended := time.Now().UTC()
	require.NoError(t, s.DeactivateSubscriptions(ctx, account.ID, ended))
	_, err = s.GetActiveSubscription(ctx, account.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	old, err := s.GetSubscription(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.Active)
	require.NotNil(t, old.EndedAt)

	second := newSubscription(t, s, account.ID, plan.ID, intPtr(20))
	got, err = s.GetActiveSubscription(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	require.NoError(t, s.DeleteSubscriptionsByAccount(ctx, account.ID))
	_, err = s.GetSubscription(ctx, second.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func boolPtr(v bool) *bool { return &v }

func testSubscriptionPatch(t *testing.T, s store.Store) {
	ctx := context.Background()
	account := newAccount(t, s, "patch@x.com")
	plan := newPlan(t, s, "basic", intPtr(20), 1)
	sub := newSubscription(t, s, account.ID, plan.ID, intPtr(20))

	updated, err := s.UpdateSubscription(ctx, sub.ID, store.SubscriptionPatch{CreditsRemaining: intPtr(7)})
	require.NoError(t, err)
	assert.Equal(t, 7, updated.CreditsRemaining)
	assert.False(t, updated.UpdatedAt.Before(sub.UpdatedAt))

	updated, err = s.UpdateSubscription(ctx, sub.ID, store.SubscriptionPatch{CreditsRemaining: intPtr(-5)})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.CreditsRemaining, "balances clamp at zero")

	_, err = s.UpdateSubscription(ctx, uuid.New(), store.SubscriptionPatch{})
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.CreateSubscription(ctx, &models.Subscription{AccountID: uuid.New(), PlanID: plan.ID, Active: true, CreditsRemaining: -1})
	assert.ErrorIs(t, err, store.ErrInvalidAmount)
}

func testDebit(t *testing.T, s store.Store) {
	ctx := context.Background()
	account := newAccount(t, s, "debit@x.com")
	plan := newPlan(t, s, "basic", intPtr(3), 1)
	sub := newSubscription(t, s, account.ID, plan.ID, intPtr(3))

	got, err := s.DebitCredits(ctx, sub.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CreditsRemaining)

	_, err = s.DebitCredits(ctx, sub.ID, 2)
	assert.ErrorIs(t, err, store.ErrInsufficientCredits)
	current, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.CreditsRemaining, "a rejected debit leaves the balance untouched")

	_, err = s.DebitCredits(ctx, sub.ID, 0)
	assert.ErrorIs(t, err, store.ErrInvalidAmount)

	_, err = s.DebitCredits(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	unlimitedAccount := newAccount(t, s, "unlimited@x.com")
	unlimited := newSubscription(t, s, unlimitedAccount.ID, plan.ID, nil)
	got, err = s.DebitCredits(ctx, unlimited.ID, 50)
	require.NoError(t, err)
	assert.True(t, got.Unlimited())
	assert.Equal(t, 0, got.CreditsRemaining, "unlimited balances are never decremented")

	require.NoError(t, s.DeactivateSubscriptions(ctx, account.ID, time.Now()))
	_, err = s.DebitCredits(ctx, sub.ID, 1)
	assert.ErrorIs(t, err, store.ErrNotFound, "inactive subscriptions cannot be debited")
}

func testConcurrentDebit(t *testing.T, s store.Store) {
	const (
		balance = 10
		workers = 25
	)
	account := newAccount(t, s, "concurrent@x.com")
	plan := newPlan(t, s, "basic", intPtr(balance), 1)
	sub := newSubscription(t, s, account.ID, plan.ID, intPtr(balance))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.DebitCredits(context.Background(), sub.ID, 1)
			if err != nil && !errors.Is(err, store.ErrInsufficientCredits) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	final, err := s.GetSubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, balance, successes)
	assert.Equal(t, 0, final.CreditsRemaining)
}

func testUsage(t *testing.T, s store.Store) {
	ctx := context.Background()
	accountID := uuid.New()

	_, err := s.GetUsage(ctx, accountID, "2026-03-01")
	assert.ErrorIs(t, err, store.ErrNotFound)

	row, err := s.AddUsage(ctx, accountID, "2026-03-01", enums.CapabilityDescription, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, row.DescriptionGenerations)
	assert.Equal(t, 1, row.CreditsUsed)

	row, err = s.AddUsage(ctx, accountID, "2026-03-01", enums.CapabilityDescription, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, row.DescriptionGenerations)
	assert.Equal(t, 3, row.CreditsUsed)

	row, err = s.AddUsage(ctx, accountID, "2026-03-01", enums.CapabilityPublishing, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, row.PublishingGenerations)
	assert.Equal(t, 2, row.DescriptionGenerations)
	assert.Equal(t, 4, row.CreditsUsed)

	_, err = s.AddUsage(ctx, accountID, "2026-02-27", enums.CapabilityImage, 1)
	require.NoError(t, err)
	_, err = s.AddUsage(ctx, accountID, "2026-03-02", enums.CapabilityPricing, 1)
	require.NoError(t, err)
	_, err = s.AddUsage(ctx, uuid.New(), "2026-03-02", enums.CapabilityPricing, 1)
	require.NoError(t, err)

	rows, err := s.ListUsageSince(ctx, accountID, "2026-03-01")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-03-01", rows[0].Day)
	assert.Equal(t, "2026-03-02", rows[1].Day)
	assert.Equal(t, 1, rows[1].PricingGenerations)

	_, err = s.AddUsage(ctx, accountID, "2026-03-01", enums.Capability("video"), 1)
	assert.ErrorIs(t, err, store.ErrInvalidAmount)

	require.NoError(t, s.DeleteUsageByAccount(ctx, accountID))
	rows, err = s.ListUsageSince(ctx, accountID, "2000-01-01")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func testTransactions(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Store) error {
		if err := tx.CreateAccount(ctx, &models.Account{Email: "rolled@x.com", PasswordHash: "h"}); err != nil {
			return err
		}
		if _, err := tx.AddUsage(ctx, uuid.New(), "2026-01-01", enums.CapabilityImage, 1); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = s.GetAccountByEmail(ctx, "rolled@x.com")
	assert.ErrorIs(t, err, store.ErrNotFound, "rolled back writes must not be visible")

	var created *models.Account
	err = s.WithTx(ctx, func(tx store.Store) error {
		created = &models.Account{Email: "committed@x.com", PasswordHash: "h"}
		if err := tx.CreateAccount(ctx, created); err != nil {
			return err
		}
		// nested transactions join the outer one
		return tx.WithTx(ctx, func(inner store.Store) error {
			_, err := inner.GetAccount(ctx, created.ID)
			return err
		})
	})
	require.NoError(t, err)
	got, err := s.GetAccountByEmail(ctx, "committed@x.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	require.NoError(t, s.Ping(ctx))
}

func testListings(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := uuid.New()
	other := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		listing := &models.ProductListing{
			AccountID:    owner,
			Title:        "listing",
			Capabilities: []enums.Capability{enums.CapabilityDescription, enums.CapabilityImage},
		}
		require.NoError(t, s.CreateProductListing(ctx, listing))
		assert.Equal(t, enums.ListingStatusDraft, listing.Status)
		ids = append(ids, listing.ID)
	}
	require.NoError(t, s.CreateProductListing(ctx, &models.ProductListing{AccountID: other, Title: "theirs"}))

	got, err := s.GetProductListing(ctx, owner, ids[0])
	require.NoError(t, err)
	assert.Equal(t, []enums.Capability{enums.CapabilityDescription, enums.CapabilityImage}, got.Capabilities)

	_, err = s.GetProductListing(ctx, other, ids[0])
	assert.ErrorIs(t, err, store.ErrNotFound, "listings are scoped to their owner")

	first, err := s.ListProductListings(ctx, owner, store.ListingPage{Limit: 3})
	require.NoError(t, err)
	require.Len(t, first, 3)
	last := first[len(first)-1]
	rest, err := s.ListProductListings(ctx, owner, store.ListingPage{Limit: 3, Before: &store.ListingCursor{CreatedAt: last.CreatedAt, ID: last.ID}})
	require.NoError(t, err)
	require.Len(t, rest, 2)

	seen := map[uuid.UUID]bool{}
	for _, l := range append(first, rest...) {
		assert.False(t, seen[l.ID], "pages must not overlap")
		seen[l.ID] = true
	}
	assert.Len(t, seen, 5)

	assert.ErrorIs(t, s.DeleteProductListing(ctx, other, ids[1]), store.ErrNotFound)
	require.NoError(t, s.DeleteProductListing(ctx, owner, ids[1]))

	require.NoError(t, s.DeleteProductListingsByAccount(ctx, owner))
	remaining, err := s.ListProductListings(ctx, owner, store.ListingPage{})
	require.NoError(t, err)
	assert.Empty(t, remaining)

	theirs, err := s.ListProductListings(ctx, other, store.ListingPage{})
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}

func testOrphans(t *testing.T, s store.Store) {
	ctx := context.Background()
	plan := newPlan(t, s, "basic", intPtr(20), 1)
	covered := newAccount(t, s, "covered@x.com")
	newSubscription(t, s, covered.ID, plan.ID, intPtr(20))
	orphan := newAccount(t, s, "orphan@x.com")
	lapsed := newAccount(t, s, "lapsed@x.com")
	newSubscription(t, s, lapsed.ID, plan.ID, intPtr(20))
	require.NoError(t, s.DeactivateSubscriptions(ctx, lapsed.ID, time.Now()))

	orphans, err := s.ListAccountsWithoutActiveSubscription(ctx, 10)
	require.NoError(t, err)
	ids := map[uuid.UUID]bool{}
	for _, a := range orphans {
		ids[a.ID] = true
	}
	assert.True(t, ids[orphan.ID])
	assert.True(t, ids[lapsed.ID])
	assert.False(t, ids[covered.ID])

	limited, err := s.ListAccountsWithoutActiveSubscription(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func testLeads(t *testing.T, s store.Store) {
	company := "Acme"
	lead := &models.Lead{Email: "lead@x.com", Company: &company, Consent: true}
	require.NoError(t, s.CreateLead(context.Background(), lead))
	assert.NotEqual(t, uuid.Nil, lead.ID)
	assert.False(t, lead.CreatedAt.IsZero())
}
