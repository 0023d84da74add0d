package listings

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commercepilot-backend/internal/plans"
	"github.com/angelmondragon/commercepilot-backend/internal/store"
	"github.com/angelmondragon/commercepilot-backend/internal/store/memory"
	"github.com/angelmondragon/commercepilot-backend/internal/subscriptions"
	"github.com/angelmondragon/commercepilot-backend/internal/usage"
	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	"github.com/angelmondragon/commercepilot-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/pagination"
)

// tickingClock advances one second per call so listings get distinct timestamps.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	st      *memory.Store
	ledger  subscriptions.Service
	usage   usage.Service
	svc     Service
	account uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := &tickingClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	st := memory.New(memory.WithClock(clock.Now))

	catalog, err := plans.NewService(plans.ServiceParams{Store: st})
	require.NoError(t, err)
	_, err = catalog.Seed(ctx)
	require.NoError(t, err)
	ledger, err := subscriptions.NewService(subscriptions.ServiceParams{Store: st, Plans: catalog})
	require.NoError(t, err)
	meter, err := usage.NewService(usage.ServiceParams{
		Store:  st,
		Ledger: ledger,
		Config: config.UsageConfig{DefaultHistoryDays: 7, MaxHistoryDays: 90},
		Clock:  clock.Now,
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{Store: st, Usage: meter, CreditCost: 1})
	require.NoError(t, err)

	account := uuid.New()
	_, err = ledger.AttachDefaultPlan(ctx, account)
	require.NoError(t, err)
	return &fixture{st: st, ledger: ledger, usage: meter, svc: svc, account: account}
}

func TestCreateMetersCapabilities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	price := "24.50"

	listing, err := f.svc.Create(ctx, f.account, CreateListingRequest{
		Title:        "  Ceramic mug ",
		Price:        &price,
		Capabilities: []enums.Capability{enums.CapabilityDescription, enums.CapabilityImage, enums.CapabilityImage},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ceramic mug", listing.Title)
	assert.Equal(t, enums.ListingStatusDraft, listing.Status)
	require.NotNil(t, listing.PriceCents)
	assert.Equal(t, int64(2450), *listing.PriceCents)
	assert.Len(t, listing.Capabilities, 2, "duplicate capabilities are metered once")

	sub, err := f.ledger.GetActive(ctx, f.account)
	require.NoError(t, err)
	assert.Equal(t, 18, sub.CreditsRemaining)

	today, err := f.usage.Today(ctx, f.account)
	require.NoError(t, err)
	assert.Equal(t, 1, today.DescriptionGenerations)
	assert.Equal(t, 1, today.ImageGenerations)
	assert.Equal(t, 2, today.CreditsUsed)

	dto := ToDTO(*listing)
	require.NotNil(t, dto.Price)
	assert.Equal(t, "24.50", *dto.Price)
}

func TestCreateWithoutCreditsLeavesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.ledger.GetActive(ctx, f.account)
	require.NoError(t, err)
	one := 1
	_, err = f.ledger.Update(ctx, sub.ID, store.SubscriptionPatch{CreditsRemaining: &one})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.account, CreateListingRequest{
		Title:        "Lamp",
		Capabilities: []enums.Capability{enums.CapabilityDescription, enums.CapabilityPricing},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientCredits), "got %v", err)

	sub, err = f.ledger.GetActive(ctx, f.account)
	require.NoError(t, err)
	assert.Equal(t, 1, sub.CreditsRemaining, "the first capability's debit must roll back")

	today, err := f.usage.Today(ctx, f.account)
	require.NoError(t, err)
	assert.Zero(t, today.CreditsUsed)

	page, err := f.svc.List(ctx, f.account, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bad := "12.345"
	negative := "-1"

	cases := []CreateListingRequest{
		{Title: "   "},
		{Title: "x", Price: &bad},
		{Title: "x", Price: &negative},
		{Title: "x", Status: "sold"},
		{Title: "x", Capabilities: []enums.Capability{"video"}},
	}
	for _, req := range cases {
		_, err := f.svc.Create(ctx, f.account, req)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "%+v -> %v", req, err)
	}
}

func TestListPagesWithoutOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := f.svc.Create(ctx, f.account, CreateListingRequest{Title: "item"})
		require.NoError(t, err)
	}

	seen := map[uuid.UUID]bool{}
	var last time.Time
	cursor := ""
	pages := 0
	for {
		page, err := f.svc.List(ctx, f.account, pagination.Params{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		pages++
		for _, l := range page.Items {
			assert.False(t, seen[l.ID], "listing %s repeated", l.ID)
			seen[l.ID] = true
			if !last.IsZero() {
				assert.True(t, l.CreatedAt.Before(last), "newest first")
			}
			last = l.CreatedAt
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 3, pages)

	_, err := f.svc.List(ctx, f.account, pagination.Params{Cursor: "not-a-cursor"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetAndDeleteAreOwnerScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listing, err := f.svc.Create(ctx, f.account, CreateListingRequest{Title: "Poster"})
	require.NoError(t, err)

	stranger := uuid.New()
	_, err = f.svc.Get(ctx, stranger, listing.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.True(t, pkgerrors.IsCode(f.svc.Delete(ctx, stranger, listing.ID), pkgerrors.CodeNotFound))

	got, err := f.svc.Get(ctx, f.account, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Poster", got.Title)

	require.NoError(t, f.svc.Delete(ctx, f.account, listing.ID))
	_, err = f.svc.Get(ctx, f.account, listing.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
