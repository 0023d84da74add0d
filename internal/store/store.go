// Package store defines the persistence contract shared by every backend.
// Domain services depend only on Store, so behaviour is identical whether the
// process runs on the in-memory backend or the relational one.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	"github.com/angelmondragon/commercepilot-backend/pkg/enums"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateEmail is returned when an account email is already taken.
	ErrDuplicateEmail = errors.New("store: duplicate email")
	// ErrActiveSubscriptionExists is returned when an account already has an active subscription.
	ErrActiveSubscriptionExists = errors.New("store: active subscription exists")
	// ErrInsufficientCredits is returned when a debit exceeds the remaining balance.
	ErrInsufficientCredits = errors.New("store: insufficient credits")
	// ErrDuplicatePlan is returned when a plan name is already seeded.
	ErrDuplicatePlan = errors.New("store: duplicate plan")
	// ErrInvalidAmount is returned for non-positive debits or usage credits.
	ErrInvalidAmount = errors.New("store: invalid amount")
)

// DayLayout is the canonical format of UsageMetric.Day.
const DayLayout = "2006-01-02"

// Day formats t as a UTC calendar day.
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// SubscriptionPatch carries optional subscription fields to update.
// A negative CreditsRemaining is clamped to zero.
type SubscriptionPatch struct {
	CreditsRemaining *int
	Active           *bool
	EndedAt          *time.Time
}

// ListingPage selects a page of product listings, newest first.
type ListingPage struct {
	Limit  int
	Before *ListingCursor
}

// ListingCursor is the (created_at, id) position of the last listing seen.
type ListingCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// AccountStore persists accounts. Email matching is exact and case-sensitive.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	// DeleteAccount removes only the account row; dependants must already be gone.
	DeleteAccount(ctx context.Context, id uuid.UUID) error
	ListAccountsWithoutActiveSubscription(ctx context.Context, limit int) ([]models.Account, error)
}

// PlanStore persists the plan catalog.
type PlanStore interface {
	CountPlans(ctx context.Context) (int64, error)
	CreatePlans(ctx context.Context, plans []models.Plan) error
	ListPlans(ctx context.Context) ([]models.Plan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	GetPlanByName(ctx context.Context, name string) (*models.Plan, error)
}

// SubscriptionStore persists subscriptions and their credit balance.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	GetActiveSubscription(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error)
	UpdateSubscription(ctx context.Context, id uuid.UUID, patch SubscriptionPatch) (*models.Subscription, error)
	// DebitCredits atomically decrements an active subscription's balance, or
	// returns ErrInsufficientCredits and leaves it untouched.
	DebitCredits(ctx context.Context, id uuid.UUID, amount int) (*models.Subscription, error)
	DeactivateSubscriptions(ctx context.Context, accountID uuid.UUID, endedAt time.Time) error
	DeleteSubscriptionsByAccount(ctx context.Context, accountID uuid.UUID) error
}

// UsageStore persists daily usage rows.
type UsageStore interface {
	// AddUsage creates the day's row if needed and increments it additively.
	AddUsage(ctx context.Context, accountID uuid.UUID, day string, capability enums.Capability, credits int) (*models.UsageMetric, error)
	GetUsage(ctx context.Context, accountID uuid.UUID, day string) (*models.UsageMetric, error)
	// ListUsageSince returns rows with Day >= fromDay ordered by day ascending.
	ListUsageSince(ctx context.Context, accountID uuid.UUID, fromDay string) ([]models.UsageMetric, error)
	DeleteUsageByAccount(ctx context.Context, accountID uuid.UUID) error
}

// LeadStore persists marketing leads.
type LeadStore interface {
	CreateLead(ctx context.Context, lead *models.Lead) error
}

// ListingStore persists account-owned product listings.
type ListingStore interface {
	CreateProductListing(ctx context.Context, listing *models.ProductListing) error
	GetProductListing(ctx context.Context, accountID, id uuid.UUID) (*models.ProductListing, error)
	ListProductListings(ctx context.Context, accountID uuid.UUID, page ListingPage) ([]models.ProductListing, error)
	DeleteProductListing(ctx context.Context, accountID, id uuid.UUID) error
	DeleteProductListingsByAccount(ctx context.Context, accountID uuid.UUID) error
}

// Store is the full persistence contract.
type Store interface {
	AccountStore
	PlanStore
	SubscriptionStore
	UsageStore
	LeadStore
	ListingStore

	// WithTx runs fn against a transactional view of the store. Any error
	// returned by fn discards every write made through that view.
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
	Close() error
}

// ClampCredits keeps balances non-negative.
func ClampCredits(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
