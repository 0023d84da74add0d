// Package relational implements store.Store on gorm for Postgres and SQLite.
package relational

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/commercepilot-backend/internal/store"
	"github.com/angelmondragon/commercepilot-backend/pkg/db"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	"github.com/angelmondragon/commercepilot-backend/pkg/enums"
)

const (
	accountsEmailIndex     = "idx_accounts_email"
	plansNameIndex         = "idx_plans_name"
	oneActiveSubscriptions = "idx_subscriptions_one_active"
)

// Store persists every aggregate through a gorm connection.
type Store struct {
	db     *gorm.DB
	now    func() time.Time
	closer func() error
	tx     bool
}

var _ store.Store = (*Store)(nil)

// Option customizes the relational store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCloser registers the function Close delegates to.
func WithCloser(closer func() error) Option {
	return func(s *Store) {
		s.closer = closer
	}
}

// New wraps an open gorm connection.
func New(conn *gorm.DB, opts ...Option) *Store {
	s := &Store{db: conn, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromClient wraps a db.Client and takes ownership of closing it.
func NewFromClient(client *db.Client, opts ...Option) *Store {
	return New(client.DB(), append([]Option{WithCloser(client.Close)}, opts...)...)
}

// AutoMigrate creates the schema through gorm. Postgres deployments use the
// goose migrations instead; this path serves SQLite.
func AutoMigrate(ctx context.Context, conn *gorm.DB) error {
	if err := conn.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.tx {
		return fn(s)
	}
	return db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		return fn(&Store{db: tx, now: s.now, tx: true})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

// Accounts

func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := s.stamp()
	account.CreatedAt, account.UpdatedAt = now, now

	if err := s.conn(ctx).Create(account).Error; err != nil {
		if db.IsUniqueViolation(err, accountsEmailIndex) {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := s.conn(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	if err := s.conn(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	res := s.conn(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{"password_hash": hash, "updated_at": s.stamp()})
	if res.Error != nil {
		return fmt.Errorf("update password hash: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	if err := s.conn(ctx).Where("id = ?", id).Delete(&models.Account{}).Error; err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func (s *Store) ListAccountsWithoutActiveSubscription(ctx context.Context, limit int) ([]models.Account, error) {
	q := s.conn(ctx).
		Where("NOT EXISTS (SELECT 1 FROM subscriptions WHERE subscriptions.account_id = accounts.id AND subscriptions.active = ?)", true).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Account
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list orphan accounts: %w", err)
	}
	return out, nil
}

// Plans

func (s *Store) CountPlans(ctx context.Context) (int64, error) {
	var count int64
	if err := s.conn(ctx).Model(&models.Plan{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count plans: %w", err)
	}
	return count, nil
}

func (s *Store) CreatePlans(ctx context.Context, plans []models.Plan) error {
	if len(plans) == 0 {
		return nil
	}
	now := s.stamp()
	for i := range plans {
		if plans[i].ID == uuid.Nil {
			plans[i].ID = uuid.New()
		}
		plans[i].CreatedAt, plans[i].UpdatedAt = now, now
	}
	if err := s.conn(ctx).Create(&plans).Error; err != nil {
		if db.IsUniqueViolation(err, plansNameIndex) {
			return store.ErrDuplicatePlan
		}
		return fmt.Errorf("create plans: %w", err)
	}
	return nil
}

func (s *Store) ListPlans(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	if err := s.conn(ctx).Order("sort_order ASC, name ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

func (s *Store) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	if err := s.conn(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, notFound(err)
	}
	return &plan, nil
}

func (s *Store) GetPlanByName(ctx context.Context, name string) (*models.Plan, error) {
	var plan models.Plan
	if err := s.conn(ctx).Where("name = ?", name).First(&plan).Error; err != nil {
		return nil, notFound(err)
	}
	return &plan, nil
}

// Subscriptions

func (s *Store) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.CreditsRemaining < 0 {
		return store.ErrInvalidAmount
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := s.stamp()
	if sub.StartedAt.IsZero() {
		sub.StartedAt = now
	}
	sub.StartedAt = sub.StartedAt.UTC()
	sub.CreatedAt, sub.UpdatedAt = now, now

	if err := s.conn(ctx).Create(sub).Error; err != nil {
		if db.IsUniqueViolation(err, oneActiveSubscriptions) {
			return store.ErrActiveSubscriptionExists
		}
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.conn(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *Store) GetActiveSubscription(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.conn(ctx).Where("account_id = ? AND active = ?", accountID, true).First(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, id uuid.UUID, patch store.SubscriptionPatch) (*models.Subscription, error) {
	if _, err := s.GetSubscription(ctx, id); err != nil {
		return nil, err
	}

	updates := map[string]any{"updated_at": s.stamp()}
	if patch.CreditsRemaining != nil {
		updates["credits_remaining"] = store.ClampCredits(*patch.CreditsRemaining)
	}
	if patch.Active != nil {
		updates["active"] = *patch.Active
	}
	if patch.EndedAt != nil {
		updates["ended_at"] = patch.EndedAt.UTC()
	}

	err := s.conn(ctx).Model(&models.Subscription{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		if db.IsUniqueViolation(err, oneActiveSubscriptions) {
			return nil, store.ErrActiveSubscriptionExists
		}
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	return s.GetSubscription(ctx, id)
}

func (s *Store) DebitCredits(ctx context.Context, id uuid.UUID, amount int) (*models.Subscription, error) {
	if amount <= 0 {
		return nil, store.ErrInvalidAmount
	}

	// Single conditional UPDATE: concurrent debits can never overdraw.
	res := s.conn(ctx).Model(&models.Subscription{}).
		Where("id = ? AND active = ? AND credits_total IS NOT NULL AND credits_remaining >= ?", id, true, amount).
		Updates(map[string]any{
			"credits_remaining": gorm.Expr("credits_remaining - ?", amount),
			"updated_at":        s.stamp(),
		})
	if res.Error != nil {
		if db.IsCheckViolation(res.Error) {
			return nil, store.ErrInsufficientCredits
		}
		return nil, fmt.Errorf("debit credits: %w", res.Error)
	}

	sub, err := s.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 1 {
		return sub, nil
	}
	switch {
	case !sub.Active:
		return nil, store.ErrNotFound
	case sub.Unlimited():
		return sub, nil
	default:
		return nil, store.ErrInsufficientCredits
	}
}

func (s *Store) DeactivateSubscriptions(ctx context.Context, accountID uuid.UUID, endedAt time.Time) error {
	err := s.conn(ctx).Model(&models.Subscription{}).
		Where("account_id = ? AND active = ?", accountID, true).
		Updates(map[string]any{
			"active":     false,
			"ended_at":   endedAt.UTC(),
			"updated_at": s.stamp(),
		}).Error
	if err != nil {
		return fmt.Errorf("deactivate subscriptions: %w", err)
	}
	return nil
}

func (s *Store) DeleteSubscriptionsByAccount(ctx context.Context, accountID uuid.UUID) error {
	if err := s.conn(ctx).Where("account_id = ?", accountID).Delete(&models.Subscription{}).Error; err != nil {
		return fmt.Errorf("delete subscriptions: %w", err)
	}
	return nil
}

// Usage

func (s *Store) AddUsage(ctx context.Context, accountID uuid.UUID, day string, capability enums.Capability, credits int) (*models.UsageMetric, error) {
	if credits < 0 || !capability.IsValid() {
		return nil, store.ErrInvalidAmount
	}

	now := s.stamp()
	row := models.UsageMetric{ID: uuid.New(), AccountID: accountID, Day: day, CreatedAt: now, UpdatedAt: now}
	row.Add(capability, credits)

	column := capability.Column()
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]any{
			column:         gorm.Expr("usage_metrics."+column+" + ?", 1),
			"credits_used": gorm.Expr("usage_metrics.credits_used + ?", credits),
			"updated_at":   now,
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert usage: %w", err)
	}
	return s.GetUsage(ctx, accountID, day)
}

func (s *Store) GetUsage(ctx context.Context, accountID uuid.UUID, day string) (*models.UsageMetric, error) {
	var row models.UsageMetric
	if err := s.conn(ctx).Where("account_id = ? AND day = ?", accountID, day).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func (s *Store) ListUsageSince(ctx context.Context, accountID uuid.UUID, fromDay string) ([]models.UsageMetric, error) {
	var rows []models.UsageMetric
	err := s.conn(ctx).
		Where("account_id = ? AND day >= ?", accountID, fromDay).
		Order("day ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	return rows, nil
}

func (s *Store) DeleteUsageByAccount(ctx context.Context, accountID uuid.UUID) error {
	if err := s.conn(ctx).Where("account_id = ?", accountID).Delete(&models.UsageMetric{}).Error; err != nil {
		return fmt.Errorf("delete usage: %w", err)
	}
	return nil
}

// Leads

func (s *Store) CreateLead(ctx context.Context, lead *models.Lead) error {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	lead.CreatedAt = s.stamp()
	if err := s.conn(ctx).Create(lead).Error; err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

// Product listings

func (s *Store) CreateProductListing(ctx context.Context, listing *models.ProductListing) error {
	if listing.ID == uuid.Nil {
		listing.ID = uuid.New()
	}
	if listing.Status == "" {
		listing.Status = enums.ListingStatusDraft
	}
	now := s.stamp()
	listing.CreatedAt, listing.UpdatedAt = now, now
	if err := s.conn(ctx).Create(listing).Error; err != nil {
		return fmt.Errorf("create listing: %w", err)
	}
	return nil
}

func (s *Store) GetProductListing(ctx context.Context, accountID, id uuid.UUID) (*models.ProductListing, error) {
	var listing models.ProductListing
	if err := s.conn(ctx).Where("id = ? AND account_id = ?", id, accountID).First(&listing).Error; err != nil {
		return nil, notFound(err)
	}
	return &listing, nil
}

func (s *Store) ListProductListings(ctx context.Context, accountID uuid.UUID, page store.ListingPage) ([]models.ProductListing, error) {
	q := s.conn(ctx).Where("account_id = ?", accountID)
	if page.Before != nil {
		at := page.Before.CreatedAt.UTC()
		q = q.Where("((created_at < ?) OR (created_at = ? AND id < ?))", at, at, page.Before.ID)
	}
	q = q.Order("created_at DESC, id DESC")
	if page.Limit > 0 {
		q = q.Limit(page.Limit)
	}
	var out []models.ProductListing
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteProductListing(ctx context.Context, accountID, id uuid.UUID) error {
	res := s.conn(ctx).Where("id = ? AND account_id = ?", id, accountID).Delete(&models.ProductListing{})
	if res.Error != nil {
		return fmt.Errorf("delete listing: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProductListingsByAccount(ctx context.Context, accountID uuid.UUID) error {
	if err := s.conn(ctx).Where("account_id = ?", accountID).Delete(&models.ProductListing{}).Error; err != nil {
		return fmt.Errorf("delete listings: %w", err)
	}
	return nil
}
