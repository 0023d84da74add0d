// Package memory is the in-process Store backend used for tests and local runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/commercepilot-backend/internal/store"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	"github.com/angelmondragon/commercepilot-backend/pkg/enums"
)

// Store keeps every table in maps guarded by a single mutex. Transactions hold
// the mutex for their whole duration and restore a snapshot on failure.
type Store struct {
	mu  sync.Locker
	st  *state
	now func() time.Time
	tx  bool
}

type usageKey struct {
	accountID uuid.UUID
	day       string
}

type state struct {
	accounts      map[uuid.UUID]models.Account
	emails        map[string]uuid.UUID
	plans         map[uuid.UUID]models.Plan
	subscriptions map[uuid.UUID]models.Subscription
	usage         map[usageKey]models.UsageMetric
	leads         map[uuid.UUID]models.Lead
	listings      map[uuid.UUID]models.ProductListing
}

var _ store.Store = (*Store)(nil)

// Option customizes the memory store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty memory store.
func New(opts ...Option) *Store {
	s := &Store{
		mu:  &sync.Mutex{},
		st:  newState(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newState() *state {
	return &state{
		accounts:      map[uuid.UUID]models.Account{},
		emails:        map[string]uuid.UUID{},
		plans:         map[uuid.UUID]models.Plan{},
		subscriptions: map[uuid.UUID]models.Subscription{},
		usage:         map[usageKey]models.UsageMetric{},
		leads:         map[uuid.UUID]models.Lead{},
		listings:      map[uuid.UUID]models.ProductListing{},
	}
}

func (st *state) clone() *state {
	out := newState()
	for k, v := range st.accounts {
		out.accounts[k] = v
	}
	for k, v := range st.emails {
		out.emails[k] = v
	}
	for k, v := range st.plans {
		out.plans[k] = clonePlan(v)
	}
	for k, v := range st.subscriptions {
		out.subscriptions[k] = cloneSubscription(v)
	}
	for k, v := range st.usage {
		out.usage[k] = v
	}
	for k, v := range st.leads {
		out.leads[k] = v
	}
	for k, v := range st.listings {
		out.listings[k] = cloneListing(v)
	}
	return out
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// WithTx runs fn with exclusive access to the store. Writes made by fn are
// discarded if it returns an error or panics.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) (err error) {
	if s.tx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	tx := &Store{mu: noopLocker{}, st: s.st, now: s.now, tx: true}

	defer func() {
		if r := recover(); r != nil {
			*s.st = *snapshot
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		*s.st = *snapshot
	}
	return err
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Accounts

func (s *Store) CreateAccount(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.st.emails[account.Email]; taken {
		return store.ErrDuplicateEmail
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := s.stamp()
	account.CreatedAt, account.UpdatedAt = now, now
	s.st.accounts[account.ID] = *account
	s.st.emails[account.Email] = account.ID
	return nil
}

func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.st.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &account, nil
}

func (s *Store) GetAccountByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.st.emails[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	account := s.st.accounts[id]
	return &account, nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.st.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	account.PasswordHash = hash
	account.UpdatedAt = s.stamp()
	s.st.accounts[id] = account
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.st.accounts[id]
	if !ok {
		return nil
	}
	delete(s.st.emails, account.Email)
	delete(s.st.accounts, id)
	return nil
}

func (s *Store) ListAccountsWithoutActiveSubscription(_ context.Context, limit int) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	covered := map[uuid.UUID]bool{}
	for _, sub := range s.st.subscriptions {
		if sub.Active {
			covered[sub.AccountID] = true
		}
	}
	out := []models.Account{}
	for id, account := range s.st.accounts {
		if !covered[id] {
			out = append(out, account)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Plans

func (s *Store) CountPlans(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.st.plans)), nil
}

func (s *Store) CreatePlans(_ context.Context, plans []models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := map[string]bool{}
	for _, existing := range s.st.plans {
		names[existing.Name] = true
	}
	for i := range plans {
		if names[plans[i].Name] {
			return store.ErrDuplicatePlan
		}
		names[plans[i].Name] = true
	}

	now := s.stamp()
	for i := range plans {
		if plans[i].ID == uuid.Nil {
			plans[i].ID = uuid.New()
		}
		plans[i].CreatedAt, plans[i].UpdatedAt = now, now
		s.st.plans[plans[i].ID] = clonePlan(plans[i])
	}
	return nil
}

func (s *Store) ListPlans(context.Context) ([]models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Plan, 0, len(s.st.plans))
	for _, p := range s.st.plans {
		out = append(out, clonePlan(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder == out[j].SortOrder {
			return out[i].Name < out[j].Name
		}
		return out[i].SortOrder < out[j].SortOrder
	})
	return out, nil
}

func (s *Store) GetPlan(_ context.Context, id uuid.UUID) (*models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.st.plans[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p = clonePlan(p)
	return &p, nil
}

func (s *Store) GetPlanByName(_ context.Context, name string) (*models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.st.plans {
		if p.Name == name {
			p = clonePlan(p)
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

// Subscriptions

func (s *Store) CreateSubscription(_ context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.CreditsRemaining < 0 {
		return store.ErrInvalidAmount
	}
	if sub.Active {
		if _, ok := s.st.activeFor(sub.AccountID); ok {
			return store.ErrActiveSubscriptionExists
		}
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := s.stamp()
	if sub.StartedAt.IsZero() {
		sub.StartedAt = now
	}
	sub.CreatedAt, sub.UpdatedAt = now, now
	s.st.subscriptions[sub.ID] = cloneSubscription(*sub)
	return nil
}

func (st *state) activeFor(accountID uuid.UUID) (models.Subscription, bool) {
	for _, sub := range st.subscriptions {
		if sub.AccountID == accountID && sub.Active {
			return sub, true
		}
	}
	return models.Subscription{}, false
}

func (s *Store) GetSubscription(_ context.Context, id uuid.UUID) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.st.subscriptions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sub = cloneSubscription(sub)
	return &sub, nil
}

func (s *Store) GetActiveSubscription(_ context.Context, accountID uuid.UUID) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.st.activeFor(accountID)
	if !ok {
		return nil, store.ErrNotFound
	}
	sub = cloneSubscription(sub)
	return &sub, nil
}

func (s *Store) UpdateSubscription(_ context.Context, id uuid.UUID, patch store.SubscriptionPatch) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.st.subscriptions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if patch.Active != nil && *patch.Active && !sub.Active {
		if _, exists := s.st.activeFor(sub.AccountID); exists {
			return nil, store.ErrActiveSubscriptionExists
		}
	}
	if patch.CreditsRemaining != nil {
		sub.CreditsRemaining = store.ClampCredits(*patch.CreditsRemaining)
	}
	if patch.Active != nil {
		sub.Active = *patch.Active
	}
	if patch.EndedAt != nil {
		ended := patch.EndedAt.UTC()
		sub.EndedAt = &ended
	}
	sub.UpdatedAt = s.stamp()
	s.st.subscriptions[id] = sub
	sub = cloneSubscription(sub)
	return &sub, nil
}

func (s *Store) DebitCredits(_ context.Context, id uuid.UUID, amount int) (*models.Subscription, error) {
	if amount <= 0 {
		return nil, store.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.st.subscriptions[id]
	if !ok || !sub.Active {
		return nil, store.ErrNotFound
	}
	if sub.Unlimited() {
		sub = cloneSubscription(sub)
		return &sub, nil
	}
	if sub.CreditsRemaining < amount {
		return nil, store.ErrInsufficientCredits
	}
	sub.CreditsRemaining -= amount
	sub.UpdatedAt = s.stamp()
	s.st.subscriptions[id] = sub
	sub = cloneSubscription(sub)
	return &sub, nil
}

func (s *Store) DeactivateSubscriptions(_ context.Context, accountID uuid.UUID, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.stamp()
	ended := endedAt.UTC()
	for id, sub := range s.st.subscriptions {
		if sub.AccountID != accountID || !sub.Active {
			continue
		}
		sub.Active = false
		sub.EndedAt = &ended
		sub.UpdatedAt = now
		s.st.subscriptions[id] = sub
	}
	return nil
}

func (s *Store) DeleteSubscriptionsByAccount(_ context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sub := range s.st.subscriptions {
		if sub.AccountID == accountID {
			delete(s.st.subscriptions, id)
		}
	}
	return nil
}

// Usage

func (s *Store) AddUsage(_ context.Context, accountID uuid.UUID, day string, capability enums.Capability, credits int) (*models.UsageMetric, error) {
	if credits < 0 || !capability.IsValid() {
		return nil, store.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.stamp()
	key := usageKey{accountID: accountID, day: day}
	row, ok := s.st.usage[key]
	if !ok {
		row = models.UsageMetric{ID: uuid.New(), AccountID: accountID, Day: day, CreatedAt: now}
	}
	row.Add(capability, credits)
	row.UpdatedAt = now
	s.st.usage[key] = row
	return &row, nil
}

func (s *Store) GetUsage(_ context.Context, accountID uuid.UUID, day string) (*models.UsageMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.st.usage[usageKey{accountID: accountID, day: day}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &row, nil
}

func (s *Store) ListUsageSince(_ context.Context, accountID uuid.UUID, fromDay string) ([]models.UsageMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.UsageMetric{}
	for key, row := range s.st.usage {
		if key.accountID == accountID && strings.Compare(key.day, fromDay) >= 0 {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (s *Store) DeleteUsageByAccount(_ context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.st.usage {
		if key.accountID == accountID {
			delete(s.st.usage, key)
		}
	}
	return nil
}

// Leads

func (s *Store) CreateLead(_ context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	lead.CreatedAt = s.stamp()
	s.st.leads[lead.ID] = *lead
	return nil
}

// Product listings

func (s *Store) CreateProductListing(_ context.Context, listing *models.ProductListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if listing.ID == uuid.Nil {
		listing.ID = uuid.New()
	}
	if listing.Status == "" {
		listing.Status = enums.ListingStatusDraft
	}
	now := s.stamp()
	listing.CreatedAt, listing.UpdatedAt = now, now
	s.st.listings[listing.ID] = cloneListing(*listing)
	return nil
}

func (s *Store) GetProductListing(_ context.Context, accountID, id uuid.UUID) (*models.ProductListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.st.listings[id]
	if !ok || listing.AccountID != accountID {
		return nil, store.ErrNotFound
	}
	listing = cloneListing(listing)
	return &listing, nil
}

func (s *Store) ListProductListings(_ context.Context, accountID uuid.UUID, page store.ListingPage) ([]models.ProductListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.ProductListing{}
	for _, listing := range s.st.listings {
		if listing.AccountID != accountID {
			continue
		}
		if page.Before != nil && !olderThan(listing, *page.Before) {
			continue
		}
		out = append(out, cloneListing(listing))
	}
	sort.Slice(out, func(i, j int) bool {
		return olderThan(out[j], store.ListingCursor{CreatedAt: out[i].CreatedAt, ID: out[i].ID})
	})
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out, nil
}

// olderThan orders listings by (created_at, id) descending.
func olderThan(l models.ProductListing, c store.ListingCursor) bool {
	if l.CreatedAt.Equal(c.CreatedAt) {
		return l.ID.String() < c.ID.String()
	}
	return l.CreatedAt.Before(c.CreatedAt)
}

func (s *Store) DeleteProductListing(_ context.Context, accountID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.st.listings[id]
	if !ok || listing.AccountID != accountID {
		return store.ErrNotFound
	}
	delete(s.st.listings, id)
	return nil
}

func (s *Store) DeleteProductListingsByAccount(_ context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, listing := range s.st.listings {
		if listing.AccountID == accountID {
			delete(s.st.listings, id)
		}
	}
	return nil
}

func clonePlan(p models.Plan) models.Plan {
	if p.Features != nil {
		p.Features = append([]string(nil), p.Features...)
	}
	if p.PriceCents != nil {
		v := *p.PriceCents
		p.PriceCents = &v
	}
	if p.ProductCredits != nil {
		v := *p.ProductCredits
		p.ProductCredits = &v
	}
	return p
}

func cloneSubscription(sub models.Subscription) models.Subscription {
	if sub.CreditsTotal != nil {
		v := *sub.CreditsTotal
		sub.CreditsTotal = &v
	}
	if sub.EndedAt != nil {
		v := *sub.EndedAt
		sub.EndedAt = &v
	}
	return sub
}

func cloneListing(l models.ProductListing) models.ProductListing {
	if l.Capabilities != nil {
		l.Capabilities = append([]enums.Capability(nil), l.Capabilities...)
	}
	return l
}
