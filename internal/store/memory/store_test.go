package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/commercepilot-backend/internal/store"
	"github.com/angelmondragon/commercepilot-backend/internal/store/storetest"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New()
	})
}

func TestWithTxRestoresOnPanic(t *testing.T) {
	s := New()
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = s.WithTx(ctx, func(tx store.Store) error {
			if err := tx.CreateAccount(ctx, &models.Account{Email: "p@x.com", PasswordHash: "h"}); err != nil {
				return err
			}
			panic("boom")
		})
	}()

	if _, err := s.GetAccountByEmail(ctx, "p@x.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected rollback after panic, got %v", err)
	}
}

func TestReturnedRowsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	plans := []models.Plan{{Name: "basic", DisplayName: "Basic", Features: []string{"one"}}}
	if err := s.CreatePlans(ctx, plans); err != nil {
		t.Fatal(err)
	}
	plans[0].Features[0] = "mutated"

	got, err := s.GetPlanByName(ctx, "basic")
	if err != nil {
		t.Fatal(err)
	}
	if got.Features[0] != "one" {
		t.Fatalf("caller mutation leaked into the store: %v", got.Features)
	}
}

func TestWithTxHonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.WithTx(ctx, func(store.Store) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancelled tx to be skipped, err=%v called=%v", err, called)
	}
}
