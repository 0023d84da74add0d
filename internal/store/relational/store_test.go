package relational

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/commercepilot-backend/internal/store"
	"github.com/angelmondragon/commercepilot-backend/internal/store/storetest"
	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	"github.com/angelmondragon/commercepilot-backend/pkg/db"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	client, err := db.New(ctx, config.DBConfig{
		Driver: config.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(ctx, client.DB()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := NewFromClient(client)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRelationalStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newSQLiteStore(t)
	})
}

func TestWithTxInsideTxJoinsOuter(t *testing.T) {
	s := newSQLiteStore(t)
	err := s.WithTx(context.Background(), func(tx store.Store) error {
		inner, ok := tx.(*Store)
		if !ok || !inner.tx {
			t.Fatalf("expected transactional store view")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
