package migrate

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := ValidateFS(Migrations, EmbeddedDir); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestInitSchemaCarriesLedgerConstraints(t *testing.T) {
	b, err := fs.ReadFile(Migrations, EmbeddedDir+"/20260301120000_init_schema.sql")
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}
	sql := string(b)

	for _, want := range []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_email ON accounts (email)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_plans_name ON plans (name)",
		"idx_subscriptions_one_active",
		"WHERE active = true",
		"CHECK (credits_remaining >= 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_usage_metrics_account_day ON usage_metrics (account_id, day)",
		"DROP TABLE IF EXISTS accounts",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("init migration missing %q", want)
		}
	}
	if strings.Contains(strings.ToLower(sql), "lower(email)") {
		t.Errorf("email uniqueness must stay case-sensitive")
	}
}

func TestCreateSQLMigrationPassesValidation(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Listing Tags!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(filepath.Base(path), "_add_listing_tags.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "1_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected filename error")
	}

	dir = t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20260101000000_no_down.sql"), []byte("-- +goose Up\nSELECT 1;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected missing down error")
	}
}

func TestRunRequiresDB(t *testing.T) {
	if err := RunEmbedded(context.Background(), nil, "up"); err == nil {
		t.Fatal("expected error for nil db")
	}
	if err := Run(context.Background(), nil, "", "up"); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"bad-name.sql":                    "-- +goose Up\n-- +goose Down\n",
		"20260101000000_a_first.sql":      "-- +goose Up\n",
		"20260101000000_b_duplicate.sql":  "-- +goose Up\n-- +goose Down\n",
		"20260102000000_fine.sql":         "-- +goose Up\n-- +goose Down\n",
		"20260103000000_notes_ignored.md": "not sql",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	err := ValidateDir(dir)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if got := len(multierr.Errors(err)); got != 3 {
		t.Fatalf("expected 3 problems, got %d: %v", got, err)
	}
}

func TestCreateSQLMigrationRefusesOverwrite(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "seed plans")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20260301120000_seed_plans.sql" {
		t.Fatalf("unexpected filename %s", path)
	}
	if _, err := CreateSQLMigration(dir, "seed plans"); err == nil {
		t.Fatal("expected second create with the same version to fail")
	}
	if _, err := CreateSQLMigration(dir, "!!!"); err == nil {
		t.Fatal("expected empty slug to fail")
	}
}
