package config

import (
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_Success(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Env != "prod" {
		t.Fatalf("expected App.Env to be prod, got %q", cfg.App.Env)
	}
	if !cfg.App.IsProd() || cfg.App.IsDev() {
		t.Fatalf("unexpected env helpers for %q", cfg.App.Env)
	}
	if cfg.DB.Driver != DriverMemory {
		t.Fatalf("expected memory driver by default, got %q", cfg.DB.Driver)
	}
	if cfg.Password.BcryptCost != 10 {
		t.Fatalf("expected bcrypt cost 10, got %d", cfg.Password.BcryptCost)
	}
	if got := cfg.Session.TTL; got != 168*time.Hour {
		t.Fatalf("expected session ttl 168h, got %v", got)
	}
	if cfg.Session.SameSiteMode() != http.SameSiteLaxMode {
		t.Fatalf("expected lax same-site by default")
	}
	if cfg.Redis.Enabled() {
		t.Fatalf("redis should be disabled without url or address")
	}
	if cfg.Usage.DefaultHistoryDays != 7 || cfg.Usage.MaxHistoryDays != 90 {
		t.Fatalf("unexpected usage defaults %+v", cfg.Usage)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setMinimalEnv(t)
	if err := os.Unsetenv(EnvAppEnv); err != nil {
		t.Fatalf("failed to unset %s: %v", EnvAppEnv, err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected missing required env to return an error")
	}
}

func TestLoad_RejectsShortHashKey(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvSessionHashKey, "too-short")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), EnvSessionHashKey) {
		t.Fatalf("expected hash key error, got %v", err)
	}
}

func TestLoad_RejectsBcryptCostOutOfRange(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvBcryptCost, "2")

	if _, err := Load(); err == nil {
		t.Fatal("expected bcrypt cost validation error")
	}
}

func TestLoad_SQLiteRequiresDSN(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvDBDriver, DriverSQLite)

	if _, err := Load(); err == nil {
		t.Fatal("expected sqlite without dsn to fail")
	}

	t.Setenv(EnvDBDSN, "file:commercepilot.db")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.DB.IsRelational() {
		t.Fatalf("sqlite should be relational")
	}
}

func TestLoad_PostgresBuildsDSNFromLegacyVars(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvDBDriver, DriverPostgres)
	t.Setenv(EnvDBHost, "db.internal")
	t.Setenv(EnvDBUser, "pilot")
	t.Setenv(EnvDBName, "commercepilot")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "postgres://pilot@db.internal:5432/commercepilot?sslmode=disable"
	if cfg.DB.DSN != want {
		t.Fatalf("expected dsn %q, got %q", want, cfg.DB.DSN)
	}
}

func TestLoad_UnknownDriver(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvDBDriver, "mongo")

	if _, err := Load(); err == nil {
		t.Fatal("expected unknown driver to fail")
	}
}

func TestLoadDB_DoesNotNeedSessionKeys(t *testing.T) {
	t.Setenv(EnvSessionHashKey, "short")
	t.Setenv(EnvDBDriver, DriverPostgres)
	t.Setenv(EnvDBDSN, "postgres://pilot@localhost:5432/commercepilot")

	db, err := LoadDB()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db.DSN != "postgres://pilot@localhost:5432/commercepilot" {
		t.Fatalf("unexpected dsn %q", db.DSN)
	}

	t.Setenv(EnvDBDriver, DriverSQLite)
	t.Setenv(EnvDBDSN, "")
	if _, err := LoadDB(); err == nil {
		t.Fatal("expected sqlite without dsn to fail")
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv(EnvAppEnv, "prod")
	t.Setenv(EnvSessionHashKey, "0123456789abcdef0123456789abcdef")
}
