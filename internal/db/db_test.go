package db

import (
	"context"
	"io/fs"
	"strings"
	"testing"
)

func TestPoolConfigApplyDefaults(t *testing.T) {
	cfg := PoolConfig{ConnString: "postgres://localhost/lms"}
	cfg.ApplyDefaults()

	if cfg.MaxConns != 20 || cfg.MinConns != 2 {
		t.Fatalf("unexpected conn bounds: max=%d min=%d", cfg.MaxConns, cfg.MinConns)
	}
	if cfg.MaxConnLifetime != 3600 || cfg.MaxConnIdleTime != 1800 {
		t.Fatalf("unexpected lifetimes: %d %d", cfg.MaxConnLifetime, cfg.MaxConnIdleTime)
	}
	if cfg.HealthCheckPeriod != 60 || cfg.ConnectTimeout != 10 {
		t.Fatalf("unexpected periods: %d %d", cfg.HealthCheckPeriod, cfg.ConnectTimeout)
	}
}

func TestPoolConfigApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := PoolConfig{ConnString: "postgres://localhost/lms", MaxConns: 7, MinConns: 1}
	cfg.ApplyDefaults()
	if cfg.MaxConns != 7 || cfg.MinConns != 1 {
		t.Fatalf("explicit values overwritten: max=%d min=%d", cfg.MaxConns, cfg.MinConns)
	}
}

func TestPoolConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PoolConfig
		wantErr bool
	}{
		{name: "missing conn string", cfg: PoolConfig{MaxConns: 1}, wantErr: true},
		{name: "min above max", cfg: PoolConfig{ConnString: "postgres://x", MaxConns: 1, MinConns: 2}, wantErr: true},
		{name: "valid", cfg: PoolConfig{ConnString: "postgres://x", MaxConns: 4, MinConns: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestNewPoolRejectsNilConfig(t *testing.T) {
	if _, err := NewPool(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNewPoolRejectsEmptyConnString(t *testing.T) {
	if _, err := NewPool(context.Background(), &PoolConfig{}); err == nil {
		t.Fatal("expected error for empty connection string")
	}
}

func TestMigrateRejectsBadInput(t *testing.T) {
	if err := Migrate("", Up); err == nil {
		t.Fatal("expected error for empty dsn")
	}
	if err := Migrate("postgres://localhost/lms", Direction("sideways")); err == nil {
		t.Fatal("expected error for unknown direction")
	}
}

func TestMigrationFSHasPairedFiles(t *testing.T) {
	entries, err := fs.ReadDir(MigrationFS, "migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %q", name)
		}
	}
	if len(ups) != 4 {
		t.Fatalf("expected 4 migrations, got %d", len(ups))
	}
	for v := range ups {
		if !downs[v] {
			t.Fatalf("migration %s has no down file", v)
		}
	}
}

func TestLegacyColumnsDropped(t *testing.T) {
	body, err := fs.ReadFile(MigrationFS, "migrations/000003_drop_legacy_session_columns.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, col := range []string{"current_session_id", "session_last_activity"} {
		if !strings.Contains(string(body), col) {
			t.Fatalf("legacy column %s not dropped", col)
		}
	}
}

func TestEmailUniqueIgnoresCase(t *testing.T) {
	body, err := fs.ReadFile(MigrationFS, "migrations/000004_unique_email_ci.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sql := string(body)
	if !strings.Contains(sql, "CREATE UNIQUE INDEX") || !strings.Contains(sql, "lower(email)") {
		t.Fatalf("email uniqueness is not case-insensitive:\n%s", sql)
	}
	if !strings.Contains(sql, "DROP CONSTRAINT IF EXISTS users_email_key") {
		t.Fatal("case-sensitive constraint left in place")
	}
}
