package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPPort != 3080 {
		t.Fatalf("unexpected default port: %d", cfg.HTTPPort)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("unexpected default backend: %q", cfg.DBBackend)
	}
	if cfg.DBDSN != "data/prevue.db" {
		t.Fatalf("unexpected derived sqlite DSN: %q", cfg.DBDSN)
	}
	if cfg.ScheduleBlockHours != 24 || cfg.ScheduleDayStartHour != 4 {
		t.Fatalf("unexpected schedule defaults: %d/%d", cfg.ScheduleBlockHours, cfg.ScheduleDayStartHour)
	}
	if !cfg.AllowPrivateURLs {
		t.Fatal("expected private URLs to be allowed by default")
	}
}

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("PREVUE_API_KEY", "sekrit")
	t.Setenv("SCHEDULE_DAY_START_HOUR", "6")
	t.Setenv("PREVUE_ALLOW_PRIVATE_URLS", "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("unexpected port: %d", cfg.HTTPPort)
	}
	if cfg.APIKey != "sekrit" {
		t.Fatalf("unexpected api key: %q", cfg.APIKey)
	}
	if cfg.ScheduleDayStartHour != 6 {
		t.Fatalf("unexpected day start hour: %d", cfg.ScheduleDayStartHour)
	}
	if cfg.AllowPrivateURLs {
		t.Fatal("expected private URLs to be rejected when env set to off")
	}
}

func TestLoadRejectsShortEncryptionKey(t *testing.T) {
	t.Setenv("DATA_ENCRYPTION_KEY", "tooshort")

	if _, err := Load(); err == nil {
		t.Fatal("expected config load to fail for short encryption key")
	}
}

func TestLoadRejectsOutOfRangeScheduleValues(t *testing.T) {
	t.Setenv("SCHEDULE_DAY_START_HOUR", "24")
	if _, err := Load(); err == nil {
		t.Fatal("expected config load to fail for day start hour 24")
	}

	t.Setenv("SCHEDULE_DAY_START_HOUR", "4")
	t.Setenv("SCHEDULE_BLOCK_HOURS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected config load to fail for zero block hours")
	}
}

func TestLoadRequiresDSNForServerBackends(t *testing.T) {
	t.Setenv("PREVUE_DB_BACKEND", "postgres")

	if _, err := Load(); err == nil {
		t.Fatal("expected config load to fail without a postgres DSN")
	}

	t.Setenv("PREVUE_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	if _, err := Load(); err != nil {
		t.Fatalf("expected postgres config load to succeed: %v", err)
	}
}
