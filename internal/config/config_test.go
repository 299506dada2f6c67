package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Fatalf("cache ttl = %s, want 30s", cfg.Cache.TTL)
	}
	if cfg.Refresh.InitialDelay != 4*time.Second || cfg.Refresh.Interval != 3*time.Second || cfg.Refresh.Attempts != 4 {
		t.Fatalf("unexpected refresh defaults: %+v", cfg.Refresh)
	}
	if cfg.Explorer.MaxRetries != 3 || cfg.Explorer.RetryDelay != time.Second {
		t.Fatalf("unexpected explorer defaults: %+v", cfg.Explorer)
	}
	if cfg.Pager.PageSize != 5 {
		t.Fatalf("page size = %d, want 5", cfg.Pager.PageSize)
	}
	if cfg.Contracts.BaseAssetDecimal != 6 {
		t.Fatalf("base asset decimals = %d, want 6", cfg.Contracts.BaseAssetDecimal)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("cache:\n  ttl: 10s\npager:\n  page_size: 10\nproxy:\n  chain_id: 1\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Cache.TTL != 10*time.Second {
		t.Fatalf("cache ttl = %s, want 10s", cfg.Cache.TTL)
	}
	if cfg.Pager.PageSize != 10 {
		t.Fatalf("page size = %d, want 10", cfg.Pager.PageSize)
	}
	if cfg.Proxy.ChainID != 1 {
		t.Fatalf("chain id = %d, want 1", cfg.Proxy.ChainID)
	}
}

func TestValidateRejectsBadAddress(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Contracts.BaseAsset = "not-an-address"

	err = cfg.Validate()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidateTelegramRequiresCredentials(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Alerting.Telegram.Enabled = true

	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("telegram without token should fail, got %v", err)
	}
}

func TestResolveMaxRecords(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxRecords: 50}}
	if got := cfg.ResolveMaxRecords(0); got != 50 {
		t.Fatalf("got %d, want 50", got)
	}
	if got := cfg.ResolveMaxRecords(7); got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}
