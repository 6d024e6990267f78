package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.BasePath != "/v0" || cfg.Wizard.SubmitDelay != 1500*time.Millisecond {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Wizard.SessionTTL != 24*time.Hour || cfg.Redis.DedupTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl defaults %+v", cfg)
	}
}

func TestFromYAMLKeepsDefaultsForMissingSections(t *testing.T) {
	cfg, err := FromYAML([]byte("server:\n  addr: 0.0.0.0:9000\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Fatalf("addr not applied: %s", cfg.Server.Addr)
	}
	if cfg.Wizard.SweepInterval != 5*time.Minute {
		t.Fatalf("default sweep interval lost: %s", cfg.Wizard.SweepInterval)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad base path":   "server:\n  base_path: v0\n",
		"negative delay":  "wizard:\n  submit_delay: -1s\n",
		"ttl no interval": "wizard:\n  session_ttl: 1h\n  sweep_interval: 0s\n",
		"webhook no url":  "webhooks:\n  - events: [bounty.submitted]\n",
		"webhook scheme":  "webhooks:\n  - url: ftp://example.com\n",
		"bad yaml":        "server: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestWebhookEnabledDefault(t *testing.T) {
	cfg, err := FromYAML([]byte("webhooks:\n  - url: https://example.com/hook\n  - url: https://example.com/off\n    enabled: false\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.Webhooks[0].IsEnabled() || cfg.Webhooks[1].IsEnabled() {
		t.Fatalf("unexpected enabled flags")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("expected nil config, got %v %v", cfg, err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("load: %v", err)
	}
}
