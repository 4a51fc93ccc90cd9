package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`
service:
  name: hireline
auth:
  jwt_secret: s3cret
webhooks:
  - url: https://example.com/hook
    events: [APPLICATION_STATUS_CHANGED]
    timeout_seconds: 3
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Fatalf("jwt_secret = %q", cfg.Auth.JWTSecret)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].TimeoutSeconds != 3 {
		t.Fatalf("webhooks = %+v", cfg.Webhooks)
	}
}

func TestValidateRejectsBadWebhook(t *testing.T) {
	if _, err := FromYAML([]byte("webhooks:\n  - url: \"\"\n")); err == nil {
		t.Fatal("expected empty webhook url to fail")
	}
	if _, err := FromYAML([]byte("webhooks:\n  - url: https://ok\n    timeout_seconds: -1\n")); err == nil {
		t.Fatal("expected negative timeout to fail")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if cfg.Service.Name != "hireline" {
		t.Fatalf("default name = %q", cfg.Service.Name)
	}

	if err := os.WriteFile(filepath.Join(dir, "hireline.yml"), []byte("service:\n  name: custom\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.Name != "custom" {
		t.Fatalf("name = %q", cfg.Service.Name)
	}
}
