package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.yaml")
	content := `default: jwt
guards:
  jwt:
    driver: jwt
    token:
      secret: file-secret
      ttl: 1h
      refresh_ttl: 336h
      revocation_enabled: true
      revocation_grace: 90s
  api:
    driver: key
    key:
      header_name: X-API-Key
      keys:
        - abc123
      rate_limit_enabled: true
      rate_limit_max: 60
      rate_limit_window: 1m
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Default != "jwt" {
		t.Fatalf("default = %q", cfg.Default)
	}
	token := cfg.Guards["jwt"].Token
	if token.Secret != "file-secret" || token.TTL != time.Hour || token.RevocationGrace != 90*time.Second {
		t.Fatalf("token config = %+v", token)
	}
	if !token.RevocationEnabled {
		t.Fatal("revocation_enabled not parsed")
	}
	key := cfg.Guards["api"].Key
	if key.RateLimitMax != 60 || key.RateLimitWindow != time.Minute || len(key.Keys) != 1 {
		t.Fatalf("key config = %+v", key)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file must fail")
	}
}
