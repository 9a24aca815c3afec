package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "authgate.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_YAMLWithDefaults(t *testing.T) {
	p := writeConfig(t, `
api:
  base_url: https://api.parishdesk.test
provider:
  domain: parishdesk.us.auth0.test
  client_id: cid
`)

	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.API.BaseURL != "https://api.parishdesk.test" {
		t.Fatalf("base_url: %q", c.API.BaseURL)
	}
	// defaults
	if c.API.Timeout != 10*time.Second {
		t.Fatalf("timeout default: %v", c.API.Timeout)
	}
	if c.Store.Driver != "file" {
		t.Fatalf("driver default: %q", c.Store.Driver)
	}
	if c.Claim.TTL != 10*time.Minute {
		t.Fatalf("claim ttl default: %v", c.Claim.TTL)
	}
	if c.Provider.RedirectURL != "http://127.0.0.1:8765/callback" {
		t.Fatalf("redirect default: %q", c.Provider.RedirectURL)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	p := writeConfig(t, `
api:
  base_url: https://from-yaml.test
store:
  driver: file
`)
	t.Setenv("AUTHGATE_API_URL", "https://from-env.test")
	t.Setenv("AUTHGATE_STORE_DRIVER", "memory")

	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.API.BaseURL != "https://from-env.test" {
		t.Fatalf("env override lost: %q", c.API.BaseURL)
	}
	if c.Store.Driver != "memory" {
		t.Fatalf("env override lost: %q", c.Store.Driver)
	}
}

func TestLoad_MissingFileUsesEnvOnly(t *testing.T) {
	t.Setenv("AUTHGATE_API_URL", "https://env-only.test")

	c, err := Load(filepath.Join(t.TempDir(), "no-existe.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.API.BaseURL != "https://env-only.test" {
		t.Fatalf("base_url: %q", c.API.BaseURL)
	}
}

func TestLoad_RequiresBaseURL(t *testing.T) {
	t.Setenv("AUTHGATE_API_URL", "")
	if _, err := Load(filepath.Join(t.TempDir(), "no-existe.yaml")); err == nil {
		t.Fatal("expected error without api.base_url")
	}
}

func TestValidate_StoreDriver(t *testing.T) {
	var c Config
	c.API.BaseURL = "https://api.test"

	c.Store.Driver = "mongo"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for unknown driver")
	}

	c.Store.Driver = "redis"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for redis driver without addr")
	}

	c.Store.Redis.Addr = "localhost:6379"
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}
