package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestApplyEnvOverridesDefaults(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, envMap(map[string]string{
		"PORT":                 "8080",
		"MINDBODY_API_KEY":     "key",
		"MINDBODY_SITE_ID":     "-99",
		"TOKEN_TTL":            "12h",
		"CORS_ALLOWED_ORIGINS": "https://spa.example, http://localhost:5173",
		"RATE_LIMIT_RPS":       "2.5",
		"DEBUG_ROUTES":         "true",
		"TRUST_PROXY_HEADERS":  "true",
	}))
	if err != nil {
		t.Fatalf("applyEnv: %v", err)
	}

	if cfg.HTTPServer.Address != ":8080" {
		t.Errorf("address = %q", cfg.HTTPServer.Address)
	}
	if cfg.Token.TTL != 12*time.Hour {
		t.Errorf("ttl = %v", cfg.Token.TTL)
	}
	if cfg.Token.RefreshBuffer != 5*time.Minute {
		t.Errorf("buffer = %v, want default", cfg.Token.RefreshBuffer)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "http://localhost:5173" {
		t.Errorf("origins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.RateLimit.RPS != 2.5 || !cfg.Debug {
		t.Errorf("rps = %v debug = %v", cfg.RateLimit.RPS, cfg.Debug)
	}
	if !cfg.HTTPServer.TrustProxy || Default().HTTPServer.TrustProxy {
		t.Errorf("trust proxy = %v, default %v", cfg.HTTPServer.TrustProxy, Default().HTTPServer.TrustProxy)
	}
}

func TestApplyEnvRejectsBadDuration(t *testing.T) {
	cfg := Default()
	if err := applyEnv(&cfg, envMap(map[string]string{"UPSTREAM_TIMEOUT": "soon"})); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestValidateListsMissingCredentials(t *testing.T) {
	cfg := Default()
	cfg.Upstream.APIKey = "key"

	err := cfg.Validate()

	var missing *MissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingError, got %v", err)
	}
	want := []string{"MINDBODY_SITE_ID", "MINDBODY_USERNAME", "MINDBODY_PASSWORD"}
	if len(missing.Keys) != len(want) {
		t.Fatalf("keys = %v, want %v", missing.Keys, want)
	}
	for i := range want {
		if missing.Keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, missing.Keys[i], want[i])
		}
	}
}

func TestValidateLoginMode(t *testing.T) {
	cfg := Default()
	cfg.Upstream = Upstream{APIKey: "k", SiteID: "s", Username: "u", Password: "p"}
	cfg.Clients.LoginMode = "magic"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown login mode")
	}
}

func TestLoadFromYAML(t *testing.T) {
	for _, key := range []string{"MINDBODY_API_KEY", "MINDBODY_SITE_ID", "MINDBODY_USERNAME", "MINDBODY_PASSWORD", "CLIENT_LOGIN_MODE", "PORT", "HTTP_ADDRESS"} {
		t.Setenv(key, "")
	}

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	data := []byte(`
env: prod
http_server:
  address: ":9000"
upstream:
  api_key: yaml-key
  site_id: "-99"
  username: owner
  password: secret
  timeout: 5s
clients:
  login_mode: email-match
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "prod" || cfg.HTTPServer.Address != ":9000" {
		t.Errorf("env = %q address = %q", cfg.Env, cfg.HTTPServer.Address)
	}
	if cfg.Upstream.Timeout != 5*time.Second || cfg.Upstream.APIKey != "yaml-key" {
		t.Errorf("upstream = %+v", cfg.Upstream)
	}
	if cfg.Clients.LoginMode != ClientLoginEmailMatch {
		t.Errorf("login mode = %q", cfg.Clients.LoginMode)
	}
	if cfg.Token.TTL != 24*time.Hour {
		t.Errorf("ttl = %v, want default", cfg.Token.TTL)
	}
}

func TestWalkBudgetFitsWriteTimeout(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    time.Duration
	}{
		{30 * time.Second, 25 * time.Second},
		{12 * time.Second, 10 * time.Second},
		{0, 0},
	}

	for _, tt := range tests {
		cfg := Default()
		cfg.HTTPServer.Timeout = tt.timeout
		if got := cfg.WalkBudget(); got != tt.want {
			t.Errorf("WalkBudget(%s) = %s, want %s", tt.timeout, got, tt.want)
		}
	}
}
