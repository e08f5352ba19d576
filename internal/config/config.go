package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ClientLoginValidate   = "validate"
	ClientLoginEmailMatch = "email-match"
)

type Config struct {
	Env        string       `yaml:"env"`
	HTTPServer HTTPServer   `yaml:"http_server"`
	Upstream   Upstream     `yaml:"upstream"`
	Token      Token        `yaml:"token"`
	CORS       CORS         `yaml:"cors"`
	RateLimit  RateLimit    `yaml:"rate_limit"`
	Clients    ClientsRules `yaml:"clients"`
	Debug      bool         `yaml:"debug_routes"`
}

type HTTPServer struct {
	Address     string        `yaml:"address"`
	Timeout     time.Duration `yaml:"timeout"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites those headers.
	TrustProxy bool `yaml:"trust_proxy"`
}

type Upstream struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	SiteID   string        `yaml:"site_id"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
	// PassthroughStatus answers upstream failures with the upstream's own
	// status code instead of 500.
	PassthroughStatus bool `yaml:"passthrough_status"`
}

type Token struct {
	TTL           time.Duration `yaml:"ttl"`
	RefreshBuffer time.Duration `yaml:"refresh_buffer"`
	RedisURL      string        `yaml:"redis_url"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ClientsRules struct {
	LoginMode string `yaml:"login_mode"`
}

// Default returns the configuration used when neither a file nor the
// environment sets a value.
func Default() Config {
	return Config{
		Env: "local",
		HTTPServer: HTTPServer{
			Address:     ":3001",
			Timeout:     30 * time.Second,
			IdleTimeout: 120 * time.Second,
		},
		Upstream: Upstream{
			BaseURL: "https://api.mindbodyonline.com/public/v6",
			Timeout: 15 * time.Second,
		},
		Token: Token{
			TTL:           24 * time.Hour,
			RefreshBuffer: 5 * time.Minute,
		},
		CORS: CORS{
			AllowedOrigins: []string{"*"},
		},
		RateLimit: RateLimit{
			RPS:   10,
			Burst: 20,
		},
		Clients: ClientsRules{
			LoginMode: ClientLoginValidate,
		},
	}
}

// MissingError lists required settings that were left empty.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// FromFlags reads .env, the YAML file named by -config or CONFIG_PATH (if
// any) and the environment.
func FromFlags() (*Config, error) {
	return Load(fetchConfigPath())
}

// Load builds the configuration from defaults, then the YAML file at path
// (if path is not empty), then environment variables.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	// .env is optional; the process environment still applies without it.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%s: parse %s: %w", op, path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// WalkBudget is how long a paginated upstream walk may run so that its
// response still fits inside the server's write timeout.
func (c *Config) WalkBudget() time.Duration {
	return c.HTTPServer.Timeout - c.HTTPServer.Timeout/6
}

// Validate fails when credentials are missing so the gateway never calls
// the upstream with blank values.
func (c *Config) Validate() error {
	var missing []string
	if c.Upstream.APIKey == "" {
		missing = append(missing, "MINDBODY_API_KEY")
	}
	if c.Upstream.SiteID == "" {
		missing = append(missing, "MINDBODY_SITE_ID")
	}
	if c.Upstream.Username == "" {
		missing = append(missing, "MINDBODY_USERNAME")
	}
	if c.Upstream.Password == "" {
		missing = append(missing, "MINDBODY_PASSWORD")
	}
	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}

	switch c.Clients.LoginMode {
	case ClientLoginValidate, ClientLoginEmailMatch:
	default:
		return fmt.Errorf("unknown CLIENT_LOGIN_MODE %q", c.Clients.LoginMode)
	}

	if c.Token.TTL <= c.Token.RefreshBuffer {
		return errors.New("TOKEN_TTL must be longer than TOKEN_REFRESH_BUFFER")
	}

	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str("ENV", &cfg.Env)
	str("HTTP_ADDRESS", &cfg.HTTPServer.Address)
	if port, ok := lookup("PORT"); ok && port != "" {
		if port[0] != ':' {
			port = ":" + port
		}
		cfg.HTTPServer.Address = port
	}

	str("MINDBODY_BASE_URL", &cfg.Upstream.BaseURL)
	str("MINDBODY_API_KEY", &cfg.Upstream.APIKey)
	str("MINDBODY_SITE_ID", &cfg.Upstream.SiteID)
	str("MINDBODY_USERNAME", &cfg.Upstream.Username)
	str("MINDBODY_PASSWORD", &cfg.Upstream.Password)
	str("TOKEN_CACHE_REDIS_URL", &cfg.Token.RedisURL)
	str("CLIENT_LOGIN_MODE", &cfg.Clients.LoginMode)

	if v, ok := lookup("CORS_ALLOWED_ORIGINS"); ok && v != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}

	if v, ok := lookup("RATE_LIMIT_RPS"); ok && v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimit.RPS = rps
	}
	if v, ok := lookup("RATE_LIMIT_BURST"); ok && v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimit.Burst = burst
	}

	for key, dst := range map[string]*time.Duration{
		"HTTP_TIMEOUT":         &cfg.HTTPServer.Timeout,
		"HTTP_IDLE_TIMEOUT":    &cfg.HTTPServer.IdleTimeout,
		"UPSTREAM_TIMEOUT":     &cfg.Upstream.Timeout,
		"TOKEN_TTL":            &cfg.Token.TTL,
		"TOKEN_REFRESH_BUFFER": &cfg.Token.RefreshBuffer,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}

	if err := boolean("UPSTREAM_PASSTHROUGH_STATUS", &cfg.Upstream.PassthroughStatus); err != nil {
		return err
	}

	if err := boolean("TRUST_PROXY_HEADERS", &cfg.HTTPServer.TrustProxy); err != nil {
		return err
	}

	return boolean("DEBUG_ROUTES", &cfg.Debug)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
