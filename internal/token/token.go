// Package token caches the site-level bearer token used for
// server-to-server calls to the booking API.
//
// Refresh is not serialized: concurrent requests that observe a stale entry
// may each exchange credentials. The exchange is idempotent and cheap, so
// the duplicate logins are accepted.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"serenity/gateway/internal/lib/logger/sl"
)

const (
	DefaultTTL           = 24 * time.Hour
	DefaultRefreshBuffer = 5 * time.Minute
)

// Source hands out a bearer token for site-level calls.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// Issued is the result of a username/password exchange. Expires is zero when
// the upstream did not declare a lifetime.
type Issued struct {
	Token   string
	Expires time.Time
}

// Issuer exchanges credentials for a token.
type Issuer interface {
	IssueToken(ctx context.Context, username, password string) (Issued, error)
}

type Credentials struct {
	Username string
	Password string
}

// Entry is what a Store keeps: the token and the time the cache policy
// considers it expired.
type Entry struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Store interface {
	Load(ctx context.Context) (Entry, bool, error)
	Save(ctx context.Context, e Entry) error
}

var ErrEmptyToken = errors.New("upstream issued an empty token")

type Cache struct {
	log    *slog.Logger
	issuer Issuer
	creds  Credentials
	store  Store

	ttl    time.Duration
	buffer time.Duration
	now    func() time.Time
}

type Option func(*Cache)

// WithTTL sets the fixed lifetime recorded for every fresh token. It is a
// policy value and is not derived from what the upstream declares.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

func WithRefreshBuffer(d time.Duration) Option {
	return func(c *Cache) { c.buffer = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

func NewCache(log *slog.Logger, issuer Issuer, creds Credentials, opts ...Option) *Cache {
	c := &Cache{
		log:    log.With(slog.String("component", "token")),
		issuer: issuer,
		creds:  creds,
		store:  NewMemoryStore(),
		ttl:    DefaultTTL,
		buffer: DefaultRefreshBuffer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the cached token while expiresAt minus the refresh buffer is
// still in the future, and exchanges the site credentials otherwise.
// Exchange failures are returned as is; there is no retry.
func (c *Cache) Token(ctx context.Context) (string, error) {
	const op = "token.Cache.Token"

	now := c.now()

	entry, ok, err := c.store.Load(ctx)
	if err != nil {
		c.log.Warn("token store load failed, refreshing", sl.Err(err))
		ok = false
	}
	if ok && entry.Value != "" && entry.ExpiresAt.Add(-c.buffer).After(now) {
		return entry.Value, nil
	}

	issued, err := c.issuer.IssueToken(ctx, c.creds.Username, c.creds.Password)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if issued.Token == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyToken)
	}

	fresh := Entry{Value: issued.Token, ExpiresAt: now.Add(c.ttl)}

	if declared, ok := declaredExpiry(issued); ok && declared.Before(fresh.ExpiresAt) {
		c.log.Warn("upstream token expires before the cache refresh window",
			slog.Time("declared_expiry", declared),
			slog.Time("policy_expiry", fresh.ExpiresAt),
		)
	}

	if err := c.store.Save(ctx, fresh); err != nil {
		c.log.Warn("token store save failed", sl.Err(err))
	}

	c.log.Debug("site token refreshed", slog.Time("expires_at", fresh.ExpiresAt))

	return fresh.Value, nil
}

// declaredExpiry reports the lifetime the upstream attached to the token,
// either in the issue response or as a JWT exp claim.
func declaredExpiry(iss Issued) (time.Time, bool) {
	if !iss.Expires.IsZero() {
		return iss.Expires, true
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(iss.Token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
