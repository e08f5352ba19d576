// Package booking translates the gateway's simplified operations into calls
// against the booking API and reshapes what comes back.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"serenity/gateway/internal/config"
	"serenity/gateway/internal/token"
	"serenity/gateway/internal/upstream"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrUnauthorized = errors.New("invalid credentials")
)

// MissingParamsError names required inputs that were absent.
type MissingParamsError struct {
	Fields []string
}

func (e *MissingParamsError) Error() string {
	return "missing required parameters: " + strings.Join(e.Fields, ", ")
}

// InvalidParamsError names inputs that were present but out of range.
type InvalidParamsError struct {
	Fields []string
}

func (e *InvalidParamsError) Error() string {
	return "invalid parameters: " + strings.Join(e.Fields, ", ")
}

// Upstream is the part of the booking API client the service needs.
type Upstream interface {
	Do(ctx context.Context, req upstream.Request, out any) error
	IssueToken(ctx context.Context, username, password string) (token.Issued, error)
}

type Service struct {
	log       *slog.Logger
	api       Upstream
	now        func() time.Time
	loginMode  string
	walkBudget time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithClientLoginMode picks how client logins are checked; see ClientLogin.
func WithClientLoginMode(mode string) Option {
	return func(s *Service) { s.loginMode = mode }
}

// WithWalkBudget caps how long one bookable-items walk may take. Pages still
// pending when it runs out are dropped and the result is marked partial.
func WithWalkBudget(d time.Duration) Option {
	return func(s *Service) { s.walkBudget = d }
}

func New(log *slog.Logger, api Upstream, opts ...Option) *Service {
	s := &Service{
		log:       log.With(slog.String("component", "booking")),
		api:       api,
		now:       time.Now,
		loginMode: config.ClientLoginValidate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoginMode reports the configured client login approximation.
func (s *Service) LoginMode() string {
	return s.loginMode
}

// Login exchanges a user's own credentials for an upstream token. An
// upstream rejection of the credentials is reported as ErrUnauthorized;
// upstream outages are returned as they are.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	const op = "booking.Login"

	issued, err := s.api.IssueToken(ctx, username, password)
	if err != nil {
		if rejected(err) {
			return "", fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, err)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if issued.Token == "" {
		return "", fmt.Errorf("%s: %w: empty token", op, ErrUnauthorized)
	}

	return issued.Token, nil
}

// rejected reports whether the upstream refused the supplied credentials,
// as opposed to failing for another reason.
func rejected(err error) bool {
	switch upstream.StatusCode(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}
