// Package upstream talks to the booking API. Every call carries the site's
// API key and site id plus a bearer token: the caller's own token when one
// is supplied, the cached site token otherwise.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"serenity/gateway/internal/token"
)

const (
	HeaderAPIKey = "Api-Key"
	HeaderSiteID = "SiteId"

	maxErrorBody = 64 << 10
)

type Client struct {
	baseURL    string
	apiKey     string
	siteID     string
	httpClient *http.Client
	tokens     token.Source
	log        *slog.Logger
}

type Options struct {
	BaseURL string
	APIKey  string
	SiteID  string
	Timeout time.Duration
}

func New(log *slog.Logger, opts Options) *Client {
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		siteID:     opts.SiteID,
		httpClient: &http.Client{Timeout: opts.Timeout},
		log:        log.With(slog.String("component", "upstream")),
	}
}

// SetTokenSource wires the site token provider. The cache itself issues
// tokens through this client, so it is attached after construction.
func (c *Client) SetTokenSource(src token.Source) {
	c.tokens = src
}

// Request describes one upstream call. Query values are sent as repeated
// keys. UserToken, when set, is used instead of the site token.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Body      any
	UserToken string
}

// Do issues the request and decodes the JSON body into out (skipped when out
// is nil). Non-2xx answers come back as *Error.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	const op = "upstream.Do"

	bearer := req.UserToken
	if bearer == "" {
		bearer = UserTokenFrom(ctx)
	}
	if bearer == "" {
		if c.tokens == nil {
			return fmt.Errorf("%s: %w", op, ErrNoTokenSource)
		}
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w: %w", op, ErrSiteAuth, err)
		}
		bearer = tok
	}

	return c.send(ctx, req, bearer, out)
}

// IssueToken exchanges a username and password for a bearer token. It never
// sends an Authorization header.
func (c *Client) IssueToken(ctx context.Context, username, password string) (token.Issued, error) {
	const op = "upstream.IssueToken"

	var resp struct {
		AccessToken string `json:"AccessToken"`
		Expires     string `json:"Expires"`
	}

	err := c.send(ctx, Request{
		Method: http.MethodPost,
		Path:   "/usertoken/issue",
		Body: map[string]string{
			"Username": username,
			"Password": password,
		},
	}, "", &resp)
	if err != nil {
		return token.Issued{}, fmt.Errorf("%s: %w", op, err)
	}

	issued := token.Issued{Token: resp.AccessToken}
	if exp, ok := ParseTime(resp.Expires); ok {
		issued.Expires = exp
	}
	return issued, nil
}

func (c *Client) send(ctx context.Context, req Request, bearer string, out any) error {
	const op = "upstream.send"

	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	httpReq.Header.Set(HeaderAPIKey, c.apiKey)
	httpReq.Header.Set(HeaderSiteID, c.siteID)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %s %s: %w", op, method, req.Path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("upstream call",
		slog.String("method", method),
		slog.String("path", req.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newError(method, req.Path, resp.StatusCode, raw)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%s: decode %s: %w", op, req.Path, err)
	}
	return nil
}

type userTokenKey struct{}

// WithUserToken attaches an end user's own bearer token to ctx. Calls made
// with that context use it instead of the site token.
func WithUserToken(ctx context.Context, tok string) context.Context {
	if tok == "" {
		return ctx
	}
	return context.WithValue(ctx, userTokenKey{}, tok)
}

func UserTokenFrom(ctx context.Context) string {
	tok, _ := ctx.Value(userTokenKey{}).(string)
	return tok
}
