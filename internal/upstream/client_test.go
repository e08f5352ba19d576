package upstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"
	"time"

	"serenity/gateway/internal/upstream/upstreamtest"
)

type staticSource struct {
	token string
	calls int
	err   error
}

func (s *staticSource) Token(context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

func newTestClient(t *testing.T) (*Client, *upstreamtest.Server, *staticSource) {
	t.Helper()
	srv := upstreamtest.New(t)
	c := New(slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		BaseURL: srv.URL + "/",
		APIKey:  "api-key",
		SiteID:  "-99",
		Timeout: 5 * time.Second,
	})
	src := &staticSource{token: "site-token"}
	c.SetTokenSource(src)
	return c, srv, src
}

func TestDoSendsSiteHeaders(t *testing.T) {
	c, srv, src := newTestClient(t)
	srv.JSON(http.MethodGet, "/site/locations", http.StatusOK, map[string]any{
		"Locations": []map[string]any{{"Id": 1, "Name": "Downtown"}},
	})

	var out struct {
		Locations []struct {
			ID   int    `json:"Id"`
			Name string `json:"Name"`
		} `json:"Locations"`
	}
	err := c.Do(context.Background(), Request{Path: "/site/locations", Query: url.Values{"LocationIds": {"1", "2"}}}, &out)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	if len(out.Locations) != 1 || out.Locations[0].Name != "Downtown" {
		t.Fatalf("out = %+v", out)
	}

	call := srv.Calls("/site/locations")[0]
	if got := call.Header.Get(HeaderAPIKey); got != "api-key" {
		t.Errorf("Api-Key = %q", got)
	}
	if got := call.Header.Get(HeaderSiteID); got != "-99" {
		t.Errorf("SiteId = %q", got)
	}
	if got := call.Header.Get("Authorization"); got != "Bearer site-token" {
		t.Errorf("Authorization = %q", got)
	}
	if got := call.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := call.Query["LocationIds"]; len(got) != 2 {
		t.Errorf("LocationIds = %v", got)
	}
	if src.calls != 1 {
		t.Errorf("token source calls = %d", src.calls)
	}
}

func TestDoPrefersUserToken(t *testing.T) {
	c, srv, src := newTestClient(t)
	srv.JSON(http.MethodGet, "/site/locations", http.StatusOK, map[string]any{})

	err := c.Do(context.Background(), Request{Path: "/site/locations", UserToken: "user-token"}, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	if got := srv.Calls("/site/locations")[0].Header.Get("Authorization"); got != "Bearer user-token" {
		t.Errorf("Authorization = %q", got)
	}
	if src.calls != 0 {
		t.Errorf("site token fetched %d times, want 0", src.calls)
	}
}

func TestDoReturnsTypedError(t *testing.T) {
	c, srv, _ := newTestClient(t)
	srv.Fail(http.MethodPost, "/client/addclient", http.StatusBadRequest, "Duplicate client email")

	err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/client/addclient", Body: map[string]string{}}, nil)

	ue, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if ue.StatusCode != http.StatusBadRequest || ue.Message != "Duplicate client email" {
		t.Fatalf("error = %+v", ue)
	}
	if !ue.Contains("duplicate") {
		t.Error("Contains should match case-insensitively")
	}
	if len(ue.Payload) == 0 {
		t.Error("payload should be kept")
	}
}

func TestDoSiteTokenFailure(t *testing.T) {
	c, srv, src := newTestClient(t)
	src.err = errors.New("login rejected")

	err := c.Do(context.Background(), Request{Path: "/site/locations"}, nil)
	if !errors.Is(err, src.err) || !errors.Is(err, ErrSiteAuth) {
		t.Fatalf("err = %v", err)
	}
	if srv.TotalCalls() != 0 {
		t.Fatalf("upstream called %d times", srv.TotalCalls())
	}
}

func TestDoTransportError(t *testing.T) {
	c, srv, _ := newTestClient(t)
	srv.Close()

	err := c.Do(context.Background(), Request{Path: "/site/locations"}, nil)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if _, ok := AsError(err); ok {
		t.Fatal("transport failure must not look like an upstream status")
	}
}

func TestIssueToken(t *testing.T) {
	c, srv, src := newTestClient(t)
	srv.JSON(http.MethodPost, "/usertoken/issue", http.StatusOK, map[string]any{
		"TokenType":   "Bearer",
		"AccessToken": "fresh",
		"Expires":     "2026-03-02T10:00:00Z",
	})

	issued, err := c.IssueToken(context.Background(), "owner", "secret")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if issued.Token != "fresh" || issued.Expires.IsZero() {
		t.Fatalf("issued = %+v", issued)
	}

	call := srv.Calls("/usertoken/issue")[0]
	var body map[string]string
	if err := call.Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["Username"] != "owner" || body["Password"] != "secret" {
		t.Errorf("body = %v", body)
	}
	if call.Header.Get("Authorization") != "" {
		t.Error("token issue must not send a bearer")
	}
	if src.calls != 0 {
		t.Error("token issue must not consult the token source")
	}
}

func TestIssueTokenRejected(t *testing.T) {
	c, srv, _ := newTestClient(t)
	srv.Fail(http.MethodPost, "/usertoken/issue", http.StatusUnauthorized, "Invalid credentials")

	_, err := c.IssueToken(context.Background(), "owner", "wrong")
	if StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("err = %v", err)
	}
}

func TestDoUsesContextUserToken(t *testing.T) {
	c, srv, src := newTestClient(t)
	srv.JSON(http.MethodGet, "/staff/staff", http.StatusOK, map[string]any{})

	ctx := WithUserToken(context.Background(), "from-ctx")
	if err := c.Do(ctx, Request{Path: "/staff/staff"}, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}

	if got := srv.Calls("/staff/staff")[0].Header.Get("Authorization"); got != "Bearer from-ctx" {
		t.Errorf("Authorization = %q", got)
	}
	if src.calls != 0 {
		t.Errorf("site token fetched %d times", src.calls)
	}
}
