package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/property"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

var tokenTestEpoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func signTestJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "interop",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("failed to sign jwt: %v", err)
	}
	return s
}

type tokenServer struct {
	*httptest.Server
	grants  atomic.Int32
	lastReq atomic.Value
	respond func(w http.ResponseWriter, n int32)
}

type capturedRequest struct {
	auth        string
	contentType string
	form        url.Values
}

func newTokenServer(t *testing.T, respond func(w http.ResponseWriter, n int32)) *tokenServer {
	t.Helper()
	ts := &tokenServer{respond: respond}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.grants.Add(1)
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		ts.lastReq.Store(capturedRequest{
			auth:        r.Header.Get("Authorization"),
			contentType: r.Header.Get("Content-Type"),
			form:        form,
		})
		ts.respond(w, n)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func jwtResponder(t *testing.T, clock *testClock, lifetime time.Duration) func(w http.ResponseWriter, n int32) {
	return func(w http.ResponseWriter, n int32) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": signTestJWT(t, clock.Now().Add(lifetime)),
			"token_type":   "Bearer",
			"scope":        "shr.write",
		})
	}
}

func newTestCache(t *testing.T, tokenURL string, clock *testClock, extra map[string]string) (*TokenCache, *property.MemoryStore) {
	t.Helper()
	values := map[string]string{
		property.KeySHRTokenURL:     tokenURL,
		property.KeySHRClientID:     "interop-client",
		property.KeySHRClientSecret: "s3cret",
		property.KeySHRScope:        "shr.write",
	}
	for k, v := range extra {
		values[k] = v
	}
	store := property.NewMemoryStore(values)
	props := property.NewReader(store, zerolog.Nop())
	tc := NewTokenCache(props, NewPropertyTokenStore(store), zerolog.Nop(),
		WithClock(clock.Now),
		WithHTTPClient(&http.Client{}),
	)
	return tc, store
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestTokenCache_ReusesValidToken(t *testing.T) {
	clock := &testClock{now: tokenTestEpoch}
	srv := newTokenServer(t, jwtResponder(t, clock, time.Hour))
	tc, _ := newTestCache(t, srv.URL, clock, nil)
	ctx := context.Background()

	first, err := tc.Token(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.Advance(30 * time.Minute)
	second, err := tc.Token(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Error("expected the cached token to be returned verbatim")
	}
	if got := srv.grants.Load(); got != 1 {
		t.Errorf("expected exactly 1 grant, got %d", got)
	}
}

func TestTokenCache_RegrantsAfterExpiry(t *testing.T) {
	clock := &testClock{now: tokenTestEpoch}
	srv := newTokenServer(t, jwtResponder(t, clock, time.Hour))
	tc, _ := newTestCache(t, srv.URL, clock, nil)
	ctx := context.Background()

	if _, err := tc.Token(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tc.Status(ctx) != StatusValid {
		t.Errorf("expected valid status, got %s", tc.Status(ctx))
	}

	clock.Advance(time.Hour)
	if tc.Status(ctx) != StatusExpired {
		t.Errorf("expected expired status at exp, got %s", tc.Status(ctx))
	}
	if _, err := tc.Token(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := srv.grants.Load(); got != 2 {
		t.Errorf("expected 2 grants, got %d", got)
	}
}

func TestTokenCache_ConcurrentCallersGrantOnce(t *testing.T) {
	clock := &testClock{now: tokenTestEpoch}
	srv := newTokenServer(t, func(w http.ResponseWriter, n int32) {
		time.Sleep(50 * time.Millisecond)
		jwtResponder(t, clock, time.Hour)(w, n)
	})
	tc, _ := newTestCache(t, srv.URL, clock, nil)

	var wg sync.WaitGroup
	tokens := make([]string, 20)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], _ = tc.Token(context.Background())
		}(i)
	}
	wg.Wait()

	if got := srv.grants.Load(); got != 1 {
		t.Errorf("expected exactly 1 grant, got %d", got)
	}
	for i, tok := range tokens {
		if tok == "" || tok != tokens[0] {
			t.Errorf("caller %d got a different token", i)
		}
	}
}

func TestTokenCache_GrantRequestFormat(t *testing.T) {
	clock := &testClock{now: tokenTestEpoch}
	srv := newTokenServer(t, jwtResponder(t, clock, time.Hour))
	tc, _ := newTestCache(t, srv.URL, clock, nil)

	if _, err := tc.Token(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := srv.lastReq.Load().(capturedRequest)
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("interop-client:s3cret"))
	if req.auth != wantAuth {
		t.Errorf("expected auth %q, got %q", wantAuth, req.auth)
	}
	if req.contentType != "application/x-www-form-urlencoded" {
		t.Errorf("expected form content type, got %q", req.contentType)
	}
	if req.form.Get("grant_type") != "client_credentials" {
		t.Errorf("expected grant_type client_credentials, got %q", req.form.Get("grant_type"))
	}
	if req.form.Get("scope") != "shr.write" {
		t.Errorf("expected scope shr.write, got %q", req.form.Get("scope"))
	}
}

func TestTokenCache_PersistsState(t *testing.T) {
	clock := &testClock{now: tokenTestEpoch}
	srv := newTokenServer(t, jwtResponder(t, clock, time.Hour))
	tc, store := newTestCache(t, srv.URL, clock, nil)

	tok, err := tc.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, _ := store.Get(context.Background(), property.KeySHRToken)
	var state TokenState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		t.Fatalf("stored token is not json: %v", err)
	}
	if state.AccessToken != tok {
		t.Error("expected stored access token to match returned token")
	}
	if state.ClientID != "interop-client" {
		t.Errorf("expected client id to be recorded, got %q", state.ClientID)
	}
}

func TestTokenCache_GrantFailures(t *testing.T) {
	tests := []struct {
		name    string
		respond func(w http.ResponseWriter, n int32)
	}{
		{"non-200", func(w http.ResponseWriter, _ int32) {
			http.Error(w, "invalid_client", http.StatusUnauthorized)
		}},
		{"malformed json", func(w http.ResponseWriter, _ int32) {
			w.Write([]byte(`{"access_token":`))
		}},
		{"missing access_token", func(w http.ResponseWriter, _ int32) {
			w.Write([]byte(`{"token_type":"Bearer"}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &testClock{now: tokenTestEpoch}
			srv := newTokenServer(t, tt.respond)
			var observed []bool
			tc, store := newTestCache(t, srv.URL, clock, nil)
			tc.onGrant = func(ok bool) { observed = append(observed, ok) }

			tok, err := tc.Token(context.Background())
			if !errors.Is(err, ErrGrantFailed) {
				t.Fatalf("expected ErrGrantFailed, got %v", err)
			}
			if tok != "" {
				t.Errorf("expected empty token, got %q", tok)
			}
			if raw, _ := store.Get(context.Background(), property.KeySHRToken); raw != "" {
				t.Errorf("expected nothing persisted, got %q", raw)
			}
			if len(observed) != 1 || observed[0] {
				t.Errorf("expected one failed grant observation, got %v", observed)
			}
		})
	}
}

func TestTokenCache_TransportFailure(t *testing.T) {
	clock := &testClock{now: tokenTestEpoch}
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	tc, _ := newTestCache(t, addr, clock, nil)
	if _, err := tc.Token(context.Background()); !errors.Is(err, ErrGrantFailed) {
		t.Fatalf("expected ErrGrantFailed, got %v", err)
	}
}

func TestTokenCache_MalformedStoredTokenTriggersGrant(t *testing.T) {
	clock := &testClock{now: tokenTestEpoch}
	srv := newTokenServer(t, jwtResponder(t, clock, time.Hour))
	tc, _ := newTestCache(t, srv.URL, clock, map[string]string{
		property.KeySHRToken: `{"access_token":"not-a-jwt"}`,
	})

	if tc.Status(context.Background()) != StatusExpired {
		t.Errorf("expected malformed token to be treated as expired")
	}
	tok, err := tc.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok == "not-a-jwt" {
		t.Error("expected a fresh token")
	}
	if got := srv.grants.Load(); got != 1 {
		t.Errorf("expected 1 grant, got %d", got)
	}
}

func TestTokenCache_OpaqueTokenUsesExpiresIn(t *testing.T) {
	clock := &testClock{now: tokenTestEpoch}
	srv := newTokenServer(t, func(w http.ResponseWriter, _ int32) {
		w.Write([]byte(`{"access_token":"opaque-123","expires_in":600}`))
	})
	tc, _ := newTestCache(t, srv.URL, clock, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if tok, err := tc.Token(ctx); err != nil || tok != "opaque-123" {
			t.Fatalf("unexpected result %q, %v", tok, err)
		}
	}
	if got := srv.grants.Load(); got != 1 {
		t.Errorf("expected 1 grant within expires_in, got %d", got)
	}
	clock.Advance(10 * time.Minute)
	tc.Token(ctx)
	if got := srv.grants.Load(); got != 2 {
		t.Errorf("expected a regrant after expires_in, got %d grants", got)
	}
}

func TestTokenCache_ScopeChangeRegrants(t *testing.T) {
	clock := &testClock{now: tokenTestEpoch}
	srv := newTokenServer(t, jwtResponder(t, clock, time.Hour))
	tc, store := newTestCache(t, srv.URL, clock, nil)
	ctx := context.Background()

	tc.Token(ctx)
	store.Set(ctx, property.KeySHRScope, "shr.read")
	tc.Token(ctx)
	if got := srv.grants.Load(); got != 2 {
		t.Errorf("expected a regrant after scope change, got %d grants", got)
	}
}

func TestTokenCache_NotConfigured(t *testing.T) {
	clock := &testClock{now: tokenTestEpoch}
	tc, _ := newTestCache(t, "", clock, nil)
	if _, err := tc.Token(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestTokenCache_Refresh(t *testing.T) {
	clock := &testClock{now: tokenTestEpoch}
	srv := newTokenServer(t, jwtResponder(t, clock, time.Hour))
	tc, _ := newTestCache(t, srv.URL, clock, nil)
	ctx := context.Background()

	tc.Token(ctx)
	if _, err := tc.Refresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := srv.grants.Load(); got != 2 {
		t.Errorf("expected forced regrant, got %d grants", got)
	}
}

func TestTokenCache_BasicAuthToken(t *testing.T) {
	clock := &testClock{now: tokenTestEpoch}
	tc, _ := newTestCache(t, "", clock, map[string]string{
		property.KeyBasicAuthUsername: "admin",
		property.KeyBasicAuthPassword: "Admin123",
	})
	got := tc.BasicAuthToken(context.Background())
	if got != base64.StdEncoding.EncodeToString([]byte("admin:Admin123")) {
		t.Errorf("unexpected basic token %q", got)
	}

	unset, _ := newTestCache(t, "", clock, nil)
	if got := unset.BasicAuthToken(context.Background()); got != "" {
		t.Errorf("expected no basic token without a username, got %q", got)
	}
}

func TestTokenCache_GrantSurvivesCallerCancellation(t *testing.T) {
	clock := &testClock{now: tokenTestEpoch}
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	respond := jwtResponder(t, clock, time.Hour)
	srv := newTokenServer(t, func(w http.ResponseWriter, n int32) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		respond(w, n)
	})
	tc, _ := newTestCache(t, srv.URL, clock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		token string
		err   error
	}
	first := make(chan result, 1)
	go func() {
		token, err := tc.Token(ctx)
		first <- result{token, err}
	}()

	<-started
	cancel()
	close(release)

	got := <-first
	if got.err != nil || got.token == "" {
		t.Fatalf("expected grant to complete after cancellation, got %q, %v", got.token, got.err)
	}
	second, err := tc.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != got.token {
		t.Error("expected the second caller to reuse the granted token")
	}
	if n := srv.grants.Load(); n != 1 {
		t.Errorf("expected one grant, got %d", n)
	}
}

func TestStatus_String(t *testing.T) {
	if StatusUnknown.String() != "unknown" || StatusValid.String() != "valid" || StatusExpired.String() != "expired" {
		t.Error("unexpected status strings")
	}
}
