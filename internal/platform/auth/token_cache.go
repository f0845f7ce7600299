// Package auth authenticates outbound calls to the shared health record.
// It holds the OAuth2 client-credentials token cache and the basic-auth
// helper used by endpoints that do not accept bearer tokens.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/property"
)

// ConnectTimeout bounds TCP connection setup for outbound calls. There is
// deliberately no overall request timeout.
const ConnectTimeout = 10 * time.Second

var (
	// ErrNotConfigured means the token endpoint or client id is unset.
	ErrNotConfigured = errors.New("oauth client credentials not configured")
	// ErrGrantFailed covers transport errors, non-200 responses and
	// responses without an access_token.
	ErrGrantFailed = errors.New("client credentials grant failed")
)

// ---------------------------------------------------------------------------
// Token state
// ---------------------------------------------------------------------------

// Status is the cache state machine: Unknown -> Valid -> Expired -> Valid.
type Status int

const (
	StatusUnknown Status = iota
	StatusValid
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// TokenState is the persisted form of the cached token. ClientID and
// RequestedScope record the credentials it was granted for; a change in
// either invalidates it. ExpiresAt (unix seconds) is only consulted for
// opaque tokens, JWT access tokens are judged by their own exp claim.
type TokenState struct {
	AccessToken    string `json:"access_token"`
	TokenType      string `json:"token_type,omitempty"`
	Scope          string `json:"scope,omitempty"`
	ExpiresIn      int    `json:"expires_in,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
	RequestedScope string `json:"requested_scope,omitempty"`
	ExpiresAt      int64  `json:"expires_at,omitempty"`
}

// Expiry returns the instant the token stops being usable.
func (s *TokenState) Expiry() (time.Time, error) {
	if s == nil || s.AccessToken == "" {
		return time.Time{}, errors.New("no access token")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err == nil {
		exp, err := claims.GetExpirationTime()
		if err == nil && exp != nil {
			return exp.Time, nil
		}
	}
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0), nil
	}
	return time.Time{}, errors.New("access token carries no expiry")
}

// ---------------------------------------------------------------------------
// Token stores
// ---------------------------------------------------------------------------

// TokenStore persists the raw TokenState document. Load returns "" when no
// token has been stored.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, raw string) error
}

// PropertyTokenStore keeps the token in the configuration store under
// interop.shr.token.
type PropertyTokenStore struct {
	store property.Store
}

func NewPropertyTokenStore(store property.Store) *PropertyTokenStore {
	return &PropertyTokenStore{store: store}
}

func (p *PropertyTokenStore) Load(ctx context.Context) (string, error) {
	return p.store.Get(ctx, property.KeySHRToken)
}

func (p *PropertyTokenStore) Save(ctx context.Context, raw string) error {
	return p.store.Set(ctx, property.KeySHRToken, raw)
}

// ---------------------------------------------------------------------------
// Cache
// ---------------------------------------------------------------------------

// TokenCache returns a bearer token for the shared health record, granting a
// new one only when the stored token is missing, malformed or expired.
// Check, grant and store run under a single-flight lock so concurrent callers
// observing an expired token trigger exactly one grant.
type TokenCache struct {
	props   *property.Reader
	store   TokenStore
	client  *http.Client
	logger  zerolog.Logger
	group   singleflight.Group
	now     func() time.Time
	onGrant func(ok bool)
}

// Option customises a TokenCache.
type Option func(*TokenCache)

// WithHTTPClient overrides the outbound client.
func WithHTTPClient(c *http.Client) Option {
	return func(tc *TokenCache) { tc.client = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(tc *TokenCache) { tc.now = now }
}

// WithGrantObserver registers a callback invoked after every grant attempt.
func WithGrantObserver(fn func(ok bool)) Option {
	return func(tc *TokenCache) { tc.onGrant = fn }
}

// NewTokenCache creates a cache reading credentials from props and keeping
// the token in store.
func NewTokenCache(props *property.Reader, store TokenStore, logger zerolog.Logger, opts ...Option) *TokenCache {
	tc := &TokenCache{
		props:  props,
		store:  store,
		client: NewHTTPClient(),
		logger: logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(tc)
	}
	return tc
}

// NewHTTPClient returns a client with a bounded connect timeout and no read
// timeout or retry.
func NewHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: ConnectTimeout}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = ConnectTimeout
	return &http.Client{Transport: transport}
}

type credentials struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
}

func (c *TokenCache) credentials(ctx context.Context) credentials {
	return credentials{
		tokenURL:     c.props.String(ctx, property.KeySHRTokenURL),
		clientID:     c.props.String(ctx, property.KeySHRClientID),
		clientSecret: c.props.String(ctx, property.KeySHRClientSecret),
		scope:        c.props.String(ctx, property.KeySHRScope),
	}
}

// Token returns the cached access token when still valid, otherwise performs
// a client-credentials grant and persists the result. On failure it logs and
// returns "" with an error; callers continue without authentication.
// Concurrent callers share one grant, which outlives any one caller's
// cancellation.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	v, err, _ := c.group.Do("token", func() (interface{}, error) {
		ctx := context.WithoutCancel(ctx)
		creds := c.credentials(ctx)
		if state, status := c.current(ctx, creds); status == StatusValid {
			return state.AccessToken, nil
		}
		state, err := c.grant(ctx, creds)
		if err != nil {
			return "", err
		}
		return state.AccessToken, nil
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("unable to obtain shr access token")
		return "", err
	}
	return v.(string), nil
}

// Refresh forces a new grant regardless of the cached token.
func (c *TokenCache) Refresh(ctx context.Context) (string, error) {
	v, err, _ := c.group.Do("token", func() (interface{}, error) {
		ctx := context.WithoutCancel(ctx)
		state, err := c.grant(ctx, c.credentials(ctx))
		if err != nil {
			return "", err
		}
		return state.AccessToken, nil
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("unable to refresh shr access token")
		return "", err
	}
	return v.(string), nil
}

// Status reports the state of the stored token without granting.
func (c *TokenCache) Status(ctx context.Context) Status {
	_, status := c.current(ctx, c.credentials(ctx))
	return status
}

// current loads and validates the stored token. Unparsable documents and
// tokens issued for other credentials count as expired.
func (c *TokenCache) current(ctx context.Context, creds credentials) (*TokenState, Status) {
	raw, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to load stored token")
		return nil, StatusUnknown
	}
	if strings.TrimSpace(raw) == "" {
		return nil, StatusUnknown
	}

	var state TokenState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		c.logger.Warn().Err(err).Msg("stored token is not valid json")
		return nil, StatusExpired
	}
	if state.ClientID != "" && state.ClientID != creds.clientID {
		return &state, StatusExpired
	}
	if state.ClientID != "" && state.RequestedScope != creds.scope {
		return &state, StatusExpired
	}
	exp, err := state.Expiry()
	if err != nil {
		c.logger.Warn().Err(err).Msg("stored token has no readable expiry")
		return &state, StatusExpired
	}
	if !c.now().Before(exp) {
		return &state, StatusExpired
	}
	return &state, StatusValid
}

func (c *TokenCache) grant(ctx context.Context, creds credentials) (state *TokenState, err error) {
	defer func() {
		if c.onGrant != nil {
			c.onGrant(err == nil)
		}
	}()

	if creds.tokenURL == "" || creds.clientID == "" {
		return nil, ErrNotConfigured
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", creds.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrGrantFailed, err)
	}
	req.Header.Set("Authorization", "Basic "+encodeBasic(creds.clientID, creds.clientSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGrantFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGrantFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: token endpoint returned %d", ErrGrantFailed, resp.StatusCode)
	}

	var granted TokenState
	if err := json.Unmarshal(body, &granted); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrGrantFailed, err)
	}
	if granted.AccessToken == "" {
		return nil, fmt.Errorf("%w: response has no access_token", ErrGrantFailed)
	}
	granted.ClientID = creds.clientID
	granted.RequestedScope = creds.scope
	if granted.Scope == "" {
		granted.Scope = creds.scope
	}
	if granted.ExpiresIn > 0 {
		granted.ExpiresAt = c.now().Add(time.Duration(granted.ExpiresIn) * time.Second).Unix()
	}

	raw, err := json.Marshal(granted)
	if err != nil {
		return nil, fmt.Errorf("marshal token state: %w", err)
	}
	if err := c.store.Save(ctx, string(raw)); err != nil {
		// The token is still usable for this call.
		c.logger.Error().Err(err).Msg("failed to persist access token")
	}
	c.logger.Info().Str("scope", granted.Scope).Msg("obtained shr access token")
	return &granted, nil
}

// BasicAuthToken returns base64("username:password") from the configured
// basic-auth credentials, or "" when no username is set. It has no expiry
// logic.
func (c *TokenCache) BasicAuthToken(ctx context.Context) string {
	username := c.props.String(ctx, property.KeyBasicAuthUsername)
	if username == "" {
		return ""
	}
	return encodeBasic(username, c.props.String(ctx, property.KeyBasicAuthPassword))
}

func encodeBasic(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
