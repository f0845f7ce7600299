package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
)

const (
	contentTypeFHIR  = "application/fhir+json"
	maxResponseBytes = 1 << 20
)

// ErrNotConfigured is returned when no SHR base url is set.
var ErrNotConfigured = errors.New("shared health record url not configured")

// TokenSource supplies the bearer token for outbound calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// BasicAuthSource supplies base64 "username:password" credentials, or ""
// when none are configured.
type BasicAuthSource interface {
	BasicAuthToken(ctx context.Context) string
}

// SHROption configures an SHRPublisher.
type SHROption func(*SHRPublisher)

// WithHTTPClient overrides the client used for deliveries.
func WithHTTPClient(c *http.Client) SHROption {
	return func(p *SHRPublisher) { p.client = c }
}

// WithBasicAuth sends Basic credentials whenever no bearer token is
// available.
func WithBasicAuth(src BasicAuthSource) SHROption {
	return func(p *SHRPublisher) { p.basic = src }
}

// WithDeliveryLog records each delivery attempt.
func WithDeliveryLog(l DeliveryLog) SHROption {
	return func(p *SHRPublisher) { p.deliveries = l }
}

// SHRPublisher posts transaction bundles to the shared health record.
type SHRPublisher struct {
	baseURL    string
	tokens     TokenSource
	basic      BasicAuthSource
	client     *http.Client
	deliveries DeliveryLog
	logger     zerolog.Logger
	now        func() time.Time
}

func NewSHRPublisher(baseURL string, tokens TokenSource, logger zerolog.Logger, opts ...SHROption) *SHRPublisher {
	p := &SHRPublisher{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  auth.NewHTTPClient(),
		logger:  logger,
		now:     time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Publish posts the bundle to the base url. A failed token lookup is logged
// and the bundle is sent with Basic credentials when configured, otherwise
// without an Authorization header.
func (p *SHRPublisher) Publish(ctx context.Context, env Envelope) error {
	if env.Bundle == nil || len(env.Bundle.Entry) == 0 {
		return nil
	}
	d := &Delivery{
		SourceKind:  env.Kind,
		SourceUUID:  env.SourceID,
		Entries:     len(env.Bundle.Entry),
		PublishedAt: p.now().UTC(),
	}
	err := p.deliver(ctx, env, d)
	if err != nil {
		d.Error = err.Error()
	}
	if p.deliveries != nil {
		if rerr := p.deliveries.Record(ctx, d); rerr != nil {
			p.logger.Error().Err(rerr).Str("uuid", env.SourceID).Msg("failed to record delivery")
		}
	}
	return err
}

func (p *SHRPublisher) deliver(ctx context.Context, env Envelope, d *Delivery) error {
	if p.baseURL == "" {
		return ErrNotConfigured
	}
	bundle := *env.Bundle
	if bundle.ID == "" {
		bundle.ID = uuid.New().String()
	}
	payload, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeFHIR)
	req.Header.Set("Accept", contentTypeFHIR)
	if header := p.authorization(ctx, env.SourceID); header != "" {
		req.Header.Set("Authorization", header)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post bundle: %w", err)
	}
	defer resp.Body.Close()

	d.StatusCode = resp.StatusCode
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("shared health record returned %d: %s", resp.StatusCode, truncate(body, 512))
	}
	p.logEntries(env, body)
	return nil
}

func (p *SHRPublisher) authorization(ctx context.Context, sourceID string) string {
	if p.tokens != nil {
		token, err := p.tokens.Token(ctx)
		if err != nil {
			p.logger.Warn().Err(err).Str("uuid", sourceID).Msg("no bearer token for delivery")
		}
		if token != "" {
			return "Bearer " + token
		}
	}
	if p.basic != nil {
		if basic := p.basic.BasicAuthToken(ctx); basic != "" {
			return "Basic " + basic
		}
	}
	return ""
}

func (p *SHRPublisher) logEntries(env Envelope, body []byte) {
	var out fhir.Bundle
	if err := json.Unmarshal(body, &out); err != nil || out.Type != fhir.BundleTypeTransactionResponse {
		p.logger.Debug().Str("uuid", env.SourceID).Msg("bundle accepted")
		return
	}
	for i, e := range out.Entry {
		if e.Response == nil {
			continue
		}
		ev := p.logger.Debug()
		if !strings.HasPrefix(e.Response.Status, "2") {
			ev = p.logger.Warn()
		}
		ev.Str("kind", env.Kind).
			Str("uuid", env.SourceID).
			Int("entry", i).
			Str("status", e.Response.Status).
			Str("location", e.Response.Location).
			Msg("bundle entry response")
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
