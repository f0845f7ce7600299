// Package publish hands transaction bundles to their destinations: the
// shared health record over HTTP, an object-store archive and the log.
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
)

// Envelope is one bundle together with the entity it was built from.
type Envelope struct {
	Kind     string
	SourceID string
	Bundle   *fhir.Bundle
}

// Publisher delivers an envelope. Callers log the returned error; nothing
// upstream of a publisher retries.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Func adapts a function to Publisher.
type Func func(ctx context.Context, env Envelope) error

func (f Func) Publish(ctx context.Context, env Envelope) error { return f(ctx, env) }

// Single wraps resources into a transaction bundle of upserts.
func Single(kind, sourceID string, resources ...fhir.DomainResource) (Envelope, error) {
	b := fhir.NewTransactionBundle()
	for _, r := range resources {
		if err := b.AddPut(r); err != nil {
			return Envelope{}, fmt.Errorf("bundle %s %s: %w", kind, sourceID, err)
		}
	}
	return Envelope{Kind: kind, SourceID: sourceID, Bundle: b}, nil
}

// Fanout publishes to every target concurrently. Targets share the
// caller's context, so one failing target never cancels another; all
// failures are joined into the returned error.
type Fanout struct {
	targets []Publisher
}

func NewFanout(targets ...Publisher) *Fanout {
	return &Fanout{targets: targets}
}

func (f *Fanout) Publish(ctx context.Context, env Envelope) error {
	var g errgroup.Group
	errs := make([]error, len(f.targets))
	for i, t := range f.targets {
		i, t := i, t
		g.Go(func() error {
			errs[i] = t.Publish(ctx, env)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Log writes a summary of each bundle at info level.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Publish(_ context.Context, env Envelope) error {
	if env.Bundle == nil {
		return nil
	}
	l.logger.Info().
		Str("kind", env.Kind).
		Str("uuid", env.SourceID).
		Int("entries", len(env.Bundle.Entry)).
		Strs("requests", env.Bundle.Requests()).
		Msg("bundle ready")
	return nil
}

// BundleObserver is told the outcome of each publish.
type BundleObserver interface {
	BundlePublished(ctx context.Context, kind string, err error)
}

// Observed reports every publish through p to o.
func Observed(p Publisher, o BundleObserver) Publisher {
	return Func(func(ctx context.Context, env Envelope) error {
		err := p.Publish(ctx, env)
		o.BundlePublished(ctx, env.Kind, err)
		return err
	})
}
