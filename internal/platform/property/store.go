// Package property implements the interop configuration store: a flat
// key/value table of global properties plus helpers that read list-valued
// properties as code sets. Missing keys always read as the empty string.
package property

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Store is a key/value configuration store. Get returns "" and a nil error
// for keys that are not set.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Reader reads configuration for the pipeline. Store failures are logged and
// degrade to the empty value so that a broken store disables processors
// instead of failing events.
type Reader struct {
	store  Store
	logger zerolog.Logger
}

// NewReader wraps a store.
func NewReader(store Store, logger zerolog.Logger) *Reader {
	return &Reader{store: store, logger: logger}
}

// Store returns the underlying store.
func (r *Reader) Store() Store {
	return r.store
}

// String returns the trimmed value for key, or "".
func (r *Reader) String(ctx context.Context, key string) string {
	v, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.Error().Err(err).Str("key", key).Msg("failed to read property")
		return ""
	}
	return strings.TrimSpace(v)
}

// StringOr returns the value for key, or def when unset.
func (r *Reader) StringOr(ctx context.Context, key, def string) string {
	if v := r.String(ctx, key); v != "" {
		return v
	}
	return def
}

// Codes parses the value for key into a CodeSet.
func (r *Reader) Codes(ctx context.Context, key string) CodeSet {
	return ParseCodeSet(r.String(ctx, key))
}

// Bool parses the value for key; anything unparsable is false.
func (r *Reader) Bool(ctx context.Context, key string) bool {
	b, err := strconv.ParseBool(r.String(ctx, key))
	return err == nil && b
}
