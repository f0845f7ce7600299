package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/blobstore"
)

// Archive writes each bundle to a blob store at bundles/<kind>/<id>.json.
// A later bundle for the same entity replaces the earlier one.
type Archive struct {
	store blobstore.Store
}

func NewArchive(store blobstore.Store) *Archive {
	return &Archive{store: store}
}

// Key returns the object key for an envelope.
func Key(env Envelope) string {
	return fmt.Sprintf("bundles/%s/%s.json", env.Kind, env.SourceID)
}

func (a *Archive) Publish(ctx context.Context, env Envelope) error {
	if env.Bundle == nil {
		return nil
	}
	data, err := json.Marshal(env.Bundle)
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}
	if _, err := a.store.Put(ctx, Key(env), data, contentTypeFHIR); err != nil {
		return fmt.Errorf("archive %s: %w", Key(env), err)
	}
	return nil
}
