package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	settings "github.com/goliatone/go-settings"
	"github.com/google/uuid"
)

// Repository persists containers through a Store.
type Repository struct {
	Store Store
	Now   func() time.Time
}

// Save serializes c and stores it. When meta.ETag is set it must match the
// stored document's ETag. The returned Meta carries the new ETag.
func (r Repository) Save(ctx context.Context, c settings.Container, meta Meta) (Meta, error) {
	if r.Store == nil {
		return Meta{}, fmt.Errorf("store: store is required")
	}
	if c == nil {
		return Meta{}, fmt.Errorf("store: container is required")
	}
	ref := RefFor(c)

	_, loaded, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return Meta{}, fmt.Errorf("store: load %s %q: %w", ref.Kind, ref.ID, err)
	}
	if !ok {
		loaded = Meta{}
	}
	if meta.ETag != "" && loaded.ETag != "" && meta.ETag != loaded.ETag {
		return loaded, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, loaded.ETag)
	}

	document, err := c.Serialize()
	if err != nil {
		return loaded, err
	}

	saveMeta := mergeMeta(loaded, meta)
	saveMeta.ETag = etag(document)
	saveMeta.SnapshotID = uuid.NewString()
	saveMeta.UpdatedAt = r.now()

	saved, err := r.Store.Save(ctx, ref, document, saveMeta)
	if err != nil {
		return loaded, fmt.Errorf("store: save %s %q: %w", ref.Kind, ref.ID, err)
	}
	return saved, nil
}

// Restore loads the document stored for c and deserializes it into c. ok is
// false when nothing is stored; c is then left untouched.
func (r Repository) Restore(ctx context.Context, c settings.Container) (Meta, bool, error) {
	if r.Store == nil {
		return Meta{}, false, fmt.Errorf("store: store is required")
	}
	if c == nil {
		return Meta{}, false, fmt.Errorf("store: container is required")
	}
	ref := RefFor(c)
	document, meta, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return Meta{}, false, fmt.Errorf("store: load %s %q: %w", ref.Kind, ref.ID, err)
	}
	if !ok {
		return Meta{}, false, nil
	}
	if err := c.Deserialize(document); err != nil {
		return meta, true, fmt.Errorf("store: restore %s %q: %w", ref.Kind, ref.ID, err)
	}
	return meta, true, nil
}

func (r Repository) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func etag(document string) string {
	sum := sha256.Sum256([]byte(document))
	return hex.EncodeToString(sum[:8])
}
