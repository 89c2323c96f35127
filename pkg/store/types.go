package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	settings "github.com/goliatone/go-settings"
)

var ErrETagMismatch = errors.New("store: etag mismatch")

// Ref identifies one persisted container.
type Ref struct {
	Kind settings.ContainerKind
	ID   string
}

// RefFor returns the reference of c.
func RefFor(c settings.Container) Ref {
	return Ref{Kind: c.Kind(), ID: c.ID()}
}

// Identifier returns the canonical storage key.
func (r Ref) Identifier() (string, error) {
	switch r.Kind {
	case settings.KindDefinition, settings.KindInstance, settings.KindStack:
	default:
		return "", fmt.Errorf("store: unsupported container kind %d", r.Kind)
	}
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return "", fmt.Errorf("store: %s id is required", r.Kind)
	}
	if strings.Contains(id, "/") {
		return "", fmt.Errorf("store: %s id %q must not contain '/'", r.Kind, id)
	}
	return r.Kind.String() + "/" + id, nil
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads and saves one serialized document for a single reference.
type Store interface {
	Load(ctx context.Context, ref Ref) (document string, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, document string, meta Meta) (Meta, error)
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
