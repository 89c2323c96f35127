package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/store"
)

const printerDefinition = `{
	"name": "Printer",
	"version": 2,
	"metadata": {},
	"settings": {
		"layer_height": {"type": "float", "default_value": 0.2},
		"infill": {"type": "int", "default_value": 20}
	}
}`

func newFixture(t *testing.T) (*settings.Registry, *settings.DefinitionContainer) {
	t.Helper()
	registry := settings.NewRegistry()
	definition := settings.NewDefinitionContainer("printer")
	if err := definition.Deserialize(printerDefinition); err != nil {
		t.Fatalf("deserialize definition: %v", err)
	}
	if err := registry.AddContainer(definition); err != nil {
		t.Fatalf("register definition: %v", err)
	}
	return registry, definition
}

func TestRepositorySaveRestoreInstance(t *testing.T) {
	registry, definition := newFixture(t)
	ctx := context.Background()
	when := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := store.Repository{Store: store.NewMemoryStore(), Now: func() time.Time { return when }}

	user := settings.NewInstanceContainer("user", settings.WithRegistry(registry))
	user.SetDefinition(definition)
	if err := user.SetProperty("layer_height", "value", 0.1); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := user.SetProperty("infill", "value", "=layer_height * 100"); err != nil {
		t.Fatalf("set formula: %v", err)
	}

	meta, err := repo.Save(ctx, user, store.Meta{Extra: map[string]string{"source": "test"}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if meta.ETag == "" || meta.SnapshotID == "" || !meta.UpdatedAt.Equal(when) || meta.Extra["source"] != "test" {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	restored := settings.NewInstanceContainer("user", settings.WithRegistry(registry))
	loaded, ok, err := repo.Restore(ctx, restored)
	if err != nil || !ok {
		t.Fatalf("restore: ok=%t err=%v", ok, err)
	}
	if loaded.ETag != meta.ETag {
		t.Fatalf("expected etag %q, got %q", meta.ETag, loaded.ETag)
	}
	if got := restored.Property("layer_height", "value"); got != 0.1 {
		t.Fatalf("expected restored layer_height 0.1, got %v", got)
	}
	raw, ok := restored.RawProperty("infill", "value")
	if !ok || !raw.IsFunction() || raw.Function().Code() != "layer_height * 100" {
		t.Fatalf("expected restored formula, got %v", raw)
	}
}

func TestRepositoryRestoreMissingLeavesContainer(t *testing.T) {
	repo := store.Repository{Store: store.NewMemoryStore()}
	stack := settings.NewContainerStack("global")
	stack.SetName("Global")

	_, ok, err := repo.Restore(context.Background(), stack)
	if err != nil || ok {
		t.Fatalf("expected missing document, got ok=%t err=%v", ok, err)
	}
	if stack.Name() != "Global" {
		t.Fatalf("expected container untouched, got name %q", stack.Name())
	}
}

func TestRepositorySaveRejectsStaleETag(t *testing.T) {
	registry, _ := newFixture(t)
	ctx := context.Background()
	repo := store.Repository{Store: store.NewMemoryStore()}

	stack := settings.NewContainerStack("global", settings.WithRegistry(registry))
	first, err := repo.Save(ctx, stack, store.Meta{})
	if err != nil {
		t.Fatalf("first save: %v", err)
	}

	stack.SetName("Renamed")
	if _, err := repo.Save(ctx, stack, store.Meta{ETag: first.ETag}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	_, err = repo.Save(ctx, stack, store.Meta{ETag: first.ETag})
	if !errors.Is(err, store.ErrETagMismatch) {
		t.Fatalf("expected ErrETagMismatch, got %v", err)
	}
}

func TestRepositoryRestoreSurfacesDeserializeErrors(t *testing.T) {
	ctx := context.Background()
	memory := store.NewMemoryStore()
	ref := store.Ref{Kind: settings.KindStack, ID: "broken"}
	if _, err := memory.Save(ctx, ref, "[general]\nname = x\n", store.Meta{}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	repo := store.Repository{Store: memory}
	_, ok, err := repo.Restore(ctx, settings.NewContainerStack("broken"))
	if !ok || !errors.Is(err, settings.ErrInvalidDocument) {
		t.Fatalf("expected invalid document, got ok=%t err=%v", ok, err)
	}
}
