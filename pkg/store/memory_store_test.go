package store_test

import (
	"context"
	"testing"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/store"
	"github.com/google/go-cmp/cmp"
)

func TestRefIdentifier(t *testing.T) {
	cases := []struct {
		name    string
		ref     store.Ref
		want    string
		wantErr bool
	}{
		{name: "stack", ref: store.Ref{Kind: settings.KindStack, ID: "global"}, want: "stack/global"},
		{name: "instance", ref: store.Ref{Kind: settings.KindInstance, ID: " user "}, want: "instance/user"},
		{name: "definition", ref: store.Ref{Kind: settings.KindDefinition, ID: "fdmprinter"}, want: "definition/fdmprinter"},
		{name: "missing id", ref: store.Ref{Kind: settings.KindStack}, wantErr: true},
		{name: "slash in id", ref: store.Ref{Kind: settings.KindStack, ID: "a/b"}, wantErr: true},
		{name: "unknown kind", ref: store.Ref{ID: "x"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.ref.Identifier()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestMemoryStoreIsolatesMeta(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	ref := store.Ref{Kind: settings.KindStack, ID: "global"}
	meta := store.Meta{ETag: "e1", Extra: map[string]string{"k": "v"}}

	if _, err := s.Save(ctx, ref, "doc", meta); err != nil {
		t.Fatalf("save: %v", err)
	}
	meta.Extra["k"] = "changed"

	doc, loaded, ok, err := s.Load(ctx, ref)
	if err != nil || !ok {
		t.Fatalf("load: ok=%t err=%v", ok, err)
	}
	if doc != "doc" {
		t.Fatalf("expected document, got %q", doc)
	}
	if diff := cmp.Diff(store.Meta{ETag: "e1", Extra: map[string]string{"k": "v"}}, loaded); diff != "" {
		t.Fatalf("meta mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"stack/global"}, s.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}

	_, _, ok, err = s.Load(ctx, store.Ref{Kind: settings.KindStack, ID: "missing"})
	if err != nil || ok {
		t.Fatalf("expected miss, got ok=%t err=%v", ok, err)
	}
}
