package layering

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustParse(t *testing.T, src string) *Document {
	t.Helper()
	doc, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestParsePreservesKeyOrder(t *testing.T) {
	doc := mustParse(t, `{"zeta": 1, "alpha": {"b": 2.5, "a": "x"}, "mid": [1, true, null]}`)

	if diff := cmp.Diff([]string{"zeta", "alpha", "mid"}, doc.Keys()); diff != "" {
		t.Fatalf("unexpected key order (-want +got):\n%s", diff)
	}
	nested, ok := doc.Document("alpha")
	if !ok {
		t.Fatalf("expected nested document under alpha")
	}
	if diff := cmp.Diff([]string{"b", "a"}, nested.Keys()); diff != "" {
		t.Fatalf("unexpected nested key order (-want +got):\n%s", diff)
	}
	want := map[string]any{
		"zeta":  1,
		"alpha": map[string]any{"b": 2.5, "a": "x"},
		"mid":   []any{1, true, nil},
	}
	if diff := cmp.Diff(want, doc.ToMap()); diff != "" {
		t.Fatalf("unexpected values (-want +got):\n%s", diff)
	}
}

func TestParseAcceptsCommentsAndYAML(t *testing.T) {
	jsoncDoc := mustParse(t, `{
		// leading comment
		"name": "base", /* inline */
		"version": 2,
	}`)
	if name, _ := jsoncDoc.String("name"); name != "base" {
		t.Fatalf("expected name base, got %q", name)
	}

	yamlDoc := mustParse(t, "name: base\nversion: 2\nsettings:\n  b: {}\n  a: {}\n")
	settings, ok := yamlDoc.Document("settings")
	if !ok {
		t.Fatalf("expected settings mapping")
	}
	if diff := cmp.Diff([]string{"b", "a"}, settings.Keys()); diff != "" {
		t.Fatalf("unexpected key order (-want +got):\n%s", diff)
	}
}

func TestParseRejectsNonMapping(t *testing.T) {
	if _, err := Parse([]byte(`[1, 2]`)); err == nil {
		t.Fatalf("expected error for sequence root")
	}
	if _, err := Parse([]byte("   ")); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestMergeOverlayWinsAndAppends(t *testing.T) {
	base := mustParse(t, `{"a": {"value": 1, "type": "int"}, "b": {"value": 2}}`)
	overlay := mustParse(t, `{"a": {"value": 11}, "c": {"value": 3}}`)

	merged := Merge(base, overlay)

	want := map[string]any{
		"a": map[string]any{"value": 11, "type": "int"},
		"b": map[string]any{"value": 2},
		"c": map[string]any{"value": 3},
	}
	if diff := cmp.Diff(want, merged.ToMap()); diff != "" {
		t.Fatalf("unexpected merge (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, merged.Keys()); diff != "" {
		t.Fatalf("unexpected key order (-want +got):\n%s", diff)
	}

	a, _ := base.Document("a")
	if v, _ := a.Get("value"); v != 1 {
		t.Fatalf("expected base untouched, got %v", v)
	}
}

func TestMergeReplacesScalarWithDocument(t *testing.T) {
	base := mustParse(t, `{"a": 1}`)
	overlay := mustParse(t, `{"a": {"nested": true}}`)

	merged := Merge(base, overlay)
	if _, ok := merged.Document("a"); !ok {
		t.Fatalf("expected overlay document to replace scalar")
	}
}

func TestFindSearchesNestedDocuments(t *testing.T) {
	doc := mustParse(t, `{"top": {"children": {"deep": {"value": 1}}}}`)

	found, ok := Find(doc, "deep")
	if !ok {
		t.Fatalf("expected to find deep")
	}
	if v, _ := found.Get("value"); v != 1 {
		t.Fatalf("expected value 1, got %v", v)
	}
	if _, ok := Find(doc, "missing"); ok {
		t.Fatalf("did not expect to find missing key")
	}
}

func TestMarshalJSONKeepsOrder(t *testing.T) {
	doc := NewDocument()
	doc.Set("z", 1)
	doc.Set("a", []any{"x"})
	nested := NewDocument()
	nested.Set("y", true)
	nested.Set("b", nil)
	doc.Set("n", nested)
	doc.Set("z", 2)

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(raw), `{"z":2,"a":["x"],"n":{"y":true,"b":null}}`; got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}

	doc.Delete("a")
	if diff := cmp.Diff([]string{"z", "n"}, doc.Keys()); diff != "" {
		t.Fatalf("unexpected keys after delete (-want +got):\n%s", diff)
	}
}
