//go:build js_eval

package settings

import "testing"

func TestJSEvaluatorResolvesFormulas(t *testing.T) {
	cache, err := NewLRUProgramCache(8)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	engine := NewJSEvaluator(JSWithProgramCache(cache))
	if evaluatorEngineName(engine) != "js" {
		t.Fatalf("expected the js engine label")
	}
	dc := loadDefinition(t, "relations", "relations.def.json", WithEvaluator(engine))

	if got := dc.Property("other", "value"); !valuesEqual(got, 50) {
		t.Fatalf("expected 50 from js, got %v (%T)", got, got)
	}
	if got := dc.Property("other", "enabled"); got != true {
		t.Fatalf("expected enabled from js, got %v", got)
	}
	if _, ok := cache.Get("test * 10"); !ok {
		t.Fatalf("compiled js program should be cached")
	}
}
