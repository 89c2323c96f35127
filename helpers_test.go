package settings

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/afero"
)

func testdataDir(t testing.TB) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("unable to resolve caller")
	}
	return filepath.Join(filepath.Dir(file), "testdata")
}

func readFixture(t testing.TB, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(testdataDir(t), name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return string(data)
}

// loadDefinition deserializes a fixture under testdata/definitions.
func loadDefinition(t testing.TB, id, name string, opts ...Option) *DefinitionContainer {
	t.Helper()
	def := NewDefinitionContainer(id, opts...)
	if err := def.Deserialize(readFixture(t, filepath.Join("definitions", name))); err != nil {
		t.Fatalf("deserialize %s: %v", name, err)
	}
	return def
}

// memResources writes files into an in-memory filesystem rooted at /res.
func memResources(t testing.TB, files map[string]string) *Resources {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		if err := afero.WriteFile(fs, filepath.Join("/res", path), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return NewResources(fs, "/res")
}

// simpleDefinition builds a definition container from key -> properties.
func simpleDefinition(t testing.TB, id string, settings map[string]map[string]any) *DefinitionContainer {
	t.Helper()
	dc := NewDefinitionContainer(id)
	keys := Metadata{}
	for key := range settings {
		keys[key] = true
	}
	for _, key := range keys.Keys() {
		def := NewSettingDefinition(key, dc, nil)
		props := Metadata(settings[key])
		for _, name := range props.Keys() {
			value, err := parsePropertyValue(name, props[name], nil)
			if err != nil {
				t.Fatalf("setting %s property %s: %v", key, name, err)
			}
			def.SetProperty(name, value)
		}
		if err := dc.AddDefinition(def); err != nil {
			t.Fatalf("add %s: %v", key, err)
		}
	}
	return dc
}

// recordChanges collects every change emitted by sig.
func recordChanges[T any](sig *Signal[T]) *[]T {
	var got []T
	sig.Connect(func(v T) { got = append(got, v) })
	return &got
}
