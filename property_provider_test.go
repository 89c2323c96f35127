package settings

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-settings/pkg/activity"
)

type providerFixture struct {
	def      *DefinitionContainer
	user     *InstanceContainer
	quality  *InstanceContainer
	stack    *ContainerStack
	registry *Registry
	hook     *activity.CaptureHook
	provider *SettingPropertyProvider
}

func newProviderFixture(t *testing.T) *providerFixture {
	t.Helper()
	f := &providerFixture{hook: &activity.CaptureHook{}}
	f.def = simpleDefinition(t, "printer", map[string]map[string]any{
		"layer_height": {
			"type":                  "float",
			"default_value":         0.1,
			"minimum_value":         0.001,
			"maximum_value":         1.0,
			"minimum_value_warning": 0.04,
			"maximum_value_warning": 0.5,
		},
		"layer_height_0": {"type": "float", "default_value": 0.3, "value": "layer_height * 2"},
		"adhesion_type":  {"type": "enum", "default_value": "skirt"},
	})
	f.user = NewInstanceContainer("user")
	f.user.SetDefinition(f.def)
	f.quality = NewInstanceContainer("quality")
	f.quality.SetDefinition(f.def)
	mustSet(t, f.quality, "layer_height", "value", 0.2)

	f.registry = NewRegistry()
	f.stack = NewContainerStack("global", WithRegistry(f.registry))
	mustAdd(t, f.stack, f.user, f.quality, f.def)
	for _, c := range []Container{f.def, f.user, f.quality, f.stack} {
		if err := f.registry.AddContainer(c); err != nil {
			t.Fatalf("register %s: %v", c.ID(), err)
		}
	}

	f.provider = NewSettingPropertyProvider(f.registry, WithActivityHooks(activity.Hooks{f.hook}))
	f.provider.SetWatchedProperties([]string{"value", "state", "validationState"})
	f.provider.SetKey("layer_height")
	f.provider.SetContainerStackID("global")
	f.provider.SetRemoveUnusedValue(true)
	return f
}

func TestSettingPropertyProviderAttach(t *testing.T) {
	f := newProviderFixture(t)

	if f.provider.State() != ProviderAttached || f.provider.ContainerStack() != f.stack {
		t.Fatalf("provider should attach through the registry")
	}
	want := map[string]any{
		"value":           0.2,
		"state":           InstanceUser,
		"validationState": ValidationValid,
	}
	if diff := cmp.Diff(want, f.provider.Properties()); diff != "" {
		t.Fatalf("unexpected properties (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2}, f.provider.StackLevels()); diff != "" {
		t.Fatalf("unexpected stack levels (-want +got):\n%s", diff)
	}
	if f.stack.PropertyChanged().Len() != 1 || f.stack.ContainersChanged().Len() != 1 {
		t.Fatalf("provider should subscribe to the stack")
	}

	stacks := recordChanges(f.provider.ContainerStackChanged())
	f.provider.SetContainerStackID("")
	if f.provider.State() != ProviderDetached {
		t.Fatalf("empty stack id detaches")
	}
	if f.stack.PropertyChanged().Len() != 0 || f.stack.ContainersChanged().Len() != 0 {
		t.Fatalf("detaching must unsubscribe")
	}
	if len(*stacks) != 1 || (*stacks)[0] != nil {
		t.Fatalf("detaching announces a nil stack, got %v", *stacks)
	}
	if len(f.provider.Properties()) != 0 || f.provider.StackLevels() != nil {
		t.Fatalf("detached providers hold no values")
	}

	f.provider.SetContainerStackID("missing")
	if f.provider.State() != ProviderDetached {
		t.Fatalf("unknown stack ids leave the provider detached")
	}
}

func TestSettingPropertyProviderTracksStackChanges(t *testing.T) {
	f := newProviderFixture(t)
	properties := recordChanges(f.provider.PropertiesChanged())
	levels := recordChanges(f.provider.StackLevelsChanged())

	mustSet(t, f.user, "layer_height", "value", 0.3)

	if got := f.provider.Properties()["value"]; got != 0.3 {
		t.Fatalf("expected refreshed value 0.3, got %v", got)
	}
	if len(*properties) == 0 {
		t.Fatalf("PropertiesChanged should fire")
	}
	if diff := cmp.Diff([][]int{{0, 1, 2}}, *levels); diff != "" {
		t.Fatalf("unexpected level changes (-want +got):\n%s", diff)
	}

	*properties = nil
	mustSet(t, f.user, "adhesion_type", "value", "brim")
	if len(*properties) != 0 {
		t.Fatalf("unrelated keys should not refresh the provider")
	}

	f.provider.ForcePropertiesChanged()
	if len(*properties) != 1 {
		t.Fatalf("forced refresh always emits, got %d", len(*properties))
	}

	*levels = nil
	if err := f.stack.RemoveContainer(1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if diff := cmp.Diff([][]int{{0, 1}}, *levels); diff != "" {
		t.Fatalf("container changes should recompute levels (-want +got):\n%s", diff)
	}
}

func TestSettingPropertyProviderSetPropertyValue(t *testing.T) {
	f := newProviderFixture(t)

	f.provider.SetPropertyValue("value", 0.3)

	if got := f.user.Property("layer_height", "value"); got != 0.3 {
		t.Fatalf("value should be stored at the store index, got %v", got)
	}
	if got := f.provider.GetPropertyValue("value", 0); got != 0.3 {
		t.Fatalf("expected level 0 to hold 0.3, got %v", got)
	}
	if got := f.provider.GetPropertyValue("value", 1); got != 0.2 {
		t.Fatalf("expected level 1 to hold 0.2, got %v", got)
	}
	if f.provider.GetPropertyValue("value", 9) != nil {
		t.Fatalf("out of range levels read as nil")
	}

	if diff := cmp.Diff([]string{activity.VerbSettingUpdated}, f.hook.Verbs()); diff != "" {
		t.Fatalf("unexpected activity (-want +got):\n%s", diff)
	}
	event := f.hook.Events[0]
	if event.StackID != "global" || event.ContainerID != "user" || event.Key != "layer_height" || event.ObjectID != "global/layer_height" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Metadata["old_value"] != nil || event.Metadata["new_value"] != 0.3 || event.Metadata["level"] != 0 {
		t.Fatalf("unexpected event metadata: %+v", event.Metadata)
	}

	f.provider.SetPropertyValue("label", "ignored")
	if f.user.HasProperty("layer_height", "label") {
		t.Fatalf("unwatched properties are not written")
	}
}

func TestSettingPropertyProviderPrunesRedundantValues(t *testing.T) {
	tests := []struct {
		name       string
		prepare    func(t *testing.T, f *providerFixture)
		value      any
		wantStored any
		wantVerbs  []string
	}{
		{
			name: "equal to the level below",
			prepare: func(t *testing.T, f *providerFixture) {
				mustSet(t, f.user, "layer_height", "value", 0.3)
			},
			value:      0.2,
			wantStored: nil,
			wantVerbs:  []string{activity.VerbSettingRemoved},
		},
		{
			name:       "equal by printed form",
			prepare:    func(t *testing.T, f *providerFixture) { mustSet(t, f.user, "layer_height", "value", 0.3) },
			value:      "0.2",
			wantStored: nil,
			wantVerbs:  []string{activity.VerbSettingRemoved},
		},
		{
			name:       "different value is stored",
			prepare:    func(t *testing.T, f *providerFixture) {},
			value:      0.25,
			wantStored: 0.25,
			wantVerbs:  []string{activity.VerbSettingUpdated},
		},
		{
			name: "calculated values are kept",
			prepare: func(t *testing.T, f *providerFixture) {
				mustSet(t, f.user, "layer_height", "value", 0.3)
				mustSet(t, f.user, "layer_height", "state", InstanceCalculated)
			},
			value:      0.2,
			wantStored: 0.2,
			wantVerbs:  []string{activity.VerbSettingUpdated},
		},
		{
			name: "pruning disabled",
			prepare: func(t *testing.T, f *providerFixture) {
				f.provider.SetRemoveUnusedValue(false)
			},
			value:      0.2,
			wantStored: 0.2,
			wantVerbs:  []string{activity.VerbSettingUpdated},
		},
		{
			name: "default value below",
			prepare: func(t *testing.T, f *providerFixture) {
				f.quality.RemoveInstance("layer_height")
				mustSet(t, f.user, "layer_height", "value", 0.3)
			},
			value:      0.1,
			wantStored: nil,
			wantVerbs:  []string{activity.VerbSettingRemoved},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newProviderFixture(t)
			tt.prepare(t, f)
			f.hook.Reset()

			f.provider.SetPropertyValue("value", tt.value)

			raw, _ := f.user.RawProperty("layer_height", "value")
			if !valuesEqual(raw.Raw(), tt.wantStored) {
				t.Fatalf("expected stored %v, got %v", tt.wantStored, raw.Raw())
			}
			if diff := cmp.Diff(tt.wantVerbs, f.hook.Verbs()); diff != "" {
				t.Fatalf("unexpected activity (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSettingPropertyProviderWritesOnlyToInstances(t *testing.T) {
	f := newProviderFixture(t)
	f.provider.SetStoreIndex(2)
	f.provider.SetPropertyValue("value", 0.3)

	if len(f.hook.Events) != 0 {
		t.Fatalf("definition levels do not take overrides")
	}
	f.provider.RemoveFromContainer(2)
	if f.def.Property("layer_height", "value") != 0.1 {
		t.Fatalf("definition must be untouched")
	}

	f.quality.SetReadOnly(true)
	f.provider.RemoveFromContainer(1)
	if f.quality.Instance("layer_height") == nil {
		t.Fatalf("read-only containers keep their overrides")
	}
}

func TestSettingPropertyProviderIsValueUsed(t *testing.T) {
	f := newProviderFixture(t)
	used := recordChanges(f.provider.IsValueUsedChanged())

	if !f.provider.IsValueUsed() {
		t.Fatalf("dependents computed from the value use it")
	}

	mustSet(t, f.user, "layer_height_0", "value", 0.5)
	if f.provider.IsValueUsed() {
		t.Fatalf("a user override of every dependent makes the value unused")
	}

	mustSet(t, f.user, "layer_height_0", "value", "=layer_height * 3")
	if !f.provider.IsValueUsed() {
		t.Fatalf("formula overrides still read the value")
	}

	f.user.RemoveInstance("layer_height_0")
	if diff := cmp.Diff([]bool{false, true}, *used); diff != "" {
		t.Fatalf("unexpected emissions (-want +got):\n%s", diff)
	}

	other := newProviderFixture(t)
	other.provider.SetKey("adhesion_type")
	if !other.provider.IsValueUsed() {
		t.Fatalf("settings nothing depends on are always used")
	}
}

func TestSettingPropertyProviderValidationState(t *testing.T) {
	f := newProviderFixture(t)

	tests := []struct {
		value any
		want  ValidationState
	}{
		{0.3, ValidationValid},
		{0.03, ValidationMinimumWarning},
		{0.0001, ValidationMinimumError},
		{0.6, ValidationMaximumWarning},
		{2.0, ValidationMaximumError},
		{"thick", ValidationInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			mustSet(t, f.user, "layer_height", "value", tt.value)
			if got := f.provider.Properties()["validationState"]; got != tt.want {
				t.Fatalf("expected %s, got %v", tt.want, got)
			}
		})
	}
}

func TestSettingPropertyProviderAcrossNextStack(t *testing.T) {
	f := newProviderFixture(t)
	extruderUser := NewInstanceContainer("extruder_user")
	extruderUser.SetDefinition(f.def)
	extruder := NewContainerStack("extruder")
	mustAdd(t, extruder, extruderUser)
	if err := extruder.SetNextStack(f.stack); err != nil {
		t.Fatalf("next: %v", err)
	}

	provider := NewSettingPropertyProvider(nil)
	provider.SetWatchedProperties([]string{"value"})
	provider.SetKey("layer_height")
	provider.SetContainerStack(extruder)

	if diff := cmp.Diff([]int{2, 3}, provider.StackLevels()); diff != "" {
		t.Fatalf("levels should be flattened across the chain (-want +got):\n%s", diff)
	}

	mustSet(t, f.user, "layer_height", "value", 0.35)
	if got := provider.Properties()["value"]; got != 0.35 {
		t.Fatalf("changes in the next stack should refresh the provider, got %v", got)
	}

	provider.SetStoreIndex(1)
	provider.SetPropertyValue("value", 0.15)
	if got := f.user.Property("layer_height", "value"); got != 0.15 {
		t.Fatalf("store index addresses the flattened chain, got %v", got)
	}
}
