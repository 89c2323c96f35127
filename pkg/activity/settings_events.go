package activity

import (
	"strings"
	"time"
)

const (
	VerbSettingUpdated = "setting.updated"
	VerbSettingRemoved = "setting.removed"
	VerbStackChanged   = "stack.changed"

	ObjectSetting = "setting"
	ObjectStack   = "stack"
)

// SettingEventInput describes a change to one setting property written into
// a container of a stack.
type SettingEventInput struct {
	ActorID     string
	UserID      string
	TenantID    string
	Channel     string
	StackID     string
	ContainerID string
	Level       int
	Key         string
	Property    string
	OldValue    any
	NewValue    any
	Metadata    map[string]any
	OccurredAt  time.Time
}

// StackEventInput describes a change to the container list of a stack.
type StackEventInput struct {
	ActorID    string
	UserID     string
	TenantID   string
	Channel    string
	StackID    string
	Containers []string
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildSettingUpdatedEvent constructs the event for a stored override.
func BuildSettingUpdatedEvent(input SettingEventInput) Event {
	return buildSettingEvent(VerbSettingUpdated, input)
}

// BuildSettingRemovedEvent constructs the event for a dropped override.
func BuildSettingRemovedEvent(input SettingEventInput) Event {
	return buildSettingEvent(VerbSettingRemoved, input)
}

// BuildStackChangedEvent constructs the event for a reordered or reloaded stack.
func BuildStackChangedEvent(input StackEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.Containers != nil {
		metadata = ensureMetadata(metadata)
		metadata["containers"] = append([]string{}, input.Containers...)
	}
	stackID := strings.TrimSpace(input.StackID)
	objectID := stackID
	if objectID == "" {
		objectID = ObjectStack
	}
	return Event{
		Verb:       VerbStackChanged,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: ObjectStack,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		StackID:    stackID,
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func buildSettingEvent(verb string, input SettingEventInput) Event {
	metadata := cloneMap(input.Metadata)
	metadata = ensureMetadata(metadata)
	metadata["level"] = input.Level
	if input.OldValue != nil {
		metadata["old_value"] = input.OldValue
	}
	if input.NewValue != nil {
		metadata["new_value"] = input.NewValue
	}

	key := strings.TrimSpace(input.Key)
	objectID := key
	if stack := strings.TrimSpace(input.StackID); stack != "" && key != "" {
		objectID = stack + "/" + key
	}
	if objectID == "" {
		objectID = ObjectSetting
	}

	return Event{
		Verb:        verb,
		ActorID:     strings.TrimSpace(input.ActorID),
		UserID:      strings.TrimSpace(input.UserID),
		TenantID:    strings.TrimSpace(input.TenantID),
		ObjectType:  ObjectSetting,
		ObjectID:    objectID,
		Channel:     strings.TrimSpace(input.Channel),
		StackID:     strings.TrimSpace(input.StackID),
		ContainerID: strings.TrimSpace(input.ContainerID),
		Key:         key,
		Property:    strings.TrimSpace(input.Property),
		Metadata:    metadata,
		OccurredAt:  input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
