package hydrate

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/mitchellh/copystructure"
)

// Context identifies the container whose metadata is decoded.
type Context struct {
	ContainerID string
	Kind        string
}

// PreHook lets callers normalise the metadata before decoding.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook lets callers adjust or validate the decoded struct.
type PostHook[T any] func(Context, *T) error

// DecoderOption configures a Decoder instance.
type DecoderOption[T any] func(*Decoder[T])

// Decoder converts loosely typed container metadata into structs. Metadata
// read from INI documents is all strings, so decoding is weakly typed.
type Decoder[T any] struct {
	preHooks  []PreHook
	postHooks []PostHook[T]
	strict    bool
	tagName   string
}

// WithPreHook applies hook prior to decoding.
func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.preHooks = append(d.preHooks, hook)
	}
}

// WithPostHook applies hook after decoding completes.
func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.postHooks = append(d.postHooks, hook)
	}
}

// WithErrorUnused fails the decode when metadata carries keys the target
// struct does not declare.
func WithErrorUnused[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.strict = true
	}
}

// WithTagName reads field names from tag instead of "mapstructure".
func WithTagName[T any](tag string) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if tag != "" {
			d.tagName = tag
		}
	}
}

func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{tagName: "mapstructure"}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode converts metadata into T applying configured hooks. The input map is
// never modified.
func (d *Decoder[T]) Decode(ctx Context, metadata map[string]any) (T, error) {
	var zero T

	if metadata == nil {
		metadata = map[string]any{}
	}

	current, err := cloneMetadata(metadata)
	if err != nil {
		return zero, fmt.Errorf("hydrate: clone metadata for %q: %w", ctx.ContainerID, err)
	}

	for _, hook := range d.preHooks {
		if hook == nil {
			continue
		}
		next, err := hook(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: pre-hook for %q failed: %w", ctx.ContainerID, err)
		}
		if next != nil {
			current = next
		}
	}

	var result T
	if err := decodeInto(current, &result, d.tagName, d.strict); err != nil {
		return zero, fmt.Errorf("hydrate: decode %q: %w", ctx.ContainerID, err)
	}

	for _, hook := range d.postHooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, &result); err != nil {
			return zero, fmt.Errorf("hydrate: post-hook for %q failed: %w", ctx.ContainerID, err)
		}
	}

	return result, nil
}

// Decode decodes metadata into out, which must be a pointer.
func Decode(metadata map[string]any, out any) error {
	return decodeInto(metadata, out, "mapstructure", false)
}

func decodeInto(input map[string]any, out any, tag string, strict bool) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          tag,
		WeaklyTypedInput: true,
		ErrorUnused:      strict,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

func cloneMetadata(metadata map[string]any) (map[string]any, error) {
	copied, err := copystructure.Copy(metadata)
	if err != nil {
		return nil, err
	}
	out, ok := copied.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected copy type %T", copied)
	}
	return out, nil
}
