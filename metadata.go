package settings

import "github.com/goliatone/go-settings/internal/hydrate"

// DecodeMetadata decodes the container metadata into out, which must be a
// pointer to a struct with mapstructure tags. String values are converted to
// the field types, so metadata read from INI documents decodes cleanly.
func DecodeMetadata(c Container, out any) error {
	if c == nil {
		return hydrate.Decode(nil, out)
	}
	return hydrate.Decode(c.Metadata(), out)
}

// containerWeight returns the "weight" metadata entry, or 0.
func containerWeight(c Container) int {
	var meta struct {
		Weight int `mapstructure:"weight"`
	}
	if err := DecodeMetadata(c, &meta); err != nil {
		return 0
	}
	return meta.Weight
}
