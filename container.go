package settings

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/mitchellh/copystructure"
)

// ContainerKind enumerates the container implementations.
type ContainerKind int

const (
	KindDefinition ContainerKind = iota + 1
	KindInstance
	KindStack
)

func (k ContainerKind) String() string {
	switch k {
	case KindDefinition:
		return "definition"
	case KindInstance:
		return "instance"
	case KindStack:
		return "stack"
	default:
		return "unknown"
	}
}

// ValueProvider is the resolution context formulas are evaluated against.
type ValueProvider interface {
	RawProperty(key, property string) (PropertyValue, bool)
}

// Container is the capability set shared by definition containers, instance
// containers and stacks. The set of implementations is closed.
type Container interface {
	ValueProvider

	ID() string
	Name() string
	Kind() ContainerKind
	ReadOnly() bool
	Path() string
	SetPath(path string)
	Metadata() Metadata
	MetadataEntry(key string, fallback any) any

	// Property returns the evaluated property, or nil when absent.
	Property(key, property string) any
	HasProperty(key, property string) bool

	Serialize() (string, error)
	Deserialize(serialized string) error

	sealed()
}

// Observable containers announce property changes.
type Observable interface {
	PropertyChanged() *Signal[PropertyChange]
}

// Metadata holds arbitrary container metadata.
type Metadata map[string]any

// Clone returns a deep copy of m. A nil map clones to an empty one.
func (m Metadata) Clone() Metadata {
	if len(m) == 0 {
		return Metadata{}
	}
	copied, err := copystructure.Copy(map[string]any(m))
	if err == nil {
		if out, ok := copied.(map[string]any); ok {
			return Metadata(out)
		}
	}
	out := make(Metadata, len(m))
	for key, value := range m {
		out[key] = value
	}
	return out
}

// Keys returns the metadata keys sorted alphabetically.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Wildcard matches any value in a Query as long as the key is present.
const Wildcard = "*"

// Query filters containers or definitions. Values equal to Wildcard only
// require the key to be present.
type Query map[string]any

// matchContainer reports whether c satisfies every entry in q. The keys "id"
// and "name" match the container identity, other keys match metadata.
func matchContainer(c Container, q Query) bool {
	if c == nil {
		return false
	}
	metadata := c.Metadata()
	for key, want := range q {
		var have any
		var ok bool
		switch key {
		case "id":
			have, ok = c.ID(), true
		case "name":
			have, ok = c.Name(), true
		default:
			have, ok = metadata[key]
		}
		if !ok {
			return false
		}
		if want == Wildcard {
			continue
		}
		if !valuesEqual(have, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares numbers by value regardless of their Go type.
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	if fn, ok := a.(*SettingFunction); ok {
		if other, ok := b.(*SettingFunction); ok {
			return fn.Equal(other)
		}
		if code, ok := b.(string); ok {
			return fn.String() == code || fn.Code() == code
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// sameValue compares values by their printed form, so 5 and 5.0 are equal.
func sameValue(a, b any) bool {
	if valuesEqual(a, b) {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
