package layering

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ErrNotMapping is returned when a document root is not a mapping.
var ErrNotMapping = errors.New("layering: document root must be a mapping")

// Parse decodes a JSON, JSONC or YAML mapping into an ordered Document.
// JSON input is detected by a leading brace and has comments and trailing
// commas stripped before decoding.
func Parse(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("layering: empty document")
	}
	if trimmed[0] == '{' {
		trimmed = jsonc.ToJSON(trimmed)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(trimmed, &root); err != nil {
		return nil, fmt.Errorf("layering: %w", err)
	}
	node := &root
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil, fmt.Errorf("layering: empty document")
		}
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil, ErrNotMapping
	}
	value, err := convertNode(node)
	if err != nil {
		return nil, err
	}
	return value.(*Document), nil
}

func convertNode(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.AliasNode:
		if node.Alias == nil {
			return nil, nil
		}
		return convertNode(node.Alias)
	case yaml.MappingNode:
		doc := NewDocument()
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			value, err := convertNode(node.Content[i+1])
			if err != nil {
				return nil, fmt.Errorf("layering: key %q: %w", key, err)
			}
			doc.Set(key, value)
		}
		return doc, nil
	case yaml.SequenceNode:
		items := make([]any, 0, len(node.Content))
		for _, child := range node.Content {
			value, err := convertNode(child)
			if err != nil {
				return nil, err
			}
			items = append(items, value)
		}
		return items, nil
	case yaml.ScalarNode:
		var value any
		if err := node.Decode(&value); err != nil {
			return nil, err
		}
		return value, nil
	default:
		return nil, fmt.Errorf("layering: unsupported node kind %d", node.Kind)
	}
}
