package layering

// Merge composes overlay on top of base and returns a new document. Nested
// documents merge recursively, any other overlay value replaces the base value,
// and keys only present in overlay are appended after the base keys.
func Merge(base, overlay *Document) *Document {
	merged, _ := Clone(base).(*Document)
	if merged == nil {
		merged = NewDocument()
	}
	if overlay == nil {
		return merged
	}
	for _, key := range overlay.keys {
		strong := overlay.values[key]
		strongDoc, strongIsDoc := strong.(*Document)
		if weak, ok := merged.values[key]; ok && strongIsDoc {
			if weakDoc, weakIsDoc := weak.(*Document); weakIsDoc {
				merged.Set(key, Merge(weakDoc, strongDoc))
				continue
			}
		}
		merged.Set(key, Clone(strong))
	}
	return merged
}

// Clone deep copies documents and slices. Scalars are returned as-is.
func Clone(value any) any {
	switch typed := value.(type) {
	case *Document:
		if typed == nil {
			return (*Document)(nil)
		}
		out := &Document{
			keys:   make([]string, 0, len(typed.keys)),
			values: make(map[string]any, len(typed.values)),
		}
		for _, key := range typed.keys {
			out.keys = append(out.keys, key)
			out.values[key] = Clone(typed.values[key])
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = Clone(item)
		}
		return out
	default:
		return value
	}
}

// Find searches doc depth-first for a nested document stored under key.
func Find(doc *Document, key string) (*Document, bool) {
	if doc == nil {
		return nil, false
	}
	if found, ok := doc.Document(key); ok {
		return found, true
	}
	for _, k := range doc.keys {
		nested, ok := doc.values[k].(*Document)
		if !ok {
			continue
		}
		if found, ok := Find(nested, key); ok {
			return found, true
		}
	}
	return nil, false
}
