package mapping

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Table maps filename extensions to the content types they are allowed to
// be detected as. It is read-only once built.
type Table struct {
	entries map[string][]string
}

// NewTable creates a new mapping table
func NewTable(entries map[string][]string, logger *zap.Logger) *Table {
	// Normalize extensions (lowercase, no leading dot)
	normalized := make(map[string][]string, len(entries))
	for ext, types := range entries {
		key := normalizeExtension(ext)
		if key == "" {
			continue
		}
		for _, contentType := range types {
			contentType = strings.ToLower(strings.TrimSpace(contentType))
			if contentType != "" {
				normalized[key] = append(normalized[key], contentType)
			}
		}
	}

	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized content type mappings", zap.Strings("extensions", sortedKeys(normalized)))
	}

	return &Table{entries: normalized}
}

// FromConfig builds a table from a configuration map whose values are
// either a single content type or a list of them
func FromConfig(raw map[string]interface{}, logger *zap.Logger) (*Table, error) {
	entries := make(map[string][]string, len(raw))
	for ext, value := range raw {
		switch v := value.(type) {
		case string:
			entries[ext] = []string{v}
		case []string:
			entries[ext] = v
		case []interface{}:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("invalid content type mapping for %q: %v", ext, item)
				}
				entries[ext] = append(entries[ext], s)
			}
		default:
			return nil, fmt.Errorf("invalid content type mapping for %q: %v", ext, value)
		}
	}
	return NewTable(entries, logger), nil
}

// Lookup returns the content types registered for an extension
func (t *Table) Lookup(ext string) ([]string, bool) {
	if t == nil || len(t.entries) == 0 {
		return nil, false
	}
	types, ok := t.entries[normalizeExtension(ext)]
	return types, ok
}

// Len returns the number of mapped extensions
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

func normalizeExtension(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
