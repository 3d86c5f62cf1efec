// Package metadata defines the multi-valued key/value bag attached to
// processors (dynamic and static metadata) and to job input.
package metadata

import (
	"sort"

	"github.com/viant/toolbox"
	"gopkg.in/yaml.v3"
)

// Metadata maps a key to an ordered list of values. A nil Metadata is a valid
// empty bag for reads.
type Metadata map[string][]string

// New creates an empty metadata bag
func New() Metadata {
	return Metadata{}
}

// FromValues converts loosely typed values (scalars or slices) into Metadata.
func FromValues(values map[string]interface{}) Metadata {
	ret := make(Metadata, len(values))
	for key, value := range values {
		if value == nil {
			continue
		}
		if toolbox.IsSlice(value) {
			items := toolbox.AsSlice(value)
			converted := make([]string, 0, len(items))
			for _, item := range items {
				converted = append(converted, toolbox.AsString(item))
			}
			ret[key] = converted
			continue
		}
		ret[key] = []string{toolbox.AsString(value)}
	}
	return ret
}

// UnmarshalYAML accepts scalars or lists per key, e.g. `{Site: east, Ports: [80, 443]}`
func (m *Metadata) UnmarshalYAML(node *yaml.Node) error {
	var values map[string]interface{}
	if err := node.Decode(&values); err != nil {
		return err
	}
	*m = FromValues(values)
	return nil
}

// Get returns the first value for key
func (m Metadata) Get(key string) string {
	values := m[key]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// GetAll returns a copy of all values for key
func (m Metadata) GetAll(key string) []string {
	values := m[key]
	if len(values) == 0 {
		return nil
	}
	return append([]string(nil), values...)
}

// Has returns true if key has at least one value
func (m Metadata) Has(key string) bool {
	return len(m[key]) > 0
}

// Add appends values to key
func (m Metadata) Add(key string, values ...string) {
	m[key] = append(m[key], values...)
}

// Replace overwrites values of key
func (m Metadata) Replace(key string, values ...string) {
	m[key] = append([]string(nil), values...)
}

// Remove deletes key
func (m Metadata) Remove(key string) {
	delete(m, key)
}

// Keys returns sorted keys
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	ret := make(Metadata, len(m))
	for k, v := range m {
		ret[k] = append([]string(nil), v...)
	}
	return ret
}

// Subset returns a copy restricted to keys
func (m Metadata) Subset(keys ...string) Metadata {
	ret := make(Metadata, len(keys))
	for _, key := range keys {
		if values, ok := m[key]; ok {
			ret[key] = append([]string(nil), values...)
		}
	}
	return ret
}

// Merge returns a copy of m overlaid with other; other wins on conflicts.
func (m Metadata) Merge(other Metadata) Metadata {
	ret := m.Clone()
	if ret == nil {
		ret = Metadata{}
	}
	for k, v := range other {
		ret[k] = append([]string(nil), v...)
	}
	return ret
}

// Equal reports whether both bags hold the same keys and ordered values
func (m Metadata) Equal(other Metadata) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		o, ok := other[k]
		if !ok || len(o) != len(v) {
			return false
		}
		for i := range v {
			if v[i] != o[i] {
				return false
			}
		}
	}
	return true
}
