// Package bimap holds a small read-only two-way lookup table.
package bimap

// BiMap maps keys to values and values back to keys. It is built once and
// never modified, so it is safe to share between goroutines.
type BiMap[K comparable, V comparable] struct {
	forward map[K]V
	reverse map[V]K
}

// New copies input into a BiMap. When input holds the same value under two
// keys, the reverse lookup resolves to whichever key was visited last.
func New[K comparable, V comparable](input map[K]V) *BiMap[K, V] {
	m := &BiMap[K, V]{
		forward: make(map[K]V, len(input)),
		reverse: make(map[V]K, len(input)),
	}
	for k, v := range input {
		m.forward[k] = v
		m.reverse[v] = k
	}
	return m
}

// Lookup returns the value stored under key.
func (m *BiMap[K, V]) Lookup(key K) (V, bool) {
	v, ok := m.forward[key]
	return v, ok
}

// RLookup returns the key stored for value.
func (m *BiMap[K, V]) RLookup(value V) (K, bool) {
	k, ok := m.reverse[value]
	return k, ok
}

// Len reports the number of entries.
func (m *BiMap[K, V]) Len() int {
	return len(m.forward)
}
