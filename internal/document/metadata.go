package document

// Well-known metadata keys produced by engine modules. These are plain
// entries, not privileged at the type level.
const (
	// MetaExitCode carries the integer exit code of an external process.
	MetaExitCode = "ExitCode"

	// MetaErrorData carries captured standard-error text when a process
	// failed and continue-on-error was active.
	MetaErrorData = "ErrorData"
)

type metaEntry struct {
	key   string
	value any
}

// Metadata is an ordered, immutable key-value set with unique string keys.
// Values are of heterogeneous type and are shared by reference across
// derived metadata sets; no operation mutates an existing set.
type Metadata struct {
	entries []metaEntry
	index   map[string]int
}

// NewMetadata builds a metadata set from alternating key/value pairs given
// as a map-free ordered slice. Use NewMetadataFromPairs for explicit order.
func NewMetadata() *Metadata {
	return &Metadata{index: map[string]int{}}
}

// Pair is a single ordered metadata entry.
type Pair struct {
	Key   string
	Value any
}

// NewMetadataFromPairs builds a metadata set preserving the given order.
// Later duplicates replace earlier ones in place.
func NewMetadataFromPairs(pairs ...Pair) *Metadata {
	m := NewMetadata()
	for _, p := range pairs {
		m = m.With(p.Key, p.Value)
	}
	return m
}

// Len returns the number of entries.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Get returns the value for key and whether it is present.
func (m *Metadata) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	i, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return m.entries[i].value, true
}

// GetString returns the value for key as a string, or "" if absent or not a
// string.
func (m *Metadata) GetString(key string) string {
	v, ok := m.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetInt returns the value for key as an int, or 0 if absent or not an int.
func (m *Metadata) GetInt(key string) int {
	v, ok := m.Get(key)
	if !ok {
		return 0
	}
	n, _ := v.(int)
	return n
}

// Keys returns the keys in insertion order.
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.key
	}
	return keys
}

// Pairs returns the entries in insertion order.
func (m *Metadata) Pairs() []Pair {
	if m == nil {
		return nil
	}
	pairs := make([]Pair, len(m.entries))
	for i, e := range m.entries {
		pairs[i] = Pair{Key: e.key, Value: e.value}
	}
	return pairs
}

// With returns a new metadata set with key set to value. Existing keys are
// replaced in place; new keys are appended. The receiver is unchanged and
// unaffected entries are shared by reference.
func (m *Metadata) With(key string, value any) *Metadata {
	if m == nil {
		m = NewMetadata()
	}
	entries := make([]metaEntry, len(m.entries), len(m.entries)+1)
	copy(entries, m.entries)
	index := make(map[string]int, len(m.index)+1)
	for k, i := range m.index {
		index[k] = i
	}

	if i, ok := index[key]; ok {
		entries[i] = metaEntry{key: key, value: value}
	} else {
		index[key] = len(entries)
		entries = append(entries, metaEntry{key: key, value: value})
	}
	return &Metadata{entries: entries, index: index}
}

// Merge returns a new metadata set applying every entry of overrides on top
// of the receiver, in the overrides' order.
func (m *Metadata) Merge(overrides *Metadata) *Metadata {
	if overrides == nil || overrides.Len() == 0 {
		if m == nil {
			return NewMetadata()
		}
		return m
	}
	out := m
	for _, e := range overrides.entries {
		out = out.With(e.key, e.value)
	}
	return out
}
