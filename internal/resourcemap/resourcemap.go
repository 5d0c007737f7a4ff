// Package resourcemap implements a case-aware map keyed by URI that
// preserves the originally inserted URI on iteration, regardless of any
// case folding applied to the lookup key.
package resourcemap

import (
	"net/url"
	"regexp"
	"strings"

	"go.lsp.dev/uri"
)

// driveLetterPrefix matches a Windows-style drive-letter path prefix,
// e.g. "C:/" or "c:\".
var driveLetterPrefix = regexp.MustCompile(`^[A-Za-z]:[/\\]`)

// NormalizeFunc maps a URI to its canonical string key. Returning false
// means the URI cannot be keyed (map operations become no-ops/misses).
type NormalizeFunc func(u uri.URI) (string, bool)

// Config controls how a Map derives and folds its keys.
type Config struct {
	// Normalize produces the canonical key for a URI. DefaultNormalize is
	// used when nil.
	Normalize NormalizeFunc

	// OnCaseInsensitiveFileSystem, when true, additionally folds the case
	// of any absolute POSIX path (not just Windows drive-letter paths).
	OnCaseInsensitiveFileSystem bool
}

// DefaultNormalize implements the spec's default rule: for file-scheme
// URIs, use the decoded filesystem path; otherwise, the URI serialized
// without its fragment.
func DefaultNormalize(u uri.URI) (string, bool) {
	s := string(u)
	if s == "" {
		return "", false
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "file" {
		return u.Filename(), true
	}
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return parsed.String(), true
}

// isCaseInsensitivePath reports whether key looks like a Windows
// drive-letter path, or (when fs is case-insensitive) any absolute POSIX
// path.
func isCaseInsensitivePath(key string, caseInsensitiveFS bool) bool {
	if driveLetterPrefix.MatchString(key) {
		return true
	}
	return caseInsensitiveFS && strings.HasPrefix(key, "/")
}

type entry[V any] struct {
	original uri.URI
	value    V
}

// Map is a case-aware URI -> V map. It is not safe for concurrent use;
// callers in this module are single-threaded per spec.
type Map[V any] struct {
	cfg     Config
	entries map[string]*entry[V]
	order   []string // first-insertion order of keys
}

// New creates an empty Map using cfg. A zero Config uses DefaultNormalize
// and treats no path as case-insensitive.
func New[V any](cfg Config) *Map[V] {
	if cfg.Normalize == nil {
		cfg.Normalize = DefaultNormalize
	}
	return &Map[V]{
		cfg:     cfg,
		entries: make(map[string]*entry[V]),
	}
}

func (m *Map[V]) key(u uri.URI) (string, bool) {
	k, ok := m.cfg.Normalize(u)
	if !ok {
		return "", false
	}
	if isCaseInsensitivePath(k, m.cfg.OnCaseInsensitiveFileSystem) {
		k = strings.ToLower(k)
	}
	return k, true
}

// Has reports whether u is present.
func (m *Map[V]) Has(u uri.URI) bool {
	k, ok := m.key(u)
	if !ok {
		return false
	}
	_, found := m.entries[k]
	return found
}

// Get returns the value stored for u, if any.
func (m *Map[V]) Get(u uri.URI) (V, bool) {
	k, ok := m.key(u)
	if !ok {
		var zero V
		return zero, false
	}
	e, found := m.entries[k]
	if !found {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value for u. If the key already existed, the originally
// inserted URI is retained for iteration even though value is replaced.
func (m *Map[V]) Set(u uri.URI, value V) {
	k, ok := m.key(u)
	if !ok {
		return
	}
	if e, found := m.entries[k]; found {
		e.value = value
		return
	}
	m.entries[k] = &entry[V]{original: u, value: value}
	m.order = append(m.order, k)
}

// Delete removes u, if present.
func (m *Map[V]) Delete(u uri.URI) {
	k, ok := m.key(u)
	if !ok {
		return
	}
	if _, found := m.entries[k]; !found {
		return
	}
	delete(m.entries, k)
	for i, existing := range m.order {
		if existing == k {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Clear removes all entries.
func (m *Map[V]) Clear() {
	m.entries = make(map[string]*entry[V])
	m.order = nil
}

// Size returns the number of entries.
func (m *Map[V]) Size() int {
	return len(m.entries)
}

// Entry pairs the originally inserted URI with its current value.
type Entry[V any] struct {
	Resource uri.URI
	Value    V
}

// Entries returns all entries in insertion order, with each Resource
// equal to the URI originally passed to the first Set call for that key.
func (m *Map[V]) Entries() []Entry[V] {
	out := make([]Entry[V], 0, len(m.order))
	for _, k := range m.order {
		e := m.entries[k]
		out = append(out, Entry[V]{Resource: e.original, Value: e.value})
	}
	return out
}

// Values returns all stored values in insertion order.
func (m *Map[V]) Values() []V {
	out := make([]V, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.entries[k].value)
	}
	return out
}

// Resources returns the originally inserted URI of every entry, in
// insertion order, regardless of V.
func (m *Map[V]) Resources() []uri.URI {
	out := make([]uri.URI, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.entries[k].original)
	}
	return out
}

// Set is a ResourceMap specialized to set membership (V = struct{}).
// Add membership with Set(u, struct{}{}); Resources() yields its members.
type Set = Map[struct{}]

// NewSet constructs an empty resource Set using cfg.
func NewSet(cfg Config) *Set {
	return New[struct{}](cfg)
}
