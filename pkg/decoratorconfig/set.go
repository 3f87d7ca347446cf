package decoratorconfig

import (
	"time"
)

// Set is an immutable, ordered collection of entries produced by one load.
// Order is declaration order: records in source order, hostnames in list order.
type Set struct {
	entries    []*Entry
	generation uint64
	loadedAt   time.Time
}

var emptySet = &Set{}

func EmptySet() *Set { return emptySet }

// NewSet collects entries, dropping nil values and structural duplicates.
// The first occurrence of a duplicate keeps its position.
func NewSet(entries ...*Entry) *Set {
	seen := make(map[entryKey]struct{}, len(entries))
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		k := e.key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return &Set{entries: out}
}

// Stamped returns a copy of s carrying the given load generation and time.
func (s *Set) Stamped(generation uint64, loadedAt time.Time) *Set {
	if s == nil {
		s = emptySet
	}
	return &Set{entries: s.entries, generation: generation, loadedAt: loadedAt}
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries returns a copy of the entries in match order.
func (s *Set) Entries() []*Entry {
	if s == nil {
		return nil
	}
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Set) Generation() uint64 {
	if s == nil {
		return 0
	}
	return s.generation
}

func (s *Set) LoadedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.loadedAt
}

// HostHeaders lists the distinct host header names of the set in
// declaration order.
func (s *Set) HostHeaders() []string {
	if s.Len() == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, 1)
	for _, e := range s.entries {
		if _, ok := seen[e.hostHeader]; ok || e.hostHeader == "" {
			continue
		}
		seen[e.hostHeader] = struct{}{}
		out = append(out, e.hostHeader)
	}
	return out
}

// Match returns the first entry matching host, or InvalidEntry.
func (s *Set) Match(host string) *Entry {
	return FirstMatch.Match(host, s)
}
