package decoratorconfig

// Matcher resolves a host to an entry of a set.
type Matcher interface {
	Match(host string, set *Set) *Entry
}

type MatcherFunc func(host string, set *Set) *Entry

func (f MatcherFunc) Match(host string, set *Set) *Entry { return f(host, set) }

// FirstMatch returns the first entry, in declaration order, whose pattern
// matches the whole host. Empty hosts and misses yield InvalidEntry.
var FirstMatch Matcher = MatcherFunc(firstMatch)

func firstMatch(host string, set *Set) *Entry {
	if host == "" || set.Len() == 0 {
		return InvalidEntry
	}
	for _, e := range set.entries {
		if e.Matches(host) {
			return e
		}
	}
	return InvalidEntry
}
