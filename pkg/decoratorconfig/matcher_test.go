package decoratorconfig

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatch_WholeHostOnly(t *testing.T) {
	set := NewSet(NewBuilder().Enabled(true).Host(`a\.example\.com`, "/site-a").Build()...)

	require.Equal(t, "/site-a", set.Match("a.example.com").ContextPath())
	require.Same(t, InvalidEntry, set.Match("xa.example.com"))
	require.Same(t, InvalidEntry, set.Match("a.example.com.evil.org"))
	require.Same(t, InvalidEntry, set.Match(""))
}

func TestMatch_AlternationIsAnchoredAsAWhole(t *testing.T) {
	set := NewSet(NewBuilder().Enabled(true).Host(`a\.example\.com|b\.example\.com`, "/ab").Build()...)

	require.Equal(t, "/ab", set.Match("b.example.com").ContextPath())
	require.Same(t, InvalidEntry, set.Match("b.example.com.org"))
}

func TestMatch_DeclarationOrderWins(t *testing.T) {
	first := NewBuilder().Enabled(true).Host(`.*\.example\.com`, "/wildcard").Build()
	second := NewBuilder().Enabled(true).Host(`a\.example\.com`, "/site-a").Build()
	set := NewSet(append(first, second...)...)

	require.Equal(t, "/wildcard", set.Match("a.example.com").ContextPath())
}

func TestInvalidEntryPredicates(t *testing.T) {
	require.True(t, InvalidEntry.Disabled())
	require.True(t, InvalidEntry.Invalid())
	require.Equal(t, "", InvalidEntry.ContextPath())
	require.Nil(t, InvalidEntry.HostPattern())

	var nilEntry *Entry
	require.True(t, nilEntry.Invalid())
	require.Equal(t, "", nilEntry.ContextPath())
}

func TestBuilder_DropsEmptyAndBadPatterns(t *testing.T) {
	var buf bytes.Buffer
	entries := NewBuilder().
		Logger(bufferLogger(&buf)).
		Enabled(true).
		Host("", "/empty").
		Host("(", "/broken").
		Host(`ok\.example\.com`, "/ok").
		Build()

	require.Len(t, entries, 1)
	require.Equal(t, "/ok", entries[0].ContextPath())
	require.Equal(t, DefaultHostHeader, entries[0].HostHeader())
	require.Contains(t, buf.String(), "skipping empty host value")
	require.Contains(t, buf.String(), "invalid host pattern")
}

func TestBuilder_HostsIsDeterministic(t *testing.T) {
	entries := NewBuilder().Enabled(true).Hosts(map[string]string{
		"c": "/c",
		"a": "/a",
		"b": "/b",
	}).Build()
	require.Len(t, entries, 3)
	require.Equal(t, "a", entries[0].Pattern())
	require.Equal(t, "b", entries[1].Pattern())
	require.Equal(t, "c", entries[2].Pattern())
}

func TestNewSet_CollapsesStructuralDuplicates(t *testing.T) {
	a := NewBuilder().Enabled(true).Host("h", "/p").Build()
	b := NewBuilder().Enabled(true).Host("h", "/p").Build()
	c := NewBuilder().Enabled(false).Host("h", "/p").Build()

	set := NewSet(append(append(a, b...), c...)...)
	require.Equal(t, 2, set.Len())
	require.Same(t, a[0], set.Entries()[0])
	require.True(t, a[0].Equal(b[0]))
	require.False(t, a[0].Equal(c[0]))
}

func TestMatcherFunc(t *testing.T) {
	calls := 0
	m := MatcherFunc(func(host string, set *Set) *Entry {
		calls++
		return FirstMatch.Match(host, set)
	})
	set := NewSet(NewBuilder().Enabled(true).Host("h", "/p").Build()...)
	require.Equal(t, "/p", m.Match("h", set).ContextPath())
	require.Equal(t, 1, calls)
}
