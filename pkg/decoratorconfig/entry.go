package decoratorconfig

import (
	"encoding/json"
	"fmt"
	"regexp"
)

const (
	// DefaultHostHeader is used when a record does not name its own host header.
	DefaultHostHeader = "X-Forwarded-Host"

	KeyEnabled      = "enabled"
	KeyHostnames    = "hostnames"
	KeyContextPaths = "contextpaths"
	KeyHostHeader   = "hostheader"
)

// InvalidEntry is the shared "no decision" value. It is never mutated.
var InvalidEntry = &Entry{}

// Entry maps one host pattern to the context path requests for that host
// should observe. Entries are immutable once built.
type Entry struct {
	enabled        bool
	valid          bool
	hostHeader     string
	contextPath    string
	hasContextPath bool
	pattern        string
	hostPattern    *regexp.Regexp
}

func (e *Entry) Enabled() bool      { return e != nil && e.enabled }
func (e *Entry) Valid() bool        { return e != nil && e.valid }
func (e *Entry) Disabled() bool     { return !e.Enabled() }
func (e *Entry) Invalid() bool      { return !e.Valid() }
func (e *Entry) HostHeader() string { return e.get().hostHeader }

func (e *Entry) ContextPath() string { return e.get().contextPath }

// Pattern returns the host pattern as it was configured, before anchoring.
func (e *Entry) Pattern() string { return e.get().pattern }

// HostPattern returns the compiled, fully anchored host pattern.
func (e *Entry) HostPattern() *regexp.Regexp { return e.get().hostPattern }

// Matches reports whether host matches the whole pattern.
func (e *Entry) Matches(host string) bool {
	if e == nil || e.hostPattern == nil || host == "" {
		return false
	}
	return e.hostPattern.MatchString(host)
}

func (e *Entry) get() *Entry {
	if e == nil {
		return InvalidEntry
	}
	return e
}

type entryKey struct {
	enabled     bool
	hostHeader  string
	contextPath string
	pattern     string
}

func (e *Entry) key() entryKey {
	return entryKey{
		enabled:     e.enabled,
		hostHeader:  e.hostHeader,
		contextPath: e.contextPath,
		pattern:     e.pattern,
	}
}

// Equal reports structural equality over the configured fields.
func (e *Entry) Equal(o *Entry) bool {
	return e.get().key() == o.get().key()
}

func (e *Entry) String() string {
	e = e.get()
	return fmt.Sprintf("Entry{valid=%t, enabled=%t, hostHeader=%q, contextPath=%q, hostPattern=%q}",
		e.valid, e.enabled, e.hostHeader, e.contextPath, e.pattern)
}

func (e *Entry) MarshalJSON() ([]byte, error) {
	e = e.get()
	return json.Marshal(struct {
		Enabled     bool   `json:"enabled"`
		Valid       bool   `json:"valid"`
		HostHeader  string `json:"host_header"`
		ContextPath string `json:"context_path"`
		HostPattern string `json:"host_pattern"`
	}{e.enabled, e.valid, e.hostHeader, e.contextPath, e.pattern})
}

// compileHostPattern anchors p so that it has to match the whole host.
func compileHostPattern(p string) (*regexp.Regexp, error) {
	return regexp.Compile(`^(?:` + p + `)$`)
}
