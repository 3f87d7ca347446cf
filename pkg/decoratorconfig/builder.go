package decoratorconfig

import (
	"log/slog"
	"sort"
	"strings"
)

// Builder assembles the entries of one configuration record. All entries it
// produces share the same enabled flag and host header.
type Builder struct {
	mappings   []mapping
	hostHeader string
	enabled    bool
	logger     *slog.Logger
	dropped    []string
}

type mapping struct {
	host        string
	contextPath string
}

// NewBuilder returns a builder for enabled entries.
func NewBuilder() *Builder {
	return &Builder{enabled: true, logger: slog.Default()}
}

func (b *Builder) HostHeader(header string) *Builder {
	b.hostHeader = header
	return b
}

func (b *Builder) Enabled(enabled bool) *Builder {
	b.enabled = enabled
	return b
}

func (b *Builder) Logger(l *slog.Logger) *Builder {
	if l != nil {
		b.logger = l
	}
	return b
}

// Host appends one host pattern → context path mapping. Mappings keep the
// order in which they were added.
func (b *Builder) Host(pattern, contextPath string) *Builder {
	b.mappings = append(b.mappings, mapping{host: pattern, contextPath: contextPath})
	return b
}

// Hosts appends all mappings of hosts, sorted by pattern so that the result
// does not depend on map iteration order.
func (b *Builder) Hosts(hosts map[string]string) *Builder {
	keys := make([]string, 0, len(hosts))
	for k := range hosts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Host(k, hosts[k])
	}
	return b
}

// Build compiles every mapping. Empty hosts and patterns that fail to compile
// are logged and dropped. A later mapping for an identical pattern replaces
// the context path of the earlier one but keeps its position.
func (b *Builder) Build() []*Entry {
	header := strings.TrimSpace(b.hostHeader)
	if header == "" {
		header = DefaultHostHeader
	}

	b.dropped = b.dropped[:0]
	out := make([]*Entry, 0, len(b.mappings))
	byPattern := make(map[string]int, len(b.mappings))
	for _, m := range b.mappings {
		if strings.TrimSpace(m.host) == "" {
			b.logger.Warn("skipping empty host value", "context_path", m.contextPath)
			b.dropped = append(b.dropped, m.host)
			continue
		}
		re, err := compileHostPattern(m.host)
		if err != nil {
			b.logger.Error("invalid host pattern", "host", m.host, "error", err)
			b.dropped = append(b.dropped, m.host)
			continue
		}
		e := &Entry{
			enabled:        b.enabled,
			hostHeader:     header,
			contextPath:    m.contextPath,
			hasContextPath: true,
			pattern:        m.host,
			hostPattern:    re,
		}
		validate(e)
		if i, ok := byPattern[m.host]; ok {
			out[i] = e
			continue
		}
		byPattern[m.host] = len(out)
		out = append(out, e)
	}
	return out
}

// Dropped lists the host values the last Build rejected, in input order.
func (b *Builder) Dropped() []string {
	return append([]string(nil), b.dropped...)
}

func validate(e *Entry) {
	e.valid = e.hasContextPath && e.hostPattern != nil
}
