package decoratorconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrMissingHostnames    = errors.New("decoratorconfig: " + KeyHostnames + " property is missing")
	ErrMissingContextPaths = errors.New("decoratorconfig: " + KeyContextPaths + " property is missing")
	ErrLengthMismatch      = errors.New("decoratorconfig: number of host names doesn't match number of context paths")
)

// Record is the raw shape of one configuration node as stored by a backing
// store. Hostnames and ContextPaths are paired by position.
type Record struct {
	Name         string   `yaml:"name,omitempty" json:"name,omitempty"`
	Enabled      *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Hostnames    []string `yaml:"hostnames" json:"hostnames"`
	ContextPaths []string `yaml:"contextpaths" json:"contextpaths"`
	HostHeader   string   `yaml:"hostheader,omitempty" json:"hostheader,omitempty"`
}

// Document is the YAML file layout holding a list of records.
type Document struct {
	Decorators []Record `yaml:"decorators"`
}

func (r Record) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

func (r Record) Header() string {
	if h := strings.TrimSpace(r.HostHeader); h != "" {
		return h
	}
	return DefaultHostHeader
}

// Validate checks the record-level invariants. A record that fails here
// contributes no entries at all.
func (r Record) Validate() error {
	if r.Hostnames == nil {
		return ErrMissingHostnames
	}
	if r.ContextPaths == nil {
		return ErrMissingContextPaths
	}
	if len(r.Hostnames) != len(r.ContextPaths) {
		return fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(r.Hostnames), len(r.ContextPaths))
	}
	return nil
}

// Entries validates the record and builds its entries.
func (r Record) Entries(logger *slog.Logger) ([]*Entry, error) {
	entries, _, err := r.build(logger)
	return entries, err
}

// build also returns the host values that were dropped.
func (r Record) build(logger *slog.Logger) ([]*Entry, []string, error) {
	if err := r.Validate(); err != nil {
		return nil, nil, err
	}
	b := NewBuilder().Logger(logger).Enabled(r.IsEnabled()).HostHeader(r.Header())
	for i, host := range r.Hostnames {
		b.Host(host, r.ContextPaths[i])
	}
	return b.Build(), b.Dropped(), nil
}

type LoadResult struct {
	LoadedRecords  []string
	SkippedRecords []string
	// DroppedPatterns holds "record: host" for every host value that was
	// rejected inside an otherwise loaded record.
	DroppedPatterns []string
	Entries         int
}

// BuildSet turns raw records into a Set. Malformed records are logged and
// skipped; their siblings still load.
func BuildSet(records []Record, logger *slog.Logger) (*Set, LoadResult) {
	if logger == nil {
		logger = slog.Default()
	}
	var res LoadResult
	all := make([]*Entry, 0, len(records))
	for i, rec := range records {
		name := rec.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		if !rec.IsEnabled() {
			logger.Info("configuration disabled", "record", name)
		}
		entries, dropped, err := rec.build(logger.With("record", name))
		if err != nil {
			logger.Error("invalid decorator configuration", "record", name, "error", err)
			res.SkippedRecords = append(res.SkippedRecords, name)
			continue
		}
		logger.Info("loaded configurations", "record", name, "entries", len(entries))
		res.LoadedRecords = append(res.LoadedRecords, name)
		for _, host := range dropped {
			res.DroppedPatterns = append(res.DroppedPatterns, fmt.Sprintf("%s: %q", name, host))
		}
		all = append(all, entries...)
	}
	set := NewSet(all...)
	res.Entries = set.Len()
	return set, res
}

// ParseYAML decodes a Document.
func ParseYAML(data []byte) ([]Record, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse decorators yaml: %w", err)
	}
	return doc.Decorators, nil
}

// ParseRecordYAML decodes a single record, e.g. one key of a KV store.
func ParseRecordYAML(name string, data []byte) (Record, error) {
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parse record %q: %w", name, err)
	}
	if rec.Name == "" {
		rec.Name = name
	}
	return rec, nil
}
