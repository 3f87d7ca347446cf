// Package filesource reads decorator records from a YAML document on disk
// and signals changes to it through fsnotify.
package filesource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/onehippo-forge/servlet-filter-decorators/pkg/configsource"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorconfig"
)

type Store struct {
	path string
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("filesource: empty path")
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string { return s.path }

// Fetch reads and parses the whole document. A missing file is an error so
// the loader keeps whatever it already serves.
func (s *Store) Fetch(ctx context.Context) ([]decoratorconfig.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	records, err := decoratorconfig.ParseYAML(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return records, nil
}

// Watch marks changes whenever the file is written, created, renamed or
// removed. The parent directory is watched so editors that replace the file
// are still observed. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, changes *configsource.Staleness, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(abs)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info("watching decorator configuration file", "path", abs)

	const mask = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&mask == 0 {
				continue
			}
			logger.Debug("decorator configuration file changed", "path", abs, "op", ev.Op.String())
			changes.Set()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", "path", abs, "error", err)
		}
	}
}
