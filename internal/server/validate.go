package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/onehippo-forge/servlet-filter-decorators/internal/config"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorconfig"
)

// Validate loads the process config and the decorator records it points at
// and reports what would be served. Rejected records and host patterns fail
// validation.
func Validate(ctx context.Context, cfgPath string, out io.Writer) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	fmt.Fprintln(out, "ok: config")

	s := &Server{cfg: cfg, logger: slog.New(slog.DiscardHandler)}
	store, _, err := s.buildStore()
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Source.FetchTimeoutMs)*time.Millisecond)
	defer cancel()
	records, err := store.Fetch(fetchCtx)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}

	warnings := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelWarn}))
	set, res := decoratorconfig.BuildSet(records, warnings)
	fmt.Fprintf(out, "ok: records loaded=%d entries=%d\n", len(res.LoadedRecords), set.Len())
	for _, e := range set.Entries() {
		fmt.Fprintf(out, "  %s\n", e.String())
	}
	for _, d := range res.DroppedPatterns {
		fmt.Fprintf(out, "dropped: %s\n", d)
	}
	if len(res.SkippedRecords) > 0 {
		return fmt.Errorf("invalid records: %v", res.SkippedRecords)
	}
	if len(res.DroppedPatterns) > 0 {
		return fmt.Errorf("invalid host patterns: %v", res.DroppedPatterns)
	}
	return nil
}
