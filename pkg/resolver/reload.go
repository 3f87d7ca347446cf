package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/onehippo-forge/servlet-filter-decorators/pkg/configsource"
)

type ReloadMode int

const (
	// ReloadSync reloads on the request that observes the change, before
	// that request is resolved.
	ReloadSync ReloadMode = iota
	// ReloadBackground hands the reload to a worker; requests keep using
	// the last published set until it completes.
	ReloadBackground
)

func (m ReloadMode) String() string {
	if m == ReloadBackground {
		return "background"
	}
	return "sync"
}

func ParseReloadMode(s string) (ReloadMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sync":
		return ReloadSync, nil
	case "background", "async":
		return ReloadBackground, nil
	default:
		return ReloadSync, fmt.Errorf("unknown reload mode %q", s)
	}
}

type reloader interface {
	reload(src configsource.Source)
	stop()
}

type syncReloader struct {
	r *Resolver
}

func (s syncReloader) reload(src configsource.Source) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.loadAndPublish(src)
}

func (syncReloader) stop() {}

// backgroundReloader runs reloads on one goroutine. Triggers that arrive
// while a reload is pending are coalesced.
type backgroundReloader struct {
	r       *Resolver
	trigger chan configsource.Source
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newBackgroundReloader(r *Resolver) *backgroundReloader {
	ctx, cancel := context.WithCancel(context.Background())
	b := &backgroundReloader{r: r, trigger: make(chan configsource.Source, 1), cancel: cancel}
	b.wg.Add(1)
	go b.run(ctx)
	return b
}

func (b *backgroundReloader) run(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case src := <-b.trigger:
			b.r.mu.Lock()
			b.r.loadAndPublish(src)
			b.r.mu.Unlock()
		}
	}
}

func (b *backgroundReloader) reload(src configsource.Source) {
	select {
	case b.trigger <- src:
	default:
	}
}

func (b *backgroundReloader) stop() {
	b.cancel()
	b.wg.Wait()
}
