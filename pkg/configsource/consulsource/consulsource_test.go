package consulsource

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/require"

	"github.com/onehippo-forge/servlet-filter-decorators/pkg/configsource"
)

type kvResponse struct {
	pairs consulapi.KVPairs
	index uint64
	err   error
}

type fakeKV struct {
	mu        sync.Mutex
	responses []kvResponse
	prefixes  []string
	indexes   []uint64
}

func (f *fakeKV) List(prefix string, q *consulapi.QueryOptions) (consulapi.KVPairs, *consulapi.QueryMeta, error) {
	f.mu.Lock()
	f.prefixes = append(f.prefixes, prefix)
	f.indexes = append(f.indexes, q.WaitIndex)
	if len(f.responses) == 0 {
		f.mu.Unlock()
		<-q.Context().Done()
		return nil, nil, q.Context().Err()
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	f.mu.Unlock()
	if r.err != nil {
		return nil, nil, r.err
	}
	return r.pairs, &consulapi.QueryMeta{LastIndex: r.index}, nil
}

func TestStore_FetchDecodesKeysInOrder(t *testing.T) {
	kv := &fakeKV{responses: []kvResponse{{
		index: 7,
		pairs: consulapi.KVPairs{
			{Key: "decorators/site-b", Value: []byte("hostnames: ['b\\.example\\.com']\ncontextpaths: ['/site-b']\n")},
			{Key: "decorators/", Value: nil},
			{Key: "decorators/site-a", Value: []byte("hostnames: ['a\\.example\\.com']\ncontextpaths: ['/site-a']\n")},
			{Key: "decorators/garbage", Value: []byte("hostnames: [unterminated")},
		},
	}}}
	s := NewStore(kv, "/decorators", slog.New(slog.DiscardHandler))
	require.Equal(t, "decorators/", s.Prefix())

	records, err := s.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "site-a", records[0].Name)
	require.Equal(t, "site-b", records[1].Name)
	require.Equal(t, []string{"decorators/"}, kv.prefixes)
}

func TestStore_FetchError(t *testing.T) {
	boom := errors.New("connection refused")
	kv := &fakeKV{responses: []kvResponse{{err: boom}}}
	s := NewStore(kv, "", slog.New(slog.DiscardHandler))
	require.Equal(t, DefaultPrefix, s.Prefix())

	_, err := s.Fetch(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestWatcher_SetsChangesWhenIndexMoves(t *testing.T) {
	kv := &fakeKV{responses: []kvResponse{
		{index: 10},
		{index: 10},
		{err: errors.New("transient")},
		{index: 12},
	}}
	changes := configsource.NewStaleness()
	w := &Watcher{
		KV:           kv,
		Prefix:       "decorators",
		WaitTime:     time.Second,
		Changes:      changes,
		Logger:       slog.New(slog.DiscardHandler),
		ErrorBackoff: time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	require.Eventually(t, changes.IsSet, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher did not stop")
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()
	require.Equal(t, []uint64{0, 10, 10, 10, 12}, kv.indexes)
}

func TestWatcher_BaselineDoesNotSignal(t *testing.T) {
	kv := &fakeKV{responses: []kvResponse{{index: 3}}}
	changes := configsource.NewStaleness()
	w := &Watcher{KV: kv, Changes: changes, Logger: slog.New(slog.DiscardHandler)}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Watch(ctx))
	require.False(t, changes.IsSet())
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(Config{Addr: "127.0.0.1:8500", Token: "secret"})
	require.NoError(t, err)
	require.NotNil(t, c.KV())
}
