package configsource

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterLookupUnregister(t *testing.T) {
	reg := NewRegistry()
	a := NewLoader(&fakeStore{}, LoaderOptions{Logger: slog.New(slog.DiscardHandler)})
	b := NewLoader(&fakeStore{}, LoaderOptions{Logger: slog.New(slog.DiscardHandler)})

	require.ErrorIs(t, reg.Register(" ", a), ErrEmptyName)
	require.ErrorIs(t, reg.Register("decorators", nil), ErrNilSource)

	require.NoError(t, reg.Register("decorators", a))
	require.NoError(t, reg.Register("decorators", a))
	require.ErrorIs(t, reg.Register("decorators", b), ErrConflict)
	require.Equal(t, []string{"decorators"}, reg.Names())

	got, ok := reg.Lookup("decorators")
	require.True(t, ok)
	require.Same(t, a, got)

	reg.Unregister("decorators", b)
	_, ok = reg.Lookup("decorators")
	require.True(t, ok)

	reg.Unregister("decorators", a)
	_, ok = reg.Lookup("decorators")
	require.False(t, ok)
}

func TestLocators(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	loc := RegistryLocator{Registry: reg, Name: "decorators"}

	_, err := loc.Locate(ctx)
	require.ErrorIs(t, err, ErrNotAvailable)

	l := NewLoader(&fakeStore{}, LoaderOptions{Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, reg.Register("decorators", l))
	src, err := loc.Locate(ctx)
	require.NoError(t, err)
	require.Same(t, l, src)

	_, err = StaticLocator{}.Locate(ctx)
	require.ErrorIs(t, err, ErrNotAvailable)
	src, err = StaticLocator{Source: l}.Locate(ctx)
	require.NoError(t, err)
	require.Same(t, l, src)

	src, err = LocatorFunc(func(context.Context) (Source, error) { return l, nil }).Locate(ctx)
	require.NoError(t, err)
	require.Same(t, l, src)
}

func TestModule_Lifecycle(t *testing.T) {
	reg := NewRegistry()
	l := NewLoader(&fakeStore{}, LoaderOptions{Logger: slog.New(slog.DiscardHandler)})
	m := &Module{Name: "decorators", Registry: reg, Loader: l, Logger: slog.New(slog.DiscardHandler)}

	require.NoError(t, m.Start())
	_, ok := reg.Lookup("decorators")
	require.True(t, ok)

	l.Load(context.Background())
	require.False(t, l.NeedsReload())
	m.Reconfigure()
	require.True(t, l.NeedsReload())

	m.Shutdown()
	_, ok = reg.Lookup("decorators")
	require.False(t, ok)
}
