package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/recenthistory/errors"
)

func TestFactories(t *testing.T) {
	ctx := context.Background()
	f := NewFactories()

	var seen Options
	f.Register("Memory", func(_ context.Context, opts Options) (Store, error) {
		seen = opts
		return &stubStore{}, nil
	})
	f.Register("broken", func(context.Context, Options) (Store, error) {
		return nil, errors.New("no connection")
	})

	assert.Equal(t, []string{"broken", "memory"}, f.Names())

	store, err := f.Create(ctx, " MEMORY ", Options{TablePrefix: "x_"})
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, DefaultPurgeInterval, seen.PurgeInterval)
	assert.Equal(t, DefaultEntryTTL, seen.EntryTTL)
	assert.Equal(t, "x_", seen.TablePrefix)

	_, err = f.Create(ctx, "broken", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create broken history store")

	_, err = f.Create(ctx, "redis", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownStoreType))
	assert.Contains(t, errors.FlattenHints(err), "broken, memory")
}

func TestOptionsWithDefaultsKeepsExplicitValues(t *testing.T) {
	opts := Options{PurgeInterval: 5 * time.Second, EntryTTL: time.Hour}.WithDefaults()
	assert.Equal(t, 5*time.Second, opts.PurgeInterval)
	assert.Equal(t, time.Hour, opts.EntryTTL)
}

func TestClose(t *testing.T) {
	s := &stubStore{}
	require.NoError(t, Close(s))
	assert.True(t, s.closed)
}
