package issuer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credtrust/pkg/platform/sentinel"
)

type countingRegistry struct {
	calls  int
	result LookupResult
	err    error
}

func (r *countingRegistry) Lookup(_ context.Context, issuer, credentialID string) (LookupResult, error) {
	r.calls++
	if r.err != nil {
		return LookupResult{}, r.err
	}
	res := r.result
	res.Issuer, res.CredentialID, res.Source = issuer, credentialID, SourceRegistry
	return res, nil
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string, string) (LookupResult, error) {
	return LookupResult{}, errors.New("connection refused")
}

func (brokenCache) Set(context.Context, LookupResult) error {
	return errors.New("connection refused")
}

func TestInMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewInMemoryCache(time.Minute)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := cache.Get(ctx, "State Board", "C-1")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, cache.Set(ctx, LookupResult{Issuer: "State Board", CredentialID: "C-1", Status: StatusVerified}))
	got, err := cache.Get(ctx, "State Board", "C-1")
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, got.Status)

	now = now.Add(time.Minute)
	_, err = cache.Get(ctx, "State Board", "C-1")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCachedRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("second lookup is served from cache", func(t *testing.T) {
		next := &countingRegistry{result: LookupResult{Status: StatusVerified}}
		reg := NewCachedRegistry(next, NewInMemoryCache(time.Minute), nil, nil)

		first, err := reg.Lookup(ctx, "State Board", "C-1")
		require.NoError(t, err)
		assert.Equal(t, SourceRegistry, first.Source)

		second, err := reg.Lookup(ctx, "State Board", "C-1")
		require.NoError(t, err)
		assert.Equal(t, SourceCache, second.Source)
		assert.Equal(t, StatusVerified, second.Status)
		assert.Equal(t, 1, next.calls)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		next := &countingRegistry{err: sentinel.ErrUnavailable}
		reg := NewCachedRegistry(next, NewInMemoryCache(time.Minute), nil, nil)

		_, err := reg.Lookup(ctx, "State Board", "C-1")
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
		_, err = reg.Lookup(ctx, "State Board", "C-1")
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
		assert.Equal(t, 2, next.calls)
	})

	t.Run("broken cache falls through", func(t *testing.T) {
		next := &countingRegistry{result: LookupResult{Status: StatusRevoked}}
		reg := NewCachedRegistry(next, brokenCache{}, nil, nil)

		res, err := reg.Lookup(ctx, "State Board", "C-1")
		require.NoError(t, err)
		assert.Equal(t, StatusRevoked, res.Status)
	})
}
