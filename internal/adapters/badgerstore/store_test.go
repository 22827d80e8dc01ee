package badgerstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, found, err := s.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "example.com", []byte(`{"status":"analyzed"}`)))
	require.NoError(t, s.Set(ctx, "example.com", []byte(`{"status":"error"}`)))
	require.NoError(t, s.Set(ctx, "shop.io", []byte(`{}`)))

	v, found, err := s.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"status":"error"}`, string(v))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"example.com", "shop.io"}, keys)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "example.com", []byte(`1`)))
	require.NoError(t, s.Close())

	s, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer s.Close()
	v, found, err := s.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", string(v))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
