package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "a", "1"))
	v, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	require.NoError(t, s.Set(ctx, "a", "2"))
	v, _ = s.Get(ctx, "a")
	assert.Equal(t, "2", v)

	require.NoError(t, s.Delete(ctx, "a", "missing"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNamespacedIsolation(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	sessions := Namespaced(base, "session")
	queue := Namespaced(base, "queue")

	require.NoError(t, sessions.Set(ctx, "device-1", "s"))
	require.NoError(t, queue.Set(ctx, "device-1", "q"))

	v, err := sessions.Get(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, "s", v)

	v, err = queue.Get(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, "q", v)

	// Raw keys carry the prefix.
	v, err = base.Get(ctx, "session:device-1")
	require.NoError(t, err)
	assert.Equal(t, "s", v)

	require.NoError(t, sessions.Delete(ctx, "device-1"))
	_, err = sessions.Get(ctx, "device-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = queue.Get(ctx, "device-1")
	assert.NoError(t, err)
}
