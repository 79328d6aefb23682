package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGetExpire(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "key", []byte("value"), 0)
	got, ok := c.Get(ctx, "key")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), got)

	c.Expire(ctx, "key")
	_, ok = c.Get(ctx, "key")
	assert.False(t, ok)
}

func TestMemory_TTL(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	c.Set(ctx, "short", []byte("v"), 30*time.Millisecond)
	_, ok := c.Get(ctx, "short")
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get(ctx, "short")
	assert.False(t, ok)
}

func TestMemory_ValueCopied(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	val := []byte("original")
	c.Set(ctx, "key", val, 0)
	// Мутация исходного слайса не задевает значение в кэше
	val[0] = 'X'

	got, ok := c.Get(ctx, "key")
	require.True(t, ok)
	assert.Equal(t, []byte("original"), got)
}

func TestMemory_Flush(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), 0)
	c.Set(ctx, "b", []byte("2"), 0)

	c.(*memory).Flush()

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "b")
	assert.False(t, ok)
}
