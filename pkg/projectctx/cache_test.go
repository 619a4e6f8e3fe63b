package projectctx

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetAndGet(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	cache.Set("https://example.com/README.md", "# Project Overview")

	body, ok := cache.Get("https://example.com/README.md")
	assert.True(t, ok)
	assert.Equal(t, "# Project Overview", body)
}

func TestCache_Miss(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	body, ok := cache.Get("https://example.com/nonexistent.md")
	assert.False(t, ok)
	assert.Equal(t, "", body)
}

func TestCache_TTLExpiry(t *testing.T) {
	cache := NewCache(50 * time.Millisecond)

	cache.Set("key", "body")

	body, ok := cache.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "body", body)

	time.Sleep(60 * time.Millisecond)

	body, ok = cache.Get("key")
	assert.False(t, ok)
	assert.Equal(t, "", body)
}

func TestCache_Overwrite(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	cache.Set("key", "old body")
	cache.Set("key", "new body")

	body, ok := cache.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "new body", body)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache(1 * time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Set("shared-key", "body")
		}()
	}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Get("shared-key")
		}()
	}

	wg.Wait()

	body, ok := cache.Get("shared-key")
	assert.True(t, ok)
	assert.Equal(t, "body", body)
}
