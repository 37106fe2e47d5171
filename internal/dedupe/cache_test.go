// ABOUTME: Tests for the duplicate-delivery guard cache.
// ABOUTME: Validates atomic check-and-mark, TTL expiry, eviction and concurrency.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_CheckAndMark(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.CheckAndMark("msg-1"), "first sighting is not a duplicate")
	assert.True(t, cache.CheckAndMark("msg-1"), "second sighting is a duplicate")
	assert.False(t, cache.CheckAndMark("msg-2"))
}

func TestCache_TTLExpiry(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	assert.False(t, cache.CheckAndMark("expiring"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, cache.CheckAndMark("expiring"), "expired id is treated as new")
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	cache.CheckAndMark("a")
	cache.CheckAndMark("b")
	cache.CheckAndMark("c")
	cache.CheckAndMark("d") // evicts "a"

	assert.False(t, cache.CheckAndMark("a"), "evicted id is treated as new")
	assert.True(t, cache.CheckAndMark("d"))
}

func TestCache_ConcurrentSameID(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	var wg sync.WaitGroup
	results := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- cache.CheckAndMark("contended")
		}()
	}
	wg.Wait()
	close(results)

	fresh := 0
	for dup := range results {
		if !dup {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh, fmt.Sprintf("exactly one goroutine wins, got %d", fresh))
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	cache := New(time.Minute, 10)
	cache.Close()
	cache.Close()
}
