package lru

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func hashString(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func sizeOfBytes(b []byte) int64 { return int64(len(b)) }

func TestSetGet(t *testing.T) {
	c := New[string, []byte](1, 1024, sizeOfBytes, hashString)

	assert.True(t, c.Set("a", []byte("hello")))
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), v)

	assert.False(t, c.Has("missing"))
}

func TestEvictsLRU(t *testing.T) {
	evicted := make(chan Evicted[string, []byte], 8)
	c := New[string, []byte](1, 10, sizeOfBytes, hashString, WithEvictionChannel(evicted))

	assert.True(t, c.Set("a", []byte("12345")))
	assert.True(t, c.Set("b", []byte("12345")))
	// touch a so b is the LRU victim
	c.Get("a")
	assert.True(t, c.Set("c", []byte("12345")))

	assert.False(t, c.Has("b"))
	assert.True(t, c.Has("a"))
	assert.True(t, c.Has("c"))

	select {
	case ev := <-evicted:
		assert.Equal(t, "b", ev.Key)
	default:
		t.Fatal("expected an eviction notification")
	}
}

func TestRejectsOversizedEntry(t *testing.T) {
	c := New[string, []byte](1, 4, sizeOfBytes, hashString)
	assert.False(t, c.Set("big", []byte("12345")))
	assert.False(t, c.Has("big"))
}

func TestRemove(t *testing.T) {
	c := New[string, []byte](2, 1024, sizeOfBytes, hashString)
	c.Set("a", []byte("x"))
	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
}
