package cache

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetGet(t *testing.T) {
	c := New[string](time.Minute)

	c.Set("a", "1", 0)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = c.Get("b")
	assert.False(t, ok)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	now := time.Now()
	c := New[int](time.Minute)
	c.now = func() time.Time { return now }

	c.Set("short", 1, time.Second)
	c.Set("forever", 2, -1)

	now = now.Add(2 * time.Second)

	_, ok := c.Get("short")
	assert.False(t, ok)
	v, ok := c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestSweep(t *testing.T) {
	now := time.Now()
	c := New[int](time.Second)
	c.now = func() time.Time { return now }

	c.Set("old", 1, 0)
	now = now.Add(time.Hour)
	for i := 0; i < sweepEvery; i++ {
		c.Set(strconv.Itoa(i), i, 0)
	}

	_, present := c.items.Load("old")
	assert.False(t, present)
}
