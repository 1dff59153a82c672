package toolcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundtrip(t *testing.T) {
	c := New()
	_, ok := c.Get("demo")
	require.False(t, ok)

	tools := []Tool{{Name: "echo"}}
	c.Put("demo", tools, map[string]string{"demo.echo": "echo"})

	got, ok := c.Get("demo")
	require.True(t, ok)
	assert.Equal(t, tools, got)
	assert.Equal(t, "echo", c.OriginalName("demo", "demo.echo", "echo"))
}

func TestExpiresAfterTTL(t *testing.T) {
	c := New()
	frozen := time.Now()
	c.now = func() time.Time { return frozen }
	c.Put("demo", []Tool{{Name: "echo"}}, nil)

	frozen = frozen.Add(TTL + time.Second)
	_, ok := c.Get("demo")
	assert.False(t, ok)
}

func TestInvalidateOneAndAll(t *testing.T) {
	c := New()
	c.Put("a", []Tool{{Name: "x"}}, nil)
	c.Put("b", []Tool{{Name: "y"}}, nil)

	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)

	c.Invalidate("")
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestOriginalNameFallsBackToRest(t *testing.T) {
	c := New()
	assert.Equal(t, "rest-name", c.OriginalName("unknown-upstream", "x", "rest-name"))
}
