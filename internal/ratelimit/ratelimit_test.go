package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxkws/mcp-router/internal/apierr"
)

func TestExemptWhenRPMUnset(t *testing.T) {
	s := NewStore()
	for i := 0; i < 100; i++ {
		require.NoError(t, s.Consume("anon", 0))
	}
}

func TestSecondCallRateLimited(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Consume("tok", 1))

	err := s.Consume("tok", 1)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.RateLimited, apiErr.Kind)
	assert.Greater(t, apiErr.RetryAfterSeconds, 0)
}

func TestRefillOverTime(t *testing.T) {
	s := NewStore()
	frozen := time.Now()
	s.now = func() time.Time { return frozen }

	// capacity 60, refilling 1 token/sec: drain the full bucket first.
	for i := 0; i < 60; i++ {
		require.NoError(t, s.Consume("tok", 60))
	}
	require.Error(t, s.Consume("tok", 60))

	frozen = frozen.Add(1100 * time.Millisecond)
	require.NoError(t, s.Consume("tok", 60))
}
