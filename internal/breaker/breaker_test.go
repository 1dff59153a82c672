package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxkws/mcp-router/internal/apierr"
)

func TestOpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 2, OpenDuration: time.Minute})

	att, err := b.BeginAttempt("demo")
	require.NoError(t, err)
	att.End(false)
	assert.Equal(t, Closed, b.Get("demo").State)

	att, err = b.BeginAttempt("demo")
	require.NoError(t, err)
	att.End(false)
	snap := b.Get("demo")
	assert.Equal(t, Open, snap.State)
	assert.Equal(t, 0, snap.ConsecutiveFailures)

	_, err = b.BeginAttempt("demo")
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.CircuitOpen, apiErr.Kind)
}

func TestHalfOpenAdmitsOneAndRecoversOnSuccess(t *testing.T) {
	b := New(Config{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond})

	att, _ := b.BeginAttempt("demo")
	att.End(false)
	require.Equal(t, Open, b.Get("demo").State)

	time.Sleep(20 * time.Millisecond)

	att, err := b.BeginAttempt("demo")
	require.NoError(t, err)
	require.Equal(t, HalfOpen, b.Get("demo").State)

	_, err = b.BeginAttempt("demo")
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.CircuitHalfOpenBusy, apiErr.Kind)

	att.End(true)
	assert.Equal(t, Closed, b.Get("demo").State)
}

func TestHalfOpenAdmitOneUnderConcurrency(t *testing.T) {
	b := New(Config{FailureThreshold: 1, OpenDuration: time.Millisecond})
	att, _ := b.BeginAttempt("demo")
	att.End(false)
	time.Sleep(5 * time.Millisecond)

	const n = 20
	var wg sync.WaitGroup
	var successes int32
	var mu sync.Mutex
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := b.BeginAttempt("demo"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), successes)
}

func TestProtocolErrorDoesNotCountAsFailure(t *testing.T) {
	b := New(Config{FailureThreshold: 1, OpenDuration: time.Minute})
	att, _ := b.BeginAttempt("demo")
	att.End(true) // protocol errors classify as ok=true per spec §4.5/P9
	assert.Equal(t, Closed, b.Get("demo").State)
	assert.Equal(t, 0, b.Get("demo").ConsecutiveFailures)
}
