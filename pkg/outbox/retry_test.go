package outbox

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := &retryPolicy{maxAttempts: 3, maxBackoff: time.Minute}

	require.Equal(t, time.Duration(0), p.backoff(0))
	require.Equal(t, time.Second, p.backoff(1))
	require.Equal(t, 2*time.Second, p.backoff(2))
	require.Equal(t, 4*time.Second, p.backoff(3))
	require.Equal(t, time.Minute, p.backoff(7))
	require.Equal(t, time.Minute, p.backoff(500))

	require.False(t, p.exhausted(2))
	require.True(t, p.exhausted(3))
}

func TestRetryPolicy_JitterIsBoundedAndSeeded(t *testing.T) {
	maxJitter := 200 * time.Millisecond
	a := &retryPolicy{jitterMax: maxJitter, rnd: rand.New(rand.NewSource(1))}
	b := &retryPolicy{jitterMax: maxJitter, rnd: rand.New(rand.NewSource(1))}

	got := a.jitter()
	require.GreaterOrEqual(t, got, time.Duration(0))
	require.LessOrEqual(t, got, maxJitter)
	require.Equal(t, got, b.jitter())

	require.Equal(t, time.Duration(0), (&retryPolicy{jitterMax: maxJitter}).jitter())
}

func TestClip(t *testing.T) {
	require.Equal(t, "hello", clip("hello world", 5))
	require.Equal(t, "short", clip("short", 100))
	require.Equal(t, "", clip("anything", 0))
	// "é" is two bytes; cutting inside it drops the partial rune.
	require.Equal(t, "caf", clip("café", 4))
	require.False(t, strings.ContainsRune(clip("ééé", 5), '�'))
}
