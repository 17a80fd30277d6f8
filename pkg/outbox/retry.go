package outbox

import (
	"math/rand"
	"sync"
	"time"
	"unicode/utf8"
)

type retryPolicy struct {
	maxAttempts int
	maxBackoff  time.Duration
	jitterMax   time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func (p *retryPolicy) exhausted(attempts int) bool {
	return attempts >= p.maxAttempts
}

// backoff doubles from one second per attempt already spent, capped at
// maxBackoff.
func (p *retryPolicy) backoff(attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	d := time.Second
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= p.maxBackoff {
			return p.maxBackoff
		}
	}
	return min(d, p.maxBackoff)
}

func (p *retryPolicy) jitter() time.Duration {
	if p.jitterMax <= 0 || p.rnd == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.rnd.Int63n(int64(p.jitterMax) + 1))
}

func (p *retryPolicy) nextAttemptAt(now time.Time, attempts int) time.Time {
	return now.Add(p.backoff(attempts) + p.jitter())
}

// clip shortens s to at most maxBytes without splitting a rune.
func clip(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	s = s[:maxBytes]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
