package backoff_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrnotify/pkg/backoff"
)

func TestPolicy_Delay(t *testing.T) {
	t.Parallel()

	p := backoff.Policy{Base: 30 * time.Second, Multiplier: 2}

	t.Run("first retry waits the base delay", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 30*time.Second, p.Delay(1))
	})

	t.Run("attempts below one are clamped", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, p.Delay(1), p.Delay(0))
		assert.Equal(t, p.Delay(1), p.Delay(-3))
	})

	t.Run("grows geometrically", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 60*time.Second, p.Delay(2))
		assert.Equal(t, 120*time.Second, p.Delay(3))
		for attempt := 1; attempt < 10; attempt++ {
			assert.LessOrEqual(t, p.Delay(attempt), p.Delay(attempt+1))
		}
	})

	t.Run("capped at the max delay", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, backoff.MaxDelay, p.Delay(60))
	})

	t.Run("multiplier below one degrades to constant", func(t *testing.T) {
		t.Parallel()
		flat := backoff.Policy{Base: time.Second, Multiplier: 0.5}
		assert.Equal(t, time.Second, flat.Delay(1))
		assert.Equal(t, time.Second, flat.Delay(5))
	})

	t.Run("zero base means no delay", func(t *testing.T) {
		t.Parallel()
		assert.Zero(t, backoff.Policy{Multiplier: 2}.Delay(3))
	})
}

func TestPolicy_Next(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no jitter is deterministic", func(t *testing.T) {
		t.Parallel()
		p := backoff.Policy{Base: time.Minute, Multiplier: 2}
		assert.Equal(t, now.Add(2*time.Minute), p.Next(now, 2))
	})

	t.Run("jitter stays inside the band", func(t *testing.T) {
		t.Parallel()
		p := backoff.Policy{Base: time.Minute, Multiplier: 2, Jitter: 0.2}
		lo := now.Add(time.Duration(float64(2*time.Minute) * 0.8))
		hi := now.Add(time.Duration(float64(2*time.Minute) * 1.2))
		for i := 0; i < 200; i++ {
			next := p.Next(now, 2)
			require.False(t, next.Before(lo), "next %v below band floor %v", next, lo)
			require.False(t, next.After(hi), "next %v above band ceiling %v", next, hi)
		}
	})

	t.Run("jitter never pushes past the max delay", func(t *testing.T) {
		t.Parallel()
		p := backoff.Policy{Base: 20 * time.Hour, Multiplier: 3, Jitter: 0.5}
		for i := 0; i < 50; i++ {
			assert.False(t, p.Next(now, 4).After(now.Add(backoff.MaxDelay)))
		}
	})
}
