package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeTimerFiresOnAdvance(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)
	timer := c.NewTimer(time.Minute)

	select {
	case <-timer.C():
		t.Fatal("timer fired before the clock advanced")
	default:
	}

	c.Advance(30 * time.Second)
	assert.Equal(t, 1, c.Waiters())

	c.Advance(30 * time.Second)
	select {
	case fired := <-timer.C():
		assert.Equal(t, start.Add(time.Minute), fired)
	default:
		t.Fatal("timer did not fire after a full minute")
	}
	assert.Equal(t, 0, c.Waiters())
}

func TestFakeStopAndReset(t *testing.T) {
	t.Parallel()

	c := NewFake(time.Unix(0, 0))
	timer := c.NewTimer(time.Second)
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(time.Hour)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}

	assert.False(t, timer.Reset(time.Second))
	c.Advance(time.Second)
	select {
	case <-timer.C():
	default:
		t.Fatal("reset timer did not fire")
	}
}

func TestFakeAfterFunc(t *testing.T) {
	t.Parallel()

	c := NewFake(time.Unix(0, 0))
	done := make(chan struct{})
	c.AfterFunc(5*time.Second, func() { close(done) })

	c.BlockUntil(1)
	c.Advance(5 * time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("AfterFunc callback did not run")
	}
}

func TestFakeAdvanceMovesNowToTarget(t *testing.T) {
	t.Parallel()

	start := time.Unix(100, 0)
	c := NewFake(start)
	c.NewTimer(time.Second)
	c.Advance(10 * time.Second)

	require.Equal(t, start.Add(10*time.Second), c.Now())
	assert.Equal(t, 10*time.Second, c.Since(start))
}
