package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTime(t *testing.T) {
	tm := NewTime(TimeConfiguration{FramesPerSecond: 100, EventPollDelay: 2})
	defer tm.Stop()

	assert.Equal(t, 100, tm.Fps())
	assert.Equal(t, 2*time.Millisecond, tm.EventPollDelay())

	select {
	case <-tm.FpsTicker().C:
	case <-time.After(time.Second):
		t.Fatal("fps ticker never fired")
	}
	select {
	case <-tm.EventTicker().C:
	case <-time.After(time.Second):
		t.Fatal("event ticker never fired")
	}
}

func TestNewTimeUnlimited(t *testing.T) {
	tm := NewTime(TimeConfiguration{})
	defer tm.Stop()
	assert.Zero(t, tm.Fps())
	assert.Equal(t, time.Millisecond, tm.EventPollDelay())
}

func TestFrameTimer(t *testing.T) {
	now := time.Unix(0, 0)
	ft := newFrameTimer(func() time.Time { return now })

	now = now.Add(10 * time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, ft.Tick())
	assert.InDelta(t, 100, ft.Fps(), 0.001, "first sample seeds the average")

	now = now.Add(20 * time.Millisecond)
	ft.Tick()
	assert.Equal(t, 20*time.Millisecond, ft.Delta())
	assert.InDelta(t, 95, ft.Fps(), 0.001)
	assert.Equal(t, uint64(2), ft.Frames())

	ft.Tick()
	assert.Zero(t, ft.Delta())
	assert.InDelta(t, 95, ft.Fps(), 0.001, "zero delta leaves the average")
}
