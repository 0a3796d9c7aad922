package core

import (
	"time"
)

// NewTime creates a new time service
func NewTime(cfg TimeConfiguration) Time {
	var interval time.Duration
	if cfg.FramesPerSecond == 0 {
		interval = time.Nanosecond
	} else {
		interval = time.Second / (time.Duration)(cfg.FramesPerSecond)
	}

	pollDelay := cfg.EventPollDelay
	if pollDelay <= 0 {
		pollDelay = 1
	}

	return Time{
		fps:            cfg.FramesPerSecond,
		fpsTicker:      time.NewTicker(interval),
		eventPollDelay: pollDelay,
		eventTicker:    time.NewTicker(time.Duration(pollDelay) * time.Millisecond),
	}
}

// Time contains all the time services and tickers
type Time struct {
	fps       int
	fpsTicker *time.Ticker

	eventPollDelay int
	eventTicker    *time.Ticker
}

// Fps gets the set frames per second
func (t *Time) Fps() int {
	return t.fps
}

// FpsTicker gets the initialized fps ticker
func (t *Time) FpsTicker() *time.Ticker {
	return t.fpsTicker
}

// EventTicker gets the initialized event ticker for the event loop
func (t *Time) EventTicker() *time.Ticker {
	return t.eventTicker
}

// EventPollDelay gets the delay between event polls
func (t *Time) EventPollDelay() time.Duration {
	return time.Duration(t.eventPollDelay) * time.Millisecond
}

// Stop stops both tickers
func (t *Time) Stop() {
	t.fpsTicker.Stop()
	t.eventTicker.Stop()
}

// smoothing is the weight of the newest sample in the fps average.
const smoothing = 0.1

// NewFrameTimer returns a timer whose first frame starts now.
func NewFrameTimer() *FrameTimer {
	return newFrameTimer(time.Now)
}

func newFrameTimer(now func() time.Time) *FrameTimer {
	return &FrameTimer{
		now:  now,
		last: now(),
	}
}

// FrameTimer measures time between frames.
type FrameTimer struct {
	now   func() time.Time
	last  time.Time
	delta time.Duration
	fps   float64
	count uint64
}

// Tick marks the end of a frame and returns its duration.
func (ft *FrameTimer) Tick() time.Duration {
	t := ft.now()
	ft.delta = t.Sub(ft.last)
	ft.last = t
	ft.count++

	if ft.delta > 0 {
		current := float64(time.Second) / float64(ft.delta)
		if ft.fps == 0 {
			ft.fps = current
		} else {
			ft.fps += smoothing * (current - ft.fps)
		}
	}
	return ft.delta
}

// Delta returns the duration of the last frame.
func (ft *FrameTimer) Delta() time.Duration {
	return ft.delta
}

// Fps returns the smoothed frames per second.
func (ft *FrameTimer) Fps() float64 {
	return ft.fps
}

// Frames returns the number of ticks so far.
func (ft *FrameTimer) Frames() uint64 {
	return ft.count
}
