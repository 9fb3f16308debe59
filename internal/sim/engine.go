package sim

import (
	"log/slog"
	"time"
)

// DaysPerWeek sets how often the weekly layer runs.
const DaysPerWeek = 7

// Engine advances the world one simulated day per tick. Callbacks are
// populated during setup; a nil callback layer is skipped.
type Engine struct {
	Day      int
	Speed    float64       // multiplier: 1.0 = real-time, 0 = paused
	Interval time.Duration // base tick interval
	Running  bool

	OnDay  func(day int)
	OnWeek func(day int)
}

// NewEngine creates an engine with default pacing.
func NewEngine() *Engine {
	return &Engine{
		Speed:    1.0,
		Interval: time.Second,
	}
}

// Run starts the loop. Blocks until Stop is called.
func (e *Engine) Run() {
	e.Running = true
	slog.Info("simulation engine started", "day", e.Day, "speed", e.Speed)

	for e.Running {
		if e.Speed <= 0 {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		e.Step()

		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / e.Speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "day", e.Day)
}

// Stop halts the loop after the current day completes.
func (e *Engine) Stop() {
	e.Running = false
}

// Step advances exactly one day. Exposed so a driver can run the world
// without the pacing loop.
func (e *Engine) Step() {
	e.Day++

	if e.OnDay != nil {
		e.OnDay(e.Day)
	}
	if e.Day%DaysPerWeek == 0 && e.OnWeek != nil {
		e.OnWeek(e.Day)
	}
}
