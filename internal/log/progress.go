package log

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ProgressIndicator logs done/total, rate and ETA for long batches. It is
// safe for concurrent use but is normally driven from one collector goroutine.
type ProgressIndicator struct {
	mu        sync.Mutex
	logger    zerolog.Logger
	name      string
	total     int
	current   int
	failed    int
	every     int
	startTime time.Time
	now       func() time.Time
}

// NewProgressIndicator logs through the global logger every `every` items
func NewProgressIndicator(name string, total, every int) *ProgressIndicator {
	return NewProgressIndicatorWithLogger(log.Logger, name, total, every)
}

// NewProgressIndicatorWithLogger logs through logger
func NewProgressIndicatorWithLogger(logger zerolog.Logger, name string, total, every int) *ProgressIndicator {
	if every <= 0 {
		every = 1
	}
	return &ProgressIndicator{
		logger:    logger,
		name:      name,
		total:     total,
		every:     every,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Increment advances progress by one item; ok=false counts a failure
func (pi *ProgressIndicator) Increment(ok bool) {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	pi.current++
	if !ok {
		pi.failed++
	}
	if pi.current%pi.every == 0 && pi.current < pi.total {
		pi.emit(pi.logger.Info(), "progress")
	}
}

// Current returns the processed count
func (pi *ProgressIndicator) Current() int {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	return pi.current
}

// Finish logs the completion line
func (pi *ProgressIndicator) Finish() {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.emit(pi.logger.Info(), "completed")
}

// Fail logs the failure line
func (pi *ProgressIndicator) Fail(reason string) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.emit(pi.logger.Error().Str("reason", reason), "failed")
}

func (pi *ProgressIndicator) emit(ev *zerolog.Event, msg string) {
	elapsed := pi.now().Sub(pi.startTime)
	ev = ev.Str("task", pi.name).
		Int("done", pi.current).
		Int("total", pi.total).
		Int("failed", pi.failed).
		Dur("elapsed", elapsed)

	if pi.current > 0 && elapsed > 0 {
		rate := float64(pi.current) / elapsed.Seconds()
		ev = ev.Float64("per_sec", rate)
		if remaining := pi.total - pi.current; remaining > 0 {
			ev = ev.Dur("eta", time.Duration(float64(remaining)/rate*float64(time.Second)))
		}
	}
	ev.Msg(pi.name + " " + msg)
}

// StepLogger logs the start and duration of named pipeline steps
type StepLogger struct {
	logger    zerolog.Logger
	name      string
	current   string
	stepStart time.Time
	startTime time.Time
	steps     []StepTiming
}

// StepTiming is the recorded duration of one step
type StepTiming struct {
	Step     string
	Duration time.Duration
}

// NewStepLogger creates a step logger on the global logger
func NewStepLogger(name string) *StepLogger {
	return &StepLogger{logger: log.Logger, name: name, startTime: time.Now()}
}

// StartStep completes the running step, if any, and begins stepName
func (sl *StepLogger) StartStep(stepName string) {
	sl.CompleteStep()
	sl.current = stepName
	sl.stepStart = time.Now()
	sl.logger.Info().Str("pipeline", sl.name).Str("step", stepName).Int("step_number", len(sl.steps)+1).Msg("Starting pipeline step")
}

// CompleteStep marks the current step as completed
func (sl *StepLogger) CompleteStep() {
	if sl.current == "" {
		return
	}
	d := time.Since(sl.stepStart)
	sl.steps = append(sl.steps, StepTiming{Step: sl.current, Duration: d})
	sl.logger.Info().Str("pipeline", sl.name).Str("step", sl.current).Dur("duration", d).Msg("Pipeline step completed")
	sl.current = ""
}

// Finish completes the last step and logs the total
func (sl *StepLogger) Finish() []StepTiming {
	sl.CompleteStep()
	sl.logger.Info().Str("pipeline", sl.name).Int("steps", len(sl.steps)).Dur("total_duration", time.Since(sl.startTime)).Msg("Pipeline completed")
	return sl.steps
}

// Fail logs the failing step
func (sl *StepLogger) Fail(err error) {
	step := sl.current
	if step == "" {
		step = "unknown"
	}
	sl.logger.Error().Err(err).Str("pipeline", sl.name).Str("failed_step", step).Int("completed_steps", len(sl.steps)).Msg("Pipeline failed")
}
