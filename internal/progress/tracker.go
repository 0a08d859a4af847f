// Package progress tracks per-task stage progress, blends it into an
// overall fraction using fixed stage weights, and formats compact status
// lines for console output.
package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Nominal stage weights for the TTS pipeline. Stages not listed here get an
// equal share of 1/len(registered stages). Overall progress always
// normalizes over the weights of the stages actually registered, not the
// full nominal set.
var stageWeights = map[string]float64{
	"Text Processing":   0.10,
	"Model Loading":     0.10,
	"Audio Generation":  0.70,
	"Format Conversion": 0.05,
	"File Saving":       0.05,
}

// Stage is a named phase of task execution with its own timing and
// progress fraction. Invariant: a stage is active iff it has a start time
// and no end time.
type Stage struct {
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Progress  float64
	Substages []string
}

// IsActive reports whether the stage has started and not yet ended.
func (s *Stage) IsActive() bool {
	return !s.StartTime.IsZero() && s.EndTime.IsZero()
}

// Duration returns how long the stage ran, or 0 if it has not ended.
func (s *Stage) Duration() time.Duration {
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// BatchTiming records timing for one batch of work inside a stage.
type BatchTiming struct {
	Timestamp      time.Time `json:"timestamp"`
	ElapsedTotal   float64   `json:"elapsed_total"`
	BatchNumber    int       `json:"batch_number"`
	TotalBatches   int       `json:"total_batches"`
	BatchSeconds   float64   `json:"batch_seconds"`
	ItemsProcessed int       `json:"items_processed"`
}

// StageSummary is the read-only view of one stage exposed in summaries.
type StageSummary struct {
	Progress float64 `json:"progress"`
	Duration float64 `json:"duration"`
	IsActive bool    `json:"is_active"`
}

// Summary is a point-in-time view of a tracker's state.
type Summary struct {
	TaskID           uuid.UUID               `json:"task_id"`
	OverallProgress  float64                 `json:"overall_progress"`
	CurrentStage     string                  `json:"current_stage"`
	StageProgress    float64                 `json:"stage_progress"`
	CurrentStep      string                  `json:"current_step"`
	StatusLine       string                  `json:"status_line"`
	ElapsedSeconds   float64                 `json:"elapsed_seconds"`
	RemainingSeconds *float64                `json:"remaining_seconds,omitempty"`
	Stages           map[string]StageSummary `json:"stages"`
	BatchTimings     []BatchTiming           `json:"batch_timings"`
}

// ConsoleFunc receives formatted console lines from a tracker.
type ConsoleFunc func(message string)

// Tracker tracks progress for a single task. At most one stage is active
// at a time: starting a new stage closes the previous one.
type Tracker struct {
	taskID  uuid.UUID
	console ConsoleFunc

	mu           sync.Mutex
	start        time.Time
	stages       map[string]*Stage
	current      string
	overall      float64
	lastSubstage string
	batchTimings []BatchTiming

	now func() time.Time
}

// NewTracker creates a tracker for the given task. The console function may
// be nil, in which case output is discarded.
func NewTracker(taskID uuid.UUID, console ConsoleFunc) *Tracker {
	if console == nil {
		console = func(string) {}
	}
	t := &Tracker{
		taskID:  taskID,
		console: console,
		stages:  make(map[string]*Stage),
		now:     time.Now,
	}
	t.start = t.now()
	return t
}

// StartStage begins a new stage, closing the currently active stage first
// so that at most one stage is active at a time.
func (t *Tracker) StartStage(name string, substages ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.stages[t.current]; ok && cur.IsActive() {
		cur.EndTime = t.now()
	}

	t.stages[name] = &Stage{
		Name:      name,
		StartTime: t.now(),
		Substages: substages,
	}
	t.current = name
	t.lastSubstage = ""

	msg := fmt.Sprintf("[%s] Starting stage: %s", formatSeconds(t.elapsed()), name)
	if len(substages) > 0 {
		msg += fmt.Sprintf(" (substages: %s)", strings.Join(substages, ", "))
	}
	t.console(msg)
	t.console(t.statusLine())
}

// UpdateStageProgress sets the current stage's progress, clamped to [0,1],
// recomputes overall progress, and emits a compact status line.
func (t *Tracker) UpdateStageProgress(fraction float64, substage string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stage, ok := t.stages[t.current]
	if !ok {
		return
	}
	stage.Progress = clamp01(fraction)

	if substage != "" {
		t.lastSubstage = substage
		msg := fmt.Sprintf("[%s] %s: %.1f%%", formatSeconds(t.elapsed()), substage, stage.Progress*100)
		if rem := t.estimateRemaining(); rem != nil && *rem > 0 {
			msg += fmt.Sprintf(" (ETA: %s)", formatSeconds(*rem))
		}
		t.console(msg)
	}

	t.recomputeOverall()
	t.console(t.statusLine())
}

// CompleteStage forces a stage to 100% and records its end time. An empty
// name completes the currently active stage.
func (t *Tracker) CompleteStage(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if name == "" {
		name = t.current
	}
	stage, ok := t.stages[name]
	if !ok {
		return
	}
	stage.EndTime = t.now()
	stage.Progress = 1.0
	t.recomputeOverall()

	t.console(fmt.Sprintf("[%s] Completed stage: %s (took %s)",
		formatSeconds(t.elapsed()), name, formatSeconds(stage.Duration().Seconds())))

	if name == t.current {
		t.current = ""
	}
}

// AddBatchTiming records timing for a batch of work and logs it.
func (t *Tracker) AddBatchTiming(bt BatchTiming) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bt.Timestamp = t.now()
	bt.ElapsedTotal = t.elapsed()
	t.batchTimings = append(t.batchTimings, bt)

	msg := fmt.Sprintf("[%s] Batch %d/%d completed in %s",
		formatSeconds(t.elapsed()), bt.BatchNumber, bt.TotalBatches, formatSeconds(bt.BatchSeconds))
	if bt.ItemsProcessed > 0 && bt.BatchSeconds > 0 {
		msg += fmt.Sprintf(" (%.1f items/sec)", float64(bt.ItemsProcessed)/bt.BatchSeconds)
	}
	t.console(msg)
	t.console(t.statusLine())
}

// OverallProgress returns the weighted blend of stage fractions.
func (t *Tracker) OverallProgress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overall
}

// EstimateRemaining linearly extrapolates remaining seconds from elapsed
// time and overall progress. Returns nil when progress is zero or below
// (no basis to estimate) and 0 when progress has reached 1.
func (t *Tracker) EstimateRemaining() *float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.estimateRemaining()
}

// Summary returns a point-in-time view of the tracker.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	stages := make(map[string]StageSummary, len(t.stages))
	for name, s := range t.stages {
		stages[name] = StageSummary{
			Progress: s.Progress,
			Duration: s.Duration().Seconds(),
			IsActive: s.IsActive(),
		}
	}

	stageProgress := 0.0
	if cur, ok := t.stages[t.current]; ok {
		stageProgress = cur.Progress
	}

	timings := make([]BatchTiming, len(t.batchTimings))
	copy(timings, t.batchTimings)

	return Summary{
		TaskID:           t.taskID,
		OverallProgress:  t.overall,
		CurrentStage:     t.current,
		StageProgress:    stageProgress,
		CurrentStep:      t.lastSubstage,
		StatusLine:       t.statusLine(),
		ElapsedSeconds:   t.elapsed(),
		RemainingSeconds: t.estimateRemaining(),
		Stages:           stages,
		BatchTimings:     timings,
	}
}

func (t *Tracker) elapsed() float64 {
	return t.now().Sub(t.start).Seconds()
}

func (t *Tracker) estimateRemaining() *float64 {
	if t.overall <= 0 {
		return nil
	}
	var remaining float64
	if t.overall >= 1.0 {
		remaining = 0
	} else {
		elapsed := t.elapsed()
		remaining = elapsed/t.overall - elapsed
		if remaining < 0 {
			remaining = 0
		}
	}
	return &remaining
}

func (t *Tracker) recomputeOverall() {
	if len(t.stages) == 0 {
		t.overall = 0
		return
	}

	equalShare := 1.0 / float64(len(t.stages))
	var totalProgress, totalWeight float64
	for name, stage := range t.stages {
		weight, ok := stageWeights[name]
		if !ok {
			weight = equalShare
		}
		totalProgress += stage.Progress * weight
		totalWeight += weight
	}
	if totalWeight > 0 {
		t.overall = totalProgress / totalWeight
	}
}

func (t *Tracker) statusLine() string {
	stage := t.current
	if stage == "" {
		stage = "Initializing"
	}
	parts := []string{
		fmt.Sprintf("%.1f%%", clamp01(t.overall)*100),
		"Stage: " + stage,
		"Elapsed: " + formatSeconds(t.elapsed()),
	}
	if rem := t.estimateRemaining(); rem != nil {
		parts = append(parts, "ETA: "+formatSeconds(*rem))
	}
	if t.lastSubstage != "" {
		parts = append(parts, "Step: "+t.lastSubstage)
	}
	return strings.Join(parts, " | ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// formatSeconds renders a duration as "12.3s", "4m 5.6s" or "1h 2m 3.4s".
func formatSeconds(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.1fs", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %.1fs", int(seconds)/60, seconds-float64(int(seconds)/60*60))
	default:
		h := int(seconds) / 3600
		m := (int(seconds) % 3600) / 60
		return fmt.Sprintf("%dh %dm %.1fs", h, m, seconds-float64(h*3600+m*60))
	}
}
