package task

import (
	"strings"
	"time"

	"subgen/internal/subtitle"
)

// Status represents the lifecycle of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Stage identifies the pipeline phase a task is currently in.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageExtracting   Stage = "extracting_audio"
	StageVAD          Stage = "vad_detecting"
	StageTranscribing Stage = "transcribing"
	StageGenerating   Stage = "generating_subtitle"
	StageTranslating  Stage = "translating"
	StageSynthesizing Stage = "synthesizing"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusPaused,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// stageFloors are the progress values a task resets to on stage entry. The
// spacing mirrors how far through the overall pipeline each stage begins.
var stageFloors = map[Stage]float64{
	StageIdle:         0,
	StageExtracting:   5,
	StageVAD:          15,
	StageTranscribing: 25,
	StageGenerating:   65,
	StageTranslating:  70,
	StageSynthesizing: 90,
	StageCompleted:    100,
	StageFailed:       0,
}

// Segment is a voice-active span detected by VAD, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Options carries per-task pipeline settings chosen at submission.
type Options struct {
	Language       string  `json:"language,omitempty"`
	TargetLang     string  `json:"targetLang,omitempty"`
	Synthesize     bool    `json:"synthesize,omitempty"`
	SubtitleStyle  string  `json:"subtitleStyle,omitempty"`
	OriginalVolume float64 `json:"originalVolume,omitempty"`
	DubVolume      float64 `json:"dubVolume,omitempty"`
}

// Task is the unit of work driven through the pipeline.
type Task struct {
	ID            string
	SourcePath    string
	FileName      string
	FileSizeBytes int64
	Status        Status
	Stage         Stage
	Progress      float64
	// ProgressMessage is the human-readable stage detail shown alongside
	// the percentage.
	ProgressMessage string
	Subtitles       []subtitle.Entry
	Error           string
	Options         Options

	// Artifacts produced by completed stages; needed to resume a paused
	// task without redoing earlier work.
	AudioPath  string
	Segments   []Segment
	OutputPath string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether a status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// StageFloor returns the progress value a task resets to when entering stage.
func StageFloor(stage Stage) float64 {
	if floor, ok := stageFloors[stage]; ok {
		return floor
	}
	return 0
}

// Terminal reports whether the task has reached a terminal status.
func (t *Task) Terminal() bool {
	return t.Status.Terminal()
}

// EnterStage moves the task into a new pipeline stage and resets progress to
// the stage floor.
func (t *Task) EnterStage(stage Stage, message string) {
	t.Stage = stage
	t.Progress = StageFloor(stage)
	t.ProgressMessage = message
}

// SetProgress updates progress within the current stage. Progress never moves
// backwards inside a stage; stale updates from out-of-order workers are kept
// at the high-water mark.
func (t *Task) SetProgress(percent float64, message string) {
	if percent > 100 {
		percent = 100
	}
	if percent > t.Progress {
		t.Progress = percent
	}
	if message != "" {
		t.ProgressMessage = message
	}
}

// SetFailed marks the task failed with the given error message.
func (t *Task) SetFailed(message string) {
	t.Status = StatusFailed
	t.Stage = StageFailed
	t.Error = message
	t.ProgressMessage = message
}

// Clone returns a deep copy safe to hand outside the registry.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Subtitles != nil {
		cp.Subtitles = make([]subtitle.Entry, len(t.Subtitles))
		copy(cp.Subtitles, t.Subtitles)
	}
	if t.Segments != nil {
		cp.Segments = make([]Segment, len(t.Segments))
		copy(cp.Segments, t.Segments)
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}
