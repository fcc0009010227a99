package api

import (
	"time"

	"subgen/internal/subtitle"
	"subgen/internal/task"
)

// TaskView is the JSON shape of a task.
type TaskView struct {
	ID              string           `json:"id"`
	FileName        string           `json:"fileName"`
	FilePath        string           `json:"filePath"`
	FileSize        int64            `json:"fileSize"`
	Status          task.Status      `json:"status"`
	Stage           task.Stage       `json:"stage"`
	Progress        float64          `json:"progress"`
	ProgressMessage string           `json:"progressMessage,omitempty"`
	Subtitles       []subtitle.Entry `json:"subtitles"`
	Error           string           `json:"error,omitempty"`
	Options         task.Options     `json:"options"`
	OutputPath      string           `json:"outputPath,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	CompletedAt     *time.Time       `json:"completedAt,omitempty"`
}

func viewOf(t *task.Task) TaskView {
	subtitles := t.Subtitles
	if subtitles == nil {
		subtitles = []subtitle.Entry{}
	}
	return TaskView{
		ID:              t.ID,
		FileName:        t.FileName,
		FilePath:        t.SourcePath,
		FileSize:        t.FileSizeBytes,
		Status:          t.Status,
		Stage:           t.Stage,
		Progress:        t.Progress,
		ProgressMessage: t.ProgressMessage,
		Subtitles:       subtitles,
		Error:           t.Error,
		Options:         t.Options,
		OutputPath:      t.OutputPath,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		CompletedAt:     t.CompletedAt,
	}
}

func viewsOf(tasks []*task.Task) []TaskView {
	views := make([]TaskView, len(tasks))
	for i, t := range tasks {
		views[i] = viewOf(t)
	}
	return views
}

// QueueStatus summarizes the scheduler and task counts.
type QueueStatus struct {
	Running int                 `json:"running"`
	Waiting int                 `json:"waiting"`
	Counts  map[task.Status]int `json:"counts"`
}
