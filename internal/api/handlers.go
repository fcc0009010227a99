package api

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"subgen/internal/logging"
	"subgen/internal/subtitle"
	"subgen/internal/task"
)

type createTaskRequest struct {
	FilePath       string  `json:"filePath"`
	Language       string  `json:"language"`
	TargetLang     string  `json:"targetLang"`
	Synthesize     bool    `json:"synthesize"`
	SubtitleStyle  string  `json:"subtitleStyle"`
	OriginalVolume float64 `json:"originalVolume"`
	DubVolume      float64 `json:"dubVolume"`
	AutoStart      bool    `json:"autoStart"`
}

func (req createTaskRequest) options() task.Options {
	return task.Options{
		Language:       req.Language,
		TargetLang:     req.TargetLang,
		Synthesize:     req.Synthesize,
		SubtitleStyle:  req.SubtitleStyle,
		OriginalVolume: req.OriginalVolume,
		DubVolume:      req.DubVolume,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCheckAPIKey(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no provider configured")
		return
	}
	if err := s.keys.CheckAPIKey(r.Context()); err != nil {
		s.writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.writeData(w, http.StatusOK, map[string]bool{"valid": true})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.createOne(r, req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeData(w, http.StatusCreated, viewOf(created))
}

type createBatchRequest struct {
	FilePaths      []string `json:"filePaths"`
	Language       string   `json:"language"`
	TargetLang     string   `json:"targetLang"`
	Synthesize     bool     `json:"synthesize"`
	SubtitleStyle  string   `json:"subtitleStyle"`
	OriginalVolume float64  `json:"originalVolume"`
	DubVolume      float64  `json:"dubVolume"`
	AutoStart      bool     `json:"autoStart"`
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.FilePaths) == 0 {
		s.writeError(w, http.StatusBadRequest, "filePaths is required")
		return
	}

	views := make([]TaskView, 0, len(req.FilePaths))
	for _, path := range req.FilePaths {
		created, err := s.createOne(r, createTaskRequest{
			FilePath:       path,
			Language:       req.Language,
			TargetLang:     req.TargetLang,
			Synthesize:     req.Synthesize,
			SubtitleStyle:  req.SubtitleStyle,
			OriginalVolume: req.OriginalVolume,
			DubVolume:      req.DubVolume,
			AutoStart:      req.AutoStart,
		})
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", path, err))
			return
		}
		views = append(views, viewOf(created))
	}
	s.writeData(w, http.StatusCreated, views)
}

func (s *Server) createOne(r *http.Request, req createTaskRequest) (*task.Task, error) {
	path := strings.TrimSpace(req.FilePath)
	if path == "" {
		return nil, fmt.Errorf("filePath is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("source file not accessible: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source path %s is a directory", path)
	}

	created, err := s.registry.Create(r.Context(), path, info.Size(), req.options())
	if err != nil {
		return nil, err
	}
	s.logger.Info("task created",
		logging.String(logging.FieldTaskID, created.ID),
		logging.String("file", created.FileName))

	if req.AutoStart {
		if err := s.controller.Submit(r.Context(), created.ID); err != nil {
			return nil, err
		}
		return s.registry.Get(created.ID)
	}
	return created, nil
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var statuses []task.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := task.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}
	s.writeData(w, http.StatusOK, viewsOf(s.registry.List(statuses...)))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, viewOf(t))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.registry.Get(id)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	if !t.Terminal() {
		if err := s.controller.CancelTask(r.Context(), id); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if t.AudioPath != "" {
		_ = os.Remove(t.AudioPath)
	}
	if err := s.registry.Delete(r.Context(), id); err != nil {
		s.writeRegistryError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"deleted": id})
}

type updateSubtitlesRequest struct {
	Subtitles []subtitle.Entry `json:"subtitles"`
}

func (s *Server) handleUpdateSubtitles(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req updateSubtitlesRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	for _, entry := range req.Subtitles {
		if entry.End <= entry.Start {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("subtitle %d must end after it starts", entry.ID))
			return
		}
	}
	subtitle.Sort(req.Subtitles)
	if !subtitle.Sorted(req.Subtitles) {
		s.writeError(w, http.StatusBadRequest, "subtitles contain duplicate ids")
		return
	}

	updated, err := s.registry.Update(r.Context(), id, func(t *task.Task) error {
		t.Subtitles = req.Subtitles
		return nil
	})
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, viewOf(updated))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	t, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}

	mode, err := subtitle.ParseExportMode(r.URL.Query().Get("mode"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "srt"
	}

	var (
		content  string
		filename string
	)
	base := strings.TrimSuffix(t.FileName, sufExt(t.FileName))
	switch format {
	case "srt":
		content = subtitle.RenderSRT(t.Subtitles, mode)
		filename = base + ".srt"
	case "txt":
		withTimestamps := r.URL.Query().Get("timestamps") == "true"
		content = subtitle.RenderText(t.Subtitles, mode, withTimestamps)
		filename = base + ".txt"
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", format))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write([]byte(content))
}

func sufExt(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return ""
	}
	return name[idx:]
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Submit(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.taskResponse(w, r)
}

func (s *Server) handlePauseTask(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.PauseTask(r.PathValue("id")); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.taskResponse(w, r)
}

func (s *Server) handleResumeTask(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.ResumeTask(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.taskResponse(w, r)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.CancelTask(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.taskResponse(w, r)
}

func (s *Server) handleRetryTask(w http.ResponseWriter, r *http.Request) {
	updated, err := s.registry.RetryTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeData(w, http.StatusOK, viewOf(updated))
}

func (s *Server) taskResponse(w http.ResponseWriter, r *http.Request) {
	t, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, viewOf(t))
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, http.StatusOK, QueueStatus{
		Running: s.controller.RunningCount(),
		Waiting: s.controller.WaitingCount(),
		Counts:  s.registry.Stats(),
	})
}

func (s *Server) handleQueueStart(w http.ResponseWriter, r *http.Request) {
	added := s.controller.StartQueue(r.Context())
	s.writeData(w, http.StatusOK, map[string]int{"submitted": added})
}

func (s *Server) handleQueuePause(w http.ResponseWriter, r *http.Request) {
	s.controller.PauseQueue()
	s.writeData(w, http.StatusOK, map[string]string{"queue": "paused"})
}

func (s *Server) handleQueueResume(w http.ResponseWriter, r *http.Request) {
	s.controller.ResumeQueue(r.Context())
	s.writeData(w, http.StatusOK, map[string]string{"queue": "resumed"})
}

func (s *Server) handleQueueCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.CancelQueue(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"queue": "cancelled"})
}
