package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for invalid values and returns an error
// describing every problem found.
func (c *Config) Validate() error {
	var problems []string

	problems = append(problems, c.Paths.validate()...)
	problems = append(problems, c.ASR.validate()...)
	problems = append(problems, c.Translation.validate()...)
	problems = append(problems, c.VAD.validate()...)
	problems = append(problems, c.Pipeline.validate()...)
	problems = append(problems, c.Maintenance.validate()...)
	problems = append(problems, c.Logging.validate()...)

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (p Paths) validate() []string {
	var problems []string
	if p.TempDir == "" {
		problems = append(problems, "paths.temp_dir must be set")
	}
	if p.OutputDir == "" {
		problems = append(problems, "paths.output_dir must be set")
	}
	if p.DataDir == "" {
		problems = append(problems, "paths.data_dir must be set")
	}
	if p.APIBind == "" {
		problems = append(problems, "paths.api_bind must be set")
	}
	return problems
}

func (a ASR) validate() []string {
	var problems []string
	if a.BaseURL == "" {
		problems = append(problems, "asr.base_url must be set")
	}
	if a.Model == "" {
		problems = append(problems, "asr.model must be set")
	}
	if a.Workers < 1 || a.Workers > 16 {
		problems = append(problems, "asr.workers must be between 1 and 16")
	}
	return problems
}

func (t Translation) validate() []string {
	var problems []string
	if t.BatchSize < 1 || t.BatchSize > 100 {
		problems = append(problems, "translation.batch_size must be between 1 and 100")
	}
	if t.MaxWorkers < 1 || t.MaxWorkers > 10 {
		problems = append(problems, "translation.max_workers must be between 1 and 10")
	}
	if t.Model == "" {
		problems = append(problems, "translation.model must be set")
	}
	return problems
}

func (v VAD) validate() []string {
	var problems []string
	if v.Sensitivity < 0.1 || v.Sensitivity > 0.9 {
		problems = append(problems, "vad.sensitivity must be between 0.1 and 0.9")
	}
	if v.MinSilence <= 0 {
		problems = append(problems, "vad.min_silence must be positive")
	}
	if v.MinSpeech <= 0 {
		problems = append(problems, "vad.min_speech must be positive")
	}
	if v.MaxSpeech <= v.MinSpeech {
		problems = append(problems, "vad.max_speech must exceed vad.min_speech")
	}
	return problems
}

func (p Pipeline) validate() []string {
	var problems []string
	if p.MaxConcurrentTasks < 1 || p.MaxConcurrentTasks > 20 {
		problems = append(problems, "pipeline.max_concurrent_tasks must be between 1 and 20")
	}
	if p.NetworkSlots < 1 {
		problems = append(problems, "pipeline.network_slots must be at least 1")
	}
	if p.CancelGraceMillis < 0 {
		problems = append(problems, "pipeline.cancel_grace_millis must not be negative")
	}
	if p.MaxSubtitleLength < 0 {
		problems = append(problems, "pipeline.max_subtitle_length must not be negative")
	}
	return problems
}

func (m Maintenance) validate() []string {
	var problems []string
	if m.CompletedRetentionDays < 0 {
		problems = append(problems, "maintenance.completed_retention_days must not be negative")
	}
	if m.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(m.CleanupSchedule); err != nil {
			problems = append(problems, fmt.Sprintf("maintenance.cleanup_schedule is not a valid cron expression: %v", err))
		}
	}
	return problems
}

func (l Logging) validate() []string {
	var problems []string
	switch l.Format {
	case "console", "json":
	default:
		problems = append(problems, "logging.format must be console or json")
	}
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, "logging.level must be debug, info, warn, or error")
	}
	return problems
}

func (c *Config) normalize() error {
	paths := []*string{
		&c.Paths.TempDir,
		&c.Paths.OutputDir,
		&c.Paths.DataDir,
		&c.Paths.LogDir,
	}
	for _, p := range paths {
		expanded, err := expandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}

	c.ASR.BaseURL = strings.TrimRight(strings.TrimSpace(c.ASR.BaseURL), "/")
	c.Translation.BaseURL = strings.TrimRight(strings.TrimSpace(c.Translation.BaseURL), "/")
	if c.Translation.BaseURL == "" {
		c.Translation.BaseURL = c.ASR.BaseURL
	}
	if c.Translation.APIKey == "" {
		c.Translation.APIKey = c.ASR.APIKey
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
