package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	TempDir   string `toml:"temp_dir"`
	OutputDir string `toml:"output_dir"`
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
}

// ASR contains configuration for the speech recognition provider.
type ASR struct {
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
	// Workers bounds how many audio segments are recognized in parallel
	// within one task.
	Workers int `toml:"workers"`
}

// Translation contains configuration for the translation provider.
type Translation struct {
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	Model      string `toml:"model"`
	TargetLang string `toml:"target_lang"`
	BatchSize  int    `toml:"batch_size"`
	MaxWorkers int    `toml:"max_workers"`
}

// VAD contains tuning for voice activity detection.
type VAD struct {
	// Sensitivity scales the adaptive energy threshold; higher values
	// detect quieter speech. Range 0.1-0.9.
	Sensitivity float64 `toml:"sensitivity"`
	// MinSilence is the silence gap in seconds that splits two segments.
	MinSilence float64 `toml:"min_silence"`
	// MinSpeech drops detected spans shorter than this many seconds.
	MinSpeech float64 `toml:"min_speech"`
	// MaxSpeech splits spans longer than this many seconds.
	MaxSpeech float64 `toml:"max_speech"`
}

// Media contains external tool locations.
type Media struct {
	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`
}

// Pipeline contains orchestration limits and timing.
type Pipeline struct {
	MaxConcurrentTasks int `toml:"max_concurrent_tasks"`
	// NetworkSlots bounds concurrent network-bound batch calls across all
	// tasks, independent of the task slot limit.
	NetworkSlots int `toml:"network_slots"`
	// CancelGraceMillis is how long the runner waits for in-flight stage
	// work to acknowledge an abort before abandoning it.
	CancelGraceMillis int `toml:"cancel_grace_millis"`
	// MaxSubtitleLength splits cue text longer than this many runes;
	// zero disables splitting.
	MaxSubtitleLength int `toml:"max_subtitle_length"`
}

// Maintenance contains daemon housekeeping settings.
type Maintenance struct {
	// CleanupSchedule is a cron expression for temp file and retention
	// sweeps.
	CleanupSchedule string `toml:"cleanup_schedule"`
	// CompletedRetentionDays removes completed tasks older than this many
	// days; zero keeps them forever.
	CompletedRetentionDays int `toml:"completed_retention_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the daemon.
type Config struct {
	Paths       Paths       `toml:"paths"`
	ASR         ASR         `toml:"asr"`
	Translation Translation `toml:"translation"`
	VAD         VAD         `toml:"vad"`
	Media       Media       `toml:"media"`
	Pipeline    Pipeline    `toml:"pipeline"`
	Maintenance Maintenance `toml:"maintenance"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/subgen/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the runtime directories the daemon needs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.TempDir, c.Paths.OutputDir, c.Paths.DataDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure directory %s: %w", dir, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}
