package config

const (
	// DefaultTempDir is where extracted audio and intermediate files live.
	DefaultTempDir = "~/.local/share/subgen/tmp"
	// DefaultOutputDir receives exported subtitles and dubbed videos.
	DefaultOutputDir = "~/.local/share/subgen/output"
	// DefaultDataDir holds the task registry database.
	DefaultDataDir = "~/.local/share/subgen"
	// DefaultLogDir receives daemon log files.
	DefaultLogDir = "~/.local/share/subgen/logs"
	// DefaultAPIBind is the HTTP API listen address.
	DefaultAPIBind = "127.0.0.1:8575"

	// DefaultASRBaseURL targets the hosted SenseVoice-compatible endpoint.
	DefaultASRBaseURL = "https://api.siliconflow.cn/v1"
	// DefaultASRModel is the speech recognition model identifier.
	DefaultASRModel = "FunAudioLLM/SenseVoiceSmall"
	// DefaultASRWorkers bounds per-task parallel segment recognition.
	DefaultASRWorkers = 4

	// DefaultTranslationModel is the chat model used for batch translation.
	DefaultTranslationModel = "Qwen/Qwen2.5-7B-Instruct"
	// DefaultTranslationTargetLang is empty: translation only runs when a
	// task requests a target language or the operator configures one.
	DefaultTranslationTargetLang = ""
	// DefaultTranslationBatchSize is how many cues go into one request.
	DefaultTranslationBatchSize = 20
	// DefaultTranslationMaxWorkers bounds per-task parallel batch requests.
	DefaultTranslationMaxWorkers = 3

	// DefaultVADSensitivity scales the adaptive energy threshold.
	DefaultVADSensitivity = 0.5
	// DefaultVADMinSilence is the gap in seconds that ends a speech span.
	DefaultVADMinSilence = 0.5
	// DefaultVADMinSpeech drops spans shorter than this many seconds.
	DefaultVADMinSpeech = 0.3
	// DefaultVADMaxSpeech splits spans longer than this many seconds.
	DefaultVADMaxSpeech = 15.0

	// DefaultMaxConcurrentTasks bounds simultaneously processing tasks.
	DefaultMaxConcurrentTasks = 3
	// DefaultNetworkSlots bounds concurrent provider batch calls globally.
	DefaultNetworkSlots = 6
	// DefaultCancelGraceMillis is the abort acknowledgement window.
	DefaultCancelGraceMillis = 5000
	// DefaultMaxSubtitleLength splits cue text longer than this many runes.
	DefaultMaxSubtitleLength = 80

	// DefaultCleanupSchedule runs housekeeping hourly.
	DefaultCleanupSchedule = "0 * * * *"
	// DefaultCompletedRetentionDays keeps completed tasks for a week.
	DefaultCompletedRetentionDays = 7

	// DefaultLogFormat is the log output format.
	DefaultLogFormat = "console"
	// DefaultLogLevel is the minimum log level.
	DefaultLogLevel = "info"
)

// Default returns a Config populated with default values. Paths are left in
// their unexpanded form; Load normalizes them.
func Default() Config {
	return Config{
		Paths: Paths{
			TempDir:   DefaultTempDir,
			OutputDir: DefaultOutputDir,
			DataDir:   DefaultDataDir,
			LogDir:    DefaultLogDir,
			APIBind:   DefaultAPIBind,
		},
		ASR: ASR{
			BaseURL: DefaultASRBaseURL,
			Model:   DefaultASRModel,
			Workers: DefaultASRWorkers,
		},
		Translation: Translation{
			Model:      DefaultTranslationModel,
			TargetLang: DefaultTranslationTargetLang,
			BatchSize:  DefaultTranslationBatchSize,
			MaxWorkers: DefaultTranslationMaxWorkers,
		},
		VAD: VAD{
			Sensitivity: DefaultVADSensitivity,
			MinSilence:  DefaultVADMinSilence,
			MinSpeech:   DefaultVADMinSpeech,
			MaxSpeech:   DefaultVADMaxSpeech,
		},
		Media: Media{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
		},
		Pipeline: Pipeline{
			MaxConcurrentTasks: DefaultMaxConcurrentTasks,
			NetworkSlots:       DefaultNetworkSlots,
			CancelGraceMillis:  DefaultCancelGraceMillis,
			MaxSubtitleLength:  DefaultMaxSubtitleLength,
		},
		Maintenance: Maintenance{
			CleanupSchedule:        DefaultCleanupSchedule,
			CompletedRetentionDays: DefaultCompletedRetentionDays,
		},
		Logging: Logging{
			Format: DefaultLogFormat,
			Level:  DefaultLogLevel,
		},
	}
}
