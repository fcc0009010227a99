package media

import "context"

// Info captures container-level metadata for a media file.
type Info struct {
	DurationSeconds float64
	SizeBytes       int64
	HasAudio        bool
	HasVideo        bool
	FormatName      string
}

// MixOptions controls subtitle burning and optional dub mixing.
type MixOptions struct {
	// SubtitlePath burns the subtitle file into the video when non-empty.
	SubtitlePath string
	// SubtitleStyle is an ASS force_style expression, e.g. "FontSize=24".
	SubtitleStyle string
	// DubAudioPath mixes a second audio track over the original when
	// non-empty.
	DubAudioPath   string
	OriginalVolume float64
	DubVolume      float64
}

// Tool abstracts the external media binaries so the pipeline can run against
// fakes in tests.
type Tool interface {
	// Inspect probes a media file for duration and stream layout.
	Inspect(ctx context.Context, path string) (Info, error)
	// ExtractAudio decodes the file's audio track to 16 kHz mono s16le WAV.
	ExtractAudio(ctx context.Context, sourcePath, wavPath string) error
	// ExtractSegment cuts [start, start+duration) seconds out of a WAV file.
	ExtractSegment(ctx context.Context, wavPath, outPath string, start, duration float64) error
	// Synthesize renders the output video, burning subtitles and mixing a
	// dub track per opts.
	Synthesize(ctx context.Context, sourcePath, outPath string, opts MixOptions) error
}
