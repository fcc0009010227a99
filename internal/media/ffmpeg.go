package media

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"subgen/internal/config"
	"subgen/internal/services"
)

// SampleRate is the PCM sample rate the pipeline works in. SenseVoice expects
// 16 kHz mono input.
const SampleRate = 16000

// FFmpeg shells out to the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg builds a Tool around the configured binary locations.
func NewFFmpeg(cfg config.Media) *FFmpeg {
	ffmpeg := strings.TrimSpace(cfg.FFmpegPath)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	ffprobe := strings.TrimSpace(cfg.FFprobePath)
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &FFmpeg{ffmpegPath: ffmpeg, ffprobePath: ffprobe}
}

type probeResult struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

// Inspect probes path with ffprobe and decodes the JSON response.
func (f *FFmpeg) Inspect(ctx context.Context, path string) (Info, error) {
	if strings.TrimSpace(path) == "" {
		return Info{}, services.Wrap(services.ErrInvalidInput, "", "inspect", "empty path", nil)
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error", "-hide_banner",
		"-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Info{}, services.Wrap(services.ErrMediaTool, "", "inspect",
			strings.TrimSpace(string(output)), err)
	}

	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return Info{}, services.Wrap(services.ErrMediaTool, "", "inspect", "parse ffprobe output", err)
	}

	info := Info{
		DurationSeconds: parseFloat(result.Format.Duration),
		SizeBytes:       int64(parseFloat(result.Format.Size)),
		FormatName:      result.Format.FormatName,
	}
	for _, stream := range result.Streams {
		switch strings.ToLower(stream.CodecType) {
		case "audio":
			info.HasAudio = true
		case "video":
			info.HasVideo = true
		}
	}
	return info, nil
}

// ExtractAudio decodes the audio track to 16 kHz mono s16le WAV.
func (f *FFmpeg) ExtractAudio(ctx context.Context, sourcePath, wavPath string) error {
	if err := os.MkdirAll(filepath.Dir(wavPath), 0o755); err != nil {
		return services.Wrap(services.ErrMediaTool, "", "extract audio", "create output directory", err)
	}
	return f.run(ctx, "extract audio",
		"-y", "-i", sourcePath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", "1",
		wavPath)
}

// ExtractSegment cuts a window out of a WAV file. The seek flags come before
// the input so ffmpeg seeks instead of decoding from the start.
func (f *FFmpeg) ExtractSegment(ctx context.Context, wavPath, outPath string, start, duration float64) error {
	if duration <= 0 {
		return services.Wrap(services.ErrInvalidInput, "", "extract segment", "non-positive duration", nil)
	}
	return f.run(ctx, "extract segment",
		"-y",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-i", wavPath,
		"-acodec", "pcm_s16le",
		outPath)
}

// Synthesize renders the output video. When a dub track is given it is mixed
// over the original audio at the requested volumes; when a subtitle file is
// given it is burned into the video stream.
func (f *FFmpeg) Synthesize(ctx context.Context, sourcePath, outPath string, opts MixOptions) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return services.Wrap(services.ErrMediaTool, "", "synthesize", "create output directory", err)
	}

	args := []string{"-y", "-i", sourcePath}
	var filters []string
	videoMap := "0:v"
	audioMap := "0:a"

	if opts.DubAudioPath != "" {
		args = append(args, "-i", opts.DubAudioPath)
		origVol := opts.OriginalVolume
		if origVol <= 0 {
			origVol = 0.3
		}
		dubVol := opts.DubVolume
		if dubVol <= 0 {
			dubVol = 1.0
		}
		filters = append(filters, fmt.Sprintf(
			"[0:a]volume=%s[orig];[1:a]volume=%s[dub];[orig][dub]amix=inputs=2:duration=first[aout]",
			formatSeconds(origVol), formatSeconds(dubVol)))
		audioMap = "[aout]"
	}

	if opts.SubtitlePath != "" {
		burn := fmt.Sprintf("[0:v]subtitles=%s", escapeFilterPath(opts.SubtitlePath))
		if opts.SubtitleStyle != "" {
			burn += fmt.Sprintf(":force_style='%s'", opts.SubtitleStyle)
		}
		filters = append(filters, burn+"[vout]")
		videoMap = "[vout]"
	}

	if len(filters) > 0 {
		args = append(args, "-filter_complex", strings.Join(filters, ";"))
	}
	args = append(args,
		"-map", videoMap,
		"-map", audioMap,
		"-c:v", "libx264",
		"-c:a", "aac",
		outPath)

	return f.run(ctx, "synthesize", args...)
}

func (f *FFmpeg) run(ctx context.Context, operation string, args ...string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrMediaTool, "", operation, tail(string(output)), err)
	}
	return nil
}

// tail keeps the last few lines of ffmpeg stderr, where the actual error is.
func tail(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > 4 {
		lines = lines[len(lines)-4:]
	}
	return strings.Join(lines, " | ")
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// escapeFilterPath quotes a path for use inside a filter expression, where
// colons and quotes are syntax.
func escapeFilterPath(path string) string {
	escaped := strings.ReplaceAll(path, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `:`, `\:`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || parsed < 0 {
		return 0
	}
	return parsed
}
