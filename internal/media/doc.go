// Package media wraps the external ffmpeg and ffprobe binaries and provides
// audio decoding plus voice activity detection over extracted PCM.
package media
