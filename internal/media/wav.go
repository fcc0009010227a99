package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"subgen/internal/services"
)

// PCM is decoded 16-bit mono audio.
type PCM struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the clip length in seconds.
func (p PCM) Duration() float64 {
	if p.SampleRate <= 0 {
		return 0
	}
	return float64(len(p.Samples)) / float64(p.SampleRate)
}

// ReadWAV decodes a 16-bit PCM mono WAV file. This is the only format the
// extraction stage produces, so anything else is rejected.
func ReadWAV(path string) (PCM, error) {
	file, err := os.Open(path)
	if err != nil {
		return PCM{}, services.Wrap(services.ErrMediaTool, "", "read wav", "open file", err)
	}
	defer file.Close()

	pcm, err := DecodeWAV(file)
	if err != nil {
		return PCM{}, services.Wrap(services.ErrMediaTool, "", "read wav", path, err)
	}
	return pcm, nil
}

// DecodeWAV parses a RIFF/WAVE stream into PCM samples.
func DecodeWAV(r io.Reader) (PCM, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return PCM{}, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return PCM{}, errors.New("not a wav file")
	}

	var (
		sampleRate    int
		channels      int
		bitsPerSample int
		haveFormat    bool
	)

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return PCM{}, errors.New("wav has no data chunk")
			}
			return PCM{}, fmt.Errorf("read chunk header: %w", err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			body := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, body); err != nil {
				return PCM{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return PCM{}, errors.New("fmt chunk too short")
			}
			audioFormat := binary.LittleEndian.Uint16(body[0:2])
			if audioFormat != 1 {
				return PCM{}, fmt.Errorf("unsupported wav format %d, want PCM", audioFormat)
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFormat = true
		case "data":
			if !haveFormat {
				return PCM{}, errors.New("data chunk before fmt chunk")
			}
			if bitsPerSample != 16 {
				return PCM{}, fmt.Errorf("unsupported bit depth %d, want 16", bitsPerSample)
			}
			if channels != 1 {
				return PCM{}, fmt.Errorf("unsupported channel count %d, want mono", channels)
			}
			raw := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, raw); err != nil {
				return PCM{}, fmt.Errorf("read data chunk: %w", err)
			}
			samples := make([]int16, len(raw)/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i : 2*i+2]))
			}
			return PCM{Samples: samples, SampleRate: sampleRate}, nil
		default:
			// Skip LIST, INFO, and other metadata chunks. Chunks are
			// word-aligned, so odd sizes carry a pad byte.
			skip := int64(chunkSize)
			if chunkSize%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return PCM{}, fmt.Errorf("skip chunk %q: %w", chunkID, err)
			}
		}
	}
}

// WriteWAV encodes 16-bit mono PCM to a WAV file. Used by tests and the
// segment fallback path.
func WriteWAV(path string, pcm PCM) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer file.Close()

	dataSize := uint32(len(pcm.Samples) * 2)
	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataSize)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], uint32(pcm.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(pcm.SampleRate*2))
	binary.LittleEndian.PutUint16(header[32:34], 2)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataSize)

	if _, err := file.Write(header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	body := make([]byte, len(pcm.Samples)*2)
	for i, sample := range pcm.Samples {
		binary.LittleEndian.PutUint16(body[2*i:2*i+2], uint16(sample))
	}
	if _, err := file.Write(body); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}
