package media

import (
	"math"
	"sort"

	"subgen/internal/config"
)

// Span is a voice-active interval in seconds.
type Span struct {
	Start float64
	End   float64
}

// frameMillis is the analysis window for energy detection.
const frameMillis = 30

// Detector finds speech spans in PCM audio using adaptive energy
// thresholding. The threshold sits between the clip's noise floor and its
// energy peak; sensitivity moves it toward the floor so quieter speech is
// kept.
type Detector struct {
	sensitivity float64
	minSilence  float64
	minSpeech   float64
	maxSpeech   float64
}

// NewDetector builds a detector from VAD configuration.
func NewDetector(cfg config.VAD) *Detector {
	return &Detector{
		sensitivity: cfg.Sensitivity,
		minSilence:  cfg.MinSilence,
		minSpeech:   cfg.MinSpeech,
		maxSpeech:   cfg.MaxSpeech,
	}
}

// DetectFile reads a WAV file and returns its speech spans.
func (d *Detector) DetectFile(path string) ([]Span, error) {
	pcm, err := ReadWAV(path)
	if err != nil {
		return nil, err
	}
	return d.Detect(pcm), nil
}

// Detect returns speech spans ordered by start time. Spans never overlap and
// respect the configured minimum and maximum lengths.
func (d *Detector) Detect(pcm PCM) []Span {
	if len(pcm.Samples) == 0 || pcm.SampleRate <= 0 {
		return nil
	}

	frameLen := pcm.SampleRate * frameMillis / 1000
	if frameLen <= 0 {
		return nil
	}
	frameSeconds := float64(frameLen) / float64(pcm.SampleRate)

	energies := frameEnergies(pcm.Samples, frameLen)
	if len(energies) == 0 {
		return nil
	}
	threshold := d.threshold(energies)

	// Collapse consecutive active frames into raw spans, bridging silence
	// gaps shorter than minSilence.
	var spans []Span
	active := false
	var start float64
	silentFrames := 0
	maxSilentFrames := int(math.Ceil(d.minSilence / frameSeconds))

	for i, energy := range energies {
		at := float64(i) * frameSeconds
		if energy >= threshold {
			if !active {
				active = true
				start = at
			}
			silentFrames = 0
			continue
		}
		if !active {
			continue
		}
		silentFrames++
		if silentFrames >= maxSilentFrames {
			end := at - float64(silentFrames-1)*frameSeconds
			spans = append(spans, Span{Start: start, End: end})
			active = false
			silentFrames = 0
		}
	}
	if active {
		end := float64(len(energies))*frameSeconds - float64(silentFrames)*frameSeconds
		spans = append(spans, Span{Start: start, End: end})
	}

	return d.shape(spans, pcm.Duration())
}

// shape enforces minimum and maximum span lengths and clamps to the clip.
func (d *Detector) shape(spans []Span, clipDuration float64) []Span {
	var out []Span
	for _, span := range spans {
		if span.End > clipDuration {
			span.End = clipDuration
		}
		if span.End-span.Start < d.minSpeech {
			continue
		}
		for span.End-span.Start > d.maxSpeech {
			out = append(out, Span{Start: span.Start, End: span.Start + d.maxSpeech})
			span.Start += d.maxSpeech
		}
		if span.End-span.Start >= d.minSpeech {
			out = append(out, span)
		}
	}
	return out
}

func (d *Detector) threshold(energies []float64) float64 {
	sorted := append([]float64(nil), energies...)
	sort.Float64s(sorted)

	noise := percentile(sorted, 0.2)
	peak := percentile(sorted, 0.95)

	// A clip with no real speech has peak energy near the noise floor; an
	// adaptive threshold would then amplify noise into spans.
	const minPeakEnergy = 0.01
	if peak <= noise || peak < minPeakEnergy {
		return math.Inf(1)
	}
	sensitivity := d.sensitivity
	if sensitivity < 0.1 {
		sensitivity = 0.1
	}
	if sensitivity > 0.9 {
		sensitivity = 0.9
	}
	return noise + (peak-noise)*(1-sensitivity)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func frameEnergies(samples []int16, frameLen int) []float64 {
	count := len(samples) / frameLen
	energies := make([]float64, 0, count)
	for i := 0; i < count; i++ {
		frame := samples[i*frameLen : (i+1)*frameLen]
		var sum float64
		for _, sample := range frame {
			v := float64(sample) / 32768.0
			sum += v * v
		}
		energies = append(energies, math.Sqrt(sum/float64(len(frame))))
	}
	return energies
}
