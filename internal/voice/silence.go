package voice

import (
	"math"
	"time"
)

// Silence detection defaults: a chunk quieter than the threshold counts as
// silence, and recording stops once silence lasts the full duration.
const (
	DefaultSilenceThreshold = 0.01
	DefaultSilenceDuration  = 2 * time.Second
)

// SilenceDetector tracks trailing silence across PCM chunks.
type SilenceDetector struct {
	threshold  float64
	duration   time.Duration
	sampleRate int

	silentFor time.Duration
}

// NewSilenceDetector creates a detector for the given RMS threshold
// (normalized to [0,1]) and required silence duration.
func NewSilenceDetector(threshold float64, duration time.Duration, sampleRate int) *SilenceDetector {
	if threshold <= 0 {
		threshold = DefaultSilenceThreshold
	}
	if duration <= 0 {
		duration = DefaultSilenceDuration
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &SilenceDetector{threshold: threshold, duration: duration, sampleRate: sampleRate}
}

// Feed processes one chunk of samples and reports whether trailing silence
// has reached the configured duration.
func (d *SilenceDetector) Feed(samples []int16) bool {
	if len(samples) == 0 {
		return false
	}
	chunkLen := time.Duration(len(samples)) * time.Second / time.Duration(d.sampleRate)
	if RMS(samples) > d.threshold {
		d.silentFor = 0
		return false
	}
	d.silentFor += chunkLen
	return d.silentFor >= d.duration
}

// Reset clears the trailing-silence counter.
func (d *SilenceDetector) Reset() {
	d.silentFor = 0
}

// RMS returns the root-mean-square level of the samples, normalized so a
// full-scale signal is 1.0.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
