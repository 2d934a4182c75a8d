package audio

import (
	"math"
	"time"
)

// Frame is one fixed-duration chunk of mono 16-bit PCM samples.
// Frames are immutable once produced; ownership passes from stage to
// stage with a single consumer at a time.
type Frame struct {
	// PCM holds the signed 16-bit samples.
	PCM []int16

	// SampleRate is the sample rate in Hz.
	SampleRate int

	// Seq is a monotonic sequence number assigned by the producer.
	Seq uint64
}

// Duration returns the nominal playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.PCM)) * time.Second / time.Duration(f.SampleRate)
}

// RMS returns the root mean square energy of the frame's samples.
func (f Frame) RMS() float64 {
	return CalculateRMS(f.PCM)
}

// CalculateRMS calculates the root mean square (RMS) of audio samples.
// Useful for detecting audio levels and silence.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
