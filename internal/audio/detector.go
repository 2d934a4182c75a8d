package audio

import (
	"time"
)

// DetectorConfig holds configuration for turn detection.
type DetectorConfig struct {
	// EnergyThreshold is the RMS energy above which a frame counts as
	// voiced.
	EnergyThreshold float64

	// Debounce is the minimum sustained voiced duration before
	// SpeechStart is emitted, guarding against transient noise.
	Debounce time.Duration

	// SilenceTimeout is the continuous silence duration after which
	// SpeechEnd is emitted.
	SilenceTimeout time.Duration
}

// DefaultDetectorConfig returns a default turn detection configuration.
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		EnergyThreshold: 500.0,
		Debounce:        200 * time.Millisecond,
		SilenceTimeout:  800 * time.Millisecond,
	}
}

// Event is a turn boundary event emitted by the detector.
type Event int

const (
	EventNone Event = iota
	EventSpeechStart
	EventSpeechEnd
)

// String returns the string representation of the event.
func (e Event) String() string {
	switch e {
	case EventSpeechStart:
		return "speech_start"
	case EventSpeechEnd:
		return "speech_end"
	default:
		return "none"
	}
}

// TurnDetector consumes the microphone frame stream and emits
// SpeechStart/SpeechEnd turn boundaries. Exactly one SpeechStart
// precedes each SpeechEnd; the detector never reports overlapping
// turns.
//
// Frames observed during the debounce window are retained and handed
// back alongside the SpeechStart event so recognition can be seeded
// with the utterance onset instead of losing it.
type TurnDetector struct {
	config *DetectorConfig

	active    bool
	voiced    time.Duration
	silence   time.Duration
	preSpeech []Frame
}

// NewTurnDetector creates a turn detector.
func NewTurnDetector(config *DetectorConfig) *TurnDetector {
	if config == nil {
		config = DefaultDetectorConfig()
	}
	return &TurnDetector{config: config}
}

// ProcessFrame consumes one frame and returns the boundary event it
// produced, if any. For EventSpeechStart the returned frames are the
// buffered onset frames (including the current one) that should seed
// recognition.
func (d *TurnDetector) ProcessFrame(f Frame) (Event, []Frame) {
	voiced := f.RMS() >= d.config.EnergyThreshold

	if !d.active {
		if !voiced {
			// Transient noise shorter than the debounce window is
			// discarded entirely.
			d.voiced = 0
			d.preSpeech = nil
			return EventNone, nil
		}

		d.preSpeech = append(d.preSpeech, f)
		d.voiced += f.Duration()
		if d.voiced < d.config.Debounce {
			return EventNone, nil
		}

		onset := d.preSpeech
		d.active = true
		d.voiced = 0
		d.silence = 0
		d.preSpeech = nil
		return EventSpeechStart, onset
	}

	if voiced {
		d.silence = 0
		return EventNone, nil
	}

	d.silence += f.Duration()
	if d.silence < d.config.SilenceTimeout {
		return EventNone, nil
	}

	d.active = false
	d.silence = 0
	return EventSpeechEnd, nil
}

// BeginActive forces the detector into an active turn, skipping the
// debounce window. Used when the caller has already confirmed
// sustained voice, such as after a barge-in.
func (d *TurnDetector) BeginActive() {
	d.active = true
	d.voiced = 0
	d.silence = 0
	d.preSpeech = nil
}

// IsVoiced reports whether a frame clears the voice energy
// threshold.
func (d *TurnDetector) IsVoiced(f Frame) bool {
	return f.RMS() >= d.config.EnergyThreshold
}

// IsActive reports whether the detector is currently inside a turn.
func (d *TurnDetector) IsActive() bool {
	return d.active
}

// Reset returns the detector to its idle state.
func (d *TurnDetector) Reset() {
	d.active = false
	d.voiced = 0
	d.silence = 0
	d.preSpeech = nil
}
