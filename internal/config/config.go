package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice agent service.
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Public base URL for this service. Used by the provisioning
	// endpoint to build the websocket URL handed to clients.
	// Optional; if unset, ws://localhost:PORT is used.
	PublicURL string `envconfig:"PUBLIC_URL" default:""`

	// Provider selection. Swapping a provider is a configuration
	// change only; pipeline logic never depends on a concrete vendor.
	STTProvider string `envconfig:"STT_PROVIDER" default:"deepgram"`
	LLMProvider string `envconfig:"LLM_PROVIDER" default:"openai"`
	TTSProvider string `envconfig:"TTS_PROVIDER" default:"cartesia"`

	// Deepgram STT configuration
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	STTLanguage    string `envconfig:"STT_LANGUAGE" default:"auto"` // auto = provider language detection

	// OpenAI LLM configuration
	OpenAIAPIKey   string  `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIModel    string  `envconfig:"OPENAI_MODEL" default:"gpt-4o"`
	LLMTemperature float64 `envconfig:"LLM_TEMPERATURE" default:"0.7"`
	LLMMaxTokens   int     `envconfig:"LLM_MAX_TOKENS" default:"300"`

	// Cartesia TTS configuration
	CartesiaAPIKey  string  `envconfig:"CARTESIA_API_KEY" default:""`
	CartesiaModelID string  `envconfig:"CARTESIA_MODEL_ID" default:"sonic"`
	TTSVoiceID      string  `envconfig:"TTS_VOICE_ID" default:"sonic-english"`
	TTSPace         float64 `envconfig:"TTS_PACE" default:"0.8"` // slow, clear speech for learners

	// Audio configuration
	SampleRate  int `envconfig:"SAMPLE_RATE" default:"16000"` // Hz, pipeline-wide
	FrameMs     int `envconfig:"FRAME_MS" default:"20"`       // frame duration in milliseconds
	FrameBuffer int `envconfig:"FRAME_BUFFER" default:"512"`  // recognition buffer capacity in frames

	// Turn detection configuration
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS threshold for voiced frames
	SilenceTimeoutMs   int     `envconfig:"SILENCE_TIMEOUT_MS" default:"800"`     // silence before a turn ends
	BargeInDebounceMs  int     `envconfig:"BARGE_IN_DEBOUNCE_MS" default:"200"`   // sustained speech before start/barge-in

	// Dialogue configuration
	MaxSentenceChars int `envconfig:"MAX_SENTENCE_CHARS" default:"160"` // flush cap bounding time-to-first-audio
	HistoryRetention int `envconfig:"HISTORY_RETENTION" default:"20"`   // retained history entries, oldest dropped first

	// Synthesis configuration
	SynthesisConcurrency int `envconfig:"SYNTHESIS_CONCURRENCY" default:"2"`  // concurrent synthesis calls per turn
	ChunkSkipThreshold   int `envconfig:"CHUNK_SKIP_THRESHOLD" default:"2"`   // skipped chunks before the turn is aborted
	SpeakerQueueFrames   int `envconfig:"SPEAKER_QUEUE_FRAMES" default:"512"` // playback queue capacity in frames

	// Resilience configuration
	RetryMaxAttempts     int `envconfig:"RETRY_MAX_ATTEMPTS" default:"2"`     // attempts per external call
	RetryInitialBackoff  int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"` // initial backoff in milliseconds
	StageRestartLimit    int `envconfig:"STAGE_RESTART_LIMIT" default:"3"`    // restarts per window before session ends
	StageRestartWindowMs int `envconfig:"STAGE_RESTART_WINDOW_MS" default:"60000"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// SilenceTimeout returns the turn-end silence timeout as a duration.
func (c *Config) SilenceTimeout() time.Duration {
	return time.Duration(c.SilenceTimeoutMs) * time.Millisecond
}

// BargeInDebounce returns the sustained-speech debounce as a duration.
func (c *Config) BargeInDebounce() time.Duration {
	return time.Duration(c.BargeInDebounceMs) * time.Millisecond
}

// RetryBackoff returns the initial retry backoff as a duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoff) * time.Millisecond
}

// RestartWindow returns the stage restart budget window as a duration.
func (c *Config) RestartWindow() time.Duration {
	return time.Duration(c.StageRestartWindowMs) * time.Millisecond
}

// Load reads configuration, first from a .env file if one exists, then
// from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load a .env file (useful for containers).
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks that the selected providers have credentials.
func (c *Config) validate() error {
	if c.STTProvider == "deepgram" && c.DeepgramAPIKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required for STT_PROVIDER=deepgram")
	}
	if c.LLMProvider == "openai" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for LLM_PROVIDER=openai")
	}
	if c.TTSProvider == "cartesia" && c.CartesiaAPIKey == "" {
		return fmt.Errorf("CARTESIA_API_KEY is required for TTS_PROVIDER=cartesia")
	}
	if c.SampleRate <= 0 || c.FrameMs <= 0 {
		return fmt.Errorf("SAMPLE_RATE and FRAME_MS must be positive")
	}
	if c.TTSPace <= 0 || c.TTSPace > 2.0 {
		return fmt.Errorf("TTS_PACE must be in (0, 2.0]")
	}
	return nil
}
