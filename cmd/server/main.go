package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hitcaff/vidya/internal/audio"
	"github.com/hitcaff/vidya/internal/config"
	"github.com/hitcaff/vidya/internal/llm"
	"github.com/hitcaff/vidya/internal/observability"
	"github.com/hitcaff/vidya/internal/persona"
	"github.com/hitcaff/vidya/internal/pipeline"
	"github.com/hitcaff/vidya/internal/provision"
	"github.com/hitcaff/vidya/internal/resilience"
	"github.com/hitcaff/vidya/internal/stt"
	"github.com/hitcaff/vidya/internal/transport"
	"github.com/hitcaff/vidya/internal/tts"
)

// grantTTL bounds how long a provisioned session may wait before the
// client opens its media connection.
const grantTTL = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("stt_provider", cfg.STTProvider).
		Str("llm_provider", cfg.LLMProvider).
		Str("tts_provider", cfg.TTSProvider).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice agent starting")

	generator, err := newGenerator(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("LLM provider setup failed")
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("ws://localhost:%s", cfg.Port)
	}
	provisioner := provision.NewHandler(publicURL, grantTTL, logger)

	rootCtx, stopSessions := context.WithCancel(context.Background())
	defer stopSessions()

	mux := http.NewServeMux()
	mux.HandleFunc("/session", provisioner.CreateSession)
	mux.HandleFunc("/ws", handleMedia(rootCtx, cfg, provisioner, generator, logger))
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	checks := map[string]observability.HealthCheckFunc{
		"stt": func(ctx context.Context) error {
			_, err := newRecognizer(cfg, logger)
			return err
		},
		"llm": func(ctx context.Context) error {
			_, err := newGenerator(cfg)
			return err
		},
		"tts": func(ctx context.Context) error {
			_, err := newSynthesizer(cfg, logger)
			return err
		},
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("%s/ws", publicURL)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	stopSessions()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

// handleMedia upgrades a provisioned client to the media WebSocket
// and runs a supervised session on it until either side hangs up.
func handleMedia(rootCtx context.Context, cfg *config.Config, provisioner *provision.Handler, generator llm.Generator, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session_id")
		token := r.URL.Query().Get("token")
		if !provisioner.Claim(sessionID, token) {
			http.Error(w, "invalid or expired session", http.StatusUnauthorized)
			return
		}
		defer provisioner.Release(sessionID)

		sessionLogger := observability.SessionLogger(sessionID)
		t, err := transport.Upgrade(w, r, sessionID, cfg.SampleRate, cfg.FrameMs, sessionLogger)
		if err != nil {
			sessionLogger.Error().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer t.Close()

		supervisor, err := buildSession(cfg, t, generator, sessionLogger)
		if err != nil {
			sessionLogger.Error().Err(err).Msg("session setup failed")
			return
		}

		if err := supervisor.Run(rootCtx); err != nil {
			sessionLogger.Error().Err(err).Msg("session ended with error")
		}

		snapshot := supervisor.Conversation().Snapshot()
		sessionLogger.Info().Int("history_entries", len(snapshot)).Msg("session finished")
	}
}

// buildSession wires the pipeline stages for one session.
func buildSession(cfg *config.Config, t transport.Transport, generator llm.Generator, logger zerolog.Logger) (*pipeline.SessionSupervisor, error) {
	recognizer, err := newRecognizer(cfg, logger)
	if err != nil {
		return nil, err
	}
	synthesizer, err := newSynthesizer(cfg, logger)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewSessionMetrics(t.SessionID())
	retry := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    cfg.RetryBackoff(),
		MaxBackoff:        10 * cfg.RetryBackoff(),
		BackoffMultiplier: 2,
	}

	state := pipeline.NewConversationState(persona.BuildPrompt(persona.Profile{}), cfg.HistoryRetention)
	recognition := pipeline.NewRecognitionStage(recognizer, cfg.STTLanguage, cfg.FrameBuffer, retry, logger, metrics)
	dialogue := pipeline.NewDialogueManager(generator, state, cfg.MaxSentenceChars, logger, metrics)
	voice := tts.VoiceParams{VoiceID: cfg.TTSVoiceID, Pace: cfg.TTSPace}
	synthesis := pipeline.NewSynthesisStage(synthesizer, voice, cfg.SynthesisConcurrency, cfg.ChunkSkipThreshold, retry, logger, metrics)
	scheduler := pipeline.NewOutputScheduler(t, cfg.SpeakerQueueFrames, logger, metrics)

	supCfg := pipeline.SupervisorConfig{
		Detector: &audio.DetectorConfig{
			EnergyThreshold: cfg.VADEnergyThreshold,
			Debounce:        cfg.BargeInDebounce(),
			SilenceTimeout:  cfg.SilenceTimeout(),
		},
		GreetingInstruction: persona.GreetingInstruction,
		RestartLimit:        cfg.StageRestartLimit,
		RestartWindow:       cfg.RestartWindow(),
	}
	return pipeline.NewSessionSupervisor(t, recognition, dialogue, synthesis, scheduler, supCfg, logger, metrics), nil
}

// newRecognizer selects the configured STT provider.
func newRecognizer(cfg *config.Config, logger zerolog.Logger) (stt.Recognizer, error) {
	switch cfg.STTProvider {
	case "deepgram":
		return stt.NewDeepgramRecognizer(cfg.DeepgramAPIKey, cfg.DeepgramModel, cfg.STTLanguage, cfg.SampleRate, logger), nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.STTProvider)
	}
}

// newGenerator selects the configured LLM provider.
func newGenerator(cfg *config.Config) (llm.Generator, error) {
	switch cfg.LLMProvider {
	case "openai":
		return llm.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.LLMTemperature, cfg.LLMMaxTokens)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

// newSynthesizer selects the configured TTS provider.
func newSynthesizer(cfg *config.Config, logger zerolog.Logger) (tts.Synthesizer, error) {
	switch cfg.TTSProvider {
	case "cartesia":
		return tts.NewCartesiaClient(cfg.CartesiaAPIKey, cfg.CartesiaModelID, cfg.SampleRate, cfg.FrameMs, logger), nil
	default:
		return nil, fmt.Errorf("unknown TTS provider %q", cfg.TTSProvider)
	}
}
