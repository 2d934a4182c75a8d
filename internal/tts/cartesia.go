package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hitcaff/vidya/internal/audio"
)

const cartesiaSampleRate = 24000

// CartesiaClient implements Synthesizer using Cartesia's TTS API.
// Responses are streamed: PCM is read in chunks, resampled to the
// pipeline sample rate and emitted as fixed-duration frames as soon as
// enough samples arrive.
type CartesiaClient struct {
	apiKey     string
	apiURL     string
	modelID    string
	sampleRate int
	frameMs    int
	httpClient *http.Client
	logger     zerolog.Logger
}

// cartesiaRequest is the request payload for the Cartesia TTS API.
type cartesiaRequest struct {
	Text         string  `json:"text"`
	VoiceID      string  `json:"voice_id"`
	ModelID      string  `json:"model_id,omitempty"`
	OutputFormat string  `json:"output_format,omitempty"`
	SampleRate   int     `json:"sample_rate,omitempty"`
	Speed        float64 `json:"speed,omitempty"`
}

// NewCartesiaClient creates a Cartesia TTS client emitting frames at
// the given pipeline sample rate and frame duration.
func NewCartesiaClient(apiKey, modelID string, sampleRate, frameMs int, logger zerolog.Logger) *CartesiaClient {
	return &CartesiaClient{
		apiKey:     apiKey,
		apiURL:     "https://api.cartesia.ai/v1/tts",
		modelID:    modelID,
		sampleRate: sampleRate,
		frameMs:    frameMs,
		httpClient: &http.Client{},
		logger:     logger.With().Str("component", "tts-cartesia").Logger(),
	}
}

// Synthesize implements Synthesizer.
func (c *CartesiaClient) Synthesize(ctx context.Context, text string, params VoiceParams) (<-chan audio.Frame, error) {
	pace := params.Pace
	if pace == 0 {
		pace = 1.0
	}
	reqBody := cartesiaRequest{
		Text:         text,
		VoiceID:      params.VoiceID,
		ModelID:      c.modelID,
		OutputFormat: "pcm",
		SampleRate:   cartesiaSampleRate,
		Speed:        pace,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Transient: true, Err: fmt.Errorf("request failed: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, &Error{Transient: transient, Err: fmt.Errorf("cartesia API returned status %d", resp.StatusCode)}
	}

	frames := make(chan audio.Frame, 16)
	go func() {
		defer resp.Body.Close()
		defer close(frames)

		samplesPerFrame := c.sampleRate * c.frameMs / 1000
		var pending []int16
		var seq uint64
		buf := make([]byte, 4096)
		var carry []byte

		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				raw := append(carry, buf[:n]...)
				// Keep a trailing odd byte for the next read.
				usable := len(raw) &^ 1
				carry = append([]byte(nil), raw[usable:]...)

				samples, err := audio.BytesToPCM16(raw[:usable])
				if err == nil {
					pending = append(pending, audio.Resample(samples, cartesiaSampleRate, c.sampleRate)...)
				}

				for len(pending) >= samplesPerFrame {
					pcm := make([]int16, samplesPerFrame)
					copy(pcm, pending[:samplesPerFrame])
					pending = pending[samplesPerFrame:]
					select {
					case frames <- audio.Frame{PCM: pcm, SampleRate: c.sampleRate, Seq: seq}:
						seq++
					case <-ctx.Done():
						return
					}
				}
			}
			if readErr != nil {
				if readErr != io.EOF {
					c.logger.Warn().Err(readErr).Msg("cartesia response read failed")
				}
				break
			}
		}

		// Flush the remaining partial frame zero-padded to full length
		// so playback never cuts mid-sample.
		if len(pending) > 0 {
			pcm := make([]int16, samplesPerFrame)
			copy(pcm, pending)
			select {
			case frames <- audio.Frame{PCM: pcm, SampleRate: c.sampleRate, Seq: seq}:
			case <-ctx.Done():
			}
		}
	}()

	return frames, nil
}
