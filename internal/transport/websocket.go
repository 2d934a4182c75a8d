package transport

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hitcaff/vidya/internal/audio"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The browser client is served from a separate origin in
		// development; provisioning tokens gate access instead.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// mediaMessage is one websocket message exchanged with the client.
// Audio travels as base64-encoded little-endian PCM16.
type mediaMessage struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id,omitempty"`
	Media     *media `json:"media,omitempty"`
}

type media struct {
	Payload    string `json:"payload"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// WSTransport implements Transport over a websocket connection using
// JSON media messages.
type WSTransport struct {
	conn      *websocket.Conn
	sessionID string

	sampleRate int
	frameMs    int

	incoming chan audio.Frame
	done     chan struct{}

	mu        sync.Mutex // guards conn writes and closed
	closeOnce sync.Once
	closed    bool

	// partial samples carried between reads so frames stay fixed-size
	remainder []int16
	seq       uint64

	logger zerolog.Logger
}

// Upgrade upgrades an HTTP request to a websocket media transport for
// the given session and starts its read loop.
func Upgrade(w http.ResponseWriter, r *http.Request, sessionID string, sampleRate, frameMs int, logger zerolog.Logger) (*WSTransport, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade to websocket: %w", err)
	}

	t := &WSTransport{
		conn:       conn,
		sessionID:  sessionID,
		sampleRate: sampleRate,
		frameMs:    frameMs,
		incoming:   make(chan audio.Frame, 256),
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "transport").Str("session_id", sessionID).Logger(),
	}

	go t.readLoop()
	return t, nil
}

// SessionID implements Transport.
func (t *WSTransport) SessionID() string { return t.sessionID }

// Incoming implements Transport.
func (t *WSTransport) Incoming() <-chan audio.Frame { return t.incoming }

// Done implements Transport.
func (t *WSTransport) Done() <-chan struct{} { return t.done }

// WriteFrame implements Transport.
func (t *WSTransport) WriteFrame(f audio.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("session %s is closed", t.sessionID)
	}
	msg := mediaMessage{
		Event:     "media",
		SessionID: t.sessionID,
		Media: &media{
			Payload:    base64.StdEncoding.EncodeToString(audio.PCM16ToBytes(f.PCM)),
			SampleRate: f.SampleRate,
		},
	}
	return t.conn.WriteJSON(msg)
}

// Close implements Transport.
func (t *WSTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		close(t.done)
		t.conn.Close()
	})
	return nil
}

// readLoop decodes media messages into fixed-duration frames until the
// peer disconnects.
func (t *WSTransport) readLoop() {
	defer func() {
		close(t.incoming)
		t.Close()
	}()

	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warn().Err(err).Msg("websocket read error")
			} else {
				t.logger.Info().Msg("client disconnected")
			}
			return
		}

		var msg mediaMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			t.logger.Error().Err(err).Msg("failed to parse media message")
			continue
		}

		switch msg.Event {
		case "media":
			if msg.Media != nil {
				t.handleMedia(msg.Media)
			}
		case "stop":
			t.logger.Info().Msg("client requested stop")
			return
		default:
			t.logger.Debug().Str("event", msg.Event).Msg("ignoring unknown event")
		}
	}
}

// handleMedia decodes one media payload and queues its frames.
func (t *WSTransport) handleMedia(m *media) {
	data, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil {
		t.logger.Error().Err(err).Msg("failed to decode base64 audio")
		return
	}
	samples, err := audio.BytesToPCM16(data)
	if err != nil {
		t.logger.Error().Err(err).Msg("invalid PCM payload")
		return
	}
	if m.SampleRate > 0 && m.SampleRate != t.sampleRate {
		samples = audio.Resample(samples, m.SampleRate, t.sampleRate)
	}

	samplesPerFrame := t.sampleRate * t.frameMs / 1000
	buf := append(t.remainder, samples...)
	frames := audio.SplitFrames(buf, t.sampleRate, samplesPerFrame, t.seq)
	consumed := len(frames) * samplesPerFrame
	t.remainder = append(t.remainder[:0], buf[consumed:]...)
	t.seq += uint64(len(frames))

	for _, f := range frames {
		select {
		case t.incoming <- f:
		default:
			// Never block the websocket reader; the pipeline's own
			// buffers decide what to drop.
			t.logger.Warn().Uint64("seq", f.Seq).Msg("incoming frame queue full, dropping frame")
		}
	}
}
