// Package provision issues session credentials to clients before
// they open the media WebSocket.
package provision

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hitcaff/vidya/internal/observability"
)

// SessionGrant is the provisioning response: the client connects to
// WSURL and presents Token as a query parameter.
type SessionGrant struct {
	SessionID string `json:"session_id"`
	WSURL     string `json:"ws_url"`
	Token     string `json:"token"`
}

type grantRecord struct {
	token    string
	issuedAt time.Time
	claimed  bool
}

// Handler provisions sessions and validates tokens when the media
// connection arrives. Grants expire unclaimed after the TTL.
type Handler struct {
	publicURL string
	ttl       time.Duration
	logger    zerolog.Logger

	mu     sync.Mutex
	grants map[string]*grantRecord
}

// NewHandler creates a provisioning handler. publicURL is the
// externally reachable base URL of this server.
func NewHandler(publicURL string, ttl time.Duration, logger zerolog.Logger) *Handler {
	return &Handler{
		publicURL: publicURL,
		ttl:       ttl,
		logger:    logger.With().Str("component", "provision").Logger(),
		grants:    make(map[string]*grantRecord),
	}
}

// CreateSession handles POST /session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := uuid.New().String()
	token, err := newToken()
	if err != nil {
		h.logger.Error().Err(err).Msg("token generation failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	h.pruneLocked(time.Now())
	h.grants[sessionID] = &grantRecord{token: token, issuedAt: time.Now()}
	h.mu.Unlock()

	grant := SessionGrant{
		SessionID: sessionID,
		WSURL:     fmt.Sprintf("%s/ws?session_id=%s&token=%s", h.publicURL, sessionID, token),
		Token:     token,
	}
	h.logger.Info().
		Str("session_id", sessionID).
		Str("correlation_id", observability.NewCorrelationID()).
		Msg("session provisioned")

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(grant); err != nil {
		h.logger.Error().Err(err).Msg("grant encode failed")
	}
}

// Claim validates and consumes a grant for an arriving media
// connection. A grant is single use.
func (h *Handler) Claim(sessionID, token string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.grants[sessionID]
	if !ok || rec.claimed || rec.token != token {
		return false
	}
	if time.Since(rec.issuedAt) > h.ttl {
		delete(h.grants, sessionID)
		return false
	}
	rec.claimed = true
	return true
}

// Release drops a grant once its session ends.
func (h *Handler) Release(sessionID string) {
	h.mu.Lock()
	delete(h.grants, sessionID)
	h.mu.Unlock()
}

func (h *Handler) pruneLocked(now time.Time) {
	for id, rec := range h.grants {
		if now.Sub(rec.issuedAt) > h.ttl {
			delete(h.grants, id)
		}
	}
}

func newToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
