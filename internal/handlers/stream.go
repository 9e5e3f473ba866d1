package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"relaygate-gateway/internal/auth"
	"relaygate-gateway/internal/metrics"
	"relaygate-gateway/internal/relay"
	"relaygate-gateway/internal/suggest"
	"relaygate-gateway/internal/upstream"
	"relaygate-gateway/pkg/logging/logging"
)

// StreamHandler proxies one chat turn: client request in, normalized SSE
// event stream out.
type StreamHandler struct {
	Tokens     auth.TokenSource
	Upstream   upstream.Client
	Enricher   suggest.Provider // nil disables the suggestions tail
	DefaultApp string
}

func NewStreamHandler(tokens auth.TokenSource, up upstream.Client, enricher suggest.Provider, defaultApp string) *StreamHandler {
	return &StreamHandler{
		Tokens:     tokens,
		Upstream:   up,
		Enricher:   enricher,
		DefaultApp: defaultApp,
	}
}

// StreamRequest is the client's chat turn.
type StreamRequest struct {
	AppName   string `json:"appName,omitempty"`
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// AgentStream handles POST /v1/agent/stream.
//
// Failures before the first byte of the stream (bad request, auth,
// upstream connect) are plain JSON status responses. Once streaming has
// begun, the only failure shape the client sees is a terminal error event
// inside the stream.
func (h *StreamHandler) AgentStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message_required")
		return
	}

	appName := req.AppName
	if appName == "" {
		appName = h.DefaultApp
	}
	userID := req.UserID
	if userID == "" {
		userID = "anon"
	}
	sessionID := req.SessionID
	if sessionID == "" {
		// Stateless clients still get coherent turns upstream.
		sessionID = uuid.NewString()
	}

	logger = logger.With(
		zap.String("app", appName),
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
	)
	ctx = logging.WithLogger(ctx, logger)

	// ---- Credential (pre-stream; failures are plain HTTP errors) ----
	token, err := h.Tokens.Token(ctx)
	if err != nil {
		logger.Error("credential acquisition failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream_auth_failed")
		return
	}

	// ---- Upstream connection ----
	runReq := &upstream.RunRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
		NewMessage: upstream.Content{
			Role:  "user",
			Parts: []upstream.Part{{Text: req.Message}},
		},
	}

	results, err := h.Upstream.StreamRun(ctx, runReq, token)
	if err != nil {
		var ce *upstream.ConnectError
		switch {
		case errors.As(err, &ce):
			logger.Error("upstream connect failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "upstream_unavailable")
		default:
			logger.Warn("rejected run request", zap.Error(err))
			writeError(w, http.StatusBadRequest, "invalid_request")
		}
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("response writer does not support streaming")
		writeError(w, http.StatusInternalServerError, "streaming_unsupported")
		return
	}

	// ---- Stream ----
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	out := make(chan *relay.Event, 16)
	sess := relay.NewSession(h.Enricher, logger)
	go sess.Run(ctx, results, out)

	eventCount := 0
	for ev := range out {
		raw, err := json.Marshal(ev)
		if err != nil {
			logger.Error("marshal downstream event", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", raw); err != nil {
			// Client went away; the request context is (about to be)
			// cancelled and the session drains itself.
			logger.Info("downstream write failed, client gone", zap.Error(err))
			return
		}
		flusher.Flush()
		eventCount++
	}

	logger.Info("agent stream finished",
		zap.Int("events", eventCount),
		zap.Duration("total_latency_ms", time.Since(start)),
	)
}

// writeError sends a small JSON error body before any streaming began.
func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
