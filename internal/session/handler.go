package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"parlor/internal/auth"
	"parlor/internal/websocket"
)

var upgrader = gorilla.Upgrader{
	// Origin checking is left to the deployment's reverse proxy.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades HTTP requests to websocket sessions. Identity
// verification happens before the upgrade: a request without a valid
// token never reaches the Active state, or a websocket at all.
type Handler struct {
	log      zerolog.Logger
	verifier *auth.Verifier
	opts     websocket.Options
	deps     Deps

	baseCtx context.Context
}

// NewHandler creates the /ws endpoint handler. baseCtx bounds the
// lifetime of all sessions it spawns; cancelling it (shutdown) stops
// accepting and lets in-flight sessions unwind.
func NewHandler(baseCtx context.Context, verifier *auth.Verifier, opts websocket.Options, deps Deps, log zerolog.Logger) *Handler {
	return &Handler{
		log:      log.With().Str("component", "handler").Logger(),
		verifier: verifier,
		opts:     opts,
		deps:     deps,
		baseCtx:  baseCtx,
	}
}

// HandleWebSocket authenticates the handshake, upgrades the connection,
// and hands it to a fresh coordinator.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	identity, err := h.verifier.VerifyToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("handshake rejected")
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := websocket.NewConnection(wsConn, identity, h.opts)
	coordinator := NewCoordinator(conn, h.deps, h.log)

	h.log.Info().Str("username", identity.Name).Msg("connection established")
	go coordinator.Run(h.baseCtx)
}

// bearerToken extracts the token from the query string or, failing
// that, an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}
