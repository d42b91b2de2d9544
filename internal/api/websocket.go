package api

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"newsroom/internal/account"
	"newsroom/internal/auth"
	"newsroom/internal/constants"
	"newsroom/internal/ws"
)

// WebSocketHandler upgrades authenticated clients onto the session channel.
// Browsers cannot set headers on a WebSocket handshake, so the access token
// travels in the token query parameter.
type WebSocketHandler struct {
	hub      *ws.Hub
	tokens   *auth.TokenIssuer
	accounts *account.Service
	upgrader websocket.Upgrader

	afterRegister func(userID string)
}

func NewWebSocketHandler(hub *ws.Hub, tokens *auth.TokenIssuer, accounts *account.Service, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		tokens:   tokens,
		accounts: accounts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, origin) || isLoopbackOrigin(origin)
			},
		},
	}
}

func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		unauthorized(w, "Missing token")
		return
	}

	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, constants.ErrCodeInvalidToken, "Invalid or expired token")
		return
	}

	user, err := h.accounts.Me(r.Context(), claims.UserID)
	if errors.Is(err, account.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, constants.ErrCodeInvalidToken, "Invalid or expired token")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if user.IsBlocked {
		writeError(w, http.StatusForbidden, constants.ErrCodeAccountBlocked, "Account is blocked")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		slog.Debug("websocket upgrade failed", "component", "ws", "error", err)
		return
	}

	if !ws.NewClient(h.hub, conn, user.ID, string(user.Role)).Start() {
		return
	}
	if h.afterRegister != nil {
		h.afterRegister(user.ID)
	}

	// A block committed between the check above and Register revoked nothing
	// on this connection, so look again now that the client is reachable.
	current, err := h.accounts.Me(r.Context(), user.ID)
	if err != nil {
		slog.Warn("rechecking session owner failed", "component", "ws", "user_id", user.ID, "error", err)
		return
	}
	if current.IsBlocked {
		h.hub.RevokeUser(user.ID, account.RevokeReasonBlocked)
	}
}
